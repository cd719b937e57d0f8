package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/goliatone/go-ingress/core"
)

// WriteResponse writes a routed response. Raw string and byte bodies go out
// as text/plain; everything else is JSON.
func WriteResponse(w http.ResponseWriter, resp core.Response) {
	status := statusOf(resp)
	if resp.Raw {
		switch body := resp.Body.(type) {
		case string:
			writeText(w, status, body)
			return
		case []byte:
			writeText(w, status, string(body))
			return
		}
	}
	writeJSON(w, status, resp.Body)
}

func statusOf(resp core.Response) int {
	if resp.StatusCode <= 0 {
		return http.StatusOK
	}
	return resp.StatusCode
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		body = map[string]any{}
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
