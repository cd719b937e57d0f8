package inbound

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-ingress/core"
)

const (
	TenantQueryParam  = "tenant_id"
	TenantHeader      = "x-tenant-id"
	formPayloadField  = "payload"
	contentTypeHeader = "content-type"
)

// RawRequest is the transport-neutral capture of one delivery. The HTTP
// boundary and the replay command both build it.
type RawRequest struct {
	Method       string            `json:"method"`
	Path         string            `json:"path"`
	Headers      map[string]string `json:"headers"`
	Query        map[string]string `json:"query,omitempty"`
	Body         []byte            `json:"-"`
	ProviderHint string            `json:"provider_hint,omitempty"`
	ReceivedAt   time.Time         `json:"received_at,omitempty"`
}

// Normalize builds the canonical request. Bodies that do not parse leave the
// payload empty instead of failing, so nothing downstream will match them.
func Normalize(raw RawRequest, defaultTenant string, now time.Time) (*core.WebhookRequest, error) {
	headers := make(map[string]string, len(raw.Headers))
	for key, value := range raw.Headers {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		headers[key] = value
	}
	receivedAt := raw.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}
	return core.NewWebhookRequest(core.WebhookRequestInput{
		Method:     raw.Method,
		Path:       raw.Path,
		Headers:    headers,
		Query:      raw.Query,
		Body:       raw.Body,
		Payload:    parseBody(headers[contentTypeHeader], raw.Body),
		TenantID:   resolveTenant(raw.Query, headers, defaultTenant),
		ReceivedAt: receivedAt,
	}), nil
}

func resolveTenant(query map[string]string, headers map[string]string, fallback string) string {
	if tenant := strings.TrimSpace(query[TenantQueryParam]); tenant != "" {
		return tenant
	}
	if tenant := strings.TrimSpace(headers[TenantHeader]); tenant != "" {
		return tenant
	}
	if tenant := strings.TrimSpace(fallback); tenant != "" {
		return tenant
	}
	return core.DefaultTenantID
}

func parseBody(contentType string, body []byte) map[string]any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return map[string]any{}
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" {
		return parseForm(string(trimmed))
	}
	return parseJSONObject(trimmed)
}

func parseJSONObject(body []byte) map[string]any {
	parsed := map[string]any{}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed == nil {
		return map[string]any{}
	}
	return parsed
}

// parseForm flattens single-valued fields to strings and decodes a JSON
// object carried in the payload field.
func parseForm(body string) map[string]any {
	values, err := url.ParseQuery(body)
	if err != nil {
		return map[string]any{}
	}
	parsed := make(map[string]any, len(values))
	for key, list := range values {
		switch len(list) {
		case 0:
			parsed[key] = ""
		case 1:
			parsed[key] = list[0]
		default:
			items := make([]any, len(list))
			for i, item := range list {
				items[i] = item
			}
			parsed[key] = items
		}
	}
	if encoded, ok := parsed[formPayloadField].(string); ok {
		if decoded := parseJSONObject([]byte(encoded)); len(decoded) > 0 {
			parsed[formPayloadField] = decoded
		}
	}
	return parsed
}
