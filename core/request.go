package core

import (
	"fmt"
	"strings"
	"time"
)

type WebhookRequestInput struct {
	Method     string
	Path       string
	Headers    map[string]string
	Query      map[string]string
	Body       []byte
	Payload    map[string]any
	TenantID   string
	ReceivedAt time.Time
}

// WebhookRequest is the canonical read-only view built once per inbound call.
// Every accessor returns copies so handlers cannot mutate shared state.
type WebhookRequest struct {
	method     string
	path       string
	headers    map[string]string
	query      map[string]string
	body       []byte
	payload    map[string]any
	tenantID   string
	receivedAt time.Time
}

func NewWebhookRequest(in WebhookRequestInput) *WebhookRequest {
	headers := make(map[string]string, len(in.Headers))
	for key, value := range in.Headers {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	query := make(map[string]string, len(in.Query))
	for key, value := range in.Query {
		if key = strings.TrimSpace(key); key != "" {
			query[key] = value
		}
	}
	tenantID := strings.TrimSpace(in.TenantID)
	if tenantID == "" {
		tenantID = DefaultTenantID
	}
	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	payload := cloneAnyMap(in.Payload)
	if payload == nil {
		payload = map[string]any{}
	}
	return &WebhookRequest{
		method:     strings.ToUpper(strings.TrimSpace(in.Method)),
		path:       strings.TrimSpace(in.Path),
		headers:    headers,
		query:      query,
		body:       append([]byte(nil), in.Body...),
		payload:    payload,
		tenantID:   tenantID,
		receivedAt: receivedAt.UTC(),
	}
}

func (r *WebhookRequest) Method() string {
	if r == nil {
		return ""
	}
	return r.method
}

func (r *WebhookRequest) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

// Header performs a case-insensitive lookup.
func (r *WebhookRequest) Header(name string) string {
	if r == nil {
		return ""
	}
	return r.headers[strings.ToLower(strings.TrimSpace(name))]
}

func (r *WebhookRequest) HasHeader(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.headers[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func (r *WebhookRequest) Headers() map[string]string {
	if r == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(r.headers))
	for key, value := range r.headers {
		out[key] = value
	}
	return out
}

func (r *WebhookRequest) Query(name string) string {
	if r == nil {
		return ""
	}
	return r.query[strings.TrimSpace(name)]
}

// RawBody returns the exact bytes received, as required for signature math.
func (r *WebhookRequest) RawBody() []byte {
	if r == nil {
		return nil
	}
	return append([]byte(nil), r.body...)
}

func (r *WebhookRequest) Payload() map[string]any {
	if r == nil {
		return map[string]any{}
	}
	return cloneAnyMap(r.payload)
}

// Value walks the parsed payload along path and returns a copy of the value.
func (r *WebhookRequest) Value(path ...string) (any, bool) {
	if r == nil || len(path) == 0 {
		return nil, false
	}
	var current any = r.payload
	for _, segment := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return cloneAny(current), true
}

// String returns the payload value at path rendered as a trimmed string.
// Numbers are formatted without exponent so external ids survive JSON decoding.
func (r *WebhookRequest) String(path ...string) string {
	value, ok := r.Value(path...)
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case float64:
		if typed == float64(int64(typed)) {
			return fmt.Sprintf("%d", int64(typed))
		}
		return fmt.Sprint(typed)
	case map[string]any, []any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

func (r *WebhookRequest) Map(path ...string) map[string]any {
	value, ok := r.Value(path...)
	if !ok {
		return map[string]any{}
	}
	typed, ok := value.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return typed
}

func (r *WebhookRequest) TenantID() string {
	if r == nil {
		return DefaultTenantID
	}
	return r.tenantID
}

func (r *WebhookRequest) ReceivedAt() time.Time {
	if r == nil {
		return time.Time{}
	}
	return r.receivedAt
}
