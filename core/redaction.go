package core

import "strings"

const RedactedValue = "[REDACTED]"

// RedactSensitiveMap returns a copy of fields with secret-looking keys masked.
// Webhook payloads and credential material pass through log fields, so every
// structured log line goes through here.
func RedactSensitiveMap(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(fields)
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

var sensitiveKeyTokens = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"api_key",
	"apikey",
	"resolved_key",
	"refresh",
	"credential",
	"signature",
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	for _, token := range sensitiveKeyTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

// isTraceabilityKey keeps identifiers that merely mention a sensitive word.
func isTraceabilityKey(key string) bool {
	switch key {
	case "provider_id",
		"tenant_id",
		"action",
		"collection",
		"external_id",
		"entity_id",
		"event_id",
		"delivery_id",
		"token_expires_at",
		"trace_id",
		"request_id":
		return true
	default:
		return false
	}
}
