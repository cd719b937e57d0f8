package core

import (
	"context"
	"net/http"
	"slices"
	"strings"
)

// BoundaryMatcher claims an inbound request for a provider before any
// event-level parsing happens.
type BoundaryMatcher func(req *WebhookRequest) bool

// EventMatcher identifies one event+action pair. It sees the whole request
// because some providers carry the event name in a header.
type EventMatcher func(req *WebhookRequest) bool

type HandlerFunc func(ctx context.Context, in HandlerInput) (HandlerResult, error)

// CredentialFunc lets a provider override how its key is resolved. When nil
// the router falls back to the engine's CredentialResolver.
type CredentialFunc func(ctx context.Context, tenantID string, usage UsageContext) string

// DeliveryIDExtractor returns the provider's delivery identifier used for
// redelivery suppression. An empty id disables dedupe for the request.
type DeliveryIDExtractor func(req *WebhookRequest) string

type EventHandler struct {
	Action      string
	Matcher     EventMatcher
	Handle      HandlerFunc
	Collections []string
	Hooks       []Hook
	Handshake   bool
}

type ProviderDescriptor struct {
	ID            string
	AuthKinds     []AuthKind
	Matcher       BoundaryMatcher
	Handlers      []EventHandler
	Credential    CredentialFunc
	AllowUnsigned bool
	DeliveryID    DeliveryIDExtractor
}

func (p ProviderDescriptor) SupportsAuth(kind AuthKind) bool {
	return slices.Contains(p.AuthKinds, kind)
}

// MatchEvent evaluates handlers in declaration order; the first match wins.
func (p ProviderDescriptor) MatchEvent(req *WebhookRequest) (EventHandler, bool) {
	for _, handler := range p.Handlers {
		if handler.Matcher != nil && handler.Matcher(req) {
			return handler, true
		}
	}
	return EventHandler{}, false
}

// Handler looks up a handler by action name.
func (p ProviderDescriptor) Handler(action string) (EventHandler, bool) {
	action = strings.TrimSpace(action)
	for _, handler := range p.Handlers {
		if handler.Action == action {
			return handler, true
		}
	}
	return EventHandler{}, false
}

// WithHooks returns a copy of the descriptor with hooks appended to every
// handler that is not a protocol handshake.
func (p ProviderDescriptor) WithHooks(hooks ...Hook) ProviderDescriptor {
	out := p
	out.Handlers = make([]EventHandler, len(p.Handlers))
	for i, handler := range p.Handlers {
		copied := handler
		copied.Hooks = append(append([]Hook(nil), handler.Hooks...), nonNilHooks(hooks)...)
		if handler.Handshake {
			copied.Hooks = append([]Hook(nil), handler.Hooks...)
		}
		out.Handlers[i] = copied
	}
	return out
}

func nonNilHooks(hooks []Hook) []Hook {
	out := make([]Hook, 0, len(hooks))
	for _, hook := range hooks {
		if hook != nil {
			out = append(out, hook)
		}
	}
	return out
}

type HandlerInput struct {
	Request     *WebhookRequest
	TenantID    string
	ResolvedKey string
	ProviderID  string
	Action      string
	Store       EntityStore
	Logger      Logger
	Metrics     MetricsRecorder
}

type HandlerResult struct {
	Success        bool
	StatusCode     int
	Error          string
	ReturnToSender bool
	Payload        any
	Event          *Event
	Metadata       map[string]any
}

func Acknowledge(event *Event) HandlerResult {
	return HandlerResult{Success: true, StatusCode: http.StatusOK, Event: event}
}

// Reject reports a failed verification; the pipeline answers 401 and skips
// persistence and hooks.
func Reject(err error) HandlerResult {
	message := "signature verification failed"
	if err != nil {
		message = err.Error()
	}
	return HandlerResult{Success: false, StatusCode: http.StatusUnauthorized, Error: message}
}

// Echo answers a protocol handshake with the payload as the raw body.
func Echo(payload any) HandlerResult {
	return HandlerResult{Success: true, StatusCode: http.StatusOK, ReturnToSender: true, Payload: payload}
}
