package slack

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/providers"
	"github.com/goliatone/go-ingress/webhooks"
)

const (
	ProviderID = "slack"

	SignatureHeader = "x-slack-signature"
	TimestampHeader = "x-slack-request-timestamp"

	CollectionMessages = "messages"
)

type Config struct {
	AllowUnsigned bool
	MaxAge        time.Duration
	Now           func() time.Time
}

func New(cfg Config) (core.ProviderDescriptor, error) {
	verifier := webhooks.TimestampedHeader{
		SignatureHeader: SignatureHeader,
		TimestampHeader: TimestampHeader,
		MaxAge:          cfg.MaxAge,
		Now:             cfg.Now,
	}
	guard := func(handle core.HandlerFunc) core.HandlerFunc {
		return providers.Verified(verifier, cfg.AllowUnsigned, handle)
	}

	return core.ProviderDescriptor{
		ID:            ProviderID,
		AuthKinds:     []core.AuthKind{core.AuthKindBotToken, core.AuthKindOAuth2},
		Matcher:       matches,
		AllowUnsigned: cfg.AllowUnsigned,
		DeliveryID:    webhooks.PayloadDeliveryID("event_id"),
		Handlers: []core.EventHandler{
			{
				Action:    "url_verification",
				Matcher:   providers.PayloadEquals("url_verification", "type"),
				Handshake: true,
				Handle:    guard(challenge),
			},
			{
				Action:      "message.created",
				Matcher:     messageEvent(""),
				Collections: []string{CollectionMessages},
				Handle: guard(providers.Upsert(providers.Mapping{
					Collection: CollectionMessages,
					ExternalID: messageID("event", "ts"),
					Fields:     messageFields("event"),
				})),
			},
			{
				Action:      "message.changed",
				Matcher:     messageEvent("message_changed"),
				Collections: []string{CollectionMessages},
				Handle: guard(providers.Upsert(providers.Mapping{
					Collection: CollectionMessages,
					ExternalID: messageID("event", "message", "ts"),
					Fields:     changedFields,
				})),
			},
			{
				Action:      "message.deleted",
				Matcher:     messageEvent("message_deleted"),
				Collections: []string{CollectionMessages},
				Handle: guard(providers.Delete(providers.Mapping{
					Collection: CollectionMessages,
					ExternalID: messageID("event", "deleted_ts"),
				})),
			},
		},
	}, nil
}

// matches claims signed requests by header and unsigned ones by the Events
// API envelope shape.
func matches(req *core.WebhookRequest) bool {
	if req.HasHeader(SignatureHeader) || req.HasHeader(TimestampHeader) {
		return true
	}
	switch req.String("type") {
	case "url_verification":
		return req.String("challenge") != ""
	case "event_callback":
		return req.String("token") != "" || req.String("api_app_id") != ""
	}
	return false
}

func messageEvent(subtype string) core.EventMatcher {
	return func(req *core.WebhookRequest) bool {
		return req.String("type") == "event_callback" &&
			req.String("event", "type") == "message" &&
			req.String("event", "subtype") == subtype
	}
}

func challenge(_ context.Context, in core.HandlerInput) (core.HandlerResult, error) {
	return core.Echo(map[string]any{"challenge": in.Request.String("challenge")}), nil
}

// messageID keys messages by channel and timestamp, which is how Slack
// identifies a message across edits and deletes.
func messageID(tsPath ...string) func(*core.WebhookRequest) string {
	return func(req *core.WebhookRequest) string {
		channel := req.String("event", "channel")
		ts := req.String(tsPath...)
		if channel == "" || ts == "" {
			return ""
		}
		return channel + ":" + ts
	}
}

func messageFields(path ...string) func(*core.WebhookRequest) map[string]any {
	return func(req *core.WebhookRequest) map[string]any {
		message := req.Map(path...)
		return map[string]any{
			"channel":   req.String("event", "channel"),
			"user":      stringField(message, "user"),
			"text":      stringField(message, "text"),
			"ts":        stringField(message, "ts"),
			"thread_ts": stringField(message, "thread_ts"),
			"team_id":   req.String("team_id"),
		}
	}
}

func changedFields(req *core.WebhookRequest) map[string]any {
	fields := messageFields("event", "message")(req)
	fields["edited"] = true
	return fields
}

func stringField(values map[string]any, key string) string {
	value, _ := values[key].(string)
	return strings.TrimSpace(value)
}
