package gcalendar

import (
	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/providers"
	"github.com/goliatone/go-ingress/webhooks"
)

const (
	ProviderID = "gcalendar"

	ChannelIDHeader     = "x-goog-channel-id"
	ChannelTokenHeader  = "x-goog-channel-token"
	ResourceStateHeader = "x-goog-resource-state"
	ResourceIDHeader    = "x-goog-resource-id"
	ResourceURIHeader   = "x-goog-resource-uri"
	MessageNumberHeader = "x-goog-message-number"
	ChannelExpiryHeader = "x-goog-channel-expiration"

	CollectionCalendar = "calendar_events"

	stateSync      = "sync"
	stateExists    = "exists"
	stateNotExists = "not_exists"
)

type Config struct {
	AllowUnsigned bool
}

// New builds the Google Calendar push channel descriptor. The channel token
// configured when the watch was created is the signing secret.
func New(cfg Config) (core.ProviderDescriptor, error) {
	verifier := webhooks.TokenHeader{Header: ChannelTokenHeader}
	guard := func(handle core.HandlerFunc) core.HandlerFunc {
		return providers.Verified(verifier, cfg.AllowUnsigned, handle)
	}
	resources := providers.Mapping{
		Collection: CollectionCalendar,
		ExternalID: func(req *core.WebhookRequest) string { return req.Header(ResourceIDHeader) },
		Fields:     resourceFields,
	}
	return core.ProviderDescriptor{
		ID:            ProviderID,
		AuthKinds:     []core.AuthKind{core.AuthKindOAuth2, core.AuthKindStaticKey},
		Matcher:       matches,
		AllowUnsigned: cfg.AllowUnsigned,
		DeliveryID:    deliveryID,
		Handlers: []core.EventHandler{
			{Action: stateSync, Matcher: providers.HeaderEquals(ResourceStateHeader, stateSync), Handshake: true, Handle: guard(providers.Ack())},
			{Action: stateExists, Matcher: providers.HeaderEquals(ResourceStateHeader, stateExists), Collections: []string{CollectionCalendar}, Handle: guard(providers.Upsert(resources))},
			{Action: stateNotExists, Matcher: providers.HeaderEquals(ResourceStateHeader, stateNotExists), Collections: []string{CollectionCalendar}, Handle: guard(providers.Delete(resources))},
		},
	}, nil
}

func matches(req *core.WebhookRequest) bool {
	return req.HasHeader(ChannelIDHeader) && req.HasHeader(ResourceStateHeader)
}

// deliveryID combines the channel with its monotonically increasing message
// number.
func deliveryID(req *core.WebhookRequest) string {
	channel := req.Header(ChannelIDHeader)
	number := req.Header(MessageNumberHeader)
	if channel == "" || number == "" {
		return ""
	}
	return channel + ":" + number
}

func resourceFields(req *core.WebhookRequest) map[string]any {
	return map[string]any{
		"channel_id":         req.Header(ChannelIDHeader),
		"resource_uri":       req.Header(ResourceURIHeader),
		"resource_state":     req.Header(ResourceStateHeader),
		"message_number":     req.Header(MessageNumberHeader),
		"channel_expiration": req.Header(ChannelExpiryHeader),
	}
}
