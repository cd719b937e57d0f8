package linear

import (
	"strconv"
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/providers"
	"github.com/goliatone/go-ingress/webhooks"
)

const (
	ProviderID = "linear"

	SignatureHeader = "linear-signature"
	DeliveryHeader  = "linear-delivery"

	CollectionIssues   = "issues"
	CollectionComments = "comments"

	DefaultTimestampWindow = 60 * time.Second
)

type Config struct {
	AllowUnsigned   bool
	TimestampWindow time.Duration
	Now             func() time.Time
}

func New(cfg Config) (core.ProviderDescriptor, error) {
	if cfg.TimestampWindow <= 0 {
		cfg.TimestampWindow = DefaultTimestampWindow
	}
	check := verifier{
		hmac:   webhooks.HMACHeader{Header: SignatureHeader, Algorithm: webhooks.SHA256},
		window: cfg.TimestampWindow,
		now:    cfg.Now,
	}
	guard := func(handle core.HandlerFunc) core.HandlerFunc {
		return providers.Verified(check, cfg.AllowUnsigned, handle)
	}
	issues := providers.Mapping{
		Collection: CollectionIssues,
		ExternalID: providers.PathString("data", "id"),
		Fields:     entityFields,
	}

	return core.ProviderDescriptor{
		ID:            ProviderID,
		AuthKinds:     []core.AuthKind{core.AuthKindStaticKey, core.AuthKindOAuth2},
		Matcher:       matches,
		AllowUnsigned: cfg.AllowUnsigned,
		DeliveryID:    webhooks.HeaderDeliveryID(DeliveryHeader),
		Handlers: []core.EventHandler{
			{Action: "issue.created", Matcher: event("Issue", "create"), Collections: []string{CollectionIssues}, Handle: guard(providers.Upsert(issues))},
			{Action: "issue.updated", Matcher: event("Issue", "update"), Collections: []string{CollectionIssues}, Handle: guard(providers.Upsert(issues))},
			{Action: "issue.removed", Matcher: event("Issue", "remove"), Collections: []string{CollectionIssues}, Handle: guard(providers.Delete(issues))},
			{
				Action:      "comment.created",
				Matcher:     event("Comment", "create"),
				Collections: []string{CollectionComments},
				Handle: guard(providers.Upsert(providers.Mapping{
					Collection: CollectionComments,
					ExternalID: providers.PathString("data", "id"),
					Fields:     entityFields,
				})),
			},
		},
	}, nil
}

func matches(req *core.WebhookRequest) bool {
	if req.HasHeader(SignatureHeader) {
		return true
	}
	_, hasTimestamp := req.Value("webhookTimestamp")
	return hasTimestamp && req.String("type") != "" && req.String("action") != ""
}

func event(kind, action string) core.EventMatcher {
	return providers.All(
		providers.PayloadEquals(kind, "type"),
		providers.PayloadEquals(action, "action"),
	)
}

func entityFields(req *core.WebhookRequest) map[string]any {
	fields := req.Map("data")
	fields["linear_type"] = req.String("type")
	fields["linear_action"] = req.String("action")
	if url := req.String("url"); url != "" {
		fields["url"] = url
	}
	return fields
}

// verifier checks the raw-body HMAC and, when the payload carries
// webhookTimestamp (unix millis), that it is inside the replay window.
type verifier struct {
	hmac   webhooks.HMACHeader
	window time.Duration
	now    func() time.Time
}

func (v verifier) Verify(req *core.WebhookRequest, secret string) error {
	if err := v.hmac.Verify(req, secret); err != nil {
		return err
	}
	raw := req.String("webhookTimestamp")
	if raw == "" {
		return nil
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return core.SignatureError("providers/linear: webhookTimestamp is not a number", map[string]any{"provider_id": ProviderID})
	}
	now := time.Now()
	if v.now != nil {
		now = v.now()
	}
	if !webhooks.WithinWindow(time.UnixMilli(millis), now, v.window) {
		return core.SignatureError("providers/linear: webhookTimestamp outside replay window", map[string]any{"provider_id": ProviderID})
	}
	return nil
}
