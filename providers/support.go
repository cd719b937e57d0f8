package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/inbound"
	"github.com/goliatone/go-ingress/webhooks"
)

// Verified runs handle only after verifier accepts the resolved webhook key.
// With allowUnsigned set, a missing key skips verification.
func Verified(verifier webhooks.HeaderVerifier, allowUnsigned bool, handle core.HandlerFunc) core.HandlerFunc {
	return func(ctx context.Context, in core.HandlerInput) (core.HandlerResult, error) {
		if !(allowUnsigned && strings.TrimSpace(in.ResolvedKey) == "") && verifier != nil {
			if err := verifier.Verify(in.Request, in.ResolvedKey); err != nil {
				return core.Reject(err), nil
			}
		}
		return handle(ctx, in)
	}
}

// Mapping describes how one payload shape lands in an entity collection.
type Mapping struct {
	Collection string
	ExternalID func(req *core.WebhookRequest) string
	Fields     func(req *core.WebhookRequest) map[string]any
}

func (m Mapping) externalID(req *core.WebhookRequest) (string, error) {
	if m.ExternalID == nil {
		return "", fmt.Errorf("providers: %s mapping has no external id extractor", m.Collection)
	}
	id := strings.TrimSpace(m.ExternalID(req))
	if id == "" {
		return "", fmt.Errorf("providers: %s payload has no external id", m.Collection)
	}
	return id, nil
}

// Upsert mirrors the mapped payload into the entity store and acknowledges
// with the derived event. Storage failures do not fail the delivery.
func Upsert(m Mapping) core.HandlerFunc {
	return func(ctx context.Context, in core.HandlerInput) (core.HandlerResult, error) {
		externalID, err := m.externalID(in.Request)
		if err != nil {
			return core.HandlerResult{}, err
		}
		fields := map[string]any{}
		if m.Fields != nil {
			fields = core.CloneFields(m.Fields(in.Request))
		}
		if _, ok := fields["provider_id"]; !ok {
			fields["provider_id"] = in.ProviderID
		}
		key := core.EntityKey{TenantID: in.TenantID, Collection: m.Collection, ExternalID: externalID}
		stored, _ := inbound.Persist(ctx, in.Store, key, fields)
		return core.Acknowledge(in.NewEvent(m.Collection, externalID, stored, fields)), nil
	}
}

// Delete removes the mirrored entity and acknowledges.
func Delete(m Mapping) core.HandlerFunc {
	return func(ctx context.Context, in core.HandlerInput) (core.HandlerResult, error) {
		externalID, err := m.externalID(in.Request)
		if err != nil {
			return core.HandlerResult{}, err
		}
		key := core.EntityKey{TenantID: in.TenantID, Collection: m.Collection, ExternalID: externalID}
		inbound.Remove(ctx, in.Store, key)
		return core.Acknowledge(in.NewEvent(m.Collection, externalID, core.StoredEntity{}, map[string]any{"deleted": true})), nil
	}
}

// Ack acknowledges without touching the store.
func Ack() core.HandlerFunc {
	return func(context.Context, core.HandlerInput) (core.HandlerResult, error) {
		return core.Acknowledge(nil), nil
	}
}

// AnyHeader matches when at least one of names is present.
func AnyHeader(names ...string) func(*core.WebhookRequest) bool {
	return func(req *core.WebhookRequest) bool {
		for _, name := range names {
			if req.HasHeader(name) {
				return true
			}
		}
		return false
	}
}

func HeaderEquals(name, value string) core.EventMatcher {
	return func(req *core.WebhookRequest) bool {
		return strings.EqualFold(req.Header(name), value)
	}
}

// PayloadEquals compares the string value at path.
func PayloadEquals(value string, path ...string) core.EventMatcher {
	return func(req *core.WebhookRequest) bool {
		return req.String(path...) == value
	}
}

func PayloadHas(path ...string) core.EventMatcher {
	return func(req *core.WebhookRequest) bool {
		value, ok := req.Value(path...)
		return ok && value != nil
	}
}

func All(matchers ...core.EventMatcher) core.EventMatcher {
	return func(req *core.WebhookRequest) bool {
		for _, matcher := range matchers {
			if matcher == nil || !matcher(req) {
				return false
			}
		}
		return true
	}
}

// PathString returns a string extractor for use in a Mapping.
func PathString(path ...string) func(*core.WebhookRequest) string {
	return func(req *core.WebhookRequest) string {
		return req.String(path...)
	}
}

// PathMap returns the object at path, or an empty map.
func PathMap(path ...string) func(*core.WebhookRequest) map[string]any {
	return func(req *core.WebhookRequest) map[string]any {
		return req.Map(path...)
	}
}
