package attio

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/inbound"
	"github.com/goliatone/go-ingress/providers"
	"github.com/goliatone/go-ingress/webhooks"
)

const (
	ProviderID = "attio"

	SignatureHeader = "attio-signature"

	CollectionRecords = "records"
)

type Config struct {
	AllowUnsigned bool
}

// New builds the Attio descriptor. Attio batches events in an "events" array;
// a delivery matches an action when any event in it has that event_type, and
// the handler applies every event of that type.
func New(cfg Config) (core.ProviderDescriptor, error) {
	verifier := webhooks.HMACHeader{Header: SignatureHeader, Algorithm: webhooks.SHA256}
	guard := func(handle core.HandlerFunc) core.HandlerFunc {
		return providers.Verified(verifier, cfg.AllowUnsigned, handle)
	}
	return core.ProviderDescriptor{
		ID:            ProviderID,
		AuthKinds:     []core.AuthKind{core.AuthKindStaticKey, core.AuthKindOAuth2},
		Matcher:       func(req *core.WebhookRequest) bool { return req.HasHeader(SignatureHeader) },
		AllowUnsigned: cfg.AllowUnsigned,
		Handlers: []core.EventHandler{
			{Action: "record.created", Matcher: hasEvent("record.created"), Collections: []string{CollectionRecords}, Handle: guard(apply("record.created", false))},
			{Action: "record.updated", Matcher: hasEvent("record.updated"), Collections: []string{CollectionRecords}, Handle: guard(apply("record.updated", false))},
			{Action: "record.deleted", Matcher: hasEvent("record.deleted"), Collections: []string{CollectionRecords}, Handle: guard(apply("record.deleted", true))},
		},
	}, nil
}

func events(req *core.WebhookRequest, eventType string) []map[string]any {
	value, _ := req.Value("events")
	list, _ := value.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		event, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if kind, _ := event["event_type"].(string); kind == eventType {
			out = append(out, event)
		}
	}
	return out
}

func hasEvent(eventType string) core.EventMatcher {
	return func(req *core.WebhookRequest) bool {
		return len(events(req, eventType)) > 0
	}
}

func apply(eventType string, remove bool) core.HandlerFunc {
	return func(ctx context.Context, in core.HandlerInput) (core.HandlerResult, error) {
		matched := events(in.Request, eventType)
		ids := make([]any, 0, len(matched))
		var last core.StoredEntity
		for _, event := range matched {
			ref, _ := event["id"].(map[string]any)
			recordID := idString(ref["record_id"])
			if recordID == "" {
				continue
			}
			key := core.EntityKey{TenantID: in.TenantID, Collection: CollectionRecords, ExternalID: recordID}
			if remove {
				inbound.Remove(ctx, in.Store, key)
			} else {
				fields := map[string]any{
					"provider_id":  in.ProviderID,
					"workspace_id": idString(ref["workspace_id"]),
					"object_id":    idString(ref["object_id"]),
					"actor":        event["actor"],
				}
				if stored, ok := inbound.Persist(ctx, in.Store, key, fields); ok {
					last = stored
				}
			}
			ids = append(ids, recordID)
		}
		if len(ids) == 0 {
			return core.HandlerResult{}, fmt.Errorf("providers/attio: %s delivery has no record ids", eventType)
		}
		externalID, _ := ids[len(ids)-1].(string)
		return core.Acknowledge(in.NewEvent(CollectionRecords, externalID, last, map[string]any{
			"record_ids":   ids,
			"webhook_id":   in.Request.String("webhook_id"),
			"batch_length": len(ids),
		})), nil
	}
}

func idString(value any) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}
