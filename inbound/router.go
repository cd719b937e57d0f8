package inbound

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-ingress/core"
)

// Router is the single entry point for deliveries: it matches a provider and
// an event, resolves the webhook credential and hands off to the Pipeline.
type Router struct {
	Registry      *core.ProviderRegistry
	Resolver      core.CredentialResolver
	Pipeline      *Pipeline
	Store         core.EntityStore
	Claims        core.IdempotencyClaimStore
	ClaimTTL      time.Duration
	DefaultTenant string
	Observer      core.Observer
	Now           func() time.Time
}

func NewRouter(registry *core.ProviderRegistry, resolver core.CredentialResolver, pipeline *Pipeline, store core.EntityStore) *Router {
	return &Router{Registry: registry, Resolver: resolver, Pipeline: pipeline, Store: store}
}

func (r *Router) Route(ctx context.Context, raw RawRequest) core.Response {
	startedAt := time.Now()
	if ctx == nil {
		ctx = context.Background()
	}
	resp, fields := r.route(ctx, raw)
	if resp.Metadata == nil {
		resp.Metadata = map[string]any{}
	}
	for _, key := range []string{"provider_id", "action", "tenant_id"} {
		if value, _ := fields[key].(string); value != "" {
			resp.Metadata[key] = value
		}
	}
	r.record(ctx, startedAt, resp, fields)
	return resp
}

// MetadataString reads a routing attribute such as provider_id or action
// recorded on a response.
func MetadataString(resp core.Response, key string) string {
	value, _ := resp.Metadata[key].(string)
	return value
}

func (r *Router) route(ctx context.Context, raw RawRequest) (core.Response, map[string]any) {
	fields := map[string]any{"provider_hint": strings.TrimSpace(raw.ProviderHint)}
	req, err := Normalize(raw, r.DefaultTenant, r.now())
	if err != nil {
		fields["error"] = err.Error()
		return response(http.StatusOK, core.FilteredEnvelope("", ""), OutcomeUnmatched), fields
	}
	fields["tenant_id"] = req.TenantID()

	if r.Registry == nil {
		return response(http.StatusOK, core.FilteredEnvelope("", ""), OutcomeUnmatched), fields
	}
	provider, ok := r.Registry.Match(req)
	if !ok {
		return response(http.StatusOK, core.FilteredEnvelope("", ""), OutcomeUnmatched), fields
	}
	fields["provider_id"] = provider.ID

	handler, ok := provider.MatchEvent(req)
	if !ok {
		return response(http.StatusOK, core.FilteredEnvelope(provider.ID, ""), OutcomeIgnored), fields
	}
	fields["action"] = handler.Action

	claimID, deduped := r.claim(ctx, provider, req, fields)
	if deduped {
		resp := response(http.StatusOK, core.FilteredEnvelope(provider.ID, handler.Action), OutcomeDeduped)
		resp.Metadata["deduped"] = true
		return resp, fields
	}

	input := core.HandlerInput{
		Request:     req,
		TenantID:    req.TenantID(),
		ResolvedKey: r.resolveKey(ctx, provider, req.TenantID()),
		ProviderID:  provider.ID,
		Action:      handler.Action,
		Store:       r.Store,
		Logger:      r.Observer.Logger,
		Metrics:     r.Observer.Metrics,
	}
	resp := r.pipeline().Execute(ctx, provider, handler, input)
	r.settle(ctx, claimID, resp, fields)
	return resp, fields
}

func (r *Router) resolveKey(ctx context.Context, provider core.ProviderDescriptor, tenantID string) string {
	if provider.Credential != nil {
		return provider.Credential(ctx, tenantID, core.UsageWebhook)
	}
	if r.Resolver == nil {
		return ""
	}
	return r.Resolver.Resolve(ctx, provider, tenantID, core.UsageWebhook)
}

// claim reports deduped=true when the delivery id is already claimed. Claim
// store failures disable dedupe for the request rather than failing it.
func (r *Router) claim(ctx context.Context, provider core.ProviderDescriptor, req *core.WebhookRequest, fields map[string]any) (string, bool) {
	if r.Claims == nil || provider.DeliveryID == nil {
		return "", false
	}
	deliveryID := strings.TrimSpace(provider.DeliveryID(req))
	if deliveryID == "" {
		return "", false
	}
	fields["delivery_id"] = deliveryID

	var (
		claimID  string
		accepted = true
	)
	r.Observer.LogAndDiscard(ctx, "dedupe.claim", fields, func(ctx context.Context) error {
		id, ok, err := r.Claims.Claim(ctx, DeliveryKey(provider.ID, req.TenantID(), deliveryID), r.claimTTL())
		if err != nil {
			return err
		}
		claimID, accepted = id, ok
		return nil
	})
	return claimID, !accepted
}

// settle completes the claim for handled deliveries and fails it otherwise so
// a provider retry is processed.
func (r *Router) settle(ctx context.Context, claimID string, resp core.Response, fields map[string]any) {
	if r.Claims == nil || claimID == "" {
		return
	}
	outcome := OutcomeOf(resp)
	r.Observer.LogAndDiscard(ctx, "dedupe.settle", fields, func(ctx context.Context) error {
		switch outcome {
		case OutcomeAcknowledged, OutcomeHandshake:
			return r.Claims.Complete(ctx, claimID)
		default:
			return r.Claims.Fail(ctx, claimID, nil, time.Time{})
		}
	})
}

func (r *Router) record(ctx context.Context, startedAt time.Time, resp core.Response, fields map[string]any) {
	outcome := OutcomeOf(resp)
	tags := map[string]string{"outcome": outcome}
	for _, key := range []string{"provider_id", "action"} {
		if value, _ := fields[key].(string); value != "" {
			tags[strings.TrimSuffix(key, "_id")] = value
		}
	}
	elapsed := time.Since(startedAt)
	r.Observer.Counter(ctx, core.MetricPrefix+".route.total", 1, tags)
	r.Observer.Histogram(ctx, core.MetricPrefix+".route.duration_ms", float64(elapsed.Milliseconds()), tags)

	logFields := cloneMap(fields)
	logFields["outcome"] = outcome
	logFields["status_code"] = resp.StatusCode
	logFields["duration_ms"] = elapsed.Milliseconds()
	switch outcome {
	case OutcomeUnmatched, OutcomeIgnored, OutcomeDeduped:
		r.Observer.Log(ctx, "debug", "webhook not handled", logFields)
	case OutcomeRejected:
		r.Observer.Log(ctx, "warn", "webhook rejected", logFields)
	case OutcomeFailed:
		r.Observer.Log(ctx, "warn", "webhook failed locally; acknowledged", logFields)
	default:
		r.Observer.Log(ctx, "info", "webhook acknowledged", logFields)
	}
}

func (r *Router) pipeline() *Pipeline {
	if r.Pipeline != nil {
		return r.Pipeline
	}
	return &Pipeline{Mode: core.HookModeSync, Observer: r.Observer, Now: r.Now}
}

func (r *Router) claimTTL() time.Duration {
	if r.ClaimTTL > 0 {
		return r.ClaimTTL
	}
	return DefaultClaimTTL
}

func (r *Router) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}
