package providers_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/inbound"
	"github.com/goliatone/go-ingress/providers/algolia"
	"github.com/goliatone/go-ingress/providers/attio"
	"github.com/goliatone/go-ingress/providers/devkit"
	"github.com/goliatone/go-ingress/providers/gcalendar"
	"github.com/goliatone/go-ingress/providers/github"
	"github.com/goliatone/go-ingress/providers/linear"
	"github.com/goliatone/go-ingress/providers/slack"
	"github.com/goliatone/go-ingress/store/memory"
)

const testSecret = "whsec_test"

type staticResolver struct {
	secret string
}

func (r staticResolver) Resolve(context.Context, core.ProviderDescriptor, string, core.UsageContext) string {
	return r.secret
}

func builtinDescriptors(t *testing.T, now time.Time) []core.ProviderDescriptor {
	t.Helper()
	clock := func() time.Time { return now }
	builders := []func() (core.ProviderDescriptor, error){
		func() (core.ProviderDescriptor, error) { return slack.New(slack.Config{Now: clock}) },
		func() (core.ProviderDescriptor, error) { return linear.New(linear.Config{Now: clock}) },
		func() (core.ProviderDescriptor, error) { return github.New(github.Config{}) },
		func() (core.ProviderDescriptor, error) { return attio.New(attio.Config{}) },
		func() (core.ProviderDescriptor, error) { return gcalendar.New(gcalendar.Config{}) },
		func() (core.ProviderDescriptor, error) { return algolia.New(algolia.Config{}) },
	}
	out := make([]core.ProviderDescriptor, 0, len(builders))
	for _, build := range builders {
		descriptor, err := build()
		if err != nil {
			t.Fatalf("build descriptor: %v", err)
		}
		out = append(out, descriptor)
	}
	return out
}

func newTestRouter(t *testing.T, now time.Time, secret string) (*inbound.Router, *memory.EntityStore) {
	t.Helper()
	registry := core.NewProviderRegistry()
	for _, descriptor := range builtinDescriptors(t, now) {
		if err := registry.Register(descriptor); err != nil {
			t.Fatalf("register %s: %v", descriptor.ID, err)
		}
	}
	store := memory.NewEntityStore()
	router := inbound.NewRouter(registry, staticResolver{secret: secret}, inbound.NewPipeline(core.HookModeSync, nil, core.Observer{}), store)
	router.DefaultTenant = "acme"
	router.Now = func() time.Time { return now }
	return router, store
}

func TestBuiltinDescriptorsAreValid(t *testing.T) {
	for _, descriptor := range builtinDescriptors(t, time.Now()) {
		if err := devkit.ValidateDescriptor(descriptor); err != nil {
			t.Fatalf("descriptor %s: %v", descriptor.ID, err)
		}
	}
}

func TestBuiltinMatchersAreMutuallyExclusive(t *testing.T) {
	now := time.Now()
	fixtures, err := devkit.BuiltinFixtures(testSecret, now)
	if err != nil {
		t.Fatalf("fixtures: %v", err)
	}
	if err := devkit.ValidateMatcherExclusivity(builtinDescriptors(t, now), fixtures); err != nil {
		t.Fatalf("matcher exclusivity: %v", err)
	}
}

func TestBuiltinFixturesRouteEndToEnd(t *testing.T) {
	now := time.Now()
	fixtures, err := devkit.BuiltinFixtures(testSecret, now)
	if err != nil {
		t.Fatalf("fixtures: %v", err)
	}
	router, _ := newTestRouter(t, now, testSecret)
	for _, fixture := range fixtures {
		t.Run(fixture.Name, func(t *testing.T) {
			resp := router.Route(context.Background(), fixture.Request)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected 200, got %d body=%#v", resp.StatusCode, resp.Body)
			}
			switch outcome := inbound.OutcomeOf(resp); outcome {
			case inbound.OutcomeAcknowledged, inbound.OutcomeHandshake:
			default:
				t.Fatalf("expected acknowledged or handshake, got %q body=%#v", outcome, resp.Body)
			}
		})
	}
}

func TestBuiltinFixturesRejectWrongSecret(t *testing.T) {
	now := time.Now()
	fixtures, err := devkit.BuiltinFixtures(testSecret, now)
	if err != nil {
		t.Fatalf("fixtures: %v", err)
	}
	router, store := newTestRouter(t, now, "a-different-secret")
	for _, fixture := range fixtures {
		t.Run(fixture.Name, func(t *testing.T) {
			resp := router.Route(context.Background(), fixture.Request)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d body=%#v", resp.StatusCode, resp.Body)
			}
		})
	}
	if store.Len() != 0 {
		t.Fatalf("expected no writes for rejected deliveries, got %d", store.Len())
	}
}

func TestSlack_ChallengeEchoAndMessageLifecycle(t *testing.T) {
	now := time.Now()
	router, store := newTestRouter(t, now, testSecret)

	challenge, _ := devkit.BuiltinFixtures(testSecret, now)
	resp := router.Route(context.Background(), challenge[0].Request)
	body, ok := resp.Body.(map[string]any)
	if !resp.Raw || !ok || body["challenge"] == "" {
		t.Fatalf("expected raw challenge echo, got %#v", resp)
	}

	created := slackEvent(t, now, map[string]any{"type": "message", "channel": "C1", "text": "hi", "ts": "1.1"})
	router.Route(context.Background(), created.Request)
	key := core.EntityKey{TenantID: "acme", Collection: slack.CollectionMessages, ExternalID: "C1:1.1"}
	if entity, ok, _ := store.Find(context.Background(), key); !ok || entity.Fields["text"] != "hi" {
		t.Fatalf("expected created message, got %#v ok=%v", entity, ok)
	}

	changed := slackEvent(t, now, map[string]any{
		"type": "message", "subtype": "message_changed", "channel": "C1",
		"message": map[string]any{"text": "hi there", "ts": "1.1"},
	})
	router.Route(context.Background(), changed.Request)
	if entity, _, _ := store.Find(context.Background(), key); entity.Fields["text"] != "hi there" || entity.Fields["edited"] != true {
		t.Fatalf("expected edited message, got %#v", entity.Fields)
	}

	deleted := slackEvent(t, now, map[string]any{"type": "message", "subtype": "message_deleted", "channel": "C1", "deleted_ts": "1.1"})
	router.Route(context.Background(), deleted.Request)
	if _, ok, _ := store.Find(context.Background(), key); ok {
		t.Fatalf("expected message deleted")
	}
}

func slackEvent(t *testing.T, now time.Time, event map[string]any) devkit.Fixture {
	t.Helper()
	fixture, err := devkit.NewFixture("slack event", slack.ProviderID, "", nil, map[string]any{
		"type": "event_callback", "api_app_id": "A1", "event": event,
	})
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	signature, timestamp := devkit.SignTimestamped(fixture.Request.Body, testSecret, now)
	return fixture.WithHeader(slack.SignatureHeader, signature).WithHeader(slack.TimestampHeader, timestamp)
}

func TestSlack_StaleTimestampRejected(t *testing.T) {
	now := time.Now()
	router, _ := newTestRouter(t, now, testSecret)
	stale := slackEvent(t, now.Add(-10*time.Minute), map[string]any{"type": "message", "channel": "C1", "ts": "2.2"})
	if resp := router.Route(context.Background(), stale.Request); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected stale request rejected, got %d", resp.StatusCode)
	}
}

func TestLinear_TimestampWindowAndRemoval(t *testing.T) {
	now := time.Now()
	router, store := newTestRouter(t, now, testSecret)

	issue := func(action string, at time.Time) devkit.Fixture {
		fixture, err := devkit.NewFixture("linear", linear.ProviderID, "", nil, map[string]any{
			"type": "Issue", "action": action, "webhookTimestamp": at.UnixMilli(),
			"data": map[string]any{"id": "iss_9", "title": "T"},
		})
		if err != nil {
			t.Fatalf("fixture: %v", err)
		}
		return fixture.WithHeader(linear.SignatureHeader, devkit.SignHMAC(fixture.Request.Body, testSecret, "", "sha256"))
	}

	if resp := router.Route(context.Background(), issue("create", now.Add(-2*time.Minute)).Request); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected stale linear delivery rejected, got %d", resp.StatusCode)
	}
	router.Route(context.Background(), issue("create", now).Request)
	key := core.EntityKey{TenantID: "acme", Collection: linear.CollectionIssues, ExternalID: "iss_9"}
	if entity, ok, _ := store.Find(context.Background(), key); !ok || entity.ProviderID != linear.ProviderID {
		t.Fatalf("expected linear issue stored, got %#v ok=%v", entity, ok)
	}
	router.Route(context.Background(), issue("remove", now).Request)
	if _, ok, _ := store.Find(context.Background(), key); ok {
		t.Fatalf("expected issue removed")
	}
}

func TestLinear_CreateThenUpdateKeepsOneRow(t *testing.T) {
	now := time.Now()
	router, store := newTestRouter(t, now, testSecret)

	deliver := func(action, title string) {
		fixture, err := devkit.NewFixture("linear-"+action, linear.ProviderID, "", nil, map[string]any{
			"type": "Issue", "action": action, "webhookTimestamp": now.UnixMilli(),
			"data": map[string]any{"id": "iss_42", "title": title},
		})
		if err != nil {
			t.Fatalf("fixture: %v", err)
		}
		fixture = fixture.WithHeader(linear.SignatureHeader, devkit.SignHMAC(fixture.Request.Body, testSecret, "", "sha256"))
		if resp := router.Route(context.Background(), fixture.Request); resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", action, resp.StatusCode)
		}
	}

	key := core.EntityKey{TenantID: "acme", Collection: linear.CollectionIssues, ExternalID: "iss_42"}
	deliver("create", "first")
	created, ok, _ := store.Find(context.Background(), key)
	if !ok {
		t.Fatalf("expected issue stored after create")
	}
	deliver("update", "second")
	updated, ok, _ := store.Find(context.Background(), key)
	if !ok {
		t.Fatalf("expected issue stored after update")
	}
	if updated.ID != created.ID {
		t.Fatalf("expected internal id to stay %q, got %q", created.ID, updated.ID)
	}
	if updated.Fields["title"] != "second" {
		t.Fatalf("expected update to win, got %#v", updated.Fields)
	}
	if store.Len() != 1 {
		t.Fatalf("expected exactly one row, got %d", store.Len())
	}
}

func TestGitHub_PushMirrorsCommits(t *testing.T) {
	now := time.Now()
	router, store := newTestRouter(t, now, testSecret)
	fixtures, _ := devkit.BuiltinFixtures(testSecret, now)
	for _, fixture := range fixtures {
		if fixture.Action == "push" {
			router.Route(context.Background(), fixture.Request)
		}
	}
	key := core.EntityKey{TenantID: "acme", Collection: github.CollectionCommits, ExternalID: "abc123"}
	if entity, ok, _ := store.Find(context.Background(), key); !ok || entity.Fields["repository"] != "acme/api" {
		t.Fatalf("expected commit mirrored, got %#v ok=%v", entity, ok)
	}
}

func TestAllowUnsigned_SkipsVerificationWithoutSecret(t *testing.T) {
	descriptor, err := algolia.New(algolia.Config{AllowUnsigned: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	registry := core.NewProviderRegistry()
	if err := registry.Register(descriptor); err != nil {
		t.Fatalf("register: %v", err)
	}
	store := memory.NewEntityStore()
	router := inbound.NewRouter(registry, staticResolver{}, nil, store)
	fixture, _ := devkit.NewFixture("unsigned", algolia.ProviderID, "", map[string]string{algolia.SignatureHeader: ""}, map[string]any{
		"type": "index.updated", "index": "products",
	})
	resp := router.Route(context.Background(), fixture.Request)
	if inbound.OutcomeOf(resp) != inbound.OutcomeAcknowledged || store.Len() != 1 {
		t.Fatalf("expected unsigned delivery accepted, got %#v", resp)
	}
}
