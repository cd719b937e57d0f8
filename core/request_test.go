package core

import (
	"testing"
	"time"
)

func TestNewWebhookRequest_NormalizesInput(t *testing.T) {
	received := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	body := []byte(`{"issue":{"id":42}}`)
	req := NewWebhookRequest(WebhookRequestInput{
		Method:     "post",
		Headers:    map[string]string{"X-Linear-Signature": " abc "},
		Body:       body,
		Payload:    map[string]any{"issue": map[string]any{"id": float64(42), "title": " Bug "}},
		ReceivedAt: received,
	})

	if req.Method() != "POST" {
		t.Fatalf("expected upper-cased method, got %q", req.Method())
	}
	if req.TenantID() != DefaultTenantID {
		t.Fatalf("expected default tenant, got %q", req.TenantID())
	}
	if req.Header("x-linear-signature") != "abc" || !req.HasHeader("X-LINEAR-SIGNATURE") {
		t.Fatalf("expected case-insensitive trimmed header lookup")
	}
	if got := req.String("issue", "id"); got != "42" {
		t.Fatalf("expected integer rendering, got %q", got)
	}
	if got := req.String("issue", "title"); got != "Bug" {
		t.Fatalf("expected trimmed title, got %q", got)
	}
	if req.ReceivedAt().Location() != time.UTC {
		t.Fatalf("expected received time in UTC")
	}

	body[0] = 'x'
	if string(req.RawBody()) != `{"issue":{"id":42}}` {
		t.Fatalf("raw body must be copied on construction")
	}
}

func TestWebhookRequest_AccessorsReturnCopies(t *testing.T) {
	req := NewWebhookRequest(WebhookRequestInput{
		Payload: map[string]any{"data": map[string]any{"name": "original"}},
	})

	payload := req.Payload()
	payload["data"].(map[string]any)["name"] = "mutated"
	nested := req.Map("data")
	nested["name"] = "mutated again"

	if got := req.String("data", "name"); got != "original" {
		t.Fatalf("expected request payload to stay immutable, got %q", got)
	}
	if _, ok := req.Value("data", "missing"); ok {
		t.Fatalf("expected missing path to report false")
	}
	if got := req.String("data"); got != "" {
		t.Fatalf("expected object rendering to be empty, got %q", got)
	}
}

func TestCachedToken_FreshAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	token := CachedToken{Token: "t", ExpiresAt: now.Add(10 * time.Minute)}
	if !token.FreshAt(now, 5*time.Minute) {
		t.Fatalf("expected token outside the buffer to be fresh")
	}
	if token.FreshAt(now.Add(6*time.Minute), 5*time.Minute) {
		t.Fatalf("expected token inside the buffer to be stale")
	}
	if (CachedToken{ExpiresAt: now.Add(time.Hour)}).FreshAt(now, 0) {
		t.Fatalf("expected empty token to never be fresh")
	}
}

func TestEntityKey_NormalizeAndString(t *testing.T) {
	key := EntityKey{TenantID: " acme ", Collection: "Issues", ExternalID: "a/b"}.Normalize()
	if key.Collection != "issues" || key.TenantID != "acme" {
		t.Fatalf("unexpected normalized key %#v", key)
	}
	if got := key.String(); got != "acme::issues::a%2Fb" {
		t.Fatalf("unexpected key string %q", got)
	}
	if err := (EntityKey{TenantID: "acme", Collection: "issues"}).Validate(); err == nil {
		t.Fatalf("expected missing external id to fail validation")
	}
}
