package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-ingress/core"
)

func fixedClock(at *time.Time) func() time.Time {
	return func() time.Time { return *at }
}

func TestNewTenantLimiter_DisabledWithoutRPS(t *testing.T) {
	limiter := NewTenantLimiter(core.RateLimitConfig{})
	if limiter != nil {
		t.Fatalf("expected nil limiter when rps is zero")
	}
	if err := limiter.Allow("acme"); err != nil {
		t.Fatalf("expected nil limiter to allow, got %v", err)
	}
}

func TestTenantLimiter_ThrottlesAfterBurst(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	limiter := NewTenantLimiter(core.RateLimitConfig{RPS: 1, Burst: 2})
	limiter.Now = fixedClock(&now)

	for i := 0; i < 2; i++ {
		if err := limiter.Allow("acme"); err != nil {
			t.Fatalf("request %d: expected allow, got %v", i, err)
		}
	}
	err := limiter.Allow("acme")
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError, got %v", err)
	}
	if throttled.RetryAfter <= 0 || throttled.RetryAfterSeconds() != 1 {
		t.Fatalf("expected ~1s retry hint, got %s", throttled.RetryAfter)
	}

	now = now.Add(time.Second)
	if err := limiter.Allow("acme"); err != nil {
		t.Fatalf("expected refill after one second, got %v", err)
	}
}

func TestTenantLimiter_TenantsAreIsolated(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	limiter := NewTenantLimiter(core.RateLimitConfig{RPS: 1, Burst: 1})
	limiter.Now = fixedClock(&now)

	if err := limiter.Allow("acme"); err != nil {
		t.Fatalf("acme first request: %v", err)
	}
	if err := limiter.Allow("acme"); err == nil {
		t.Fatalf("expected acme to be throttled")
	}
	if err := limiter.Allow("globex"); err != nil {
		t.Fatalf("expected globex to have its own bucket, got %v", err)
	}
	if err := limiter.Allow(""); err != nil {
		t.Fatalf("expected default tenant bucket, got %v", err)
	}
	if limiter.Tenants() != 3 {
		t.Fatalf("expected 3 buckets, got %d", limiter.Tenants())
	}
}

func TestTenantLimiter_SweepsIdleBuckets(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	limiter := NewTenantLimiter(core.RateLimitConfig{RPS: 5})
	limiter.Now = fixedClock(&now)
	limiter.IdleTTL = time.Minute

	_ = limiter.Allow("acme")
	_ = limiter.Allow("globex")
	now = now.Add(2 * time.Minute)
	_ = limiter.Allow("initech")

	if limiter.Tenants() != 1 {
		t.Fatalf("expected idle buckets to be swept, got %d", limiter.Tenants())
	}
}

func TestThrottledError_ToServiceError(t *testing.T) {
	mapped := ThrottledError{TenantID: "acme", RetryAfter: 3 * time.Second}.ToServiceError()
	if mapped.TextCode != core.ErrorRateLimited {
		t.Fatalf("expected %q text code, got %q", core.ErrorRateLimited, mapped.TextCode)
	}
	if mapped.Code != 429 {
		t.Fatalf("expected status code 429, got %d", mapped.Code)
	}
	if mapped.Metadata["retry_after_ms"] != int64(3000) {
		t.Fatalf("expected retry metadata, got %#v", mapped.Metadata)
	}
}
