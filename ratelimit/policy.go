package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingress/core"
	"golang.org/x/time/rate"
)

const DefaultIdleTTL = 10 * time.Minute

type ThrottledError struct {
	TenantID   string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: tenant %q throttled for %s", strings.TrimSpace(e.TenantID), e.RetryAfter)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{"tenant_id": strings.TrimSpace(e.TenantID)}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ErrorRateLimited).
		WithMetadata(metadata)
}

// RetryAfterSeconds rounds up so clients never retry early.
func (e ThrottledError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 1
	}
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TenantLimiter keeps one token bucket per tenant. Buckets idle for longer
// than IdleTTL are dropped on the next sweep.
type TenantLimiter struct {
	Now     func() time.Time
	IdleTTL time.Duration

	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*bucket
	sweptAt time.Time
}

// NewTenantLimiter returns nil when rps is not positive, which disables
// limiting.
func NewTenantLimiter(cfg core.RateLimitConfig) *TenantLimiter {
	if cfg.RPS <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(math.Ceil(cfg.RPS))
	}
	return &TenantLimiter{
		Now:     func() time.Time { return time.Now().UTC() },
		IdleTTL: DefaultIdleTTL,
		limit:   rate.Limit(cfg.RPS),
		burst:   burst,
		buckets: map[string]*bucket{},
	}
}

// Allow consumes one token for tenantID or reports how long to wait.
func (l *TenantLimiter) Allow(tenantID string) error {
	if l == nil {
		return nil
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		tenantID = core.DefaultTenantID
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)
	b, ok := l.buckets[tenantID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[tenantID] = b
	}
	b.lastSeen = now

	reservation := b.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return ThrottledError{TenantID: tenantID, RetryAfter: time.Second}
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return ThrottledError{TenantID: tenantID, RetryAfter: delay}
	}
	return nil
}

// Tenants reports how many tenant buckets are live.
func (l *TenantLimiter) Tenants() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *TenantLimiter) sweep(now time.Time) {
	ttl := l.IdleTTL
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	if now.Sub(l.sweptAt) < ttl {
		return
	}
	l.sweptAt = now
	for tenantID, b := range l.buckets {
		if now.Sub(b.lastSeen) >= ttl {
			delete(l.buckets, tenantID)
		}
	}
}

func (l *TenantLimiter) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}
