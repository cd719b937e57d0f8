package inbound

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/google/uuid"
)

const DefaultClaimTTL = 10 * time.Minute

type claimState string

const (
	claimInFlight  claimState = "in_flight"
	claimRetryable claimState = "retryable"
	claimDone      claimState = "done"
)

type deliveryClaim struct {
	state     claimState
	claimID   string
	attempts  int
	ttl       time.Duration
	expiresAt time.Time
	retryAt   time.Time
}

// InMemoryClaimStore suppresses redelivered webhooks within one process. A
// completed delivery stays claimed for its TTL; a failed one can be claimed
// again once retryAt passes.
type InMemoryClaimStore struct {
	mu       sync.Mutex
	claims   map[string]deliveryClaim
	byID     map[string]string
	Now      func() time.Time
	NewClaim func() string
}

func NewInMemoryClaimStore() *InMemoryClaimStore {
	return &InMemoryClaimStore{
		claims: map[string]deliveryClaim{},
		byID:   map[string]string{},
	}
}

// DeliveryKey scopes a provider delivery id to its provider and tenant.
func DeliveryKey(providerID, tenantID, deliveryID string) string {
	return strings.Join([]string{
		strings.TrimSpace(providerID),
		strings.TrimSpace(tenantID),
		strings.TrimSpace(deliveryID),
	}, ":")
}

func (s *InMemoryClaimStore) Claim(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if s == nil {
		return "", false, inboundInternal("inbound: claim store is nil", nil)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, inboundBadInput("inbound: delivery key is required", nil)
	}
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claims == nil {
		s.claims = map[string]deliveryClaim{}
		s.byID = map[string]string{}
	}
	s.sweepLocked(now)

	claim, exists := s.claims[key]
	if exists && claim.blocks(now) {
		return "", false, nil
	}
	if claim.claimID != "" {
		delete(s.byID, claim.claimID)
	}
	claim = deliveryClaim{
		state:     claimInFlight,
		claimID:   s.newClaimID(),
		attempts:  claim.attempts + 1,
		ttl:       ttl,
		expiresAt: now.Add(ttl),
	}
	s.claims[key] = claim
	s.byID[claim.claimID] = key
	return claim.claimID, true, nil
}

func (s *InMemoryClaimStore) Complete(_ context.Context, claimID string) error {
	return s.settle(claimID, func(claim *deliveryClaim, now time.Time) {
		claim.state = claimDone
		claim.expiresAt = now.Add(claim.ttl)
	})
}

func (s *InMemoryClaimStore) Fail(_ context.Context, claimID string, _ error, retryAt time.Time) error {
	return s.settle(claimID, func(claim *deliveryClaim, now time.Time) {
		if retryAt.IsZero() {
			retryAt = now
		}
		claim.state = claimRetryable
		claim.retryAt = retryAt.UTC()
		claim.expiresAt = time.Time{}
	})
}

// Attempts reports how many times key has been claimed. Used by tests and the
// replay command.
func (s *InMemoryClaimStore) Attempts(key string) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims[strings.TrimSpace(key)].attempts
}

func (s *InMemoryClaimStore) settle(claimID string, apply func(*deliveryClaim, time.Time)) error {
	if s == nil {
		return inboundInternal("inbound: claim store is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return inboundBadInput("inbound: claim id is required", nil)
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[claimID]
	if !ok {
		return nil
	}
	delete(s.byID, claimID)
	claim, exists := s.claims[key]
	if !exists || claim.claimID != claimID || claim.state != claimInFlight {
		return nil
	}
	apply(&claim, now)
	s.claims[key] = claim
	return nil
}

func (c deliveryClaim) blocks(now time.Time) bool {
	switch c.state {
	case claimDone, claimInFlight:
		return now.Before(c.expiresAt)
	case claimRetryable:
		return now.Before(c.retryAt)
	}
	return false
}

func (s *InMemoryClaimStore) sweepLocked(now time.Time) {
	for key, claim := range s.claims {
		if claim.state == claimDone && !now.Before(claim.expiresAt) {
			delete(s.claims, key)
		}
	}
}

func (s *InMemoryClaimStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *InMemoryClaimStore) newClaimID() string {
	if s.NewClaim != nil {
		return s.NewClaim()
	}
	return uuid.NewString()
}

var _ core.IdempotencyClaimStore = (*InMemoryClaimStore)(nil)
