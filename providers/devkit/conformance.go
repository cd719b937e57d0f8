package devkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/inbound"
)

// ValidateDescriptor applies the registry's own checks and then the rules
// built-in providers follow: declared auth kinds, and a collection on every
// handler that is not a protocol handshake.
func ValidateDescriptor(descriptor core.ProviderDescriptor) error {
	if err := core.NewProviderRegistry().Register(descriptor); err != nil {
		return err
	}
	if len(descriptor.AuthKinds) == 0 {
		return fmt.Errorf("devkit: provider %q declares no auth kinds", descriptor.ID)
	}
	if len(descriptor.Handlers) == 0 {
		return fmt.Errorf("devkit: provider %q declares no handlers", descriptor.ID)
	}
	for _, handler := range descriptor.Handlers {
		if handler.Handshake {
			continue
		}
		if len(handler.Collections) == 0 {
			return fmt.Errorf("devkit: provider %q handler %q declares no collections", descriptor.ID, handler.Action)
		}
	}
	return nil
}

// ValidateMatcherExclusivity checks that every fixture is claimed by exactly
// one boundary matcher, that it is the expected provider and, when the
// fixture names an action, that the expected handler matches first.
func ValidateMatcherExclusivity(descriptors []core.ProviderDescriptor, fixtures []Fixture) error {
	var errs []error
	for _, fixture := range fixtures {
		req, err := inbound.Normalize(fixture.Request, "", time.Now())
		if err != nil {
			errs = append(errs, fmt.Errorf("devkit: fixture %q: %w", fixture.Name, err))
			continue
		}
		var claimed []string
		var owner core.ProviderDescriptor
		for _, descriptor := range descriptors {
			if descriptor.Matcher != nil && descriptor.Matcher(req) {
				claimed = append(claimed, descriptor.ID)
				owner = descriptor
			}
		}
		switch {
		case len(claimed) != 1:
			errs = append(errs, fmt.Errorf("devkit: fixture %q claimed by %d providers [%s]", fixture.Name, len(claimed), strings.Join(claimed, ",")))
			continue
		case claimed[0] != fixture.ProviderID:
			errs = append(errs, fmt.Errorf("devkit: fixture %q claimed by %q, expected %q", fixture.Name, claimed[0], fixture.ProviderID))
			continue
		}
		if fixture.Action == "" {
			continue
		}
		handler, ok := owner.MatchEvent(req)
		if !ok || handler.Action != fixture.Action {
			errs = append(errs, fmt.Errorf("devkit: fixture %q matched action %q, expected %q", fixture.Name, handler.Action, fixture.Action))
		}
	}
	return errors.Join(errs...)
}

// ValidateClaimStoreConformance exercises the claim, duplicate and complete
// cycle every dedupe store must support.
func ValidateClaimStoreConformance(ctx context.Context, store core.IdempotencyClaimStore, key string) error {
	if store == nil {
		return fmt.Errorf("devkit: claim store is required")
	}
	claimID, accepted, err := store.Claim(ctx, key, time.Minute)
	if err != nil {
		return err
	}
	if !accepted || strings.TrimSpace(claimID) == "" {
		return fmt.Errorf("devkit: first claim should be accepted")
	}
	if _, accepted, err := store.Claim(ctx, key, time.Minute); err != nil {
		return err
	} else if accepted {
		return fmt.Errorf("devkit: second claim should not be accepted")
	}
	return store.Complete(ctx, claimID)
}
