package inbound

import (
	"context"
	"fmt"

	"github.com/goliatone/go-ingress/core"
)

type observerKey struct{}

// ContextWithObserver makes observer available to Persist and Swallow calls
// made from handler code.
func ContextWithObserver(ctx context.Context, observer core.Observer) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, observerKey{}, observer)
}

func ObserverFromContext(ctx context.Context) core.Observer {
	if ctx == nil {
		return core.Observer{}
	}
	observer, _ := ctx.Value(observerKey{}).(core.Observer)
	return observer
}

// Swallow runs fn and logs any error or panic at warn level, recording
// ingress.<op>.swallowed. Nothing is returned to the caller.
func Swallow(ctx context.Context, logger core.Logger, op string, fields map[string]any, fn func() error) {
	observer := ObserverFromContext(ctx)
	if logger != nil {
		observer.Logger = logger
	}
	observer.LogAndDiscard(ctx, op, fields, func(context.Context) error {
		if fn == nil {
			return nil
		}
		return fn()
	})
}

// Persist upserts fields under key and swallows storage failures. The boolean
// reports whether the write landed.
func Persist(ctx context.Context, store core.EntityStore, key core.EntityKey, fields map[string]any) (core.StoredEntity, bool) {
	key = key.Normalize()
	var stored core.StoredEntity
	outcome := ObserverFromContext(ctx).LogAndDiscard(ctx, "persistence.upsert", entityFields(key, fields), func(ctx context.Context) error {
		if store == nil {
			return fmt.Errorf("inbound: entity store is not configured")
		}
		if err := key.Validate(); err != nil {
			return err
		}
		entity, err := store.Upsert(ctx, key, fields)
		if err != nil {
			return err
		}
		stored = entity
		return nil
	})
	return stored, !outcome.Failed()
}

// Remove deletes the entity under key and swallows storage failures.
func Remove(ctx context.Context, store core.EntityStore, key core.EntityKey) bool {
	key = key.Normalize()
	outcome := ObserverFromContext(ctx).LogAndDiscard(ctx, "persistence.delete", entityFields(key, nil), func(ctx context.Context) error {
		if store == nil {
			return fmt.Errorf("inbound: entity store is not configured")
		}
		if err := key.Validate(); err != nil {
			return err
		}
		return store.Delete(ctx, key)
	})
	return !outcome.Failed()
}

func entityFields(key core.EntityKey, fields map[string]any) map[string]any {
	out := map[string]any{
		"tenant_id":   key.TenantID,
		"collection":  key.Collection,
		"external_id": key.ExternalID,
	}
	if provider, ok := fields["provider_id"]; ok {
		out["provider_id"] = provider
	}
	return out
}
