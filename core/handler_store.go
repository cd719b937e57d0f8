package core

import (
	"context"
	"fmt"
)

func (in HandlerInput) observer() Observer {
	return Observer{Logger: in.Logger, Metrics: in.Metrics}
}

func (in HandlerInput) entityKey(collection, externalID string) EntityKey {
	return EntityKey{TenantID: in.TenantID, Collection: collection, ExternalID: externalID}.Normalize()
}

// Upsert writes the provider-shaped fields through the entity store. Storage
// failures are logged and swallowed so the webhook is still acknowledged; the
// boolean reports whether the write landed.
func (in HandlerInput) Upsert(ctx context.Context, collection, externalID string, fields map[string]any) (StoredEntity, bool) {
	key := in.entityKey(collection, externalID)
	var stored StoredEntity
	outcome := in.observer().LogAndDiscard(ctx, "persistence.upsert", in.persistenceFields(key), func(ctx context.Context) error {
		if in.Store == nil {
			return fmt.Errorf("core: entity store is not configured")
		}
		if err := key.Validate(); err != nil {
			return err
		}
		entity, err := in.Store.Upsert(ctx, key, withProvider(fields, in.ProviderID))
		if err != nil {
			return err
		}
		stored = entity
		return nil
	})
	return stored, !outcome.Failed()
}

// Delete removes the mirrored entity; failures are logged and swallowed.
func (in HandlerInput) Delete(ctx context.Context, collection, externalID string) bool {
	key := in.entityKey(collection, externalID)
	outcome := in.observer().LogAndDiscard(ctx, "persistence.delete", in.persistenceFields(key), func(ctx context.Context) error {
		if in.Store == nil {
			return fmt.Errorf("core: entity store is not configured")
		}
		if err := key.Validate(); err != nil {
			return err
		}
		return in.Store.Delete(ctx, key)
	})
	return !outcome.Failed()
}

// NewEvent builds the derived event for after-hooks from the handler context.
func (in HandlerInput) NewEvent(collection, externalID string, entity StoredEntity, data map[string]any) *Event {
	occurredAt := in.Request.ReceivedAt()
	return &Event{
		ProviderID: in.ProviderID,
		Action:     in.Action,
		TenantID:   in.TenantID,
		Collection: collection,
		ExternalID: externalID,
		EntityID:   entity.ID,
		OccurredAt: occurredAt,
		Data:       CloneFields(data),
	}
}

func (in HandlerInput) persistenceFields(key EntityKey) map[string]any {
	return map[string]any{
		"provider_id": in.ProviderID,
		"action":      in.Action,
		"tenant_id":   key.TenantID,
		"collection":  key.Collection,
		"external_id": key.ExternalID,
	}
}

func withProvider(fields map[string]any, providerID string) map[string]any {
	out := CloneFields(fields)
	if _, ok := out["provider_id"]; !ok && providerID != "" {
		out["provider_id"] = providerID
	}
	return out
}
