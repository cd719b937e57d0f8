package core

import (
	"context"
	"fmt"
	"strings"
)

// ScopedEntityStore pins a store to one tenant and collection so handlers can
// address entities by external id alone.
type ScopedEntityStore struct {
	store      EntityStore
	tenantID   string
	collection string
}

func NewScopedEntityStore(store EntityStore, tenantID, collection string) ScopedEntityStore {
	return ScopedEntityStore{
		store:      store,
		tenantID:   strings.TrimSpace(tenantID),
		collection: strings.TrimSpace(strings.ToLower(collection)),
	}
}

func (s ScopedEntityStore) TenantID() string {
	return s.tenantID
}

func (s ScopedEntityStore) Collection() string {
	return s.collection
}

func (s ScopedEntityStore) key(externalID string) EntityKey {
	return EntityKey{TenantID: s.tenantID, Collection: s.collection, ExternalID: externalID}.Normalize()
}

// UpsertByEntityID returns the internal id of the written entity.
func (s ScopedEntityStore) UpsertByEntityID(ctx context.Context, externalID string, record map[string]any) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("core: scoped entity store has no backing store")
	}
	key := s.key(externalID)
	if err := key.Validate(); err != nil {
		return "", BadInputError(err.Error(), map[string]any{"tenant_id": key.TenantID, "collection": key.Collection})
	}
	stored, err := s.store.Upsert(ctx, key, record)
	if err != nil {
		return "", err
	}
	return stored.ID, nil
}

func (s ScopedEntityStore) FindByEntityID(ctx context.Context, externalID string) (StoredEntity, bool, error) {
	if s.store == nil {
		return StoredEntity{}, false, fmt.Errorf("core: scoped entity store has no backing store")
	}
	key := s.key(externalID)
	if err := key.Validate(); err != nil {
		return StoredEntity{}, false, BadInputError(err.Error(), map[string]any{"tenant_id": key.TenantID, "collection": key.Collection})
	}
	return s.store.Find(ctx, key)
}

func (s ScopedEntityStore) DeleteByEntityID(ctx context.Context, externalID string) error {
	if s.store == nil {
		return fmt.Errorf("core: scoped entity store has no backing store")
	}
	key := s.key(externalID)
	if err := key.Validate(); err != nil {
		return BadInputError(err.Error(), map[string]any{"tenant_id": key.TenantID, "collection": key.Collection})
	}
	return s.store.Delete(ctx, key)
}

// Scoped returns a store bound to the handler's tenant and collection.
func (in HandlerInput) Scoped(collection string) ScopedEntityStore {
	return NewScopedEntityStore(in.Store, in.TenantID, collection)
}
