package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/google/uuid"
)

const DefaultListLimit = 100

// EntityStore keeps entities in process. Upserts for one key are serialized
// by the store mutex, so concurrent writers converge on one id.
type EntityStore struct {
	mu       sync.RWMutex
	entities map[core.EntityKey]core.StoredEntity
	Now      func() time.Time
}

func NewEntityStore() *EntityStore {
	return &EntityStore{entities: map[core.EntityKey]core.StoredEntity{}}
}

func (s *EntityStore) Upsert(_ context.Context, key core.EntityKey, fields map[string]any) (core.StoredEntity, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return core.StoredEntity{}, core.BadInputError(err.Error(), map[string]any{
			"tenant_id":  key.TenantID,
			"collection": key.Collection,
		})
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entities == nil {
		s.entities = map[core.EntityKey]core.StoredEntity{}
	}
	entity, exists := s.entities[key]
	if !exists {
		entity = core.StoredEntity{
			ID:         uuid.NewString(),
			TenantID:   key.TenantID,
			Collection: key.Collection,
			ExternalID: key.ExternalID,
			Fields:     map[string]any{},
			CreatedAt:  now,
		}
	}
	merged := core.CloneFields(entity.Fields)
	for field, value := range core.CloneFields(fields) {
		merged[field] = value
	}
	entity.Fields = merged
	if provider, ok := merged["provider_id"].(string); ok && strings.TrimSpace(provider) != "" {
		entity.ProviderID = strings.TrimSpace(provider)
	}
	entity.UpdatedAt = now
	s.entities[key] = entity
	return cloneEntity(entity), nil
}

func (s *EntityStore) Find(_ context.Context, key core.EntityKey) (core.StoredEntity, bool, error) {
	key = key.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	entity, ok := s.entities[key]
	if !ok {
		return core.StoredEntity{}, false, nil
	}
	return cloneEntity(entity), true, nil
}

func (s *EntityStore) Delete(_ context.Context, key core.EntityKey) error {
	key = key.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, key)
	return nil
}

// List returns up to limit entities in a tenant collection, oldest first.
func (s *EntityStore) List(_ context.Context, tenantID, collection string, limit int) ([]core.StoredEntity, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	scope := core.EntityKey{TenantID: tenantID, Collection: collection}.Normalize()
	s.mu.RLock()
	out := make([]core.StoredEntity, 0)
	for key, entity := range s.entities {
		if key.TenantID == scope.TenantID && key.Collection == scope.Collection {
			out = append(out, cloneEntity(entity))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ExternalID < out[j].ExternalID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *EntityStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

func (s *EntityStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func cloneEntity(entity core.StoredEntity) core.StoredEntity {
	entity.Fields = core.CloneFields(entity.Fields)
	return entity
}

var _ core.EntityStore = (*EntityStore)(nil)
