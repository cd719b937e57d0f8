package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-ingress/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const entityCacheKeyPrefix = "go-ingress::entity::v1"

var _ core.EntityLister = (*CachedEntityStore)(nil)

// errEntityMiss keeps misses out of the cache; only found rows are cached.
var errEntityMiss = errors.New("sqlstore: entity not found")

// CachedEntityStore is a read-through cache over another EntityStore. Writes
// go to the base store and then invalidate the key.
type CachedEntityStore struct {
	base  core.EntityStore
	cache repositorycache.CacheService
}

func NewCachedEntityStore(base core.EntityStore, cacheService repositorycache.CacheService) (*CachedEntityStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base entity store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: entity cache service is required")
	}
	return &CachedEntityStore{base: base, cache: cacheService}, nil
}

// EntityCacheKey returns go-ingress::entity::v1::<tenant>::<collection>::<external_id>
// with each segment path-escaped after normalization.
func EntityCacheKey(key core.EntityKey) (string, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return "", err
	}
	segments := []string{entityCacheKeyPrefix}
	for _, segment := range []string{key.TenantID, key.Collection, key.ExternalID} {
		segments = append(segments, url.PathEscape(segment))
	}
	return strings.Join(segments, "::"), nil
}

func (s *CachedEntityStore) Find(ctx context.Context, key core.EntityKey) (core.StoredEntity, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.StoredEntity{}, false, fmt.Errorf("sqlstore: cached entity store is not configured")
	}
	key = key.Normalize()
	cacheKey, err := EntityCacheKey(key)
	if err != nil {
		return core.StoredEntity{}, false, err
	}
	entity, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.StoredEntity, error) {
		found, ok, fetchErr := s.base.Find(ctx, key)
		if fetchErr != nil {
			return core.StoredEntity{}, fetchErr
		}
		if !ok {
			return core.StoredEntity{}, errEntityMiss
		}
		return found, nil
	})
	if errors.Is(err, errEntityMiss) {
		return core.StoredEntity{}, false, nil
	}
	if err != nil {
		return core.StoredEntity{}, false, err
	}
	entity.Fields = core.CloneFields(entity.Fields)
	return entity, true, nil
}

func (s *CachedEntityStore) Upsert(ctx context.Context, key core.EntityKey, fields map[string]any) (core.StoredEntity, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.StoredEntity{}, fmt.Errorf("sqlstore: cached entity store is not configured")
	}
	stored, err := s.base.Upsert(ctx, key, fields)
	if err != nil {
		return core.StoredEntity{}, err
	}
	return stored, s.invalidate(ctx, key)
}

func (s *CachedEntityStore) Delete(ctx context.Context, key core.EntityKey) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached entity store is not configured")
	}
	if err := s.base.Delete(ctx, key); err != nil {
		return err
	}
	return s.invalidate(ctx, key)
}

// List is not cached; it delegates when the base store can list.
func (s *CachedEntityStore) List(ctx context.Context, tenantID, collection string, limit int) ([]core.StoredEntity, error) {
	lister, ok := s.base.(core.EntityLister)
	if !ok {
		return nil, fmt.Errorf("sqlstore: base entity store cannot list")
	}
	return lister.List(ctx, tenantID, collection, limit)
}

func (s *CachedEntityStore) invalidate(ctx context.Context, key core.EntityKey) error {
	cacheKey, err := EntityCacheKey(key)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
