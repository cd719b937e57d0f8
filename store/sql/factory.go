package sqlstore

import (
	"fmt"
	"time"

	"github.com/goliatone/go-ingress/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db          *bun.DB
	entityStore *EntityStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.Build(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.Build(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// Build accepts a *bun.DB or anything exposing DB() *bun.DB, such as a
// go-persistence-bun client.
func (f *RepositoryFactory) Build(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.entityStore != nil {
		return nil
	}
	store, err := NewEntityStore(f.db)
	if err != nil {
		return err
	}
	f.entityStore = store
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) EntityStore() *EntityStore {
	if f == nil {
		return nil
	}
	return f.entityStore
}

// CachedEntityStore wraps the entity store with a go-repository-cache
// service. A non-positive ttl disables caching.
func (f *RepositoryFactory) CachedEntityStore(ttl time.Duration) (core.EntityStore, error) {
	if f == nil || f.entityStore == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is not built")
	}
	if ttl <= 0 {
		return f.entityStore, nil
	}
	config := repositorycache.DefaultConfig()
	config.TTL = ttl
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: new entity cache service: %w", err)
	}
	return NewCachedEntityStore(f.entityStore, service)
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

var (
	_ core.EntityStore = (*EntityStore)(nil)
	_ core.EntityStore = (*CachedEntityStore)(nil)
)
