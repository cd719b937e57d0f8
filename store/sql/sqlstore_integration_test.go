package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-ingress/core"
	ingressmigrations "github.com/goliatone/go-ingress/migrations"
	sqlstore "github.com/goliatone/go-ingress/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-ingress-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"ingress_entities",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "ingress_entities" {
		t.Fatalf("expected ingress_entities table, got %q", tableName)
	}
}

func TestEntityStore_UpsertIsIdempotentAndMerges(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newEntityStore(t, client)
	key := core.EntityKey{TenantID: "acme", Collection: "Issues", ExternalID: "ISS-1"}

	first, err := store.Upsert(ctx, key, map[string]any{"title": "Bug", "state": "open", "provider_id": "linear"})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.ID == "" || first.Collection != "issues" || first.ProviderID != "linear" {
		t.Fatalf("unexpected first entity %#v", first)
	}

	second, err := store.Upsert(ctx, key, map[string]any{"state": "closed", "assignee": "ana"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected stable id across upserts, got %q then %q", first.ID, second.ID)
	}

	found, ok, err := store.Find(ctx, key)
	if err != nil || !ok {
		t.Fatalf("find: ok=%v err=%v", ok, err)
	}
	if found.Fields["title"] != "Bug" || found.Fields["state"] != "closed" || found.Fields["assignee"] != "ana" {
		t.Fatalf("expected merged fields with new keys winning, got %#v", found.Fields)
	}

	byID, err := store.Get(ctx, first.ID)
	if err != nil || byID.ExternalID != "ISS-1" {
		t.Fatalf("get by id: %#v err=%v", byID, err)
	}
}

func TestEntityStore_TenantIsolationAndDelete(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newEntityStore(t, client)
	acme := core.EntityKey{TenantID: "acme", Collection: "issues", ExternalID: "ISS-1"}
	globex := core.EntityKey{TenantID: "globex", Collection: "issues", ExternalID: "ISS-1"}

	if _, err := store.Upsert(ctx, acme, map[string]any{"title": "acme"}); err != nil {
		t.Fatalf("upsert acme: %v", err)
	}
	if _, err := store.Upsert(ctx, globex, map[string]any{"title": "globex"}); err != nil {
		t.Fatalf("upsert globex: %v", err)
	}

	if err := store.Delete(ctx, acme); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, acme); err != nil {
		t.Fatalf("expected deleting a missing row to be a no-op: %v", err)
	}
	if _, ok, err := store.Find(ctx, acme); err != nil || ok {
		t.Fatalf("expected acme entity to be gone, ok=%v err=%v", ok, err)
	}
	found, ok, err := store.Find(ctx, globex)
	if err != nil || !ok || found.Fields["title"] != "globex" {
		t.Fatalf("expected globex entity untouched, got %#v ok=%v err=%v", found, ok, err)
	}

	listed, err := store.List(ctx, "globex", "issues", 10)
	if err != nil || len(listed) != 1 {
		t.Fatalf("expected one listed entity, got %d err=%v", len(listed), err)
	}
}

func TestEntityStore_ConcurrentUpsertsConverge(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newEntityStore(t, client)
	key := core.EntityKey{TenantID: "acme", Collection: "records", ExternalID: "rec-1"}

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entity, err := store.Upsert(ctx, key, map[string]any{fmt.Sprintf("writer_%d", i): true})
			ids[i], errs[i] = entity.ID, err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d: %v", i, err)
		}
		if ids[i] != ids[0] {
			t.Fatalf("expected all writers to converge on one row, got %v", ids)
		}
	}
	var count int
	if err := client.DB().NewRaw("SELECT COUNT(*) FROM ingress_entities").Scan(ctx, &count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single row, got %d", count)
	}
}

func TestCachedEntityStore_ReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	base := &countingStore{EntityStore: newEntityStore(t, client)}
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	cached, err := sqlstore.NewCachedEntityStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}

	key := core.EntityKey{TenantID: "acme", Collection: "messages", ExternalID: "m-1"}
	if _, ok, err := cached.Find(ctx, key); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if _, err := cached.Upsert(ctx, key, map[string]any{"text": "hi"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	for i := 0; i < 3; i++ {
		found, ok, err := cached.Find(ctx, key)
		if err != nil || !ok || found.Fields["text"] != "hi" {
			t.Fatalf("find %d: %#v ok=%v err=%v", i, found, ok, err)
		}
	}
	if base.finds != 2 {
		t.Fatalf("expected one miss read and one cached hit read, got %d base finds", base.finds)
	}

	if _, err := cached.Upsert(ctx, key, map[string]any{"text": "edited"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	found, _, _ := cached.Find(ctx, key)
	if found.Fields["text"] != "edited" {
		t.Fatalf("expected invalidation to expose the new value, got %#v", found.Fields)
	}
}

func TestEntityCacheKey_Contract(t *testing.T) {
	key, err := sqlstore.EntityCacheKey(core.EntityKey{TenantID: " acme ", Collection: "Issues", ExternalID: "a/b c"})
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "go-ingress::entity::v1::acme::issues::a%2Fb%20c" {
		t.Fatalf("unexpected cache key %q", key)
	}
	if _, err := sqlstore.EntityCacheKey(core.EntityKey{TenantID: "acme"}); err == nil {
		t.Fatalf("expected incomplete key to fail")
	}
}

type countingStore struct {
	*sqlstore.EntityStore
	mu    sync.Mutex
	finds int
}

func (s *countingStore) Find(ctx context.Context, key core.EntityKey) (core.StoredEntity, bool, error) {
	s.mu.Lock()
	s.finds++
	s.mu.Unlock()
	return s.EntityStore.Find(ctx, key)
}

func newEntityStore(t *testing.T, client *persistence.Client) *sqlstore.EntityStore {
	t.Helper()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory.EntityStore()
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:ingress-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = ingressmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != ingressmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, ingressmigrations.WithValidationTargets(ingressmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
