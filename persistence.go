package ingress

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-ingress/core"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const persistencePingTimeout = 5 * time.Second

type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool {
	return c.debug
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return persistencePingTimeout
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-ingress"
}

// OpenPersistence opens the configured SQL store, registers the embedded
// migrations for its dialect and applies them.
func OpenPersistence(ctx context.Context, cfg core.StoreConfig) (*persistence.Client, error) {
	driver := strings.TrimSpace(strings.ToLower(cfg.Driver))
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("ingress: store dsn is required for driver %q", driver)
	}

	var (
		sqlDriver  string
		dialect    schema.Dialect
		migrations fs.FS
		err        error
	)
	switch driver {
	case core.StoreDriverSQLite:
		sqlDriver = "sqlite3"
		dialect = sqlitedialect.New()
		migrations, err = fs.Sub(migrationsFS, "data/sql/migrations/sqlite")
	case core.StoreDriverPostgres:
		sqlDriver = "postgres"
		dialect = pgdialect.New()
		migrations, err = fs.Sub(migrationsFS, "data/sql/migrations")
	default:
		return nil, fmt.Errorf("ingress: unsupported sql store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("ingress: resolve %s migrations: %w", driver, err)
	}

	sqlDB, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("ingress: open %s: %w", driver, err)
	}
	if driver == core.StoreDriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{driver: sqlDriver, server: dsn, debug: cfg.Debug}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ingress: persistence client: %w", err)
	}
	client.RegisterSQLMigrations(migrations)
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ingress: migrate %s: %w", driver, err)
	}
	return client, nil
}
