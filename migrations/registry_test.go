package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	ingress "github.com/goliatone/go-ingress"
	_ "github.com/mattn/go-sqlite3"
)

func TestSources_ReturnsPostgresAndSQLite(t *testing.T) {
	sources, err := Sources()
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	for _, src := range sources {
		if len(src.Steps) == 0 {
			t.Fatalf("expected %s steps, got none", src.Dialect)
		}
		first := src.Steps[0]
		if first.Version != "00001" || first.Name != "ingress_entities" {
			t.Fatalf("unexpected first %s step: %#v", src.Dialect, first)
		}
		if _, err := fs.Stat(src.FS, first.Up); err != nil {
			t.Fatalf("expected %s up file in source fs: %v", src.Dialect, err)
		}
	}
}

func TestLoadSteps_OrdersAndPairs(t *testing.T) {
	fsys := fstest.MapFS{
		"00002_hooks.up.sql":      {Data: []byte("SELECT 1;")},
		"00002_hooks.down.sql":    {Data: []byte("SELECT 1;")},
		"00001_entities.up.sql":   {Data: []byte("SELECT 1;")},
		"00001_entities.down.sql": {Data: []byte("SELECT 1;")},
		"README.md":               {Data: []byte("ignored")},
	}
	steps, err := LoadSteps(fsys)
	if err != nil {
		t.Fatalf("load steps: %v", err)
	}
	if len(steps) != 2 || steps[0].Version != "00001" || steps[1].Name != "hooks" {
		t.Fatalf("unexpected steps: %#v", steps)
	}
}

func TestLoadSteps_RejectsMissingDown(t *testing.T) {
	fsys := fstest.MapFS{
		"00001_entities.up.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := LoadSteps(fsys); err == nil {
		t.Fatalf("expected unpaired migration to fail")
	}
}

func TestLoadSteps_RejectsUnversionedFile(t *testing.T) {
	fsys := fstest.MapFS{
		"entities.up.sql":   {Data: []byte("SELECT 1;")},
		"entities.down.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := LoadSteps(fsys); err == nil {
		t.Fatalf("expected missing version prefix to fail")
	}
}

func TestPlan_UnknownDialect(t *testing.T) {
	if _, err := Plan("mysql"); err == nil {
		t.Fatalf("expected unknown dialect error")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	var labels []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, label string, _ fs.FS) error {
		calls = append(calls, dialect)
		labels = append(labels, label)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != DialectSQLite {
		t.Fatalf("expected a single sqlite registration, got %v", calls)
	}
	if labels[0] != "go-ingress" {
		t.Fatalf("expected go-ingress source label, got %q", labels[0])
	}
}

func TestEntityMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := ingress.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_ingress_entities.up.sql",
		"data/sql/migrations/00001_ingress_entities.down.sql",
		"data/sql/migrations/sqlite/00001_ingress_entities.up.sql",
		"data/sql/migrations/sqlite/00001_ingress_entities.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteEntityMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-ingress-entities?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(ingress.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_ingress_entities.up.sql"); err != nil {
		t.Fatalf("apply up migration: %v", err)
	}

	insert := `INSERT INTO ingress_entities (id, tenant_id, collection, external_id, provider_id, fields) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insert, "e1", "acme", "issues", "ISS-1", "linear", "{}"); err != nil {
		t.Fatalf("insert entity: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "e2", "acme", "issues", "ISS-1", "linear", "{}"); err == nil {
		t.Fatalf("expected unique (tenant, collection, external_id) violation")
	}
	if _, err := db.ExecContext(ctx, insert, "e3", "globex", "issues", "ISS-1", "linear", "{}"); err != nil {
		t.Fatalf("expected same external id in another tenant to insert: %v", err)
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_ingress_entities.down.sql"); err != nil {
		t.Fatalf("apply down migration: %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, "ingress_entities").Scan(&count); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected ingress_entities to be dropped")
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
