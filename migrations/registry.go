package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"sort"
	"strings"

	ingress "github.com/goliatone/go-ingress"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	sourceLabel = "go-ingress"
	rootPath    = "data/sql/migrations"
)

// Step is one versioned migration with both directions present.
type Step struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// Source is the migration set for one dialect.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
	Steps   []Step
}

type Registration struct {
	SourceLabel string
	Dialects    []string
	Sources     []Source
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

// WithValidationTargets limits registration to the given dialects.
func WithValidationTargets(dialects ...string) Option {
	return func(r *Registration) {
		if next := normalizeDialects(dialects); len(next) > 0 {
			r.Dialects = next
		}
	}
}

// WithSources replaces the embedded entity migrations.
func WithSources(sources ...Source) Option {
	return func(r *Registration) {
		kept := make([]Source, 0, len(sources))
		for _, src := range sources {
			if src.FS == nil || strings.TrimSpace(src.Dialect) == "" {
				continue
			}
			src.Dialect = strings.ToLower(strings.TrimSpace(src.Dialect))
			kept = append(kept, src)
		}
		if len(kept) > 0 {
			r.Sources = kept
		}
	}
}

// Sources loads the postgres set from data/sql/migrations and the sqlite set
// from its sqlite subdirectory. Every dialect must carry at least one step and
// every up file needs a matching down file.
func Sources(roots ...fs.FS) ([]Source, error) {
	root := ingress.GetMigrationsFS()
	if len(roots) > 0 && roots[0] != nil {
		root = roots[0]
	}
	base, err := fs.Sub(root, rootPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootPath, err)
	}

	layout := []struct {
		dialect string
		sub     string
	}{
		{dialect: DialectPostgres, sub: "."},
		{dialect: DialectSQLite, sub: "sqlite"},
	}
	out := make([]Source, 0, len(layout))
	for _, entry := range layout {
		fsys := base
		path := rootPath
		if entry.sub != "." {
			if fsys, err = fs.Sub(base, entry.sub); err != nil {
				return nil, fmt.Errorf("migrations: resolve %s: %w", entry.dialect, err)
			}
			path = rootPath + "/" + entry.sub
		}
		steps, err := LoadSteps(fsys)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s (%s): %w", entry.dialect, path, err)
		}
		out = append(out, Source{Dialect: entry.dialect, Path: path, FS: fsys, Steps: steps})
	}
	return out, nil
}

// LoadSteps pairs NNNNN_name.up.sql with NNNNN_name.down.sql in fsys and
// returns them ordered by version.
func LoadSteps(fsys fs.FS) ([]Step, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	byStem := map[string]*Step{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		var stem string
		var up bool
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			stem, up = strings.TrimSuffix(name, ".up.sql"), true
		case strings.HasSuffix(name, ".down.sql"):
			stem = strings.TrimSuffix(name, ".down.sql")
		default:
			continue
		}
		version, label, ok := strings.Cut(stem, "_")
		if !ok || version == "" || strings.Trim(version, "0123456789") != "" {
			return nil, fmt.Errorf("migration %q has no numeric version prefix", name)
		}
		step := byStem[stem]
		if step == nil {
			step = &Step{Version: version, Name: label}
			byStem[stem] = step
		}
		if up {
			step.Up = name
		} else {
			step.Down = name
		}
	}
	if len(byStem) == 0 {
		return nil, fmt.Errorf("no *.up.sql files")
	}

	steps := make([]Step, 0, len(byStem))
	seen := map[string]string{}
	for stem, step := range byStem {
		if step.Up == "" || step.Down == "" {
			return nil, fmt.Errorf("migration %s is missing its up or down file", stem)
		}
		if other, dup := seen[step.Version]; dup {
			return nil, fmt.Errorf("migration version %s used by %s and %s", step.Version, other, stem)
		}
		seen[step.Version] = stem
		steps = append(steps, *step)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	return steps, nil
}

// Register hands each selected dialect's migration filesystem to registerFn,
// typically persistence.Client.RegisterSQLMigrations.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: sourceLabel,
		Dialects:    []string{DialectPostgres, DialectSQLite},
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if len(reg.Sources) == 0 {
		sources, err := Sources()
		if err != nil {
			return reg, err
		}
		reg.Sources = sources
	}

	registered := 0
	for _, src := range reg.Sources {
		if !slices.Contains(reg.Dialects, src.Dialect) {
			continue
		}
		if err := registerFn(ctx, src.Dialect, reg.SourceLabel, src.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", src.Dialect, src.Path, err)
		}
		registered++
	}
	if registered == 0 {
		return reg, fmt.Errorf("migrations: no sources for dialects %v", reg.Dialects)
	}
	return reg, nil
}

// Plan returns the ordered steps for one dialect.
func Plan(dialect string) ([]Step, error) {
	sources, err := Sources()
	if err != nil {
		return nil, err
	}
	dialect = strings.ToLower(strings.TrimSpace(dialect))
	for _, src := range sources {
		if src.Dialect == dialect {
			return src.Steps, nil
		}
	}
	return nil, fmt.Errorf("migrations: unknown dialect %q", dialect)
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" && !slices.Contains(out, value) {
			out = append(out, value)
		}
	}
	return out
}
