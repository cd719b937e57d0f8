package main

import (
	"context"
	"fmt"
	"strings"

	ingress "github.com/goliatone/go-ingress"
	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/migrations"
	"github.com/urfave/cli/v3"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "apply the entity store migrations to the configured sql store",
		Flags:  commonFlags(),
		Action: runMigrate,
	}
}

func runMigrate(ctx context.Context, cmd *cli.Command) error {
	opts, logger, err := engineOptions(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	deps := core.ResolveDependencies(opts...)
	cfg, err := deps.LoadConfig(ctx, runtimeConfig(cmd))
	if err != nil {
		return err
	}
	dialect := strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if dialect == core.StoreDriverMemory || dialect == "" {
		return fmt.Errorf("webhookd: migrate needs a sql store, got %q", cfg.Store.Driver)
	}

	files, err := migrationFiles(ctx, dialect)
	if err != nil {
		return err
	}
	client, err := ingress.OpenPersistence(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer client.Close()

	out := output(cmd)
	for _, name := range files {
		fmt.Fprintf(out, "applied %s (%s)\n", name, dialect)
	}
	return nil
}

// migrationFiles lists the up migrations for dialect in version order.
func migrationFiles(_ context.Context, dialect string) ([]string, error) {
	steps, err := migrations.Plan(dialect)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(steps))
	for _, step := range steps {
		files = append(files, step.Up)
	}
	return files, nil
}
