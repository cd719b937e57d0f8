package main

import (
	"strings"

	ingress "github.com/goliatone/go-ingress"
	"github.com/goliatone/go-ingress/adapters/zaplog"
	"github.com/goliatone/go-ingress/core"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Sources: cli.EnvVars("INGRESS_CONFIG"),
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to a YAML or JSON config file",
		},
		&cli.StringFlag{
			Sources: cli.EnvVars("INGRESS_LOG_LEVEL"),
			Name:    "log-level",
			Value:   "info",
			Usage:   "debug, info, warn or error",
		},
		&cli.StringFlag{
			Sources: cli.EnvVars("INGRESS_STORE"),
			Name:    "store",
			Usage:   "entity store driver: memory, sqlite or postgres",
		},
		&cli.StringFlag{
			Sources: cli.EnvVars("INGRESS_DSN"),
			Name:    "dsn",
			Usage:   "sql store connection string",
		},
	}
}

// runtimeConfig collects flag overrides. Unset flags stay zero so the config
// file and defaults beneath them win.
func runtimeConfig(cmd *cli.Command) core.Config {
	var cfg core.Config
	if cmd.IsSet("store") {
		cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cmd.String("store")))
	}
	if cmd.IsSet("dsn") {
		cfg.Store.DSN = cmd.String("dsn")
	}
	if flagSet(cmd, "addr") {
		cfg.HTTP.Addr = cmd.String("addr")
	}
	if flagSet(cmd, "nats-url") {
		cfg.Forward.NATS.URL = cmd.String("nats-url")
	}
	if flagSet(cmd, "cloudevents-target") {
		cfg.Forward.CloudEvents.Target = cmd.String("cloudevents-target")
	}
	return cfg
}

func flagSet(cmd *cli.Command, name string) bool {
	for _, flag := range cmd.Flags {
		for _, candidate := range flag.Names() {
			if candidate == name {
				return cmd.IsSet(name)
			}
		}
	}
	return false
}

// engineOptions wires the zap-backed logger and the optional config file.
func engineOptions(cmd *cli.Command) ([]core.Option, *zap.Logger, error) {
	base, err := zaplog.NewProduction(cmd.String("log-level"))
	if err != nil {
		return nil, nil, err
	}
	provider := zaplog.NewProvider(base)
	opts := []core.Option{
		core.WithLoggerProvider(provider),
		core.WithLogger(provider.GetLogger("webhookd")),
	}
	if path := strings.TrimSpace(cmd.String("config")); path != "" {
		opts = append(opts, ingress.WithConfigFile(path))
	}
	return opts, base, nil
}
