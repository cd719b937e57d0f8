package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ingress "github.com/goliatone/go-ingress"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 15 * time.Second

func serveCommand() *cli.Command {
	flags := append(commonFlags(),
		&cli.StringFlag{
			Sources: cli.EnvVars("INGRESS_ADDR"),
			Name:    "addr",
			Aliases: []string{"a"},
			Usage:   "HTTP listen address",
		},
		&cli.StringFlag{
			Sources: cli.EnvVars("INGRESS_NATS_URL"),
			Name:    "nats-url",
			Usage:   "forward events to this NATS server",
		},
		&cli.StringFlag{
			Sources: cli.EnvVars("INGRESS_CLOUDEVENTS_TARGET"),
			Name:    "cloudevents-target",
			Usage:   "forward events as CloudEvents to this URL",
		},
	)
	return &cli.Command{
		Name:   "serve",
		Usage:  "accept webhook deliveries over HTTP",
		Flags:  flags,
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	opts, logger, err := engineOptions(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := ingress.Build(ctx, runtimeConfig(cmd), opts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	server := &http.Server{
		Addr:              engine.Config().HTTP.Addr,
		Handler:           engine.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Sugar().Infow("webhookd listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Sugar().Infow("webhookd shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
