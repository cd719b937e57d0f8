package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	ingress "github.com/goliatone/go-ingress"
	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/inbound"
	"github.com/urfave/cli/v3"
)

// capturedRequest is the on-disk fixture format: a RawRequest whose body is
// kept as a string so captures stay readable.
type capturedRequest struct {
	Method       string            `json:"method"`
	Path         string            `json:"path"`
	Headers      map[string]string `json:"headers"`
	Query        map[string]string `json:"query,omitempty"`
	Body         string            `json:"body"`
	ProviderHint string            `json:"provider_hint,omitempty"`
}

type replayOutput struct {
	StatusCode int            `json:"status_code"`
	Raw        bool           `json:"raw,omitempty"`
	Body       any            `json:"body"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func replayCommand() *cli.Command {
	flags := append(commonFlags(),
		&cli.StringFlag{
			Name:     "provider-file",
			Aliases:  []string{"f"},
			Usage:    "captured request fixture (JSON)",
			Required: true,
		},
	)
	return &cli.Command{
		Name:   "replay",
		Usage:  "run a captured delivery through the command bus and print the response",
		Flags:  flags,
		Action: runReplay,
	}
}

func runReplay(ctx context.Context, cmd *cli.Command) error {
	raw, err := loadCapturedRequest(cmd.String("provider-file"))
	if err != nil {
		return err
	}
	opts, logger, err := engineOptions(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	engine, err := ingress.Build(ctx, runtimeConfig(cmd), opts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	resp, err := engine.Bus().Ingest(ctx, raw)
	if err != nil {
		return err
	}
	return writeReplay(output(cmd), resp)
}

func loadCapturedRequest(path string) (inbound.RawRequest, error) {
	data, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return inbound.RawRequest{}, fmt.Errorf("webhookd: read fixture: %w", err)
	}
	return decodeCapturedRequest(data)
}

func decodeCapturedRequest(data []byte) (inbound.RawRequest, error) {
	var captured capturedRequest
	if err := json.Unmarshal(data, &captured); err != nil {
		return inbound.RawRequest{}, fmt.Errorf("webhookd: decode fixture: %w", err)
	}
	headers := make(map[string]string, len(captured.Headers))
	for key, value := range captured.Headers {
		headers[strings.ToLower(strings.TrimSpace(key))] = value
	}
	method := strings.ToUpper(strings.TrimSpace(captured.Method))
	if method == "" {
		method = http.MethodPost
	}
	path := captured.Path
	if strings.TrimSpace(path) == "" {
		path = "/webhooks"
	}
	return inbound.RawRequest{
		Method:       method,
		Path:         path,
		Headers:      headers,
		Query:        captured.Query,
		Body:         []byte(captured.Body),
		ProviderHint: captured.ProviderHint,
	}, nil
}

func writeReplay(w io.Writer, resp core.Response) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(replayOutput{
		StatusCode: resp.StatusCode,
		Raw:        resp.Raw,
		Body:       resp.Body,
		Metadata:   resp.Metadata,
	})
}

func output(cmd *cli.Command) io.Writer {
	if cmd != nil && cmd.Writer != nil {
		return cmd.Writer
	}
	return os.Stdout
}
