package command

import (
	"strings"

	"github.com/goliatone/go-ingress/inbound"
)

const TypeIngestWebhook = "ingress.command.webhook.ingest"

// IngestWebhookMessage carries one captured webhook delivery.
type IngestWebhookMessage struct {
	Request inbound.RawRequest
}

func (IngestWebhookMessage) Type() string { return TypeIngestWebhook }

func (m IngestWebhookMessage) Validate() error {
	if len(m.Request.Body) == 0 && len(m.Request.Headers) == 0 {
		return commandValidationError("request", "request headers or body are required")
	}
	if method := strings.TrimSpace(m.Request.Method); method != "" && !strings.EqualFold(method, "POST") {
		return commandValidationError("request.method", "webhooks are delivered with POST")
	}
	return nil
}
