package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/inbound"
)

// Router is satisfied by *inbound.Router.
type Router interface {
	Route(ctx context.Context, raw inbound.RawRequest) core.Response
}

type IngestWebhookCommand struct {
	router Router
}

func NewIngestWebhookCommand(router Router) *IngestWebhookCommand {
	return &IngestWebhookCommand{router: router}
}

// Execute routes the request and stores the core.Response in the result
// collector carried by ctx. Routing never fails; handler failures are part
// of the response.
func (c *IngestWebhookCommand) Execute(ctx context.Context, msg IngestWebhookMessage) error {
	if c == nil || c.router == nil {
		return commandDependencyError("command: webhook router is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	storeResult(ctx, c.router.Route(ctx, msg.Request))
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
