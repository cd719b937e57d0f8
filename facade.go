package ingress

import (
	"fmt"

	ingresscommand "github.com/goliatone/go-ingress/command"
	"github.com/goliatone/go-ingress/core"
	ingressquery "github.com/goliatone/go-ingress/query"
)

type Commands struct {
	IngestWebhook *ingresscommand.IngestWebhookCommand
}

type Queries struct {
	FindEntity   *ingressquery.FindEntityQuery
	ListEntities *ingressquery.ListEntitiesQuery
}

// Facade exposes the command and query handlers directly, for hosts that
// wire them into their own go-command registry instead of using the Bus.
type Facade struct {
	commands Commands
	queries  Queries
}

func NewFacade(router ingresscommand.Router, store core.EntityStore) (*Facade, error) {
	if router == nil {
		return nil, fmt.Errorf("ingress: router is required")
	}
	facade := &Facade{
		commands: Commands{IngestWebhook: ingresscommand.NewIngestWebhookCommand(router)},
	}
	if store != nil {
		facade.queries.FindEntity = ingressquery.NewFindEntityQuery(store)
		if lister, ok := store.(core.EntityLister); ok {
			facade.queries.ListEntities = ingressquery.NewListEntitiesQuery(lister)
		}
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

// Facade builds the command/query handlers over the engine router and store.
func (e *Engine) Facade() (*Facade, error) {
	if e == nil {
		return nil, fmt.Errorf("ingress: engine is nil")
	}
	return NewFacade(e.router, e.store)
}
