package gocommand

import (
	"context"
	"fmt"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	ingresscommand "github.com/goliatone/go-ingress/command"
	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/inbound"
	"github.com/goliatone/go-ingress/query"
)

// Bus registers the ingest command and entity queries on one registry and
// subscribes them to the go-command dispatcher.
//
// The Bus methods call this bus's own handlers. Messages sent through the
// process-wide dispatcher reach every live Bus.
type Bus struct {
	adapter       *RegistryAdapter
	subscriptions []commanddispatcher.Subscription

	ingest *ingresscommand.IngestWebhookCommand
	find   *query.FindEntityQuery
	list   *query.ListEntitiesQuery
}

func NewBus(router ingresscommand.Router, store core.EntityStore) (*Bus, error) {
	if router == nil {
		return nil, fmt.Errorf("gocommand: router is required")
	}
	bus := &Bus{
		adapter: NewRegistryAdapter(command.NewRegistry()),
		ingest:  ingresscommand.NewIngestWebhookCommand(router),
	}

	ingest, err := RegisterAndSubscribe(bus.adapter, bus.ingest)
	if err != nil {
		return nil, err
	}
	bus.subscriptions = append(bus.subscriptions, ingest)

	if store != nil {
		bus.find = query.NewFindEntityQuery(store)
		find, err := RegisterAndSubscribeQuery(bus.adapter, bus.find)
		if err != nil {
			bus.Close()
			return nil, err
		}
		bus.subscriptions = append(bus.subscriptions, find)
		if lister, ok := store.(core.EntityLister); ok {
			bus.list = query.NewListEntitiesQuery(lister)
			list, err := RegisterAndSubscribeQuery(bus.adapter, bus.list)
			if err != nil {
				bus.Close()
				return nil, err
			}
			bus.subscriptions = append(bus.subscriptions, list)
		}
	}

	if err := bus.adapter.Initialize(); err != nil {
		bus.Close()
		return nil, err
	}
	return bus, nil
}

func (b *Bus) Registry() *RegistryAdapter {
	return b.adapter
}

func (b *Bus) Ingest(ctx context.Context, raw inbound.RawRequest) (core.Response, error) {
	return ExecuteWithResult[ingresscommand.IngestWebhookMessage, core.Response](ctx, b.ingest, ingresscommand.IngestWebhookMessage{Request: raw})
}

func (b *Bus) FindEntity(ctx context.Context, msg query.FindEntityMessage) (core.StoredEntity, error) {
	if b.find == nil {
		return core.StoredEntity{}, fmt.Errorf("gocommand: bus has no entity store")
	}
	return QueryDirect[query.FindEntityMessage, core.StoredEntity](ctx, b.find, msg)
}

func (b *Bus) ListEntities(ctx context.Context, msg query.ListEntitiesMessage) ([]core.StoredEntity, error) {
	if b.list == nil {
		return nil, fmt.Errorf("gocommand: entity store does not support listing")
	}
	return QueryDirect[query.ListEntitiesMessage, []core.StoredEntity](ctx, b.list, msg)
}

func (b *Bus) Close() {
	if b == nil {
		return
	}
	for _, subscription := range b.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	b.subscriptions = nil
}
