package query

import (
	"context"

	"github.com/goliatone/go-ingress/core"
)

type FindEntityQuery struct {
	store core.EntityStore
}

func NewFindEntityQuery(store core.EntityStore) *FindEntityQuery {
	return &FindEntityQuery{store: store}
}

func (q *FindEntityQuery) Query(ctx context.Context, msg FindEntityMessage) (core.StoredEntity, error) {
	if q == nil || q.store == nil {
		return core.StoredEntity{}, queryDependencyError("query: entity store is required")
	}
	if err := msg.Validate(); err != nil {
		return core.StoredEntity{}, err
	}
	key := msg.Key()
	entity, ok, err := q.store.Find(ctx, key)
	if err != nil {
		return core.StoredEntity{}, core.MapError(err)
	}
	if !ok {
		return core.StoredEntity{}, queryNotFoundError(key)
	}
	return entity, nil
}

type ListEntitiesQuery struct {
	lister core.EntityLister
}

func NewListEntitiesQuery(lister core.EntityLister) *ListEntitiesQuery {
	return &ListEntitiesQuery{lister: lister}
}

func (q *ListEntitiesQuery) Query(ctx context.Context, msg ListEntitiesMessage) ([]core.StoredEntity, error) {
	if q == nil || q.lister == nil {
		return nil, queryDependencyError("query: entity lister is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	entities, err := q.lister.List(ctx, msg.TenantID, msg.Collection, msg.Limit)
	if err != nil {
		return nil, core.MapError(err)
	}
	return entities, nil
}
