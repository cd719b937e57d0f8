package query

import (
	"context"
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/store/memory"
)

func seededStore(t *testing.T) *memory.EntityStore {
	t.Helper()
	store := memory.NewEntityStore()
	for _, id := range []string{"ENG-1", "ENG-2"} {
		key := core.EntityKey{TenantID: "acme", Collection: "issues", ExternalID: id}
		if _, err := store.Upsert(context.Background(), key, map[string]any{"title": id}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	return store
}

func TestFindEntityQuery_ReturnsStoredEntity(t *testing.T) {
	q := NewFindEntityQuery(seededStore(t))
	entity, err := q.Query(context.Background(), FindEntityMessage{TenantID: "acme", Collection: "Issues", ExternalID: "ENG-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if entity.ID == "" || entity.Fields["title"] != "ENG-1" {
		t.Fatalf("unexpected entity %#v", entity)
	}
}

func TestFindEntityQuery_MissIsNotFound(t *testing.T) {
	q := NewFindEntityQuery(seededStore(t))
	_, err := q.Query(context.Background(), FindEntityMessage{TenantID: "globex", Collection: "issues", ExternalID: "ENG-1"})

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryNotFound || rich.TextCode != core.ErrorNotFound {
		t.Fatalf("unexpected envelope %q %q", rich.Category, rich.TextCode)
	}
	if rich.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rich.Code)
	}
}

func TestFindEntityMessage_ValidateReturnsRichError(t *testing.T) {
	err := (FindEntityMessage{TenantID: "acme"}).Validate()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	validation := rich.AllValidationErrors()
	if len(validation) == 0 || validation[0].Field != "collection" {
		t.Fatalf("expected collection validation field, got %#v", validation)
	}
}

type failingStore struct{ core.EntityStore }

func (failingStore) Find(context.Context, core.EntityKey) (core.StoredEntity, bool, error) {
	return core.StoredEntity{}, false, errors.New("database is locked")
}

func TestFindEntityQuery_StoreErrorsAreMapped(t *testing.T) {
	_, err := NewFindEntityQuery(failingStore{}).Query(context.Background(), FindEntityMessage{TenantID: "acme", Collection: "issues", ExternalID: "1"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Code < http.StatusInternalServerError {
		t.Fatalf("expected a server-side status, got %d", rich.Code)
	}
}

func TestListEntitiesQuery_HonoursLimit(t *testing.T) {
	q := NewListEntitiesQuery(seededStore(t))
	entities, err := q.Query(context.Background(), ListEntitiesMessage{TenantID: "acme", Collection: "issues", Limit: 1})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("expected one entity, got %d", len(entities))
	}
}

func TestQueries_NilDependenciesReturnRichError(t *testing.T) {
	var find *FindEntityQuery
	_, err := find.Query(context.Background(), FindEntityMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal dependency error, got %v", err)
	}
	if _, err := NewListEntitiesQuery(nil).Query(context.Background(), ListEntitiesMessage{}); err == nil {
		t.Fatalf("expected lister dependency error")
	}
}
