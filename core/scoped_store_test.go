package core

import (
	"context"
	"testing"
)

func TestScopedEntityStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backing := newMemoryEntityStore()
	scoped := NewScopedEntityStore(backing, " acme ", "Issues")

	id, err := scoped.UpsertByEntityID(ctx, "ISS-9", map[string]any{"title": "x"})
	if err != nil || id == "" {
		t.Fatalf("upsert: id=%q err=%v", id, err)
	}
	if _, ok := backing.entries[EntityKey{TenantID: "acme", Collection: "issues", ExternalID: "ISS-9"}]; !ok {
		t.Fatalf("expected normalized key in backing store, got %#v", backing.entries)
	}

	found, ok, err := scoped.FindByEntityID(ctx, "ISS-9")
	if err != nil || !ok || found.Fields["title"] != "x" {
		t.Fatalf("find: %#v ok=%v err=%v", found, ok, err)
	}
	if err := scoped.DeleteByEntityID(ctx, "ISS-9"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := scoped.FindByEntityID(ctx, "ISS-9"); ok {
		t.Fatalf("expected entity removed")
	}
}

func TestScopedEntityStore_RejectsBlankExternalID(t *testing.T) {
	scoped := NewScopedEntityStore(newMemoryEntityStore(), "acme", "issues")
	if _, err := scoped.UpsertByEntityID(context.Background(), "  ", nil); err == nil {
		t.Fatalf("expected blank external id to fail")
	}
	if _, err := NewScopedEntityStore(nil, "acme", "issues").UpsertByEntityID(context.Background(), "a", nil); err == nil {
		t.Fatalf("expected missing backing store to fail")
	}
}

func TestHandlerInput_ScopedUsesTenant(t *testing.T) {
	in := HandlerInput{TenantID: "globex", Store: newMemoryEntityStore()}
	scoped := in.Scoped("Records")
	if scoped.TenantID() != "globex" || scoped.Collection() != "records" {
		t.Fatalf("unexpected scope %q/%q", scoped.TenantID(), scoped.Collection())
	}
}
