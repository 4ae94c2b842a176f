package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/furrow/pkg/adapters/memory"
	"github.com/aretw0/furrow/pkg/core"
)

func newServiceWithSpace(t *testing.T) (*core.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	if err := store.CreateSpace(context.TODO(), core.Space{ID: "s1", Name: "notes"}); err != nil {
		t.Fatalf("CreateSpace failed: %v", err)
	}
	return core.NewService(store), store
}

func TestService_CRUD(t *testing.T) {
	service, store := newServiceWithSpace(t)
	ctx := context.TODO()

	// 1. Save
	if err := service.SaveDocument(ctx, "s1", "doc1", "First", `{"text":"content1"}`); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}

	// 2. Get
	doc, err := service.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if doc.Content != `{"text":"content1"}` {
		t.Errorf("unexpected content %q", doc.Content)
	}
	if doc.CreatedAt.IsZero() || !doc.CreatedAt.Equal(doc.UpdatedAt) {
		t.Errorf("expected creation timestamps to be set, got %v / %v", doc.CreatedAt, doc.UpdatedAt)
	}

	// 3. Update + List
	_ = service.SaveDocument(ctx, "s1", "doc2", "", `"content2"`)
	if err := service.SaveDocument(ctx, "s1", "doc1", "First", `{"text":"changed"}`); err != nil {
		t.Fatalf("SaveDocument (update) failed: %v", err)
	}
	docs, err := service.ListDocuments(ctx, "s1")
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("expected 2 documents, got %d", len(docs))
	}

	space, _ := store.GetSpace(ctx, "s1")
	if space.Changes["doc1"] != core.ChangeCreate {
		t.Errorf("expected doc1 to stay a creation until pushed, got %q", space.Changes["doc1"])
	}
	if space.Changes["doc2"] != core.ChangeCreate {
		t.Errorf("expected doc2 to be marked as created, got %q", space.Changes["doc2"])
	}

	// 4. Delete
	if err := service.DeleteDocument(ctx, "doc1"); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	_, err = service.GetDocument(ctx, "doc1")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound after deletion, got %v", err)
	}
	space, _ = store.GetSpace(ctx, "s1")
	if space.Changes["doc1"] != core.ChangeDelete {
		t.Errorf("expected doc1 deletion to be recorded, got %q", space.Changes["doc1"])
	}
}

func TestService_Validation(t *testing.T) {
	service, _ := newServiceWithSpace(t)
	ctx := context.TODO()

	if err := service.SaveDocument(ctx, "s1", "", "", "{}"); err == nil {
		t.Error("expected error for empty id")
	}
	if err := service.SaveDocument(ctx, "missing", "doc", "", "{}"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown space, got %v", err)
	}
}

func TestService_Watch_Unsupported(t *testing.T) {
	service, _ := newServiceWithSpace(t)

	_, err := service.Watch(context.TODO(), "*")
	if err == nil {
		t.Fatal("expected error for non-watchable store")
	}
	if err.Error() != "store does not support watching" {
		t.Errorf("unexpected error msg: %v", err)
	}
}
