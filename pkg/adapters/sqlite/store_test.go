package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/furrow/pkg/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var ts = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func doc(id, spaceID string) core.Document {
	return core.Document{ID: id, SpaceID: spaceID, Title: "T " + id, Content: `{"id":"` + id + `"}`, CreatedAt: ts, UpdatedAt: ts}
}

func TestInitializeIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
}

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, d := range []core.Document{doc("b", "s1"), doc("a", "s1"), doc("c", "s2")} {
		if err := s.CreateDocument(ctx, d); err != nil {
			t.Fatalf("create %s: %v", d.ID, err)
		}
	}
	if err := s.CreateDocument(ctx, doc("a", "s1")); err == nil {
		t.Error("duplicate create should fail")
	}

	got, err := s.GetDocument(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "T a" || got.Content != `{"id":"a"}` || !got.CreatedAt.Equal(ts) {
		t.Errorf("round trip mismatch: %+v", got)
	}

	docs, err := s.ListDocumentsBySpace(ctx, "s1")
	if err != nil {
		t.Fatalf("list by space: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "a" || docs[1].ID != "b" {
		t.Errorf("list by space = %+v, want [a b]", docs)
	}

	docs, err = s.ListDocumentsByIDs(ctx, []string{"c", "zzz", "a"})
	if err != nil {
		t.Fatalf("list by ids: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "a" || docs[1].ID != "c" {
		t.Errorf("list by ids = %+v, want [a c]", docs)
	}
	if docs, err := s.ListDocumentsByIDs(ctx, nil); err != nil || len(docs) != 0 {
		t.Errorf("empty ids = %v, %v", docs, err)
	}

	title := "renamed"
	if err := s.UpdateDocument(ctx, "a", core.DocumentFields{Title: &title}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = s.GetDocument(ctx, "a")
	if got.Title != "renamed" || got.Content != `{"id":"a"}` {
		t.Errorf("partial update = %+v", got)
	}
	if err := s.UpdateDocument(ctx, "zzz", core.DocumentFields{Title: &title}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("update missing = %v, want ErrNotFound", err)
	}

	if err := s.DeleteDocument(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetDocument(ctx, "a"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("get deleted = %v, want ErrNotFound", err)
	}
	if err := s.DeleteDocument(ctx, "a"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("delete twice = %v, want ErrNotFound", err)
	}
}

func TestSpaces(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	space := core.Space{
		ID:        "s1",
		Name:      "Notes",
		Settings:  core.Settings{RepoOwner: "acme", RepoName: "notes", Token: "secret", Branch: "sync"},
		CreatedAt: ts,
	}
	if err := s.CreateSpace(ctx, space); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetSpace(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Settings != space.Settings || got.Name != "Notes" || !got.Commit.IsZero() {
		t.Errorf("round trip mismatch: %+v", got)
	}

	snap := core.NewSnapshot(map[string]string{"a": "v1", "b": "v2"})
	commit := core.CommitRecord{SHA: "abc", Date: ts, Tree: []core.RemoteEntry{{Name: "a.json", Path: "docs/a.json", SHA: "x", Size: 3, Type: "file"}}}
	active := "a"
	if err := s.UpdateSpace(ctx, "s1", core.SpaceUpdate{
		Snapshot:    &snap,
		Commit:      &commit,
		ActiveDocID: &active,
		Changes:     map[string]core.ChangeType{"b": core.ChangeDelete},
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ = s.GetSpace(ctx, "s1")
	if len(got.Snapshot.Entries) != 2 || got.Snapshot.Entries[0].ID != "a" {
		t.Errorf("snapshot = %+v", got.Snapshot)
	}
	if got.Commit.SHA != "abc" || !got.Commit.Date.Equal(ts) || len(got.Commit.Tree) != 1 {
		t.Errorf("commit = %+v", got.Commit)
	}
	if got.ActiveDocID != "a" || got.Changes["b"] != core.ChangeDelete {
		t.Errorf("space = %+v", got)
	}

	if err := s.UpdateSpace(ctx, "s1", core.SpaceUpdate{ClearChanges: true}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetSpace(ctx, "s1")
	if len(got.Changes) != 0 {
		t.Errorf("changes not cleared: %+v", got.Changes)
	}

	if _, err := s.GetSpace(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("get missing = %v", err)
	}
	if err := s.UpdateSpace(ctx, "nope", core.SpaceUpdate{}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("update missing = %v", err)
	}

	if err := s.CreateSpace(ctx, core.Space{ID: "s0"}); err != nil {
		t.Fatal(err)
	}
	spaces, err := s.ListSpaces(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(spaces) != 2 || spaces[0].ID != "s0" {
		t.Errorf("list = %+v", spaces)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "furrow.db")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateDocument(ctx, doc("a", "s1")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetDocument(ctx, "a"); err != nil {
		t.Errorf("document lost across reopen: %v", err)
	}
}

func TestState(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.ListSpaces(context.Background()); err != nil {
		t.Fatalf("list spaces: %v", err)
	}

	state, ok := s.State().(StoreState)
	if !ok {
		t.Fatalf("State() = %T, want StoreState", s.State())
	}
	if state.DSN != ":memory:" {
		t.Errorf("DSN = %q, want :memory:", state.DSN)
	}
	if state.OpenConnections != 1 {
		t.Errorf("OpenConnections = %d, want 1", state.OpenConnections)
	}
	if s.ComponentType() != "local-store" {
		t.Errorf("ComponentType() = %q", s.ComponentType())
	}
}
