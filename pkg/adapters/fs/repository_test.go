package fs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/furrow/pkg/adapters/fs"
	"github.com/aretw0/furrow/pkg/core"
)

// setupRepo creates and initializes a store rooted in a temp dir.
func setupRepo(t *testing.T, opts ...func(*fs.Config)) (*fs.Repository, string) {
	t.Helper()

	root := filepath.Join(t.TempDir(), "store")
	cfg := fs.Config{Path: root}
	for _, opt := range opts {
		opt(&cfg)
	}

	repo, err := fs.NewRepository(cfg)
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}
	if err := repo.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo, root
}

func testDoc(id, spaceID, content string) core.Document {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return core.Document{ID: id, SpaceID: spaceID, Title: strings.ToUpper(id), Content: content, CreatedAt: ts, UpdatedAt: ts}
}

func TestInitialize(t *testing.T) {
	t.Run("Creates Layout", func(t *testing.T) {
		_, root := setupRepo(t)
		for _, dir := range []string{"spaces", "docs", ".furrow"} {
			if info, err := os.Stat(filepath.Join(root, dir)); err != nil || !info.IsDir() {
				t.Errorf("expected directory %s", dir)
			}
		}
		ignore, err := os.ReadFile(filepath.Join(root, ".gitignore"))
		if err != nil || !strings.Contains(string(ignore), ".furrow/") {
			t.Errorf("expected .furrow/ in .gitignore, got %q (%v)", ignore, err)
		}
	})

	t.Run("Fails if MustExist and Missing", func(t *testing.T) {
		repo, err := fs.NewRepository(fs.Config{Path: filepath.Join(t.TempDir(), "missing"), MustExist: true})
		if err != nil {
			t.Fatal(err)
		}
		if err := repo.Initialize(context.Background()); err == nil {
			t.Error("expected error for missing path")
		}
	})

	t.Run("Rejects Unknown Format", func(t *testing.T) {
		if _, err := fs.NewRepository(fs.Config{Path: t.TempDir(), Format: "toml"}); err == nil {
			t.Error("expected error for unknown format")
		}
	})

	t.Run("Ignore Entry Written Once", func(t *testing.T) {
		repo, root := setupRepo(t)
		if err := repo.Initialize(context.Background()); err != nil {
			t.Fatal(err)
		}
		ignore, _ := os.ReadFile(filepath.Join(root, ".gitignore"))
		if n := strings.Count(string(ignore), ".furrow/"); n != 1 {
			t.Errorf("expected one ignore entry, got %d", n)
		}
	})
}

func TestDocuments(t *testing.T) {
	for _, format := range []string{"json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			ctx := context.Background()
			repo, _ := setupRepo(t, func(c *fs.Config) { c.Format = format })

			if err := repo.CreateDocument(ctx, testDoc("b", "s1", `{"n":2}`)); err != nil {
				t.Fatalf("CreateDocument failed: %v", err)
			}
			if err := repo.CreateDocument(ctx, testDoc("a", "s1", `{"n":1}`)); err != nil {
				t.Fatalf("CreateDocument failed: %v", err)
			}
			if err := repo.CreateDocument(ctx, testDoc("c", "s2", `{}`)); err != nil {
				t.Fatalf("CreateDocument failed: %v", err)
			}
			if err := repo.CreateDocument(ctx, testDoc("a", "s1", `{}`)); err == nil {
				t.Error("expected duplicate create to fail")
			}

			got, err := repo.GetDocument(ctx, "a")
			if err != nil {
				t.Fatalf("GetDocument failed: %v", err)
			}
			want := testDoc("a", "s1", `{"n":1}`)
			if got.Content != want.Content || got.Title != want.Title || !got.UpdatedAt.Equal(want.UpdatedAt) {
				t.Errorf("round trip mismatch: %+v", got)
			}

			docs, err := repo.ListDocumentsBySpace(ctx, "s1")
			if err != nil {
				t.Fatalf("ListDocumentsBySpace failed: %v", err)
			}
			if len(docs) != 2 || docs[0].ID != "a" || docs[1].ID != "b" {
				t.Errorf("expected [a b], got %+v", docs)
			}

			byIDs, err := repo.ListDocumentsByIDs(ctx, []string{"c", "missing", "a"})
			if err != nil {
				t.Fatalf("ListDocumentsByIDs failed: %v", err)
			}
			if len(byIDs) != 2 || byIDs[0].ID != "a" || byIDs[1].ID != "c" {
				t.Errorf("expected [a c], got %+v", byIDs)
			}

			content := `{"n":10}`
			if err := repo.UpdateDocument(ctx, "a", core.DocumentFields{Content: &content}); err != nil {
				t.Fatalf("UpdateDocument failed: %v", err)
			}
			got, _ = repo.GetDocument(ctx, "a")
			if got.Content != content || got.Title != "A" {
				t.Errorf("partial update lost fields: %+v", got)
			}

			if err := repo.DeleteDocument(ctx, "b"); err != nil {
				t.Fatalf("DeleteDocument failed: %v", err)
			}
			if _, err := repo.GetDocument(ctx, "b"); !errors.Is(err, core.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			if err := repo.DeleteDocument(ctx, "b"); !errors.Is(err, core.ErrNotFound) {
				t.Errorf("expected ErrNotFound on second delete, got %v", err)
			}
		})
	}
}

func TestDocuments_InvalidIDs(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepo(t)

	for _, id := range []string{"", "..", "a/b", `a\b`, fs.TempFilePrefix + "x"} {
		if err := repo.CreateDocument(ctx, testDoc(id, "s1", "{}")); err == nil {
			t.Errorf("expected CreateDocument(%q) to fail", id)
		}
	}
}

func TestListDocumentsBySpace_UsesIndex(t *testing.T) {
	ctx := context.Background()
	repo, root := setupRepo(t)

	if err := repo.CreateDocument(ctx, testDoc("a", "s1", "{}")); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateDocument(ctx, testDoc("b", "s2", "{}")); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.ListDocumentsBySpace(ctx, "s1"); err != nil {
		t.Fatal(err)
	}

	index, err := os.ReadFile(filepath.Join(root, ".furrow", "index.json"))
	if err != nil {
		t.Fatalf("index not persisted: %v", err)
	}
	if !strings.Contains(string(index), `"spaceId": "s2"`) {
		t.Errorf("index should record foreign spaces, got %s", index)
	}

	// A file removed behind the store's back is pruned from the index.
	if err := os.Remove(filepath.Join(root, "docs", "b.json")); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.ListDocumentsBySpace(ctx, "s2"); err != nil {
		t.Fatal(err)
	}
	state := repo.State().(fs.RepositoryState)
	if state.IndexSize != 1 {
		t.Errorf("expected index size 1, got %d", state.IndexSize)
	}
	if state.LastScan == nil {
		t.Error("expected LastScan to be recorded")
	}
}

func TestListDocumentsBySpace_SkipsUnparseable(t *testing.T) {
	ctx := context.Background()
	repo, root := setupRepo(t)

	if err := repo.CreateDocument(ctx, testDoc("a", "s1", "{}")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "docs", "broken.json"), []byte("{oops"), 0644); err != nil {
		t.Fatal(err)
	}

	docs, err := repo.ListDocumentsBySpace(ctx, "s1")
	if err != nil {
		t.Fatalf("ListDocumentsBySpace failed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "a" {
		t.Errorf("expected only a, got %+v", docs)
	}
}

func TestSpaces(t *testing.T) {
	ctx := context.Background()
	repo, root := setupRepo(t)

	space := core.Space{
		ID:       "s1",
		Name:     "Notes",
		Settings: core.Settings{RepoOwner: "acme", RepoName: "notes", Token: "secret"},
	}
	if err := repo.CreateSpace(ctx, space); err != nil {
		t.Fatalf("CreateSpace failed: %v", err)
	}
	if err := repo.CreateSpace(ctx, space); err == nil {
		t.Error("expected duplicate CreateSpace to fail")
	}

	info, err := os.Stat(filepath.Join(root, "spaces", "s1.json"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0077 != 0 {
		t.Errorf("space record should be private, got %v", info.Mode().Perm())
	}

	snap := core.NewSnapshot(map[string]string{"a": "v1"})
	commit := core.CommitRecord{
		SHA:  "abc",
		Date: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Tree: []core.RemoteEntry{{Name: "a.json", Path: "docs/a.json", SHA: "b1", Size: 10, Type: "file"}},
	}
	if err := repo.UpdateSpace(ctx, "s1", core.SpaceUpdate{
		Snapshot: &snap,
		Commit:   &commit,
		Changes:  map[string]core.ChangeType{"a": core.ChangeUpdate},
	}); err != nil {
		t.Fatalf("UpdateSpace failed: %v", err)
	}

	got, err := repo.GetSpace(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSpace failed: %v", err)
	}
	if got.Settings.Token != "secret" || got.Name != "Notes" {
		t.Errorf("settings lost: %+v", got)
	}
	if got.Commit.SHA != "abc" || len(got.Commit.Tree) != 1 || got.Commit.Tree[0].Path != "docs/a.json" {
		t.Errorf("commit lost: %+v", got.Commit)
	}
	if got.Snapshot.Versions()["a"] != "v1" {
		t.Errorf("snapshot lost: %+v", got.Snapshot)
	}
	if got.Changes["a"] != core.ChangeUpdate {
		t.Errorf("changes lost: %+v", got.Changes)
	}

	if err := repo.UpdateSpace(ctx, "s1", core.SpaceUpdate{ClearChanges: true}); err != nil {
		t.Fatal(err)
	}
	got, _ = repo.GetSpace(ctx, "s1")
	if len(got.Changes) != 0 {
		t.Errorf("expected changes cleared, got %+v", got.Changes)
	}

	if _, err := repo.GetSpace(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := repo.UpdateSpace(ctx, "nope", core.SpaceUpdate{}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := repo.CreateSpace(ctx, core.Space{ID: "s0", Name: "First"}); err != nil {
		t.Fatal(err)
	}
	spaces, err := repo.ListSpaces(ctx)
	if err != nil {
		t.Fatalf("ListSpaces failed: %v", err)
	}
	if len(spaces) != 2 || spaces[0].ID != "s0" || spaces[1].ID != "s1" {
		t.Errorf("expected [s0 s1], got %+v", spaces)
	}
}

func TestStrictMode(t *testing.T) {
	ctx := context.Background()
	repo, root := setupRepo(t, func(c *fs.Config) { c.Strict = true })

	raw := `{"id":"a","spaceId":"s1","content":"{}","extra":true}`
	if err := os.WriteFile(filepath.Join(root, "docs", "a.json"), []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetDocument(ctx, "a"); err == nil {
		t.Error("strict store should reject unknown fields")
	}

	lenient, err := fs.NewRepository(fs.Config{Path: root})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lenient.GetDocument(ctx, "a"); err != nil {
		t.Errorf("lenient store should accept unknown fields: %v", err)
	}
}

func TestLockDir(t *testing.T) {
	repo, root := setupRepo(t)
	if got, want := repo.LockDir(), filepath.Join(root, ".furrow", "locks"); got != want {
		t.Errorf("LockDir = %s, want %s", got, want)
	}
}
