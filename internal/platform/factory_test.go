package platform_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/furrow/internal/platform"
	"github.com/aretw0/furrow/pkg/adapters/github"
	"github.com/aretw0/furrow/pkg/adapters/memory"
	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/remote/remotetest"
)

func TestOpenStore_Adapters(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		uri  func(t *testing.T) string
		opts []platform.Option
	}{
		{"fs", func(t *testing.T) string { return t.TempDir() }, nil},
		{"fs yaml", func(t *testing.T) string { return t.TempDir() }, []platform.Option{platform.WithFormat("yaml")}},
		{"sqlite dir", func(t *testing.T) string { return t.TempDir() }, []platform.Option{platform.WithAdapter("sqlite")}},
		{"sqlite memory", func(*testing.T) string { return ":memory:" }, []platform.Option{platform.WithAdapter("sqlite")}},
		{"injected", func(*testing.T) string { return "" }, []platform.Option{platform.WithStore(memory.New())}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, err := platform.New(ctx, tt.uri(t), tt.opts...)
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })

			require.NoError(t, store.CreateSpace(ctx, core.Space{ID: "s1", Name: "Notes"}))
			require.NoError(t, svc.SaveDocument(ctx, "s1", "a", "A", `{"v":1}`))

			doc, err := svc.GetDocument(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "A", doc.Title)
		})
	}
}

func TestOpenStore_SQLiteDirectoryUsesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	store, err := platform.OpenStore(context.Background(), dir, platform.WithAdapter("sqlite"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	assert.FileExists(t, filepath.Join(dir, platform.SQLiteFile))
}

func TestOpenStore_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := platform.OpenStore(ctx, t.TempDir(), platform.WithAdapter("bolt"))
	assert.ErrorContains(t, err, "unknown adapter")

	missing := filepath.Join(t.TempDir(), "missing")
	_, err = platform.OpenStore(ctx, missing, platform.WithMustExist(true))
	assert.Error(t, err)

	_, err = platform.OpenStore(ctx, missing, platform.WithAdapter("sqlite"), platform.WithMustExist(true))
	assert.Error(t, err)
}

func TestNewEngine_InjectedRemote(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := remotetest.New()
	require.NoError(t, store.CreateSpace(ctx, core.Space{ID: "s1"}))
	require.NoError(t, core.NewService(store).SaveDocument(ctx, "s1", "a", "A", `{"v":1}`))

	e, err := platform.NewEngine(ctx, store, "s1", platform.WithRemote(api))
	require.NoError(t, err)
	assert.Equal(t, "s1", e.SpaceID())

	res, err := e.Push(ctx)
	require.NoError(t, err)
	assert.False(t, res.NoOp)

	_, ok := api.File("main", "docs/a.json")
	assert.True(t, ok)
}

func TestNewEngine_RequiresRepository(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateSpace(ctx, core.Space{ID: "s1"}))

	_, err := platform.NewEngine(ctx, store, "s1")
	assert.ErrorContains(t, err, "no remote repository")

	_, err = platform.NewEngine(ctx, store, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestNewEngine_TokenOverride(t *testing.T) {
	var (
		mu   sync.Mutex
		auth []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateSpace(ctx, core.Space{
		ID:       "s1",
		Settings: core.Settings{RepoOwner: "octo", RepoName: "notes", Token: "stored"},
	}))

	e, err := platform.NewEngine(ctx, store, "s1",
		platform.WithToken("from-env"),
		platform.WithRemoteOptions(github.WithBaseURL(srv.URL), github.WithRetries(0)),
	)
	require.NoError(t, err)

	due, err := e.IsPullDue(ctx)
	require.NoError(t, err)
	assert.False(t, due)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, auth)
	assert.Equal(t, "Bearer from-env", auth[0])

	space, err := store.GetSpace(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "stored", space.Settings.Token)
}
