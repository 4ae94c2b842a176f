package remote_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/furrow/pkg/codec"
	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/remote"
	"github.com/aretw0/furrow/pkg/remote/remotetest"
	"github.com/aretw0/furrow/pkg/tree"
)

func encodedDoc(t *testing.T, id, content string) string {
	t.Helper()
	data, err := codec.EncodeDocument(core.Document{ID: id, SpaceID: "s", Content: content})
	require.NoError(t, err)
	return string(data)
}

func TestReadBaseRef_EmptyBranch(t *testing.T) {
	p := remote.NewProtocol(remotetest.New(), "")
	assert.Equal(t, core.DefaultBranch, p.Branch())

	head, err := p.ReadBaseRef(context.Background())
	require.NoError(t, err)
	assert.False(t, head.Exists())

	_, err = p.ReadManifest(context.Background(), head)
	assert.ErrorIs(t, err, core.ErrRemoteNotFound)
}

func TestReadBaseRef_Existing(t *testing.T) {
	api := remotetest.New()
	sha := api.Seed("main", map[string]string{"README.md": "hi"})

	head, err := remote.NewProtocol(api, "main").ReadBaseRef(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sha, head.SHA)
	assert.NotEmpty(t, head.TreeSHA)
}

func TestReadBaseRef_OtherErrorsAreFatal(t *testing.T) {
	api := remotetest.New()
	api.FailOn("GetRef", core.ErrRemoteAuth)

	_, err := remote.NewProtocol(api, "main").ReadBaseRef(context.Background())
	assert.ErrorIs(t, err, core.ErrRemoteAuth)
}

func TestReadManifest(t *testing.T) {
	api := remotetest.New()
	data, err := codec.EncodeSpace(core.Space{ID: "s", Name: "notes"})
	require.NoError(t, err)
	api.Seed("main", map[string]string{core.ManifestPath: string(data)})

	p := remote.NewProtocol(api, "main")
	head, err := p.ReadBaseRef(context.Background())
	require.NoError(t, err)

	space, err := p.ReadManifest(context.Background(), head)
	require.NoError(t, err)
	assert.Equal(t, "notes", space.Name)
}

func TestReadManifest_MissingFileRoutesToBootstrap(t *testing.T) {
	api := remotetest.New()
	api.Seed("main", map[string]string{"README.md": "hi"})

	p := remote.NewProtocol(api, "main")
	head, err := p.ReadBaseRef(context.Background())
	require.NoError(t, err)

	_, err = p.ReadManifest(context.Background(), head)
	assert.ErrorIs(t, err, core.ErrRemoteNotFound)
}

func TestCommit_CreatesBranchWithoutParent(t *testing.T) {
	api := remotetest.New()
	p := remote.NewProtocol(api, "main")

	commit, err := p.Commit(context.Background(), remote.Head{}, []tree.Item{tree.Blob("docs/a.json", []byte("{}"))})
	require.NoError(t, err)
	assert.Empty(t, commit.Parents)
	assert.Equal(t, remote.CommitMessage, commit.Message)
	assert.Equal(t, commit.SHA, api.Head("main"))
	assert.Equal(t, 1, api.Calls("CreateRef"))
	assert.Equal(t, 0, api.Calls("UpdateRef"))
}

func TestCommit_FastForward(t *testing.T) {
	api := remotetest.New()
	api.Seed("main", map[string]string{"docs/old.json": "{}"})
	p := remote.NewProtocol(api, "main")

	head, err := p.ReadBaseRef(context.Background())
	require.NoError(t, err)

	commit, err := p.Commit(context.Background(), head, []tree.Item{
		tree.Deletion("docs/old.json"),
		tree.Blob("docs/new.json", []byte("{}")),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{head.SHA}, commit.Parents)
	assert.Equal(t, []string{"docs/new.json"}, api.Paths("main"))
}

func TestCommit_ConflictIsSurfaced(t *testing.T) {
	api := remotetest.New()
	api.Seed("main", map[string]string{"a": "1"})
	p := remote.NewProtocol(api, "main")

	stale, err := p.ReadBaseRef(context.Background())
	require.NoError(t, err)

	// Another writer moves the branch.
	moved := api.Seed("main", map[string]string{"b": "2"})

	_, err = p.Commit(context.Background(), stale, []tree.Item{tree.Blob("c", []byte("3"))})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRemoteConflict)
	assert.Equal(t, moved, api.Head("main"), "rejected update must leave the branch alone")
}

func TestCommit_ForceOverwrites(t *testing.T) {
	api := remotetest.New()
	api.Seed("main", map[string]string{"a": "1"})
	p := remote.NewProtocol(api, "main", remote.WithForceUpdate(true))

	stale, err := p.ReadBaseRef(context.Background())
	require.NoError(t, err)
	api.Seed("main", map[string]string{"b": "2"})

	commit, err := p.Commit(context.Background(), stale, []tree.Item{tree.Blob("c", []byte("3"))})
	require.NoError(t, err)
	assert.Equal(t, commit.SHA, api.Head("main"))
}

func TestFetchDocTree(t *testing.T) {
	api := remotetest.New()
	p := remote.NewProtocol(api, "main")

	// No branch yet.
	entries, err := p.FetchDocTree(context.Background(), "main")
	require.NoError(t, err)
	assert.Empty(t, entries)

	api.Seed("main", map[string]string{
		"docs/a.json":     encodedDoc(t, "a", `{"v":1}`),
		"docs/b.json":     encodedDoc(t, "b", `{"v":2}`),
		core.ManifestPath: "{}",
	})
	entries, err = p.FetchDocTree(context.Background(), "main")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "docs/a.json", entries[0].Path)
	assert.Equal(t, "a.json", entries[0].Name)
	assert.NotEmpty(t, entries[0].SHA)
}

func TestFetchDocument(t *testing.T) {
	api := remotetest.New()
	api.Seed("main", map[string]string{
		"docs/a.json": encodedDoc(t, "a", `{"v":1}`),
		"docs/b.json": encodedDoc(t, "b", `{}`),
		"docs/c.json": "not json",
	})
	api.Corrupt("docs/b.json", "%%%")
	p := remote.NewProtocol(api, "main")

	doc, err := p.FetchDocument(context.Background(), core.RemoteEntry{Path: "docs/a.json"}, "main")
	require.NoError(t, err)
	assert.Equal(t, "a", doc.ID)
	assert.Equal(t, `{"v":1}`, doc.Content)

	_, err = p.FetchDocument(context.Background(), core.RemoteEntry{Path: "docs/b.json"}, "main")
	assert.ErrorIs(t, err, core.ErrTransportDecode)

	_, err = p.FetchDocument(context.Background(), core.RemoteEntry{Path: "docs/c.json"}, "main")
	assert.ErrorIs(t, err, core.ErrMalformedRemoteContent)
}

func TestHeadCommit(t *testing.T) {
	api := remotetest.New()
	p := remote.NewProtocol(api, "main")

	_, err := p.HeadCommit(context.Background())
	assert.True(t, errors.Is(err, core.ErrRemoteNotFound))

	sha := api.Seed("main", map[string]string{"a": "1"})
	commit, err := p.HeadCommit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sha, commit.SHA)
	assert.False(t, commit.Date.IsZero())
}
