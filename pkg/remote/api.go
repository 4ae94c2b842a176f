// Package remote drives the commit/ref/tree protocol of a Git-hosting REST API.
package remote

import (
	"context"
	"time"

	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/tree"
)

// Commit is a remote commit object.
type Commit struct {
	SHA     string
	TreeSHA string
	Date    time.Time
	Parents []string
	Message string
}

// Content is a single file returned by a content read. Content holds the
// transport-encoded payload (see Encoding).
type Content struct {
	Name     string
	Path     string
	SHA      string
	Size     int64
	Encoding string
	Content  string
}

// API is the Git-hosting REST surface consumed by the protocol.
// Implementations return errors wrapping the core sentinels: not-found
// answers must wrap core.ErrRemoteNotFound.
type API interface {
	// GetRef resolves a ref such as "heads/main" to a commit sha.
	GetRef(ctx context.Context, ref string) (string, error)

	// CreateRef creates a ref pointing at sha.
	CreateRef(ctx context.Context, ref, sha string) error

	// UpdateRef moves a ref to sha. Without force, a non-fast-forward move
	// fails with core.ErrRemoteConflict.
	UpdateRef(ctx context.Context, ref, sha string, force bool) error

	// GetCommit reads the commit a ref (branch name or sha) points at.
	GetCommit(ctx context.Context, ref string) (Commit, error)

	// GetContent reads a single file at ref.
	GetContent(ctx context.Context, path, ref string) (Content, error)

	// ListDir lists a directory at ref.
	ListDir(ctx context.Context, path, ref string) ([]core.RemoteEntry, error)

	// CreateTree creates a tree on top of baseTree (empty for none) and returns its sha.
	CreateTree(ctx context.Context, baseTree string, items []tree.Item) (string, error)

	// CreateCommit creates a commit object.
	CreateCommit(ctx context.Context, message, treeSHA string, parents []string) (Commit, error)
}
