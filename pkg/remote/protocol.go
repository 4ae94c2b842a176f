package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/furrow/pkg/codec"
	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/tree"
)

// CommitMessage is the fixed message of every sync commit.
const CommitMessage = "[Furrow] update docs"

// Head is the current state of the remote branch. A zero Head means the
// branch does not exist yet (empty repository).
type Head struct {
	SHA     string
	TreeSHA string
}

// Exists reports whether the branch has a commit.
func (h Head) Exists() bool {
	return h.SHA != ""
}

// Protocol runs the push and pull steps against one branch.
type Protocol struct {
	api    API
	branch string
	force  bool
	logger *slog.Logger
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithForceUpdate makes UpdateRef overwrite the branch even when the new
// commit is not a fast-forward. Off by default.
func WithForceUpdate(force bool) Option {
	return func(p *Protocol) { p.force = force }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Protocol) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProtocol creates a Protocol for branch (core.DefaultBranch when empty).
func NewProtocol(api API, branch string, opts ...Option) *Protocol {
	if branch == "" {
		branch = core.DefaultBranch
	}
	p := &Protocol{
		api:    api,
		branch: branch,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Branch returns the branch name.
func (p *Protocol) Branch() string {
	return p.branch
}

func (p *Protocol) ref() string {
	return "heads/" + p.branch
}

// ReadBaseRef resolves the branch head. A missing branch yields a zero Head.
func (p *Protocol) ReadBaseRef(ctx context.Context) (Head, error) {
	sha, err := p.api.GetRef(ctx, p.ref())
	if errors.Is(err, core.ErrRemoteNotFound) {
		p.logger.Debug("branch not found, treating remote as empty", "branch", p.branch)
		return Head{}, nil
	}
	if err != nil {
		return Head{}, fmt.Errorf("read ref %s: %w", p.branch, err)
	}

	commit, err := p.api.GetCommit(ctx, sha)
	if err != nil {
		return Head{}, fmt.Errorf("read head commit %s: %w", sha, err)
	}
	return Head{SHA: sha, TreeSHA: commit.TreeSHA}, nil
}

// ReadManifest reads and decodes the remote space manifest at head. A missing
// manifest returns an error wrapping core.ErrRemoteNotFound.
func (p *Protocol) ReadManifest(ctx context.Context, head Head) (core.Space, error) {
	if !head.Exists() {
		return core.Space{}, fmt.Errorf("read manifest: empty branch: %w", core.ErrRemoteNotFound)
	}
	content, err := p.api.GetContent(ctx, core.ManifestPath, head.SHA)
	if err != nil {
		return core.Space{}, fmt.Errorf("read manifest: %w", err)
	}
	data, err := codec.DecodeTransportBlob(content.Content)
	if err != nil {
		return core.Space{}, fmt.Errorf("read manifest: %w", err)
	}
	return codec.DecodeSpace(data)
}

// Commit creates a tree from items on top of head, commits it and moves the
// branch. A missing branch is created instead of updated.
func (p *Protocol) Commit(ctx context.Context, head Head, items []tree.Item) (Commit, error) {
	treeSHA, err := p.api.CreateTree(ctx, head.TreeSHA, items)
	if err != nil {
		return Commit{}, fmt.Errorf("create tree: %w", err)
	}

	var parents []string
	if head.Exists() {
		parents = []string{head.SHA}
	}
	commit, err := p.api.CreateCommit(ctx, CommitMessage, treeSHA, parents)
	if err != nil {
		return Commit{}, fmt.Errorf("create commit: %w", err)
	}

	if !head.Exists() {
		if err := p.api.CreateRef(ctx, "refs/"+p.ref(), commit.SHA); err != nil {
			return Commit{}, fmt.Errorf("create ref %s: %w", p.branch, err)
		}
	} else if err := p.api.UpdateRef(ctx, p.ref(), commit.SHA, p.force); err != nil {
		return Commit{}, fmt.Errorf("update ref %s: %w", p.branch, err)
	}

	p.logger.Debug("branch moved", "branch", p.branch, "sha", commit.SHA, "tree", treeSHA, "entries", len(items))
	return commit, nil
}

// HeadCommit returns the sha and author date of the branch head.
func (p *Protocol) HeadCommit(ctx context.Context) (Commit, error) {
	commit, err := p.api.GetCommit(ctx, p.branch)
	if err != nil {
		return Commit{}, fmt.Errorf("read head commit: %w", err)
	}
	return commit, nil
}

// FetchDocTree lists the remote docs directory at ref. A missing directory is
// an empty tree.
func (p *Protocol) FetchDocTree(ctx context.Context, ref string) ([]core.RemoteEntry, error) {
	entries, err := p.api.ListDir(ctx, core.DocsDir, ref)
	if errors.Is(err, core.ErrRemoteNotFound) {
		return []core.RemoteEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", core.DocsDir, err)
	}
	files := entries[:0]
	for _, e := range entries {
		if e.Type == "" || e.Type == "file" {
			files = append(files, e)
		}
	}
	return files, nil
}

// FetchDocument reads and decodes one document of the doc tree.
func (p *Protocol) FetchDocument(ctx context.Context, entry core.RemoteEntry, ref string) (core.Document, error) {
	content, err := p.api.GetContent(ctx, entry.Path, ref)
	if err != nil {
		return core.Document{}, fmt.Errorf("read %s: %w", entry.Path, err)
	}
	data, err := codec.DecodeTransportBlob(content.Content)
	if err != nil {
		return core.Document{}, fmt.Errorf("read %s: %w", entry.Path, err)
	}
	doc, err := codec.DecodeDocument(data)
	if err != nil {
		return core.Document{}, fmt.Errorf("read %s: %w", entry.Path, err)
	}
	return doc, nil
}
