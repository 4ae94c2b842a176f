package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/remote"
	"github.com/aretw0/furrow/pkg/snapshot"
	"github.com/aretw0/furrow/pkg/tree"
)

// PushResult describes a finished push.
type PushResult struct {
	// NoOp is set when the remote already matches the local snapshot. No tree,
	// commit or ref call was made.
	NoOp bool

	// Bootstrap is set when the remote had no manifest and every local
	// document was uploaded.
	Bootstrap bool

	// Diff is the incremental diff, empty on bootstrap.
	Diff snapshot.Result

	// Entries is the number of tree entries sent, manifest included.
	Entries int

	// Commit is the recorded commit, zero on NoOp.
	Commit core.CommitRecord
}

// Push uploads local changes as one commit on the space's branch. A branch
// that moved since it was read fails with core.ErrRemoteConflict unless the
// engine was built WithForceUpdate.
func (e *Engine) Push(ctx context.Context) (PushResult, error) {
	v, err := e.run(ctx, "push", func(ctx context.Context) (any, error) {
		return e.push(ctx)
	})
	e.recordErr(err)
	if err != nil {
		e.logger.Warn("push failed", "error", err)
		return PushResult{}, err
	}
	return v.(PushResult), nil
}

func (e *Engine) push(ctx context.Context) (PushResult, error) {
	space, err := e.store.GetSpace(ctx, e.spaceID)
	if err != nil {
		return PushResult{}, fmt.Errorf("load space: %w", err)
	}
	proto := e.protocol(space)

	head, err := proto.ReadBaseRef(ctx)
	if err != nil {
		return PushResult{}, err
	}

	docs, err := e.store.ListDocumentsBySpace(ctx, e.spaceID)
	if err != nil {
		return PushResult{}, fmt.Errorf("list documents: %w", err)
	}
	local, err := snapshot.FromDocuments(docs)
	if err != nil {
		return PushResult{}, err
	}

	var (
		result PushResult
		items  []tree.Item
	)
	declared, err := proto.ReadManifest(ctx, head)
	switch {
	case errors.Is(err, core.ErrRemoteNotFound):
		e.logger.Info("remote has no manifest, bootstrapping", "documents", len(docs))
		result.Bootstrap = true
		if items, err = e.builder.ForFreshRemote(docs); err != nil {
			return PushResult{}, err
		}
	case err != nil:
		return PushResult{}, err
	default:
		result.Diff = snapshot.Diff(local, declared.Snapshot)
		if result.Diff.IsEqual() {
			e.logger.Debug("push is a no-op, remote matches local snapshot")
			result.NoOp = true
			e.mu.Lock()
			e.stats.noOps++
			e.mu.Unlock()
			return result, nil
		}
		if items, err = e.builder.ForExistingRemote(ctx, result.Diff); err != nil {
			return PushResult{}, err
		}
	}

	pushed := space.Clone()
	pushed.Snapshot = local
	manifest, err := e.builder.Manifest(pushed)
	if err != nil {
		return PushResult{}, err
	}
	items = append(items, manifest)
	result.Entries = len(items)

	commit, err := proto.Commit(ctx, head, items)
	if err != nil {
		return PushResult{}, err
	}

	// The ref moved: from here on local metadata must be written even if ctx
	// is cancelled.
	pctx, cancel := e.detached(ctx)
	defer cancel()

	record := e.commitRecord(pctx, proto, commit)
	err = e.store.UpdateSpace(pctx, e.spaceID, core.SpaceUpdate{
		Snapshot:     &local,
		Commit:       &record,
		ClearChanges: true,
	})
	if err != nil {
		return PushResult{}, fmt.Errorf("persist commit %s: %w", commit.SHA, err)
	}
	result.Commit = record

	e.mu.Lock()
	e.stats.pushes++
	e.stats.lastPush = e.now()
	e.mu.Unlock()

	e.logger.Info("pushed", "sha", commit.SHA, "entries", result.Entries,
		"added", len(result.Diff.Added), "updated", len(result.Diff.Updated), "deleted", len(result.Diff.Deleted),
		"bootstrap", result.Bootstrap)

	e.publishSpaces(pctx)
	return result, nil
}

// commitRecord builds the record persisted after a push. A failed doc-tree
// read leaves Tree empty rather than losing the commit.
func (e *Engine) commitRecord(ctx context.Context, proto *remote.Protocol, commit remote.Commit) core.CommitRecord {
	date := commit.Date
	if date.IsZero() {
		date = e.now()
	}
	record := core.CommitRecord{SHA: commit.SHA, Date: date}

	entries, err := proto.FetchDocTree(ctx, commit.SHA)
	if err != nil {
		e.logger.Warn("fetch doc tree after push failed", "sha", commit.SHA, "error", err)
		return record
	}
	record.Tree = entries
	return record
}
