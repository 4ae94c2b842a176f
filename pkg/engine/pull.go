package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/remote"
)

// ItemFailure is a remote document that could not be applied.
type ItemFailure struct {
	Path string
	Err  error
}

// PullReport describes a finished pull. Documents are applied independently:
// a bad document lands in Failed and the others still go through.
type PullReport struct {
	// Empty is set when the remote branch does not exist yet.
	Empty bool

	// Applied lists the ids written to the local store.
	Applied []string

	// Failed lists the documents that were skipped.
	Failed []ItemFailure

	// ManifestApplied is set when the remote space manifest was read and applied.
	ManifestApplied bool

	// Commit is the remote commit the pull read from. It is only recorded on
	// the space when nothing failed.
	Commit core.CommitRecord

	// Epoch is the publish epoch of the active document, zero if none was
	// published.
	Epoch uint64
}

// OK reports whether every document was applied.
func (r PullReport) OK() bool {
	return len(r.Failed) == 0
}

// Err joins the item failures, or returns nil.
func (r PullReport) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.Path, f.Err))
	}
	return errors.Join(errs...)
}

// Pull reads the remote branch head and upserts every remote document into
// the local store. Documents that fail to decode are reported, not fatal.
// When all documents applied, the remote manifest and commit are recorded on
// the space and pending changes are cleared; otherwise the recorded commit is
// left alone so the next pull retries.
func (e *Engine) Pull(ctx context.Context) (PullReport, error) {
	v, err := e.run(ctx, "pull", func(ctx context.Context) (any, error) {
		return e.pull(ctx)
	})
	e.recordErr(err)
	if err != nil {
		e.logger.Warn("pull failed", "error", err)
		return PullReport{}, err
	}
	return v.(PullReport), nil
}

func (e *Engine) pull(ctx context.Context) (PullReport, error) {
	space, err := e.store.GetSpace(ctx, e.spaceID)
	if err != nil {
		return PullReport{}, fmt.Errorf("load space: %w", err)
	}
	proto := e.protocol(space)

	head, err := proto.HeadCommit(ctx)
	if errors.Is(err, core.ErrRemoteNotFound) {
		e.logger.Debug("remote branch is empty, nothing to pull")
		return PullReport{Empty: true}, nil
	}
	if err != nil {
		return PullReport{}, err
	}

	// Every read is pinned to the head commit so a concurrent remote write
	// cannot mix two trees.
	entries, err := proto.FetchDocTree(ctx, head.SHA)
	if err != nil {
		return PullReport{}, err
	}

	report := PullReport{Commit: core.CommitRecord{SHA: head.SHA, Date: head.Date, Tree: entries}}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Path, ".json") {
			continue
		}
		doc, err := proto.FetchDocument(ctx, entry, head.SHA)
		if err == nil {
			doc.SpaceID = e.spaceID
			err = e.upsert(ctx, doc)
		}
		if err != nil {
			if !itemLevel(err) || ctx.Err() != nil {
				return PullReport{}, err
			}
			e.logger.Warn("skipping remote document", "path", entry.Path, "error", err)
			report.Failed = append(report.Failed, ItemFailure{Path: entry.Path, Err: err})
			continue
		}
		report.Applied = append(report.Applied, doc.ID)
	}

	declared, err := proto.ReadManifest(ctx, remoteHead(head))
	switch {
	case errors.Is(err, core.ErrRemoteNotFound):
		e.logger.Debug("remote has no manifest")
	case err != nil:
		return PullReport{}, err
	default:
		report.ManifestApplied = true
	}

	pctx, cancel := e.detached(ctx)
	defer cancel()

	update := core.SpaceUpdate{}
	if report.ManifestApplied {
		update.Name = &declared.Name
		update.Snapshot = &declared.Snapshot
		if declared.ActiveDocID != "" {
			update.ActiveDocID = &declared.ActiveDocID
		}
	}
	if report.OK() {
		update.Commit = &report.Commit
		update.ClearChanges = true
	}
	if err := e.store.UpdateSpace(pctx, e.spaceID, update); err != nil {
		return PullReport{}, fmt.Errorf("persist pull of %s: %w", head.SHA, err)
	}

	e.mu.Lock()
	e.stats.pulls++
	e.stats.lastPull = e.now()
	e.stats.pullFailures += len(report.Failed)
	e.mu.Unlock()

	e.logger.Info("pulled", "sha", head.SHA, "applied", len(report.Applied), "failed", len(report.Failed))

	e.publishSpaces(pctx)
	report.Epoch = e.publishActive(pctx)
	return report, nil
}

// upsert creates doc when absent, otherwise overwrites the received fields.
func (e *Engine) upsert(ctx context.Context, doc core.Document) error {
	_, err := e.store.GetDocument(ctx, doc.ID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		if err := e.store.CreateDocument(ctx, doc); err != nil {
			return fmt.Errorf("%w: create %s: %v", errLocalWrite, doc.ID, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("%w: read %s: %v", errLocalWrite, doc.ID, err)
	}
	if err := e.store.UpdateDocument(ctx, doc.ID, core.FieldsOf(doc)); err != nil {
		return fmt.Errorf("%w: update %s: %v", errLocalWrite, doc.ID, err)
	}
	return nil
}

// publishActive re-publishes the active document so observers see a new
// epoch even when the value is unchanged.
func (e *Engine) publishActive(ctx context.Context) uint64 {
	space, err := e.store.GetSpace(ctx, e.spaceID)
	if err != nil || space.ActiveDocID == "" {
		return 0
	}
	doc, err := e.store.GetDocument(ctx, space.ActiveDocID)
	if err != nil {
		e.logger.Debug("active document not found", "id", space.ActiveDocID, "error", err)
		return e.publisher.Publish(core.KeyActiveDocument, nil)
	}
	return e.publisher.Publish(core.KeyActiveDocument, doc)
}

func remoteHead(c remote.Commit) remote.Head {
	return remote.Head{SHA: c.SHA, TreeSHA: c.TreeSHA}
}

var errLocalWrite = errors.New("local write failed")

// itemLevel reports whether err concerns a single document rather than the
// whole pull.
func itemLevel(err error) bool {
	return errors.Is(err, core.ErrTransportDecode) ||
		errors.Is(err, core.ErrMalformedRemoteContent) ||
		errors.Is(err, errLocalWrite)
}
