// Package engine reconciles a local store with a Git-backed remote. An Engine
// is bound to one space and exposes Push, Pull and IsPullDue; scheduling is
// left to the caller.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/lock"
	"github.com/aretw0/furrow/pkg/remote"
	"github.com/aretw0/furrow/pkg/tree"
)

// Engine syncs one space.
type Engine struct {
	spaceID   string
	store     core.Store
	api       remote.API
	builder   *tree.Builder
	publisher core.Publisher
	guard     *Guard
	logger    *slog.Logger
	now       func() time.Time

	cooldown       time.Duration
	persistTimeout time.Duration
	force          bool
	fileLock       bool
	lockTimeout    time.Duration

	mu    sync.Mutex
	stats stats
}

type stats struct {
	remoteHead   remote.Commit
	lastCheck    time.Time
	lastPush     time.Time
	lastPull     time.Time
	pushes       int
	noOps        int
	pulls        int
	conflicts    int
	pullFailures int
	lastErr      string
}

type discardPublisher struct{}

func (discardPublisher) Publish(string, any) uint64 { return 0 }

// New creates an engine for spaceID. The api is bound to the space's
// repository; the branch comes from the space settings.
func New(store core.Store, api remote.API, spaceID string, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("engine: store is required")
	}
	if api == nil {
		return nil, errors.New("engine: remote api is required")
	}
	if spaceID == "" {
		return nil, errors.New("engine: space id is required")
	}

	e := &Engine{
		spaceID:        spaceID,
		store:          store,
		api:            api,
		builder:        tree.NewBuilder(store),
		publisher:      discardPublisher{},
		guard:          DefaultGuard,
		logger:         slog.New(slog.DiscardHandler),
		now:            time.Now,
		cooldown:       DefaultCooldown,
		persistTimeout: DefaultPersistTimeout,
		fileLock:       true,
		lockTimeout:    DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("space", spaceID)
	return e, nil
}

// SpaceID returns the id of the bound space.
func (e *Engine) SpaceID() string {
	return e.spaceID
}

func (e *Engine) protocol(space core.Space) *remote.Protocol {
	return remote.NewProtocol(e.api, space.Settings.BranchName(),
		remote.WithForceUpdate(e.force),
		remote.WithLogger(e.logger),
	)
}

// run executes fn under the in-process guard and, when the store lives on a
// filesystem, the cross-process space lock.
func (e *Engine) run(ctx context.Context, op string, fn func(context.Context) (any, error)) (any, error) {
	v, shared, err := e.guard.Do(ctx, e.spaceID, op, func(ctx context.Context) (any, error) {
		if l, ok := e.store.(core.Lockable); ok && e.fileLock {
			unlock, err := lock.ForSpace(l.LockDir(), e.spaceID).Acquire(ctx, e.lockTimeout)
			if err != nil {
				if errors.Is(err, lock.ErrTimeout) {
					return nil, fmt.Errorf("%w: %v", core.ErrSyncInProgress, err)
				}
				return nil, err
			}
			defer unlock()
		}
		return fn(ctx)
	})
	if shared {
		e.logger.Debug("joined running sync", "op", op)
	}
	return v, err
}

// detached returns a context that survives cancellation of ctx, for the local
// writes that must follow a remote mutation.
func (e *Engine) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.persistTimeout)
}

// IsPullDue reports whether the remote branch moved since the last recorded
// commit. It is never due within the cooldown after that commit, whatever the
// remote state.
func (e *Engine) IsPullDue(ctx context.Context) (bool, error) {
	space, err := e.store.GetSpace(ctx, e.spaceID)
	if err != nil {
		return false, fmt.Errorf("load space: %w", err)
	}

	if !space.Commit.Date.IsZero() && e.now().Sub(space.Commit.Date) < e.cooldown {
		e.logger.Debug("pull not due, within cooldown", "last_commit", space.Commit.Date)
		return false, nil
	}

	head, err := e.protocol(space).HeadCommit(ctx)
	if errors.Is(err, core.ErrRemoteNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	e.stats.remoteHead = head
	e.stats.lastCheck = e.now()
	e.mu.Unlock()

	due := head.SHA != space.Commit.SHA
	e.logger.Debug("pull check", "remote", head.SHA, "local", space.Commit.SHA, "due", due)
	return due, nil
}

// RemoteHead returns the remote head cached by the last IsPullDue call.
func (e *Engine) RemoteHead() remote.Commit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats.remoteHead
}

func (e *Engine) publishSpaces(ctx context.Context) {
	spaces, err := e.store.ListSpaces(ctx)
	if err != nil {
		e.logger.Warn("list spaces for publish failed", "error", err)
		return
	}
	e.publisher.Publish(core.KeySpaces, spaces)
}

func (e *Engine) recordErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		e.stats.lastErr = ""
		return
	}
	e.stats.lastErr = err.Error()
	if errors.Is(err, core.ErrRemoteConflict) {
		e.stats.conflicts++
	}
}
