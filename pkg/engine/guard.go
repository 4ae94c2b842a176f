package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/aretw0/furrow/pkg/core"
)

// Guard serializes syncs per space. Calls for the same space and direction
// that overlap share one execution; different directions on the same space
// run one after the other.
type Guard struct {
	group singleflight.Group

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// DefaultGuard is shared by engines created without WithGuard, so two engines
// bound to the same space in one process never interleave.
var DefaultGuard = NewGuard()

// NewGuard creates an empty Guard.
func NewGuard() *Guard {
	return &Guard{slots: make(map[string]chan struct{})}
}

func (g *Guard) slot(spaceID string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.slots[spaceID]
	if !ok {
		s = make(chan struct{}, 1)
		g.slots[spaceID] = s
	}
	return s
}

// Do runs fn for (spaceID, op) while holding the space slot. If an identical
// call is already running, Do waits for it and returns its result with
// shared set. Waiting for the slot stops when ctx is done, with an error
// wrapping core.ErrSyncInProgress.
func (g *Guard) Do(ctx context.Context, spaceID, op string, fn func(context.Context) (any, error)) (v any, shared bool, err error) {
	ch := g.group.DoChan(spaceID+"/"+op, func() (any, error) {
		slot := g.slot(spaceID)
		select {
		case slot <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: space %s: %v", core.ErrSyncInProgress, spaceID, ctx.Err())
		}
		defer func() { <-slot }()
		return fn(ctx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Busy reports whether a sync of spaceID is running.
func (g *Guard) Busy(spaceID string) bool {
	return len(g.slot(spaceID)) > 0
}
