package fs

import (
	"context"
	"fmt"

	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/furrow/pkg/core"
)

// DefaultWatchPattern returns the pattern matching every document record.
func (r *Repository) DefaultWatchPattern() string {
	return docsDir + "/*" + r.ser.Ext()
}

// Watch implements core.Watchable. pattern is a doublestar glob matched
// against root-relative slash paths; an empty pattern watches every
// document. The channel is closed after ctx is done.
func (r *Repository) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if pattern == "" {
		pattern = r.DefaultWatchPattern()
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid watch pattern %q", pattern)
	}

	events := make(chan core.Event, 64)
	w := newWatchWorker(r, pattern, events)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}

	// The closer must outlive ctx: it waits for the worker to drain.
	lifecycle.Go(context.WithoutCancel(ctx), func(context.Context) error {
		<-w.Done()
		close(events)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		r.config.Logger.Error("watch closer failed", "error", err)
	}))

	return events, nil
}
