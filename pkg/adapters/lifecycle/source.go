// Package lifecycle bridges furrow event channels to lifecycle.Source, so
// store changes and view updates can drive lifecycle-managed workers.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/view"
)

type channelSource[E lifecycle.Event] struct {
	events <-chan E
	out    chan lifecycle.Event
}

// NewSource creates a lifecycle.Source that re-emits every value of events.
// The source's channel closes when events closes or the Start context ends.
func NewSource[E lifecycle.Event](events <-chan E) lifecycle.Source {
	return &channelSource[E]{
		events: events,
		out:    make(chan lifecycle.Event),
	}
}

type storeSource struct {
	store   core.Watchable
	pattern string
	out     chan lifecycle.Event
}

// NewStoreSource watches store for document changes matching pattern. The
// watch is opened by Start and ends with its context, so a restarted worker
// never shares a watcher with its predecessor.
func NewStoreSource(store core.Watchable, pattern string) lifecycle.Source {
	return &storeSource{
		store:   store,
		pattern: pattern,
		out:     make(chan lifecycle.Event),
	}
}

func (s *storeSource) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *storeSource) Start(ctx context.Context) error {
	events, err := s.store.Watch(ctx, s.pattern)
	if err != nil {
		return err
	}
	src := &channelSource[core.Event]{events: events, out: s.out}
	return src.Start(ctx)
}

// NewViewSource follows broker updates for keys (all keys when empty).
func NewViewSource(ctx context.Context, broker *view.Broker, keys ...string) lifecycle.Source {
	return NewSource(broker.Subscribe(ctx, keys...))
}

func (s *channelSource[E]) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *channelSource[E]) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
