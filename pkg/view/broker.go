// Package view is an in-process publish/subscribe store for values the sync
// engine refreshes (the space list, the active document).
package view

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/introspection"

	"github.com/aretw0/furrow/pkg/core"
)

// Update is one published value.
type Update struct {
	Key   string
	Value any
	Epoch uint64
	At    time.Time
}

// String implements lifecycle.Event.
func (u Update) String() string {
	return fmt.Sprintf("%s@%d", u.Key, u.Epoch)
}

type subscriber struct {
	keys []string
	ch   chan Update
}

func (s *subscriber) wants(key string) bool {
	return len(s.keys) == 0 || slices.Contains(s.keys, key)
}

// Broker keeps the latest value per key and fans updates out to subscribers.
// Epochs come from one counter, so they strictly increase per key and a
// republished equal value is still a distinct update.
type Broker struct {
	mu     sync.RWMutex
	epoch  uint64
	latest map[string]Update
	subs   map[*subscriber]struct{}
	buffer int
	now    func() time.Time
}

// DefaultBuffer is the per-subscriber channel size.
const DefaultBuffer = 16

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		latest: make(map[string]Update),
		subs:   make(map[*subscriber]struct{}),
		buffer: DefaultBuffer,
		now:    time.Now,
	}
}

// Publish stores value under key and returns its epoch.
func (b *Broker) Publish(key string, value any) uint64 {
	b.mu.Lock()
	b.epoch++
	u := Update{Key: key, Value: value, Epoch: b.epoch, At: b.now()}
	b.latest[key] = u
	for s := range b.subs {
		if s.wants(key) {
			deliver(s.ch, u)
		}
	}
	b.mu.Unlock()
	return u.Epoch
}

// deliver never blocks: a full subscriber loses its oldest pending update.
func deliver(ch chan Update, u Update) {
	for {
		select {
		case ch <- u:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Latest returns the last update of key.
func (b *Broker) Latest(key string) (Update, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	u, ok := b.latest[key]
	return u, ok
}

// Subscribe returns a channel of updates for keys (all keys when none given).
// The channel is closed when ctx is done.
func (b *Broker) Subscribe(ctx context.Context, keys ...string) <-chan Update {
	s := &subscriber{keys: keys, ch: make(chan Update, b.buffer)}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch
}

// BrokerState is the observable state of a Broker.
type BrokerState struct {
	Epoch       uint64            `json:"epoch"`
	Keys        map[string]uint64 `json:"keys"`
	Subscribers int               `json:"subscribers"`
}

// State implements introspection.Introspectable.
func (b *Broker) State() any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make(map[string]uint64, len(b.latest))
	for k, u := range b.latest {
		keys[k] = u.Epoch
	}
	return BrokerState{Epoch: b.epoch, Keys: keys, Subscribers: len(b.subs)}
}

// ComponentType implements introspection.Component.
func (b *Broker) ComponentType() string {
	return "view-broker"
}

var (
	_ core.Publisher               = (*Broker)(nil)
	_ introspection.Introspectable = (*Broker)(nil)
	_ introspection.Component      = (*Broker)(nil)
)
