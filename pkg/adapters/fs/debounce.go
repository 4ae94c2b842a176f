package fs

import (
	"sync"
	"time"

	"github.com/aretw0/furrow/pkg/core"
)

// debouncer coalesces bursts of events per document. Editors and atomic
// writes produce several fsnotify events for one save; only the last one
// within the window is delivered, except that a CREATE followed by a MODIFY
// stays a CREATE.
type debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent
	stopped bool
	wg      sync.WaitGroup
}

type pendingEvent struct {
	event core.Event
	timer *time.Timer
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
	}
}

// add schedules deliver(e) after the window, replacing any pending event
// for the same document.
func (d *debouncer) add(e core.Event, deliver func(core.Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	key := e.SpaceID + "/" + e.ID
	if p, ok := d.pending[key]; ok && p.timer.Stop() {
		if p.event.Type == core.EventCreate && e.Type == core.EventModify {
			e.Type = core.EventCreate
		}
		p.event = e
		p.timer.Reset(d.window)
		return
	}
	// otherwise the previous delivery is already firing with its own event

	p := &pendingEvent{event: e}
	d.wg.Add(1)
	p.timer = time.AfterFunc(d.window, func() {
		defer d.wg.Done()
		d.mu.Lock()
		ev := p.event
		if d.pending[key] == p {
			delete(d.pending, key)
		}
		d.mu.Unlock()
		deliver(ev)
	})
	d.pending[key] = p
}

// stopAndWait drops pending events and waits up to timeout for in-flight
// deliveries to finish.
func (d *debouncer) stopAndWait(timeout time.Duration) {
	d.mu.Lock()
	d.stopped = true
	for key, p := range d.pending {
		if p.timer.Stop() {
			d.wg.Done()
		}
		delete(d.pending, key)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
