// Package worker schedules a sync engine: it polls the remote on an interval,
// reacts to explicit signals and pushes after local change events.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/aretw0/lifecycle/pkg/core/worker"

	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/engine"
)

const (
	// DefaultInterval is how often the remote is polled.
	DefaultInterval = 30 * time.Second

	// DefaultPushDelay batches bursts of local changes into one push.
	DefaultPushDelay = 500 * time.Millisecond
)

// Syncer is the part of engine.Engine the worker drives.
type Syncer interface {
	SpaceID() string
	Push(ctx context.Context) (engine.PushResult, error)
	Pull(ctx context.Context) (engine.PullReport, error)
	IsPullDue(ctx context.Context) (bool, error)
}

// Signal asks the worker to run an operation now.
type Signal string

const (
	// SignalPoll checks IsPullDue and pulls when due.
	SignalPoll Signal = "poll"
	// SignalPull pulls without checking the cooldown.
	SignalPull Signal = "pull"
	// SignalPush pushes immediately.
	SignalPush Signal = "push"
)

// Worker runs a Syncer until stopped.
type Worker struct {
	*worker.BaseWorker

	syncer    Syncer
	source    lifecycle.Source
	interval  time.Duration
	pushDelay time.Duration
	logger    *slog.Logger
	signals   chan Signal
	cancel    context.CancelFunc

	mu    sync.Mutex
	stats Stats
}

// Stats counts what the worker did.
type Stats struct {
	Polls    int       `json:"polls"`
	Pulls    int       `json:"pulls"`
	Pushes   int       `json:"pushes"`
	Events   int       `json:"events"`
	Errors   int       `json:"errors"`
	LastErr  string    `json:"last_error,omitempty"`
	LastSync time.Time `json:"last_sync,omitzero"`
}

// Option configures a Worker.
type Option func(*Worker)

// WithInterval sets the poll interval. Zero disables polling.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		w.interval = d
	}
}

// WithPushDelay sets how long local events are batched before a push.
func WithPushDelay(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pushDelay = d
		}
	}
}

// WithSource feeds local change events. Only core.Event values of the
// syncer's space (or without a space) trigger a push.
func WithSource(src lifecycle.Source) Option {
	return func(w *Worker) {
		w.source = src
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a worker for s.
func New(s Syncer, opts ...Option) *Worker {
	w := &Worker{
		BaseWorker: worker.NewBaseWorker("sync-" + s.SpaceID()),
		syncer:     s,
		interval:   DefaultInterval,
		pushDelay:  DefaultPushDelay,
		logger:     slog.New(slog.DiscardHandler),
		signals:    make(chan Signal, 8),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("worker", "sync", "space", s.SpaceID())
	return w
}

// Signal queues sig. It reports false when the queue is full.
func (w *Worker) Signal(sig Signal) bool {
	select {
	case w.signals <- sig:
		return true
	default:
		return false
	}
}

func (w *Worker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("sync worker already started (status: %s)", status)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	var events <-chan lifecycle.Event
	if w.source != nil {
		if err := w.source.Start(runCtx); err != nil {
			cancel()
			return fmt.Errorf("start event source: %w", err)
		}
		events = w.source.Events()
	}

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, func(ctx context.Context) error {
		return w.run(ctx, events)
	})
}

func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}
	return w.BaseWorker.Stop(ctx)
}

func (w *Worker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
			"space":             w.syncer.SpaceID(),
			"interval":          w.interval.String(),
		}
	})
}

// Stats returns a copy of the counters.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Worker) run(ctx context.Context, events <-chan lifecycle.Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("sync worker panic: %v", recovered)
			if w.logger.Enabled(ctx, slog.LevelDebug) {
				w.logger.Error("sync worker panic", "error", err, "stack", string(debug.Stack()))
			} else {
				w.logger.Error("sync worker panic", "error", err)
			}
		}
	}()

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	pushTimer := time.NewTimer(time.Hour)
	pushTimer.Stop()
	defer pushTimer.Stop()
	var pushArmed bool

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-tick:
			w.poll(ctx)

		case sig := <-w.signals:
			switch sig {
			case SignalPoll:
				w.poll(ctx)
			case SignalPull:
				w.pull(ctx)
			case SignalPush:
				w.push(ctx)
			default:
				w.logger.Warn("unknown signal", "signal", sig)
			}

		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !w.relevant(e) {
				continue
			}
			w.count(func(s *Stats) { s.Events++ })
			if !pushArmed {
				pushTimer.Reset(w.pushDelay)
				pushArmed = true
			}

		case <-pushTimer.C:
			pushArmed = false
			w.push(ctx)
		}
	}
}

func (w *Worker) relevant(e lifecycle.Event) bool {
	ce, ok := e.(core.Event)
	if !ok {
		return false
	}
	return ce.SpaceID == "" || ce.SpaceID == w.syncer.SpaceID()
}

func (w *Worker) poll(ctx context.Context) {
	w.count(func(s *Stats) { s.Polls++ })
	due, err := w.syncer.IsPullDue(ctx)
	if err != nil {
		w.fail("poll", err)
		return
	}
	if due {
		w.pull(ctx)
	}
}

func (w *Worker) pull(ctx context.Context) {
	report, err := w.syncer.Pull(ctx)
	if err != nil {
		w.fail("pull", err)
		return
	}
	if !report.OK() {
		w.logger.Warn("pull skipped documents", "failed", len(report.Failed), "error", report.Err())
	}
	w.count(func(s *Stats) {
		s.Pulls++
		s.LastSync = time.Now()
	})
}

func (w *Worker) push(ctx context.Context) {
	res, err := w.syncer.Push(ctx)
	if err != nil {
		w.fail("push", err)
		return
	}
	w.logger.Debug("push finished", "noop", res.NoOp, "entries", res.Entries)
	w.count(func(s *Stats) {
		s.Pushes++
		s.LastSync = time.Now()
	})
}

func (w *Worker) fail(op string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	level := slog.LevelError
	if errors.Is(err, core.ErrRemoteConflict) || errors.Is(err, core.ErrSyncInProgress) || core.IsRetryable(err) {
		level = slog.LevelWarn
	}
	w.logger.Log(context.Background(), level, op+" failed", "error", err)
	w.count(func(s *Stats) {
		s.Errors++
		s.LastErr = err.Error()
	})
}

func (w *Worker) count(fn func(*Stats)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.stats)
}

var _ worker.Worker = (*Worker)(nil)
