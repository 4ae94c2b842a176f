package engine

import (
	"log/slog"
	"time"

	"github.com/aretw0/furrow/pkg/core"
)

const (
	// DefaultCooldown is how long after the last recorded commit a pull is
	// never due.
	DefaultCooldown = 2 * time.Minute

	// DefaultPersistTimeout bounds the local writes that follow a moved ref.
	DefaultPersistTimeout = 30 * time.Second

	// DefaultLockTimeout bounds the wait for the cross-process space lock.
	DefaultLockTimeout = 10 * time.Second
)

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets the observer notified after pushes and pulls.
func WithPublisher(p core.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithGuard replaces DefaultGuard.
func WithGuard(g *Guard) Option {
	return func(e *Engine) {
		if g != nil {
			e.guard = g
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithCooldown overrides DefaultCooldown.
func WithCooldown(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.cooldown = d
		}
	}
}

// WithForceUpdate lets push overwrite a branch that moved since it was read.
func WithForceUpdate(force bool) Option {
	return func(e *Engine) { e.force = force }
}

// WithPersistTimeout overrides DefaultPersistTimeout.
func WithPersistTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.persistTimeout = d
		}
	}
}

// WithFileLock enables the cross-process lock when the store exposes a lock
// directory. Enabled by default.
func WithFileLock(enabled bool, timeout time.Duration) Option {
	return func(e *Engine) {
		e.fileLock = enabled
		if timeout > 0 {
			e.lockTimeout = timeout
		}
	}
}
