package engine

import (
	"time"

	"github.com/aretw0/introspection"
)

// State is the observable state of an Engine.
type State struct {
	SpaceID      string     `json:"space_id"`
	Busy         bool       `json:"busy"`
	RemoteHead   string     `json:"remote_head,omitempty"`
	LastCheck    *time.Time `json:"last_check,omitempty"`
	LastPush     *time.Time `json:"last_push,omitempty"`
	LastPull     *time.Time `json:"last_pull,omitempty"`
	Pushes       int        `json:"pushes"`
	NoOps        int        `json:"no_ops"`
	Pulls        int        `json:"pulls"`
	Conflicts    int        `json:"conflicts"`
	PullFailures int        `json:"pull_failures"`
	LastError    string     `json:"last_error,omitempty"`
	Force        bool       `json:"force"`
	Cooldown     string     `json:"cooldown"`
}

// State implements introspection.Introspectable.
func (e *Engine) State() any {
	e.mu.Lock()
	defer e.mu.Unlock()

	return State{
		SpaceID:      e.spaceID,
		Busy:         e.guard.Busy(e.spaceID),
		RemoteHead:   e.stats.remoteHead.SHA,
		LastCheck:    timePtr(e.stats.lastCheck),
		LastPush:     timePtr(e.stats.lastPush),
		LastPull:     timePtr(e.stats.lastPull),
		Pushes:       e.stats.pushes,
		NoOps:        e.stats.noOps,
		Pulls:        e.stats.pulls,
		Conflicts:    e.stats.conflicts,
		PullFailures: e.stats.pullFailures,
		LastError:    e.stats.lastErr,
		Force:        e.force,
		Cooldown:     e.cooldown.String(),
	}
}

// ComponentType implements introspection.Component.
func (e *Engine) ComponentType() string {
	return "sync-engine"
}

var _ introspection.Introspectable = (*Engine)(nil)
var _ introspection.Component = (*Engine)(nil)

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
