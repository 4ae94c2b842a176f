// Package lock provides a cross-process exclusive lock backed by a file.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrTimeout is returned when the lock could not be acquired in time.
var ErrTimeout = errors.New("lock: timed out")

// DefaultPoll is the retry interval while the lock is held elsewhere.
const DefaultPoll = 10 * time.Millisecond

// DefaultStaleAfter is the age after which a lock whose owner cannot be
// checked is considered abandoned.
const DefaultStaleAfter = 10 * time.Minute

// File is a lock file at Path. The zero value is not usable; use New.
type File struct {
	Path string
	// Poll is the retry interval while the lock is held elsewhere.
	Poll time.Duration
	// StaleAfter bounds the age of a lock whose owner PID is unreadable or
	// cannot be checked on this platform.
	StaleAfter time.Duration
}

// New returns a lock on path.
func New(path string) *File {
	return &File{Path: path, Poll: DefaultPoll, StaleAfter: DefaultStaleAfter}
}

// ForSpace returns the lock guarding syncs of spaceID under dir.
func ForSpace(dir, spaceID string) *File {
	return New(filepath.Join(dir, spaceID+".lock"))
}

// Acquire creates the lock file exclusively, retrying until it succeeds, ctx
// is done, or timeout elapses (zero means no timeout). A lock left behind by
// a process that no longer runs is removed. The returned function releases
// the lock.
func (l *File) Acquire(ctx context.Context, timeout time.Duration) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0755); err != nil {
		return nil, fmt.Errorf("lock: create dir: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	poll := l.Poll
	if poll <= 0 {
		poll = DefaultPoll
	}

	for {
		f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			f.Close()
			return func() { os.Remove(l.Path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("lock: %w", err)
		}
		if l.breakStale() {
			continue
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrTimeout, l.Path)
			}
			return nil, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// breakStale removes the lock file when its owner is gone and reports
// whether it did.
func (l *File) breakStale() bool {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		// Released between the create attempt and the read.
		return os.IsNotExist(err)
	}
	if !l.stale(data) {
		return false
	}
	// Only remove the file we judged; a new owner may have replaced it.
	if current, err := os.ReadFile(l.Path); err != nil || string(current) != string(data) {
		return false
	}
	return os.Remove(l.Path) == nil
}

func (l *File) stale(data []byte) bool {
	if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
		switch processAlive(pid) {
		case aliveNo:
			return true
		case aliveYes:
			return false
		}
	}

	info, err := os.Stat(l.Path)
	if err != nil {
		return false
	}
	limit := l.StaleAfter
	if limit <= 0 {
		limit = DefaultStaleAfter
	}
	return time.Since(info.ModTime()) > limit
}

type liveness int

const (
	aliveUnknown liveness = iota
	aliveYes
	aliveNo
)

// processAlive checks pid with the null signal.
func processAlive(pid int) liveness {
	if pid <= 0 {
		return aliveNo
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return aliveNo
	}
	err = p.Signal(syscall.Signal(0))
	switch {
	case err == nil, errors.Is(err, syscall.EPERM):
		return aliveYes
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return aliveNo
	}
	return aliveUnknown
}

// Held reports whether the lock file currently exists.
func (l *File) Held() bool {
	_, err := os.Stat(l.Path)
	return err == nil
}
