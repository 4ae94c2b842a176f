package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aretw0/furrow/pkg/core"
)

// Error is a failed GitHub API call. Err wraps one of the core remote
// sentinels, so errors.Is(err, core.ErrRemoteNotFound) and friends work.
type Error struct {
	// Op is the API operation (e.g. "GetRef", "CreateTree").
	Op string

	// Path is the request path.
	Path string

	// Status is the HTTP status, zero for transport failures.
	Status int

	// Message is the "message" field of the error body, if any.
	Message string

	Err error

	retryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Status != 0 {
		if e.Message != "" {
			return fmt.Sprintf("github.%s %s: %d %s: %v", e.Op, e.Path, e.Status, e.Message, e.Err)
		}
		return fmt.Sprintf("github.%s %s: %d: %v", e.Op, e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("github.%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify maps an HTTP answer to a core sentinel.
func classify(resp *http.Response) error {
	switch code := resp.StatusCode; {
	case code == http.StatusNotFound:
		return core.ErrRemoteNotFound
	case code == http.StatusUnauthorized:
		return core.ErrRemoteAuth
	case code == http.StatusForbidden:
		// Primary rate limits are reported as 403 with an exhausted quota.
		if resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != "" {
			return core.ErrRateLimited
		}
		return core.ErrRemoteAuth
	case code == http.StatusTooManyRequests:
		return core.ErrRateLimited
	case code == http.StatusConflict || code == http.StatusUnprocessableEntity:
		return core.ErrRemoteConflict
	case code >= 500:
		return core.ErrRemoteUnavailable
	default:
		return fmt.Errorf("unexpected status %s", strconv.Itoa(code))
	}
}

// transportError maps a failed round trip to a core sentinel.
func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", core.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrRemoteUnavailable, err)
}
