package core

import "errors"

// Common errors.
var (
	// ErrNotFound is returned by a Store when a space or document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRemoteNotFound marks a missing remote object (ref, file, directory).
	// Push branches on it to bootstrap a fresh remote.
	ErrRemoteNotFound = errors.New("remote: not found")

	// ErrRemoteAuth marks rejected or missing credentials. Never retried.
	ErrRemoteAuth = errors.New("remote: authentication failed")

	// ErrRemoteConflict marks a rejected ref update (not a fast-forward).
	ErrRemoteConflict = errors.New("remote: ref update rejected")

	// ErrRateLimited marks a throttled remote call.
	ErrRateLimited = errors.New("remote: rate limited")

	// ErrTimeout marks a remote call that exceeded its deadline.
	ErrTimeout = errors.New("remote: timeout")

	// ErrRemoteUnavailable marks a 5xx answer from the remote.
	ErrRemoteUnavailable = errors.New("remote: unavailable")

	// ErrTransportDecode marks a blob whose transport encoding is invalid.
	ErrTransportDecode = errors.New("transport decode failed")

	// ErrMalformedRemoteContent marks a blob that is not a valid encoded document or space.
	ErrMalformedRemoteContent = errors.New("malformed remote content")

	// ErrSyncInProgress is returned when a sync lock could not be acquired in time.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// IsRetryable reports whether err is a transient remote failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRemoteUnavailable)
}
