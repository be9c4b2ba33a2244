// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound means the data source reports the record no longer exists.
// Refresh flags such records instead of deleting them.
var ErrNotFound = errors.New("record not found upstream")

// ErrRateLimited is returned when the data source reports a rate limit.
// ResumeAfter is how long the caller should wait before retrying the same
// cursor. It is recovered locally by waiting and never surfaced as fatal.
type ErrRateLimited struct {
	ResumeAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("rate limited by data source, resume after %s", e.ResumeAfter)
}

// ErrTransient wraps a network or 5xx failure that is worth retrying a small
// fixed number of times before a task is reported as failed.
type ErrTransient struct {
	Err error
}

func (e *ErrTransient) Error() string {
	return fmt.Sprintf("transient data source error: %v", e.Err)
}

func (e *ErrTransient) Unwrap() error { return e.Err }

// ErrQueryRejected is a permanent 4xx rejection of the given query, for
// example exceeding the search result window. It must not be retried; the
// caller should switch to a different query partition.
type ErrQueryRejected struct {
	Query  string
	Status int
	Err    error
}

func (e *ErrQueryRejected) Error() string {
	return fmt.Sprintf("query %q rejected by data source (status %d): %v", e.Query, e.Status, e.Err)
}

func (e *ErrQueryRejected) Unwrap() error { return e.Err }

// ErrPersistence is a checkpoint or pool write failure. In-memory progress is
// not lost, only the ability to resume after process death.
type ErrPersistence struct {
	Path string
	Err  error
}

func (e *ErrPersistence) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Path, e.Err)
}

func (e *ErrPersistence) Unwrap() error { return e.Err }

// ErrCorruptPool means the pool file exists but could not be read or parsed.
// It is always surfaced; the caller decides whether to fall back to an empty
// pool or abort.
type ErrCorruptPool struct {
	Path string
	Err  error
}

func (e *ErrCorruptPool) Error() string {
	return fmt.Sprintf("pool file %s is unreadable: %v", e.Path, e.Err)
}

func (e *ErrCorruptPool) Unwrap() error { return e.Err }
