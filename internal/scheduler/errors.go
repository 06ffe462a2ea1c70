package scheduler

import (
	"errors"
	"fmt"
	"time"

	"delaybot/internal/storage"
)

var (
	// ErrDuplicateID is returned when id generation keeps colliding with stored ids.
	ErrDuplicateID = storage.ErrDuplicateID

	ErrStopped          = errors.New("scheduler stopped")
	ErrAlreadyRecovered = errors.New("scheduler: recovery already ran")
)

// RequestError reports a submission the core refuses without touching state.
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

// StorageError wraps a durable store failure.
type StorageError struct {
	Op  string
	ID  string
	Err error
}

func (e *StorageError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DeliveryError wraps a Sink failure for one attempt.
type DeliveryError struct {
	ID      string
	Attempt int
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s (attempt %d): %v", e.ID, e.Attempt, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// NoRetry marks a delivery error as permanent.
//
// The core will not retry it in-process; the record stays in the store.
//
//	return scheduler.NoRetry(fmt.Errorf("chat not found: %w", err))
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err is wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }

// RetryAfter attaches a suggested delay before the next attempt, e.g. from a
// flood-control reply. The hint is bounded by RetryMaxDelay and jittered.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	if after < 0 {
		after = 0
	}
	return retryAfterError{err: err, after: after}
}

// RetryAfterError is implemented by errors that carry an explicit retry delay.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

type retryAfterError struct {
	err   error
	after time.Duration
}

func (e retryAfterError) Error() string             { return fmt.Sprintf("retry-after(%s): %v", e.after, e.err) }
func (e retryAfterError) Unwrap() error             { return e.err }
func (e retryAfterError) RetryAfter() time.Duration { return e.after }
