package retry

import (
	"context"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/weisbartb/opctx"
)

// Decision classifies an attempt's outcome for the driver.
type Decision int

const (
	// Abort terminates the retry loop with the current result or failure.
	Abort Decision = iota
	// Retry schedules another attempt under the backoff's normal policy.
	Retry
	// RetryImmediate demands another attempt with no delay.
	RetryImmediate
	// RetryDelayed asks for a delayed attempt (e.g. for resource-exhaustion
	// signals where an immediate retry cannot help). A failure class first
	// seen with RetryDelayed starts with no zero-delay budget; a class that
	// already has a register spends any remaining zero-delay budget first.
	RetryDelayed
)

func (d Decision) String() string {
	switch d {
	case Retry:
		return "RETRY"
	case RetryImmediate:
		return "RETRY_IMMEDIATE"
	case RetryDelayed:
		return "RETRY_DELAYED"
	default:
		return "ABORT"
	}
}

// Predicate is the deadline-free classifier shape: Retry or Abort.
type Predicate[T any] func(v T) Decision

// AdvancedPredicate may additionally demand immediate or forced-delayed
// retries.
type AdvancedPredicate[T any] func(v T) Decision

// TimeoutPredicate is the deadline-aware shape consumed by the driver. It
// may block to implement inter-attempt delay and may fail with
// opctx.ErrDeadlineExceeded or the interruption error from ctx.
type TimeoutPredicate[T any] func(ctx context.Context, v T, deadlineNanos int64) (Decision, error)

// DelayPredicate collapses the decision space to a signed integer: negative
// aborts, zero retries immediately, positive sleeps that many milliseconds
// and retries.
type DelayPredicate[T any] func(v T) int64

// FromPredicate lifts a deadline-free predicate into the driver's shape.
func FromPredicate[T any](p Predicate[T]) TimeoutPredicate[T] {
	return func(ctx context.Context, v T, deadlineNanos int64) (Decision, error) {
		return p(v), nil
	}
}

// FromDelayPredicate projects a DelayPredicate into the driver's shape,
// sleeping positive delays (capped at the deadline) before returning Retry.
func FromDelayPredicate[T any](p DelayPredicate[T]) TimeoutPredicate[T] {
	return func(ctx context.Context, v T, deadlineNanos int64) (Decision, error) {
		delayMillis := p(v)
		if delayMillis < 0 {
			return Abort, nil
		}
		if delayMillis == 0 {
			return Retry, nil
		}
		remainingMillis := (deadlineNanos - opctx.NowNanos()) / int64(time.Millisecond)
		if remainingMillis <= 0 {
			return Abort, nil
		}
		if delayMillis > remainingMillis {
			delayMillis = remainingMillis
		}
		if err := sleep(ctx, time.Duration(delayMillis)*time.Millisecond); err != nil {
			return Abort, err
		}
		return Retry, nil
	}
}

// ToDelayPredicate projects a deadline-free predicate into the signed-millis
// shape: Abort maps to -1, every retry variant to 0.
func ToDelayPredicate[T any](p Predicate[T]) DelayPredicate[T] {
	return func(v T) int64 {
		if p(v) == Abort {
			return -1
		}
		return 0
	}
}

// NoRetryForResult aborts for every value; the result of the first attempt
// stands.
func NoRetryForResult[T any]() Predicate[T] {
	return func(T) Decision {
		return Abort
	}
}

// RetryForNilResult retries until the operation produces a non-nil value.
func RetryForNilResult[T any]() Predicate[*T] {
	return func(v *T) Decision {
		if v == nil {
			return Retry
		}
		return Abort
	}
}

// Retriable marks domain errors that are worth another attempt. Transient
// store failures implement it; the default classifier honours it anywhere on
// the cause chain.
type Retriable interface {
	Retriable() bool
}

// DefaultErrorRetry inspects the cause chain and retries when any cause is a
// transient-class failure: a Retriable domain error, a network timeout, a
// socket-level transport failure, or an i/o deadline. Anything else, in
// particular plain programming errors, aborts.
func DefaultErrorRetry(err error) Decision {
	transient := FirstCause(err, func(cause error) bool {
		if r, ok := cause.(Retriable); ok {
			return r.Retriable()
		}
		if netErr, ok := cause.(net.Error); ok && netErr.Timeout() {
			return true
		}
		switch {
		case errors.Is(cause, syscall.ECONNRESET),
			errors.Is(cause, syscall.ECONNREFUSED),
			errors.Is(cause, syscall.EPIPE),
			errors.Is(cause, io.ErrUnexpectedEOF),
			errors.Is(cause, os.ErrDeadlineExceeded):
			return true
		}
		return false
	})
	if transient != nil {
		return Retry
	}
	return Abort
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "interrupted while waiting to retry")
	case <-timer.C:
		return nil
	}
}
