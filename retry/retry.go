// Package retry drives operations to completion under a deadline with
// pluggable backoff. The driver is synchronous: it sleeps the calling
// goroutine between attempts, and a cancellation of the driver's context is
// never retried.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/weisbartb/opctx"
)

// Operation is a single retriable unit of work.
type Operation[T any] interface {
	Call(ctx context.Context) (T, error)
}

// OperationFunc adapts a plain function to Operation.
type OperationFunc[T any] func(ctx context.Context) (T, error)

func (f OperationFunc[T]) Call(ctx context.Context) (T, error) {
	return f(ctx)
}

// Deadlined is implemented by operations that know their own deadline; the
// driver hands it to the predicates so they can bound their delays. The
// driver itself never consults the ambient execution context.
type Deadlined interface {
	DeadlineNanos() int64
}

// LastResultHook lets an operation transform the value the driver is about
// to return.
type LastResultHook[T any] interface {
	LastResult(v T) T
}

// LastErrorHook lets an operation transform, or swallow by returning nil,
// the terminal failure the driver is about to return. Swallowing is opt-in
// and should be rare.
type LastErrorHook interface {
	LastError(err error) error
}

// TimeoutCallable pre-computes its deadline at construction, from the
// ambient context active at that point, so the operation and its predicates
// share one deadline.
type TimeoutCallable[T any] struct {
	fn            OperationFunc[T]
	deadlineNanos int64
}

func NewTimeoutCallable[T any](timeout time.Duration, fn func(ctx context.Context) (T, error)) *TimeoutCallable[T] {
	return &TimeoutCallable[T]{
		fn:            fn,
		deadlineNanos: opctx.ComputeDeadline(nil, timeout),
	}
}

func (c *TimeoutCallable[T]) Call(ctx context.Context) (T, error) {
	return c.fn(ctx)
}

func (c *TimeoutCallable[T]) DeadlineNanos() int64 {
	return c.deadlineNanos
}

// Option tweaks one Execute invocation.
type Option[T any] func(*executor[T])

// WithLogger logs each retry decision at debug level.
func WithLogger[T any](logger zerolog.Logger) Option[T] {
	return func(ex *executor[T]) {
		ex.logger = &logger
	}
}

// WithDeclared restricts the error type Execute may surface: a terminal
// failure not matching the predicate is wrapped so callers can tell a
// declared domain failure from an unexpected one.
func WithDeclared[T any](declared func(err error) bool) Option[T] {
	return func(ex *executor[T]) {
		ex.declared = declared
	}
}

type executor[T any] struct {
	logger   *zerolog.Logger
	declared func(err error) bool
}

// Execute repeatedly invokes op until it succeeds, a predicate aborts, or
// ctx is cancelled. onResult classifies returned values, onErr classifies
// failures; either may block to implement inter-attempt delay. Each call
// starts with fresh state. On a terminal failure every retried prior
// failure is reachable via GetSuppressed, oldest first.
func Execute[T any](ctx context.Context, op Operation[T],
	onResult TimeoutPredicate[T], onErr TimeoutPredicate[error], opts ...Option[T]) (T, error) {
	var ex executor[T]
	for _, opt := range opts {
		opt(&ex)
	}
	var zero T
	deadlineNanos := int64(math.MaxInt64)
	if d, ok := op.(Deadlined); ok {
		deadlineNanos = d.DeadlineNanos()
	}
	var priors []error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, interrupted(err, priors)
		}
		v, err := op.Call(ctx)
		if err != nil && ctx.Err() != nil {
			// The operation failed because the driver was cancelled; never
			// retried, even if a predicate would have said otherwise.
			return zero, interrupted(ctx.Err(), append(priors, err))
		}
		var decision Decision
		var predicateErr error
		if err != nil {
			decision, predicateErr = onErr(ctx, err, deadlineNanos)
		} else {
			decision, predicateErr = onResult(ctx, v, deadlineNanos)
		}
		if predicateErr != nil {
			// Deadline exhaustion or interruption inside the predicate's
			// sleep propagates as the primary; the attempt failures ride
			// along suppressed.
			if err != nil {
				priors = append(priors, err)
			}
			return zero, Suppress(predicateErr, priors...)
		}
		if ex.logger != nil {
			ex.logger.Debug().
				Int("attempt", attempt).
				Stringer("decision", decision).
				Err(err).
				Msg("retry decision")
		}
		if decision == Abort {
			if err != nil {
				return zero, ex.terminal(op, err, priors)
			}
			if hook, ok := op.(LastResultHook[T]); ok {
				v = hook.LastResult(v)
			}
			return v, nil
		}
		if err != nil {
			priors = append(priors, err)
		}
	}
}

// ExecuteDefault runs op with the stock policy: first value wins, transient
// failures retry under Fibonacci backoff with one immediate retry, 10ms
// growing to 1s delays.
func ExecuteDefault[T any](ctx context.Context, op Operation[T]) (T, error) {
	fib := NewFibonacciRetryPredicate[error](
		func(err error) Decision { return DefaultErrorRetry(err) }, nil,
		1, 10*time.Millisecond, time.Second)
	return Execute[T](ctx, op, FromPredicate(NoRetryForResult[T]()), fib.AsTimeout())
}

func (ex *executor[T]) terminal(op Operation[T], err error, priors []error) error {
	if hook, ok := op.(LastErrorHook); ok {
		err = hook.LastError(err)
		if err == nil {
			return nil
		}
	}
	err = Suppress(err, priors...)
	if ex.declared != nil && !ex.declared(err) {
		err = errors.Wrap(err, "undeclared failure")
	}
	return err
}

func interrupted(err error, priors []error) error {
	return Suppress(errors.Wrap(err, "retrying interrupted"), priors...)
}
