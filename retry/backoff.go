package retry

import (
	"context"
	"reflect"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/weisbartb/opctx"
)

// RetryData is the per-failure-class register: remaining zero-delay attempts
// plus the Fibonacci state for subsequent delays. Registers belong to the
// FibonacciRetryPredicate that created them and last as long as it does; they
// are not reset between Execute calls that reuse the same predicate, and the
// predicate's register map is not synchronized.
type RetryData struct {
	ImmediateLeft int
	// Next delay is P2; advancing sets (P1, P2) = (P2, P1+P2). Millis.
	P1, P2   int64
	MaxDelay int64
}

func newRetryData(immediate int, minDelayMillis, maxDelayMillis int64) *RetryData {
	return &RetryData{
		ImmediateLeft: immediate,
		P1:            minDelayMillis,
		P2:            minDelayMillis,
		MaxDelay:      maxDelayMillis,
	}
}

// nextDelayMillis consumes the zero-delay budget first, then draws a
// randomized delay in [0, fib) capped at MaxDelay.
func (d *RetryData) nextDelayMillis(rnd *xorShift32) int64 {
	if d.ImmediateLeft > 0 {
		d.ImmediateLeft--
		return 0
	}
	fib := d.P2
	if fib > d.MaxDelay {
		fib = d.MaxDelay
	} else {
		d.P1, d.P2 = d.P2, d.P1+d.P2
	}
	if fib <= 0 {
		return 0
	}
	return int64(rnd.next()) % fib
}

// xorShift32 is a fast non-cryptographic PRNG. One instance per predicate;
// seedable so tests are deterministic.
type xorShift32 struct {
	state uint32
}

func (x *xorShift32) next() uint32 {
	x.state ^= x.state << 13
	x.state ^= x.state >> 17
	x.state ^= x.state << 5
	return x.state
}

// FibonacciRetryPredicate schedules retries with Fibonacci-growth randomized
// backoff, keyed per failure class. The key for an error is its root-cause
// concrete type; for values the caller supplies the key function.
type FibonacciRetryPredicate[T any] struct {
	classify    AdvancedPredicate[T]
	keyOf       func(v T) any
	nrImmediate int
	minDelay    time.Duration
	maxDelay    time.Duration
	registry    map[any]*RetryData
	rnd         xorShift32
}

// NewFibonacciRetryPredicate builds a predicate where the first nrImmediate
// retries per failure class are free and later ones sleep uniform[0, fib)
// milliseconds, fib growing from minDelay and saturating at maxDelay.
func NewFibonacciRetryPredicate[T any](classify AdvancedPredicate[T], keyOf func(v T) any,
	nrImmediate int, minDelay, maxDelay time.Duration) *FibonacciRetryPredicate[T] {
	return NewFibonacciRetryPredicateSeeded(classify, keyOf, nrImmediate, minDelay, maxDelay,
		uint32(opctx.NowNanos()))
}

// NewFibonacciRetryPredicateSeeded is the deterministic-seed constructor
// used by tests.
func NewFibonacciRetryPredicateSeeded[T any](classify AdvancedPredicate[T], keyOf func(v T) any,
	nrImmediate int, minDelay, maxDelay time.Duration, seed uint32) *FibonacciRetryPredicate[T] {
	if seed == 0 {
		seed = 1
	}
	if keyOf == nil {
		keyOf = func(v T) any { return ClassKey(v) }
	}
	return &FibonacciRetryPredicate[T]{
		classify:    classify,
		keyOf:       keyOf,
		nrImmediate: nrImmediate,
		minDelay:    minDelay,
		maxDelay:    maxDelay,
		registry:    make(map[any]*RetryData, 2),
		rnd:         xorShift32{state: seed},
	}
}

// Register exposes the failure-class register for key, or nil if that class
// has never demanded a delay.
func (p *FibonacciRetryPredicate[T]) Register(key any) *RetryData {
	return p.registry[key]
}

// Decide classifies v and, for retry outcomes, sleeps the scheduled delay.
// The delay is capped at the time left to deadlineNanos; when nothing is
// left the predicate aborts so the caller's latest failure surfaces.
func (p *FibonacciRetryPredicate[T]) Decide(ctx context.Context, v T, deadlineNanos int64) (Decision, error) {
	decision := p.classify(v)
	if decision == Abort {
		return Abort, nil
	}
	key := p.keyOf(v)
	data := p.registry[key]
	if data == nil {
		immediate := p.nrImmediate
		if decision == RetryDelayed {
			// A class that asked for delay on first sight gets no free
			// retries at all.
			immediate = 0
		}
		data = newRetryData(immediate, p.minDelay.Milliseconds(), p.maxDelay.Milliseconds())
		p.registry[key] = data
	}
	if decision == RetryImmediate {
		return Retry, nil
	}
	delayMillis := data.nextDelayMillis(&p.rnd)
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

// AsTimeout adapts the predicate to the driver's TimeoutPredicate shape.
func (p *FibonacciRetryPredicate[T]) AsTimeout() TimeoutPredicate[T] {
	return p.Decide
}

// ClassKey is the default failure-class key: the root-cause concrete type
// for errors, the concrete type (or nilClass) for values.
func ClassKey(v any) any {
	if err, ok := v.(error); ok {
		return reflect.TypeOf(RootCause(err))
	}
	if v == nil {
		return nilClass{}
	}
	return reflect.TypeOf(v)
}

type nilClass struct{}

// BackoffDelay yields successive inter-attempt delays. A negative delay
// means the strategy is exhausted.
type BackoffDelay interface {
	Next() time.Duration
}

// RandomizedBackoff jitters any BackoffDelay into uniform [0, inner.Next).
type RandomizedBackoff struct {
	inner BackoffDelay
	rnd   xorShift32
}

func NewRandomizedBackoff(inner BackoffDelay, seed uint32) *RandomizedBackoff {
	if seed == 0 {
		seed = 1
	}
	return &RandomizedBackoff{inner: inner, rnd: xorShift32{state: seed}}
}

func (r *RandomizedBackoff) Next() time.Duration {
	d := r.inner.Next()
	if d <= 0 {
		return d
	}
	return time.Duration(uint64(r.rnd.next()) % uint64(d))
}

// FixedBackoff always yields the same delay.
type FixedBackoff time.Duration

func (f FixedBackoff) Next() time.Duration {
	return time.Duration(f)
}

type backOffAdapter struct {
	inner backoff.BackOff
}

// FromBackOff adapts any cenkalti/backoff strategy (exponential, constant,
// with max retries) to a BackoffDelay; backoff.Stop maps to exhaustion.
func FromBackOff(b backoff.BackOff) BackoffDelay {
	return backOffAdapter{inner: b}
}

func (a backOffAdapter) Next() time.Duration {
	d := a.inner.NextBackOff()
	if d == backoff.Stop {
		return -1
	}
	return d
}

// DelayFromBackoff turns a BackoffDelay into a DelayPredicate that retries v
// unconditionally until the strategy is exhausted.
func DelayFromBackoff[T any](b BackoffDelay) DelayPredicate[T] {
	return func(T) int64 {
		d := b.Next()
		if d < 0 {
			return -1
		}
		return d.Milliseconds()
	}
}
