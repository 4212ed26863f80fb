package opctx

import (
	"time"

	"github.com/pkg/errors"
)

// Deadline arithmetic over the ambient current context. When no context is
// attached, the package default timeout stands in so callers always get a
// bound.

// ambientDeadline is the deadline of the current context, or now+default
// when no context is attached.
func ambientDeadline() int64 {
	if ctx := Current(); ctx != nil {
		return ctx.deadlineNanos
	}
	return DeadlineFrom(NowNanos(), DefaultTimeout)
}

// TimeRelativeToDeadline returns the remaining time to the ambient deadline
// in the given unit; negative once the deadline has passed.
func TimeRelativeToDeadline(unit time.Duration) int64 {
	return (ambientDeadline() - NowNanos()) / int64(unit)
}

// TimeToDeadline returns the non-negative remaining time to the ambient
// deadline in the given unit, failing with ErrDeadlineExceeded when the
// current instant is at or past it.
func TimeToDeadline(unit time.Duration) (int64, error) {
	remaining := ambientDeadline() - NowNanos()
	if remaining <= 0 {
		return 0, errors.Wrapf(ErrDeadlineExceeded, "deadline passed %v ago", time.Duration(-remaining))
	}
	return remaining / int64(unit), nil
}

func MillisToDeadline() (int64, error) {
	return TimeToDeadline(time.Millisecond)
}

func SecondsToDeadline() (int64, error) {
	return TimeToDeadline(time.Second)
}

// ComputeDeadline derives the absolute deadline for a sub-operation with the
// requested timeout: the tighter of now+timeout and the inherited deadline.
// A nil ctx falls back to the ambient current context.
func ComputeDeadline(ctx *Context, timeout time.Duration) int64 {
	if ctx == nil {
		ctx = Current()
	}
	deadline := DeadlineFrom(NowNanos(), timeout)
	if ctx != nil && ctx.deadlineNanos < deadline {
		deadline = ctx.deadlineNanos
	}
	return deadline
}

// ComputeTimeoutDeadline answers "how much time does this sub-operation have
// and by when must it stop": the effective timeout is the minimum of the
// requested timeout and the inherited remaining time, the deadline its
// absolute form. Fails with ErrDeadlineExceeded when nothing remains.
func ComputeTimeoutDeadline(ctx *Context, timeout time.Duration) (time.Duration, int64, error) {
	if ctx == nil {
		ctx = Current()
	}
	now := NowNanos()
	if ctx == nil {
		return timeout, DeadlineFrom(now, timeout), nil
	}
	remaining := ctx.deadlineNanos - now
	if remaining <= 0 {
		return 0, ctx.deadlineNanos, errors.Wrapf(ErrDeadlineExceeded,
			"context %v deadline passed %v ago", ctx.Name(), time.Duration(-remaining))
	}
	if int64(timeout) <= remaining {
		return timeout, DeadlineFrom(now, timeout), nil
	}
	return time.Duration(remaining), ctx.deadlineNanos, nil
}
