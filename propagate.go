package opctx

// Task wrappers capture a context at construction so work handed to another
// goroutine (typically via a worker pool) runs under a child of it. The
// child is opened at invocation time and closed on every exit path. A parent
// whose deadline has already passed still gets a child; that child is
// immediately expired and the operation's own deadline checks are expected
// to abort it quickly.

// PropagatingCallable wraps op so that, wherever it runs, it executes inside
// a freshly attached child of ctx with ctx's deadline.
func PropagatingCallable[T any](ctx *Context, op func() (T, error)) func() (T, error) {
	return func() (T, error) {
		child := ctx.factory.StartFull(ctx.Name(), "", ctx, ChildOf, NowNanos(), ctx.deadlineNanos)
		ctx.factory.Attach(child)
		defer child.Close()
		return op()
	}
}

// DeadlinedPropagatingCallable is PropagatingCallable with an overridden
// deadline; the parent's tighter deadline still wins.
func DeadlinedPropagatingCallable[T any](ctx *Context, op func() (T, error), deadlineNanos int64) func() (T, error) {
	return func() (T, error) {
		child := ctx.factory.StartFull(ctx.Name(), "", ctx, ChildOf, NowNanos(), deadlineNanos)
		ctx.factory.Attach(child)
		defer child.Close()
		return op()
	}
}

// PropagatingRunnable is the result-free form of PropagatingCallable.
func PropagatingRunnable(ctx *Context, run func()) func() {
	return func() {
		child := ctx.factory.StartFull(ctx.Name(), "", ctx, ChildOf, NowNanos(), ctx.deadlineNanos)
		ctx.factory.Attach(child)
		defer child.Close()
		run()
	}
}

// PropagatingCallables wraps each op in order, capturing ctx once.
func PropagatingCallables[T any](ctx *Context, ops []func() (T, error)) []func() (T, error) {
	out := make([]func() (T, error), len(ops))
	for i, op := range ops {
		out[i] = PropagatingCallable(ctx, op)
	}
	return out
}

// DeadlinedPropagatingCallables wraps each op in order with a shared
// overridden deadline.
func DeadlinedPropagatingCallables[T any](ctx *Context, ops []func() (T, error), deadlineNanos int64) []func() (T, error) {
	out := make([]func() (T, error), len(ops))
	for i, op := range ops {
		out[i] = DeadlinedPropagatingCallable(ctx, op, deadlineNanos)
	}
	return out
}

// PropagatingRunnables wraps each runnable in order, capturing ctx once.
func PropagatingRunnables(ctx *Context, runs []func()) []func() {
	out := make([]func(), len(runs))
	for i, run := range runs {
		out[i] = PropagatingRunnable(ctx, run)
	}
	return out
}
