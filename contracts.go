package opctx

import "sync/atomic"

// ContextFactory is the single construction point for execution contexts.
// Alternate implementations are registered by name, see RegisterFactory.
type ContextFactory interface {
	// Start builds a context. id may be empty (minted lazily), parent may be
	// nil. The deadline has already been clamped to the parent's.
	Start(f *Factory, name string, id string, parent *Context, relation Relation, startNanos int64, deadlineNanos int64) *Context
}

// FactoryWrapper decorates an inner ContextFactory so orthogonal concerns can
// interpose without call sites changing. Wrappers are chosen once at factory
// construction and are immutable afterwards.
type FactoryWrapper interface {
	Wrap(inner ContextFactory) ContextFactory
}

// DefaultContextFactory returns the stock context factory backing the
// "default" registry entry. Custom factories registered through
// RegisterFactory typically delegate to it.
func DefaultContextFactory() ContextFactory {
	return basicContextFactory{}
}

type basicContextFactory struct{}

func (basicContextFactory) Start(f *Factory, name string, id string, parent *Context, relation Relation, startNanos int64, deadlineNanos int64) *Context {
	ctx := &Context{
		factory:       f,
		name:          name,
		id:            id,
		parent:        parent,
		relation:      relation,
		startNanos:    startNanos,
		deadlineNanos: deadlineNanos,
		complete:      make(chan struct{}),
	}
	if parent != nil {
		parent.addChild(ctx)
	}
	return ctx
}

// CountingFactory wraps an inner factory and counts every context it builds.
type CountingFactory struct {
	inner   ContextFactory
	started atomic.Int64
}

func (c *CountingFactory) Wrap(inner ContextFactory) ContextFactory {
	c.inner = inner
	return c
}

func (c *CountingFactory) Start(f *Factory, name string, id string, parent *Context, relation Relation, startNanos int64, deadlineNanos int64) *Context {
	c.started.Add(1)
	return c.inner.Start(f, name, id, parent, relation, startNanos, deadlineNanos)
}

// Started returns the number of contexts built through this wrapper.
func (c *CountingFactory) Started() int64 {
	return c.started.Load()
}
