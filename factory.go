package opctx

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/weisbartb/stack"
)

// Config is factory configuration. Values persist for the factory lifetime.
type Config struct {
	// FactoryIdentifier makes it easier to track down which factory a
	// diagnostic came from. Defaults to a random uuid.
	FactoryIdentifier string
	// DefaultTimeout bounds contexts started with no timeout and no parent.
	// Zero means DefaultTimeout (8h).
	DefaultTimeout time.Duration
	LogOutput      zerolog.Logger
	// Factory, FactoryWrapper and Attacher select registered implementations
	// by name. Empty selects the defaults ("default", none, "stack").
	Factory        string
	FactoryWrapper string
	Attacher       string
}

// Factory assembles the configured context factory, wrapper chain and
// attacher, and tracks the contexts it has opened. Its configuration is
// immutable after construction; only the open-context tracking changes. The
// factory is safe for use from any goroutine.
type Factory struct {
	identifier     string
	defaultTimeout time.Duration
	inner          ContextFactory
	attacher       Attacher
	logger         zerolog.Logger
	openContexts   atomic.Int32
	openWg         sync.WaitGroup
}

// NewFactory builds a factory from config. Unknown factory, wrapper or
// attacher names fail with ErrConfig; the process should not continue on
// that error.
func NewFactory(config Config) (*Factory, error) {
	if config.FactoryIdentifier == "" {
		config.FactoryIdentifier = uuid.New().String()
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultTimeout
	}
	factory := &Factory{
		identifier:     config.FactoryIdentifier,
		defaultTimeout: config.DefaultTimeout,
		logger:         config.LogOutput.With().Str("factory", config.FactoryIdentifier).Logger(),
	}
	inner, err := resolveFactory(config.Factory)
	if err != nil {
		return nil, err
	}
	if wrapper, err := resolveWrapper(config.FactoryWrapper); err != nil {
		return nil, err
	} else if wrapper != nil {
		inner = wrapper.Wrap(inner)
	}
	factory.inner = inner
	factory.attacher, err = resolveAttacher(config.Attacher, factory)
	if err != nil {
		return nil, err
	}
	return factory, nil
}

// NewFactoryFromEnv builds a factory from the process environment, see
// LoadSettings for the recognised keys.
func NewFactoryFromEnv(logger zerolog.Logger) (*Factory, error) {
	settings, err := LoadSettings(lookupEnv)
	if err != nil {
		return nil, err
	}
	return NewFactory(Config{
		DefaultTimeout: settings.DefaultTimeout,
		LogOutput:      logger,
		Factory:        settings.Factory,
		FactoryWrapper: settings.FactoryWrapper,
		Attacher:       settings.Attacher,
	})
}

func (factory *Factory) Identifier() string { return factory.identifier }

// DefaultTTL gets the default timeout applied to root contexts.
func (factory *Factory) DefaultTTL() time.Duration {
	return factory.defaultTimeout
}

// OpenContexts gets the count of all of the currently open contexts.
func (factory *Factory) OpenContexts() int {
	return int(factory.openContexts.Load())
}

// Shutdown waits for all open contexts to close, returning true on a clean
// shutdown and false when the deadline elapsed first.
func (factory *Factory) Shutdown(deadline time.Duration) bool {
	c := make(chan struct{})
	go func() {
		factory.openWg.Wait()
		close(c)
	}()
	select {
	case <-c:
		return true
	case <-time.After(deadline):
		factory.logger.Warn().
			Int("openContexts", factory.OpenContexts()).
			Msg("factory shutdown timed out with open contexts")
		return false
	}
}

// Start opens a context as a child of the ambient current context (or as a
// root when there is none) and attaches it to the calling goroutine.
func (factory *Factory) Start(name string) *Context {
	return factory.start(name, "", Current(), ChildOf, 0, true)
}

// StartTimeout opens an attached context bounded by timeout; a tighter
// inherited deadline still wins.
func (factory *Factory) StartTimeout(name string, timeout time.Duration) *Context {
	return factory.start(name, "", Current(), ChildOf, timeout, true)
}

// StartChild opens an attached child of an explicit parent.
func (factory *Factory) StartChild(name string, parent *Context) *Context {
	return factory.start(name, "", parent, ChildOf, 0, true)
}

// StartFollowing opens an attached context that follows from, rather than
// nests under, the given predecessor.
func (factory *Factory) StartFollowing(name string, predecessor *Context) *Context {
	return factory.start(name, "", predecessor, FollowsFrom, 0, true)
}

// StartDetached opens a context without attaching it to any goroutine; the
// caller attaches it later, typically on another goroutine.
func (factory *Factory) StartDetached(name string, parent *Context, timeout time.Duration) *Context {
	return factory.start(name, "", parent, ChildOf, timeout, false)
}

// StartFull is the fully-specified form backing every other starter. The
// supplied deadline is clamped so it never exceeds the parent's.
func (factory *Factory) StartFull(name string, id string, parent *Context, relation Relation, startNanos int64, deadlineNanos int64) *Context {
	if parent != nil && deadlineNanos > parent.deadlineNanos {
		deadlineNanos = parent.deadlineNanos
	}
	factory.openContexts.Add(1)
	factory.openWg.Add(1)
	ctx := factory.inner.Start(factory, name, id, parent, relation, startNanos, deadlineNanos)
	return ctx
}

// Attach binds an already-built (typically detached) context to the calling
// goroutine as the ambient current context. A context can be attached to at
// most one goroutine at a time; attaching an already-attached context is a
// programmer error.
func (factory *Factory) Attach(ctx *Context) Detacher {
	if ctx.attached() {
		factory.logger.Error().
			Str("contextId", ctx.ID()).
			Msg("context attached while already attached")
		panic(stack.Trace(ErrMisuse, stack.ErrorKVP{
			Key:   "contextId",
			Value: ctx.ID(),
		}, stack.ErrorKVP{
			Key:   "reason",
			Value: "context is already attached",
		}))
	}
	d := factory.attacher.Attach(ctx)
	ctx.setAttachment(d, goid())
	return d
}

func (factory *Factory) start(name string, id string, parent *Context, relation Relation, timeout time.Duration, attach bool) *Context {
	startNanos := NowNanos()
	var deadlineNanos int64
	switch {
	case timeout > 0:
		deadlineNanos = DeadlineFrom(startNanos, timeout)
	case parent != nil:
		deadlineNanos = parent.deadlineNanos
	default:
		deadlineNanos = DeadlineFrom(startNanos, factory.defaultTimeout)
	}
	ctx := factory.StartFull(name, id, parent, relation, startNanos, deadlineNanos)
	if attach {
		factory.Attach(ctx)
	}
	return ctx
}

func (factory *Factory) contextClosed() {
	factory.openContexts.Add(-1)
	factory.openWg.Done()
}

func (factory *Factory) GetLogger() zerolog.Logger {
	return factory.logger
}
