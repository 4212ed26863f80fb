package opctx

import (
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"github.com/weisbartb/stack"
)

// The registry keeps one stack of attached contexts per goroutine. A stack is
// only ever mutated by its owning goroutine; the map holding the stacks is
// the only shared structure.

type ctxStack struct {
	items []*Context
}

var stacks sync.Map // goroutine id -> *ctxStack

// goid extracts the current goroutine id from the runtime stack header
// ("goroutine N [...]"). See DESIGN.md for why this is not a library import.
func goid() uint64 {
	var buf [32]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for _, c := range buf[10:n] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}

// Current returns the context most recently attached on this goroutine that
// is still attached, or nil when the stack is empty.
func Current() *Context {
	v, ok := stacks.Load(goid())
	if !ok {
		return nil
	}
	s := v.(*ctxStack)
	if len(s.items) == 0 {
		return nil
	}
	return s.items[len(s.items)-1]
}

// Detacher undoes a single attachment. Detach must be called on the
// goroutine that attached and while the context is still top of stack.
type Detacher interface {
	Detach()
}

// Attacher binds a context to the calling goroutine as the ambient current
// context. Implementations may layer extra bookkeeping over the default
// per-goroutine stack.
type Attacher interface {
	Attach(ctx *Context) Detacher
}

// Attachment is the default stack-backed Detacher.
type Attachment struct {
	gid   uint64
	ctx   *Context
	depth int
}

// NewStackAttacher returns the default per-goroutine stack attacher backing
// the "stack" registry entry. Custom attachers registered through
// RegisterAttacher typically delegate to it.
func NewStackAttacher(factory *Factory) Attacher {
	return stackAttacher{logger: factory.logger}
}

type stackAttacher struct {
	logger zerolog.Logger
}

func (a stackAttacher) Attach(ctx *Context) Detacher {
	gid := goid()
	v, _ := stacks.LoadOrStore(gid, &ctxStack{})
	s := v.(*ctxStack)
	s.items = append(s.items, ctx)
	return &Attachment{gid: gid, ctx: ctx, depth: len(s.items)}
}

// Detach pops the attachment. Detaching from a different goroutine, or while
// a more recently attached sibling is still on the stack, is a programmer
// error: it is logged and then panics with ErrMisuse.
func (a *Attachment) Detach() {
	gid := goid()
	if gid != a.gid {
		a.ctx.factory.logger.Error().
			Str("contextId", a.ctx.ID()).
			Uint64("attachedOn", a.gid).
			Uint64("detachedOn", gid).
			Msg("context detached on a different goroutine")
		panic(stack.Trace(ErrMisuse, stack.ErrorKVP{
			Key:   "attachedOn",
			Value: a.gid,
		}, stack.ErrorKVP{
			Key:   "detachedOn",
			Value: gid,
		}))
	}
	v, ok := stacks.Load(gid)
	s, _ := v.(*ctxStack)
	if !ok || len(s.items) < a.depth || s.items[len(s.items)-1] != a.ctx {
		a.ctx.factory.logger.Error().
			Str("contextId", a.ctx.ID()).
			Msg("context detached out of order, a sibling attachment leaked")
		panic(stack.Trace(ErrMisuse, stack.ErrorKVP{
			Key:   "contextId",
			Value: a.ctx.ID(),
		}, stack.ErrorKVP{
			Key:   "reason",
			Value: "top of stack is not the expected context",
		}))
	}
	s.items = s.items[:len(s.items)-1]
	if len(s.items) == 0 {
		stacks.Delete(gid)
	}
	a.ctx.setAttachment(nil, 0)
}

// debugIDs mirrors the current context id per goroutine so diagnostics that
// cannot take a context parameter can still tag their output.
var debugIDs sync.Map // goroutine id -> string

// CurrentID returns the context id recorded by the debug attacher for this
// goroutine, or an empty string. Only populated when the debug attacher is
// configured.
func CurrentID() string {
	v, ok := debugIDs.Load(goid())
	if !ok {
		return ""
	}
	return v.(string)
}

type debugAttacher struct {
	inner  Attacher
	logger zerolog.Logger
}

type debugAttachment struct {
	inner Detacher
	gid   uint64
	prev  string
	had   bool
}

func (a debugAttacher) Attach(ctx *Context) Detacher {
	gid := goid()
	prev, had := debugIDs.Load(gid)
	d := &debugAttachment{inner: a.inner.Attach(ctx), gid: gid, had: had}
	if had {
		d.prev = prev.(string)
	}
	debugIDs.Store(gid, ctx.ID())
	a.logger.Debug().Str("contextId", ctx.ID()).Str("name", ctx.Name()).Msg("context attached")
	return d
}

func (d *debugAttachment) Detach() {
	d.inner.Detach()
	if d.had {
		debugIDs.Store(d.gid, d.prev)
	} else {
		debugIDs.Delete(d.gid)
	}
}
