package opctx

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

type ContextIDKey struct{}
type BaseContextKey struct{}

// GetContextID returns the id of the execution context reachable through ctx,
// or an empty string when there is none.
func GetContextID(ctx context.Context) string {
	id := ctx.Value(ContextIDKey{})
	if id == nil {
		return ""
	}
	return id.(string)
}

// GetExecutionContext resolves the underlying execution context from any
// context.Context that wraps one. Returns nil when ctx is not backed by one.
func GetExecutionContext(ctx context.Context) *Context {
	v := ctx.Value(BaseContextKey{})
	if v == nil {
		return nil
	}
	return v.(*Context)
}

// DefaultTimeout applies when a context is started with no timeout and no
// parent to inherit from.
const DefaultTimeout = 8 * time.Hour

var ErrDeadlineExceeded = errors.New("deadline exceeded")
var ErrClosed = errors.New("execution context closed")
var ErrMisuse = errors.New("context registry misuse")
var ErrConfig = errors.New("invalid execution context configuration")
