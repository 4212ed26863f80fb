package opctx

import (
	"net/http"
	"time"
)

// NewHTTPMiddleware wraps handler so every request runs inside an attached
// execution context named after the route. The context id is echoed in the
// X-Request-ID response header, and a deadline already present on the
// request's context (e.g. from a server timeout) is inherited when tighter
// than the factory default.
func NewHTTPMiddleware(factory *Factory, name string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		timeout := factory.DefaultTTL()
		if wallDeadline, ok := request.Context().Deadline(); ok {
			if remaining := time.Until(wallDeadline); remaining < timeout {
				timeout = remaining
			}
		}
		if timeout <= 0 {
			// The request arrived already past its deadline; the handler's
			// own deadline checks will fail fast.
			timeout = time.Nanosecond
		}
		ctx := factory.StartTimeout(name, timeout)
		defer ctx.Close()
		writer.Header().Set("X-Request-ID", ctx.ID())
		handler.ServeHTTP(writer, request.WithContext(ctx))
	})
}
