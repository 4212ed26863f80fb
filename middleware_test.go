package opctx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/weisbartb/opctx"
)

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

func TestNewHTTPMiddleware(t *testing.T) {
	factory := newTestFactory(t, opctx.Config{FactoryIdentifier: "http"})
	var seen *opctx.Context
	handler := opctx.NewHTTPMiddleware(factory, "GET /things", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = opctx.GetExecutionContext(r.Context())
		require.NotNil(t, seen)
		require.Equal(t, seen, opctx.Current())
		w.WriteHeader(http.StatusNoContent)
	}))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/things", nil))
	require.Equal(t, http.StatusNoContent, recorder.Code)
	require.Equal(t, seen.ID(), recorder.Header().Get("X-Request-ID"))
	require.True(t, seen.Closed())
}

func TestNewHTTPMiddleware_InheritsRequestDeadline(t *testing.T) {
	factory := newTestFactory(t, opctx.Config{FactoryIdentifier: "http"})
	handler := opctx.NewHTTPMiddleware(factory, "GET /slow", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		millis, err := opctx.MillisToDeadline()
		require.NoError(t, err)
		require.LessOrEqual(t, millis, int64(100))
	}))
	request := httptest.NewRequest(http.MethodGet, "/slow", nil)
	ctx, cancel := contextWithTimeout(100 * time.Millisecond)
	defer cancel()
	handler.ServeHTTP(httptest.NewRecorder(), request.WithContext(ctx))
}
