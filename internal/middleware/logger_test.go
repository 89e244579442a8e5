package middleware_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alovak/paytrust/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestStructuredLoggerLogsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf))

	r := chi.NewRouter()
	r.Use(middleware.NewStructuredLogger(logger))
	r.Use(middleware.SecurityHeaders)
	r.Get("/tokens/{token}/secure-info", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tokens/tok_0123456789abcdef/secure-info", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusTeapot, w.Code)
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	out := buf.String()
	require.Contains(t, out, "route=/tokens/{token}/secure-info")
	require.Contains(t, out, "status=418")
	require.NotContains(t, out, "tok_0123456789abcdef")
}
