package middleware

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/user/cardshot/pkg/metrics"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Metrics counts requests by kind: the hosted document itself or one of its assets.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		metrics.HostRequestsTotal.WithLabelValues(requestKind(r), strconv.Itoa(rw.statusCode)).Inc()
	})
}

// requestKind reads the route params chi filled in while serving.
func requestKind(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.URLParam("id") == "" {
		return "other"
	}
	if rctx.URLParam("*") == "" {
		return "document"
	}
	return "asset"
}
