package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/llmgate/pkg/idx"
)

// HTTPMiddleware logs requests and attaches a contextual logger into request
// context. Proxied inference requests flow through here too, so the access
// log is the one place every request is visible.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = idx.New().String()
			}

			logger := base.With(
				"req_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			ctx := WithContext(r.Context(), logger)
			next.ServeHTTP(rw, r.WithContext(ctx))

			logger.Info("http_request",
				"status", rw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter

	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards flushes so streamed upstream responses are not buffered by
// the logging wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
