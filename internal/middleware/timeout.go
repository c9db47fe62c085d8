package middleware

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"playground-gateway/pkg/logging/logging"
)

// Timeout cancels the request context after d and returns 504 if still
// running. Only for non-streaming routes: the handler runs in its own
// goroutine and the ResponseWriter must not outlive this function, so
// SSE routes use per-stream deadlines on the upstream context instead.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			r = r.WithContext(ctx)

			done := make(chan struct{})
			go func() {
				next.ServeHTTP(w, r)
				close(done)
			}()

			select {
			case <-done:
				return
			case <-ctx.Done():
				logger := logging.L(ctx)
				logger.Warn("request timeout", zap.Duration("timeout", d))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusGatewayTimeout)
				_, _ = w.Write([]byte(`{"error":"gateway_timeout"}`))
			}
		})
	}
}
