package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds the total wall-clock budget of a request,
// covering every attempt in a fallback chain. The derived deadline is what
// generation attempts observe as parent-context cancellation. It does not
// forcibly terminate the handler; cancellation is cooperative.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
