package httpapi

import (
	"context"
	"net/http"
	"time"
)

// defaultReadyTimeout bounds readiness checks when the caller passes none.
const defaultReadyTimeout = 2 * time.Second

type ReadyzCheck func(ctx context.Context) error

func Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// Readyz answers 200 once every check passes within the timeout, 503
// otherwise. A non-positive timeout falls back to defaultReadyTimeout.
func Readyz(timeout time.Duration, checks ...ReadyzCheck) http.HandlerFunc {
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		for _, check := range checks {
			if err := check(ctx); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
