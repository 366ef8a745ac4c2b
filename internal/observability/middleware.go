package observability

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
)

// RecoverMiddleware turns panics into a 500 response and reports them.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			stack := string(debug.Stack())
			sentry.WithScope(func(scope *sentry.Scope) {
				scope.SetRequest(r)
				scope.SetExtra("stack", stack)
				sentry.CaptureException(fmt.Errorf("panic: %v", rec))
			})

			slog.Error("panic recovered", "method", r.Method, "path", r.URL.Path, "panic", rec)

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "internal_error",
				"message": "Internal server error.",
			})
		}()

		next.ServeHTTP(w, r)
	})
}
