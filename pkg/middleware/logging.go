package middleware

import (
	"net/http"
	"time"

	"github.com/docuvault/docuvault/pkg/contextkeys"
	"github.com/docuvault/docuvault/pkg/observability"
)

// statusRecorder captures the response status code for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogger logs each request with its request ID, user, status, and
// duration, and puts a request-scoped logger on the context.
func RequestLogger(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()

			reqLogger := logger.WithFields(map[string]interface{}{
				"request_id": contextkeys.GetRequestID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
			})

			ctx := observability.WithLogger(r.Context(), reqLogger)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))

			fields := map[string]interface{}{
				"status":      recorder.status,
				"duration_ms": time.Since(started).Milliseconds(),
			}
			if userID := contextkeys.GetUserID(r.Context()); userID != "" {
				fields["user_id"] = userID
			}
			reqLogger.WithFields(fields).Info("request completed")
		})
	}
}
