package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/example/staff-scheduler/internal/application"
	"github.com/example/staff-scheduler/internal/logging"
)

// Identity headers resolved by the session layer in front of this service.
const (
	headerMemberID    = "X-Member-ID"
	headerWorkspaceID = "X-Workspace-ID"
)

// Middleware wraps a handler with one concern.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so the first listed runs outermost.
func Chain(handler http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

var requestCounter atomic.Uint64

// RequestLogger attaches a request-scoped logger to the context and logs one
// line per request with status and duration.
func RequestLogger(base *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := strconv.FormatUint(requestCounter.Add(1), 10)
			logger := base.With("request_id", requestID)

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			ctx := logging.ContextWithLogger(r.Context(), logger)
			next.ServeHTTP(recorder, r.WithContext(ctx))

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// RequirePrincipal rejects requests without resolved identity headers and
// stores the principal and workspace on the context.
func RequirePrincipal(logger *slog.Logger) Middleware {
	resp := responder{logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			memberID := r.Header.Get(headerMemberID)
			workspaceID := r.Header.Get(headerWorkspaceID)
			if memberID == "" || workspaceID == "" {
				resp.writeError(w, http.StatusUnauthorized, "unauthenticated",
					"member and workspace identity headers are required")
				return
			}
			ctx := contextWithPrincipal(r.Context(), application.Principal{MemberID: memberID}, workspaceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
