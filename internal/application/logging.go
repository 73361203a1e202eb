package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/staff-scheduler/internal/logging"
)

// serviceLogger resolves the request-scoped logger when present, falling back
// to the service's base logger, and tags it with service and operation.
func serviceLogger(ctx context.Context, base *slog.Logger, service, operation string) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("service", service, "operation", operation)
}

// ErrorKind maps a service error onto a stable label for logs and metrics.
func ErrorKind(err error) string {
	var validation *ValidationError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &validation):
		return "validation"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}
