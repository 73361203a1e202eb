package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/staff-scheduler/internal/persistence"
)

// defaultStorageTimeout bounds every repository call when the service was
// constructed without an explicit timeout.
const defaultStorageTimeout = 5 * time.Second

func storageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultStorageTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// mapStorageError translates persistence sentinels into service errors.
// Timeouts and availability failures surface as retryable.
func mapStorageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, persistence.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	case errors.Is(err, persistence.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, persistence.ErrConstraintViolation), errors.Is(err, persistence.ErrForeignKeyViolation):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
