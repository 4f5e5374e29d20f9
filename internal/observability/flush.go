package observability

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
)

// FlushTelemetry syncs the logger before process exit. Metrics are pulled by
// Prometheus and need no flush. Sync errors from console file descriptors
// (stderr attached to a terminal or pipe) are not failures and are ignored.
// Returns ctx.Err() if ctx is already done.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("flush telemetry: %w", err)
	}
	if logger == nil {
		return nil
	}
	if err := logger.Sync(); err != nil && !isConsoleSyncError(err) {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}

func isConsoleSyncError(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EBADF)
}
