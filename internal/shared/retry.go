package shared

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetrySQLite runs op up to attempts times, backing off exponentially from
// baseDelay while op fails with a SQLite busy or locked error.
func RetrySQLite(ctx context.Context, name string, attempts int, baseDelay time.Duration, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if !IsSQLiteConflictError(err) || i == attempts-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms, 200ms ...
		slog.Debug("SQLite busy, retrying", "op", name, "attempt", i+1, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
	}

	return fmt.Errorf("%s: %w", name, err)
}
