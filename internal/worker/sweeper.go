// Package worker runs periodic background maintenance.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// Store is the persistence the sweeper prunes.
type Store interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
	DeleteMessageLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweeperConfig controls how often and how far back the sweeper prunes.
type SweeperConfig struct {
	Interval time.Duration
	// LogRetention is how long message logs are kept. Zero keeps them forever.
	LogRetention time.Duration
}

// StartSweeper runs a background goroutine that periodically removes
// expired conversation sessions and old message logs. It stops when ctx is
// cancelled.
func StartSweeper(ctx context.Context, store Store, cfg SweeperConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	ticker := time.NewTicker(cfg.Interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Sweeper started", "interval", cfg.Interval, "log_retention", cfg.LogRetention)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, store, cfg.LogRetention, time.Now())
			case <-ctx.Done():
				slog.Info("Sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep runs one pruning pass.
func Sweep(ctx context.Context, store Store, logRetention time.Duration, now time.Time) {
	if deleted, err := store.DeleteExpiredSessions(ctx); err != nil {
		slog.Error("Sweeper failed to delete expired sessions", "error", err)
	} else if deleted > 0 {
		slog.Info("Sweeper removed expired sessions", "count", deleted)
	}

	if logRetention <= 0 {
		return
	}
	if deleted, err := store.DeleteMessageLogsBefore(ctx, now.Add(-logRetention)); err != nil {
		slog.Error("Sweeper failed to prune message logs", "error", err)
	} else if deleted > 0 {
		slog.Info("Sweeper pruned message logs", "count", deleted)
	}
}
