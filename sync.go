package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/lexandro/assetindex-mcp/cache"
	"github.com/lexandro/assetindex-mcp/tools"
)

// SyncResult holds the outcome of a single sync verification run.
type SyncResult struct {
	cache.RefreshResult
	Duration time.Duration
}

// runPeriodicSync re-enumerates the project at the given interval, catching
// changes the watcher missed. It runs until ctx is done.
func runPeriodicSync(ctx context.Context, interval time.Duration, q tools.Querier, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("periodic sync started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			logger.Info("periodic sync stopped")
			return nil
		case <-ticker.C:
			result, err := performSyncVerification(ctx, q)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn("sync verification failed", "error", err)
				continue
			}
			totalDiscrepancies := result.Added + result.Changed + result.Missing
			if totalDiscrepancies > 0 {
				logger.Info("sync verification complete",
					"added", result.Added,
					"changed", result.Changed,
					"missing", result.Missing,
					"duration", result.Duration,
				)
			} else {
				logger.Debug("sync verification complete, cache is in sync", "duration", result.Duration)
			}
		}
	}
}

// performSyncVerification compares the project with the cache and queues
// every out-of-sync record.
func performSyncVerification(ctx context.Context, q tools.Querier) (SyncResult, error) {
	start := time.Now()
	var result SyncResult
	var refreshErr error
	err := q.Do(ctx, func(c *cache.Cache) {
		result.RefreshResult, refreshErr = c.Refresh(false)
	})
	if err == nil {
		err = refreshErr
	}
	result.Duration = time.Since(start)
	return result, err
}
