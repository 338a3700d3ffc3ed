package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/seren/internal/store"
)

const janitorInterval = 12 * time.Hour

// usageRetentionMonths is how many closed calendar months of counters are
// kept for support queries before pruning.
const usageRetentionMonths = 3

// StartJanitor runs a background goroutine that periodically prunes usage
// counters older than the retention window.
func StartJanitor(ctx context.Context, repo store.Repository) {
	ticker := time.NewTicker(janitorInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Usage janitor started", "interval", janitorInterval, "retention_months", usageRetentionMonths)

		for {
			select {
			case <-ticker.C:
				pruneOldUsage(ctx, repo)
			case <-ctx.Done():
				slog.Info("Usage janitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func pruneOldUsage(ctx context.Context, repo store.Repository) {
	cutoff := time.Now().UTC().AddDate(0, -usageRetentionMonths, 0).Format("2006-01")
	deleted, err := repo.PruneUsageBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Usage janitor failed to prune counters", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Usage janitor pruned counters", "deleted", deleted, "cutoff", cutoff)
	}
}
