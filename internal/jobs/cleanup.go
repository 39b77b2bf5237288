package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/verisend/server/internal/metrics"
)

// CleanupArgs defines the periodic job that removes expired verification
// records.
type CleanupArgs struct{}

func (CleanupArgs) Kind() string { return JobKindCleanup }

// ExpiredDeleter is the slice of the verification service the cleanup
// worker needs.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

type CleanupWorker struct {
	river.WorkerDefaults[CleanupArgs]
	Service ExpiredDeleter
	Logger  *slog.Logger
}

func (CleanupWorker) Kind() string { return JobKindCleanup }

func (w CleanupWorker) Work(ctx context.Context, job *river.Job[CleanupArgs]) error {
	if w.Service == nil {
		return fmt.Errorf("verification service not configured")
	}

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	deleted, err := w.Service.DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("cleanup expired verifications: %w", err)
	}

	metrics.VerificationsExpired.Add(float64(deleted))
	logger.Info("expired verifications cleaned up",
		"deleted", deleted,
		"duration", time.Since(start),
		"attempt", job.Attempt,
	)
	return nil
}
