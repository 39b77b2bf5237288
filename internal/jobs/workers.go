package jobs

import (
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
)

// WorkerDeps bundles what the registered workers need.
type WorkerDeps struct {
	Sender  Sender
	Service ExpiredDeleter
	Logger  *slog.Logger
}

// RegisterWorkers wires all job workers into a river.Workers registry.
func RegisterWorkers(workers *river.Workers, deps WorkerDeps) error {
	if workers == nil {
		return fmt.Errorf("workers registry is nil")
	}

	if err := river.AddWorkerSafely(workers, DeliveryWorker{Sender: deps.Sender, Logger: deps.Logger}); err != nil {
		return fmt.Errorf("register delivery worker: %w", err)
	}
	if err := river.AddWorkerSafely(workers, CleanupWorker{Service: deps.Service, Logger: deps.Logger}); err != nil {
		return fmt.Errorf("register cleanup worker: %w", err)
	}
	return nil
}
