package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/verisend/server/internal/domain/verification"
)

// DeliveryArgs carries everything the worker needs so it never has to read
// the token back from the database.
type DeliveryArgs struct {
	VerificationID string    `json:"verification_id"`
	Identifier     string    `json:"identifier"`
	Value          string    `json:"value"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func (DeliveryArgs) Kind() string { return JobKindDelivery }

// Sender delivers a verification token out-of-band, implemented by
// internal/email.
type Sender interface {
	SendVerification(ctx context.Context, identifier, value string, expiresAt time.Time) error
}

// DeliveryWorker emails the verification token to the identifier.
type DeliveryWorker struct {
	river.WorkerDefaults[DeliveryArgs]
	Sender Sender
	Logger *slog.Logger
}

func (DeliveryWorker) Kind() string { return JobKindDelivery }

func (w DeliveryWorker) Work(ctx context.Context, job *river.Job[DeliveryArgs]) error {
	if w.Sender == nil {
		return fmt.Errorf("sender not configured")
	}

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// A challenge that expired while the job sat in the queue is not worth
	// delivering; cancel instead of burning retries.
	if !job.Args.ExpiresAt.IsZero() && !job.Args.ExpiresAt.After(time.Now()) {
		logger.Warn("verification expired before delivery",
			"verification_id", job.Args.VerificationID,
			"attempt", job.Attempt,
		)
		return river.JobCancel(fmt.Errorf("verification %s expired before delivery", job.Args.VerificationID))
	}

	if err := w.Sender.SendVerification(ctx, job.Args.Identifier, job.Args.Value, job.Args.ExpiresAt); err != nil {
		return fmt.Errorf("deliver verification %s: %w", job.Args.VerificationID, err)
	}

	logger.Info("verification delivered",
		"verification_id", job.Args.VerificationID,
		"attempt", job.Attempt,
	)
	return nil
}

// Enqueuer implements verification.DeliveryEnqueuer on a River client.
type Enqueuer struct {
	client *river.Client[pgx.Tx]
}

func NewEnqueuer(client *river.Client[pgx.Tx]) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) EnqueueDelivery(ctx context.Context, v verification.Verification) error {
	if e.client == nil {
		return fmt.Errorf("river client not configured")
	}
	opts := InsertOptsForKind(JobKindDelivery)
	_, err := e.client.Insert(ctx, DeliveryArgs{
		VerificationID: v.ID,
		Identifier:     v.Identifier,
		Value:          v.Value,
		ExpiresAt:      v.ExpiresAt,
	}, &opts)
	if err != nil {
		return fmt.Errorf("enqueue delivery: %w", err)
	}
	return nil
}
