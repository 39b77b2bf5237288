package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

func TestRetryPolicy_ExponentialBackoff(t *testing.T) {
	policy := NewRetryPolicy()
	attemptedAt := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	job := &rivertype.JobRow{Kind: JobKindDelivery, Attempt: 1, AttemptedAt: &attemptedAt}
	if got := policy.NextRetry(job); !got.Equal(attemptedAt.Add(30 * time.Second)) {
		t.Errorf("attempt 1: expected +30s, got %s", got.Sub(attemptedAt))
	}

	job.Attempt = 3
	if got := policy.NextRetry(job); !got.Equal(attemptedAt.Add(2 * time.Minute)) {
		t.Errorf("attempt 3: expected +2m, got %s", got.Sub(attemptedAt))
	}
}

func TestRetryPolicy_CapsAtMaxDelay(t *testing.T) {
	policy := NewRetryPolicy()
	attemptedAt := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	job := &rivertype.JobRow{Kind: JobKindDelivery, Attempt: 20, AttemptedAt: &attemptedAt}
	if got := policy.NextRetry(job); !got.Equal(attemptedAt.Add(time.Hour)) {
		t.Errorf("expected delay capped at 1h, got %s", got.Sub(attemptedAt))
	}
}

func TestRetryPolicy_UnknownKindUsesDefault(t *testing.T) {
	policy := NewRetryPolicy()
	config := policy.configFor("something_else")
	if config.MaxAttempts != policy.Default.MaxAttempts {
		t.Errorf("expected default max attempts, got %d", config.MaxAttempts)
	}
}

func TestInsertOptsForKind(t *testing.T) {
	opts := InsertOptsForKind(JobKindDelivery)
	if opts.MaxAttempts != DeliveryMaxAttempts {
		t.Errorf("expected %d max attempts for delivery, got %d", DeliveryMaxAttempts, opts.MaxAttempts)
	}
}

type fakeSender struct {
	sent   int
	lastTo string
	err    error
}

func (s *fakeSender) SendVerification(_ context.Context, identifier, _ string, _ time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.sent++
	s.lastTo = identifier
	return nil
}

func TestDeliveryWorker_SendsToken(t *testing.T) {
	sender := &fakeSender{}
	worker := DeliveryWorker{Sender: sender}

	job := &river.Job[DeliveryArgs]{
		JobRow: &rivertype.JobRow{Attempt: 1},
		Args: DeliveryArgs{
			VerificationID: "01ARZ3NDEKTSV4RRFFQ69G5FAV",
			Identifier:     "user@example.com",
			Value:          "ABCD2345",
			ExpiresAt:      time.Now().Add(10 * time.Minute),
		},
	}

	if err := worker.Work(context.Background(), job); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if sender.sent != 1 || sender.lastTo != "user@example.com" {
		t.Errorf("expected one send to user@example.com, got %d to %q", sender.sent, sender.lastTo)
	}
}

func TestDeliveryWorker_CancelsExpiredChallenge(t *testing.T) {
	sender := &fakeSender{}
	worker := DeliveryWorker{Sender: sender}

	job := &river.Job[DeliveryArgs]{
		JobRow: &rivertype.JobRow{Attempt: 1},
		Args: DeliveryArgs{
			VerificationID: "01ARZ3NDEKTSV4RRFFQ69G5FAV",
			Identifier:     "user@example.com",
			Value:          "ABCD2345",
			ExpiresAt:      time.Now().Add(-time.Minute),
		},
	}

	err := worker.Work(context.Background(), job)
	if err == nil {
		t.Fatal("expected cancellation error for expired challenge")
	}
	if sender.sent != 0 {
		t.Errorf("expired challenge must not be delivered, sent=%d", sender.sent)
	}
}

type fakeDeleter struct {
	deleted int64
}

func (d *fakeDeleter) DeleteExpired(context.Context) (int64, error) {
	return d.deleted, nil
}

func TestCleanupWorker(t *testing.T) {
	worker := CleanupWorker{Service: &fakeDeleter{deleted: 3}}

	job := &river.Job[CleanupArgs]{JobRow: &rivertype.JobRow{Attempt: 1}}
	if err := worker.Work(context.Background(), job); err != nil {
		t.Fatalf("Work: %v", err)
	}
}

func TestRegisterWorkers(t *testing.T) {
	workers := river.NewWorkers()
	deps := WorkerDeps{Sender: &fakeSender{}, Service: &fakeDeleter{}}
	if err := RegisterWorkers(workers, deps); err != nil {
		t.Fatalf("RegisterWorkers: %v", err)
	}
}

func TestNewClient_InsertOnly(t *testing.T) {
	client, err := NewClient(nil, nil, nil, nil, nil, 0)
	if err != nil {
		t.Fatalf("insert-only client: %v", err)
	}
	if client == nil {
		t.Fatal("expected a client")
	}
}

func TestNewClient_WithWorkers(t *testing.T) {
	workers := river.NewWorkers()
	if err := RegisterWorkers(workers, WorkerDeps{Sender: &fakeSender{}, Service: &fakeDeleter{}}); err != nil {
		t.Fatalf("RegisterWorkers: %v", err)
	}

	client, err := NewClient(nil, workers, nil, nil, NewPeriodicJobs(time.Hour), 4)
	if err != nil {
		t.Fatalf("worker client: %v", err)
	}
	if client == nil {
		t.Fatal("expected a client")
	}
}

func TestNewClientConfig_InsertOnlyOmitsQueues(t *testing.T) {
	config := NewClientConfig(nil, nil, nil, NewPeriodicJobs(time.Hour), 4)
	if config.Queues != nil {
		t.Error("insert-only config must not declare queues")
	}
	if config.PeriodicJobs != nil {
		t.Error("insert-only config must not schedule periodic jobs")
	}

	config = NewClientConfig(river.NewWorkers(), nil, nil, NewPeriodicJobs(time.Hour), 4)
	if got := config.Queues[river.QueueDefault].MaxWorkers; got != 4 {
		t.Errorf("expected 4 max workers on default queue, got %d", got)
	}
	if len(config.PeriodicJobs) != 1 {
		t.Errorf("expected the cleanup periodic job, got %d", len(config.PeriodicJobs))
	}
}
