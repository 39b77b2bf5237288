package verification

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultTTL = 15 * time.Minute
	MinTTL     = 30 * time.Second
	MaxTTL     = 24 * time.Hour
)

// Lifecycle event types streamed to WebSocket subscribers.
const (
	EventCreated   = "verification.created"
	EventConfirmed = "verification.confirmed"
	EventRevoked   = "verification.revoked"
)

// Event is a verification lifecycle notification. The token value is never
// included; it only travels over the delivery channel.
type Event struct {
	Type           string    `json:"type"`
	VerificationID string    `json:"verification_id"`
	Identifier     string    `json:"identifier"`
	At             time.Time `json:"at"`
}

// Publisher fans lifecycle events out to subscribers, locally and across
// processes.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// DeliveryEnqueuer schedules out-of-band delivery of a freshly created
// challenge, implemented by internal/jobs.
type DeliveryEnqueuer interface {
	EnqueueDelivery(ctx context.Context, v Verification) error
}

type Service struct {
	repo      Repository
	enqueuer  DeliveryEnqueuer
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// SetEnqueuer installs the delivery enqueuer after construction. The job
// client needs the service for cleanup work, so the two are wired in stages
// at startup.
func (s *Service) SetEnqueuer(enqueuer DeliveryEnqueuer) {
	s.enqueuer = enqueuer
}

func NewService(repo Repository, enqueuer DeliveryEnqueuer, publisher Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		enqueuer:  enqueuer,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Create generates a challenge for the identifier, persists it, and
// schedules delivery. The ttl is clamped to [MinTTL, MaxTTL]; a zero ttl
// uses DefaultTTL.
func (s *Service) Create(ctx context.Context, identifier string, ttl time.Duration) (Verification, error) {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if ttl < MinTTL {
		ttl = MinTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	token, err := NewToken(DefaultTokenLength)
	if err != nil {
		return Verification{}, err
	}

	now := s.now().UTC()
	record := Verification{
		ID:         ulid.Make().String(),
		Identifier: identifier,
		Value:      token,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Insert(ctx, record); err != nil {
		return Verification{}, fmt.Errorf("insert verification: %w", err)
	}

	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueDelivery(ctx, record); err != nil {
			// The record exists either way; the caller can retry delivery.
			s.logger.Error().Err(err).Str("verification_id", record.ID).Msg("enqueue delivery failed")
		}
	}

	s.publish(ctx, Event{
		Type:           EventCreated,
		VerificationID: record.ID,
		Identifier:     record.Identifier,
		At:             now,
	})
	return record, nil
}

// Confirm checks the submitted value against the newest live record for
// the identifier and consumes the record on success. Expired records are
// indistinguishable from missing ones.
func (s *Service) Confirm(ctx context.Context, identifier, value string) error {
	record, err := s.repo.LatestByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	if record.Expired(now) {
		return ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(record.Value), []byte(value)) != 1 {
		return ErrMismatch
	}

	if err := s.repo.Delete(ctx, record.ID); err != nil {
		return fmt.Errorf("consume verification: %w", err)
	}

	s.publish(ctx, Event{
		Type:           EventConfirmed,
		VerificationID: record.ID,
		Identifier:     record.Identifier,
		At:             now,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (Verification, error) {
	return s.repo.GetByID(ctx, id)
}

// Revoke deletes a record regardless of expiry.
func (s *Service) Revoke(ctx context.Context, id string) error {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, record.ID); err != nil {
		return fmt.Errorf("revoke verification: %w", err)
	}

	s.publish(ctx, Event{
		Type:           EventRevoked,
		VerificationID: record.ID,
		Identifier:     record.Identifier,
		At:             s.now().UTC(),
	})
	return nil
}

// DeleteExpired removes all records whose expiry has passed and returns
// the number deleted. Called by the periodic cleanup job.
func (s *Service) DeleteExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now().UTC())
}

func (s *Service) publish(ctx context.Context, event Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event", event.Type).Msg("publish event failed")
	}
}

// WithClock overrides the service clock. Test helper.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}
