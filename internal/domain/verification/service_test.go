package verification

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu      sync.Mutex
	records map[string]Verification
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: map[string]Verification{}}
}

func (r *memoryRepo) Insert(_ context.Context, v Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[v.ID] = v
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return Verification{}, ErrNotFound
	}
	return record, nil
}

func (r *memoryRepo) LatestByIdentifier(_ context.Context, identifier string) (Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matches []Verification
	for _, record := range r.records {
		if record.Identifier == identifier {
			matches = append(matches, record)
		}
	}
	if len(matches) == 0 {
		return Verification{}, ErrNotFound
	}
	// ULIDs sort lexicographically by creation time.
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID > matches[j].ID })
	return matches[0], nil
}

func (r *memoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *memoryRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, record := range r.records {
		if record.Expired(now) {
			delete(r.records, id)
			deleted++
		}
	}
	return deleted, nil
}

type recordingEnqueuer struct {
	mu       sync.Mutex
	enqueued []Verification
}

func (e *recordingEnqueuer) EnqueueDelivery(_ context.Context, v Verification) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enqueued = append(e.enqueued, v)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *recordingEnqueuer, *recordingPublisher) {
	t.Helper()
	repo := newMemoryRepo()
	enqueuer := &recordingEnqueuer{}
	publisher := &recordingPublisher{}
	service := NewService(repo, enqueuer, publisher, zerolog.Nop())
	return service, repo, enqueuer, publisher
}

func TestCreate_StoresRecordAndEnqueuesDelivery(t *testing.T) {
	service, repo, enqueuer, publisher := newTestService(t)

	record, err := service.Create(context.Background(), "user@example.com", 10*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, record.ID)
	require.Len(t, record.Value, DefaultTokenLength)
	require.True(t, record.ExpiresAt.After(time.Now()))

	stored, err := repo.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	require.Equal(t, record.Value, stored.Value)

	require.Len(t, enqueuer.enqueued, 1)
	require.Equal(t, record.ID, enqueuer.enqueued[0].ID)

	require.Len(t, publisher.events, 1)
	require.Equal(t, EventCreated, publisher.events[0].Type)
	require.Equal(t, "user@example.com", publisher.events[0].Identifier)
}

func TestCreate_ClampsTTL(t *testing.T) {
	service, _, _, _ := newTestService(t)

	record, err := service.Create(context.Background(), "user@example.com", time.Second)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(MinTTL), record.ExpiresAt, 5*time.Second)

	record, err = service.Create(context.Background(), "user@example.com", 1000*time.Hour)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(MaxTTL), record.ExpiresAt, 5*time.Second)
}

func TestConfirm_ConsumesRecord(t *testing.T) {
	service, repo, _, publisher := newTestService(t)

	record, err := service.Create(context.Background(), "user@example.com", 10*time.Minute)
	require.NoError(t, err)

	require.NoError(t, service.Confirm(context.Background(), "user@example.com", record.Value))

	_, err = repo.GetByID(context.Background(), record.ID)
	require.ErrorIs(t, err, ErrNotFound)

	require.Equal(t, EventConfirmed, publisher.events[len(publisher.events)-1].Type)

	// Single use: a second confirmation fails.
	require.ErrorIs(t, service.Confirm(context.Background(), "user@example.com", record.Value), ErrNotFound)
}

func TestConfirm_RejectsWrongValue(t *testing.T) {
	service, repo, _, _ := newTestService(t)

	record, err := service.Create(context.Background(), "user@example.com", 10*time.Minute)
	require.NoError(t, err)

	require.ErrorIs(t, service.Confirm(context.Background(), "user@example.com", "WRONG"), ErrMismatch)

	// Record survives a failed attempt.
	_, err = repo.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
}

func TestConfirm_ExpiredLooksLikeMissing(t *testing.T) {
	service, _, _, _ := newTestService(t)

	record, err := service.Create(context.Background(), "user@example.com", 10*time.Minute)
	require.NoError(t, err)

	service.WithClock(func() time.Time { return time.Now().Add(48 * time.Hour) })
	require.ErrorIs(t, service.Confirm(context.Background(), "user@example.com", record.Value), ErrNotFound)
}

func TestConfirm_NewestRecordWins(t *testing.T) {
	service, _, _, _ := newTestService(t)

	first, err := service.Create(context.Background(), "user@example.com", 10*time.Minute)
	require.NoError(t, err)
	second, err := service.Create(context.Background(), "user@example.com", 10*time.Minute)
	require.NoError(t, err)

	require.ErrorIs(t, service.Confirm(context.Background(), "user@example.com", first.Value), ErrMismatch)
	require.NoError(t, service.Confirm(context.Background(), "user@example.com", second.Value))
}

func TestRevoke_PublishesEvent(t *testing.T) {
	service, repo, _, publisher := newTestService(t)

	record, err := service.Create(context.Background(), "user@example.com", 10*time.Minute)
	require.NoError(t, err)

	require.NoError(t, service.Revoke(context.Background(), record.ID))
	_, err = repo.GetByID(context.Background(), record.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, EventRevoked, publisher.events[len(publisher.events)-1].Type)
}

func TestDeleteExpired(t *testing.T) {
	service, repo, _, _ := newTestService(t)

	_, err := service.Create(context.Background(), "live@example.com", 10*time.Minute)
	require.NoError(t, err)

	expired := Verification{
		ID:         "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Identifier: "stale@example.com",
		Value:      "ABCD1234",
		ExpiresAt:  time.Now().Add(-time.Hour),
		CreatedAt:  time.Now().Add(-2 * time.Hour),
		UpdatedAt:  time.Now().Add(-2 * time.Hour),
	}
	require.NoError(t, repo.Insert(context.Background(), expired))

	deleted, err := service.DeleteExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}

func TestExpired_Comparison(t *testing.T) {
	now := time.Now()
	past := Verification{ExpiresAt: now.Add(-time.Minute)}
	future := Verification{ExpiresAt: now.Add(time.Minute)}

	require.True(t, past.Expired(now))
	require.False(t, future.Expired(now))
	require.True(t, Verification{ExpiresAt: now}.Expired(now))
}

func TestNewToken(t *testing.T) {
	token, err := NewToken(8)
	require.NoError(t, err)
	require.Len(t, token, 8)

	for _, c := range token {
		require.Contains(t, tokenAlphabet, string(c))
	}

	other, err := NewToken(8)
	require.NoError(t, err)
	require.NotEqual(t, token, other)
}
