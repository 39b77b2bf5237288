package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/verisend/server/internal/domain/users"
	"github.com/verisend/server/internal/domain/verification"
	"github.com/verisend/server/internal/storage"
)

func newVerification(identifier string, expiresIn time.Duration) verification.Verification {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return verification.Verification{
		ID:         ulid.Make().String(),
		Identifier: identifier,
		Value:      "ABCD2345",
		ExpiresAt:  now.Add(expiresIn),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestVerificationRepository_InsertAndGet(t *testing.T) {
	pool := setupPostgres(t)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	ctx := context.Background()
	record := newVerification("user@example.com", 10*time.Minute)
	require.NoError(t, repo.Verifications().Insert(ctx, record))

	got, err := repo.Verifications().GetByID(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, record.Identifier, got.Identifier)
	require.Equal(t, record.Value, got.Value)
	require.WithinDuration(t, record.ExpiresAt, got.ExpiresAt, time.Millisecond)
}

func TestVerificationRepository_GetByID_NotFound(t *testing.T) {
	pool := setupPostgres(t)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	_, err = repo.Verifications().GetByID(context.Background(), ulid.Make().String())
	require.ErrorIs(t, err, verification.ErrNotFound)
}

func TestVerificationRepository_LatestByIdentifier(t *testing.T) {
	pool := setupPostgres(t)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	ctx := context.Background()
	first := newVerification("user@example.com", 10*time.Minute)
	require.NoError(t, repo.Verifications().Insert(ctx, first))

	second := newVerification("user@example.com", 10*time.Minute)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, repo.Verifications().Insert(ctx, second))

	got, err := repo.Verifications().LatestByIdentifier(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)
}

func TestVerificationRepository_DeleteExpired(t *testing.T) {
	pool := setupPostgres(t)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	ctx := context.Background()
	live := newVerification("live@example.com", 10*time.Minute)
	stale := newVerification("stale@example.com", -10*time.Minute)
	require.NoError(t, repo.Verifications().Insert(ctx, live))
	require.NoError(t, repo.Verifications().Insert(ctx, stale))

	deleted, err := repo.Verifications().DeleteExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	_, err = repo.Verifications().GetByID(ctx, stale.ID)
	require.ErrorIs(t, err, verification.ErrNotFound)
	_, err = repo.Verifications().GetByID(ctx, live.ID)
	require.NoError(t, err)
}

func TestVerificationRepository_WithTxRollsBack(t *testing.T) {
	pool := setupPostgres(t)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	ctx := context.Background()
	record := newVerification("tx@example.com", 10*time.Minute)

	txErr := repo.WithTx(ctx, func(ctx context.Context, txRepo storage.Repository) error {
		if err := txRepo.Verifications().Insert(ctx, record); err != nil {
			return err
		}
		return context.Canceled
	})
	require.Error(t, txErr)

	_, err = repo.Verifications().GetByID(ctx, record.ID)
	require.ErrorIs(t, err, verification.ErrNotFound)
}

func TestUserRepository_InsertAndGet(t *testing.T) {
	pool := setupPostgres(t)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	ctx := context.Background()
	user := users.User{
		ID:           ulid.Make().String(),
		Username:     "admin",
		Email:        "admin@verisend.dev",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		Role:         "admin",
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.Users().Insert(ctx, user))

	got, err := repo.Users().GetByUsername(ctx, "admin")
	require.NoError(t, err)
	require.Equal(t, user.Email, got.Email)
	require.True(t, got.IsActive)

	_, err = repo.Users().GetByUsername(ctx, "nobody")
	require.ErrorIs(t, err, users.ErrNotFound)
}
