package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verisend/server/internal/domain/verification"
)

type VerificationRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *VerificationRepository) Insert(ctx context.Context, v verification.Verification) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO verification (id, identifier, value, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, v.ID, v.Identifier, v.Value, v.ExpiresAt, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

func (r *VerificationRepository) GetByID(ctx context.Context, id string) (verification.Verification, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT id, identifier, value, expires_at, created_at, updated_at
  FROM verification
 WHERE id = $1
`, id)
	return scanVerification(row)
}

func (r *VerificationRepository) LatestByIdentifier(ctx context.Context, identifier string) (verification.Verification, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT id, identifier, value, expires_at, created_at, updated_at
  FROM verification
 WHERE identifier = $1
 ORDER BY created_at DESC, id DESC
 LIMIT 1
`, identifier)
	return scanVerification(row)
}

func (r *VerificationRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM verification WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return verification.ErrNotFound
	}
	return nil
}

func (r *VerificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM verification WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired verifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanVerification(row pgx.Row) (verification.Verification, error) {
	var v verification.Verification
	err := row.Scan(&v.ID, &v.Identifier, &v.Value, &v.ExpiresAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return verification.Verification{}, verification.ErrNotFound
		}
		return verification.Verification{}, fmt.Errorf("scan verification: %w", err)
	}
	return v, nil
}

func (r *VerificationRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}
