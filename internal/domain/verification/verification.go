// Package verification implements the verification challenge lifecycle:
// a short-lived token bound to an identifier, delivered out-of-band and
// confirmed before expiry.
package verification

import (
	"context"
	"errors"
	"time"
)

// Verification is a pending verification challenge. A record is meaningful
// only while ExpiresAt is in the future. Identifiers are not unique; the
// newest live record wins on confirmation.
type Verification struct {
	ID         string
	Identifier string
	Value      string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Expired reports whether the record is no longer valid at the given time.
func (v Verification) Expired(now time.Time) bool {
	return !v.ExpiresAt.After(now)
}

// Expired records surface as ErrNotFound on the confirm path so callers
// cannot distinguish a stale challenge from one that never existed.
var (
	ErrNotFound = errors.New("verification not found")
	ErrMismatch = errors.New("verification value mismatch")
)

// Repository is the persistence contract for verification records,
// implemented by internal/storage/postgres.
type Repository interface {
	Insert(ctx context.Context, v Verification) error
	GetByID(ctx context.Context, id string) (Verification, error)
	LatestByIdentifier(ctx context.Context, identifier string) (Verification, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
