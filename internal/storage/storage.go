// Package storage defines the aggregate persistence contract implemented
// by the postgres subpackage.
package storage

import (
	"context"

	"github.com/verisend/server/internal/domain/users"
	"github.com/verisend/server/internal/domain/verification"
)

type Repository interface {
	Verifications() verification.Repository
	Users() users.Repository

	// WithTx runs fn inside a single transaction; all repositories
	// obtained from the passed Repository share it.
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
