// Package users holds the admin accounts that gate the queue dashboard
// and admin API.
package users

import (
	"context"
	"errors"
	"time"
)

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
}

var ErrNotFound = errors.New("user not found")

type Repository interface {
	GetByUsername(ctx context.Context, username string) (User, error)
	Insert(ctx context.Context, user User) error
}
