// Package accounts declares the repository contract for account identities
// and its PostgreSQL implementation.
package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

var (
	// ErrUserNameTaken is returned by Create when the username is in use.
	ErrUserNameTaken = errors.New("username already taken")
	// ErrEmailTaken is returned by Create when the email is in use.
	ErrEmailTaken = errors.New("email already registered")
)

// Repository persists accounts. Lookups expect already-normalized input and
// return common.ErrorNotFound when nothing matches.
type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByUserName(ctx context.Context, userName string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	UpdatePasswordHash(ctx context.Context, id string, hash string, at time.Time) error
}
