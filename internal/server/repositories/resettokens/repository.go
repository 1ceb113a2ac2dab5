// Package resettokens persists password reset tokens. Only token digests
// are stored; the raw token is never written.
package resettokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository persists reset tokens keyed by digest.
type Repository interface {
	Create(ctx context.Context, token *models.ResetToken) error
	// DeleteUnused removes every unused token of the account and returns
	// how many were removed.
	DeleteUnused(ctx context.Context, accountID string) (int64, error)
	FindByDigest(ctx context.Context, digest string) (*models.ResetToken, error)
	// MarkUsed flips is_used on an unused token. It reports false when the
	// token is already used or absent.
	MarkUsed(ctx context.Context, digest string) (bool, error)
	// DeleteExpired removes used tokens and tokens that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
