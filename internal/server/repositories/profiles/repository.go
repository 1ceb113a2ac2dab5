// Package profiles stores per-account mutable state: role assignment,
// lockout counters, email verification and personal details.
package profiles

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository persists profiles. Reads join the assigned role.
type Repository interface {
	// Create inserts p unless a profile for the account already exists.
	// It reports whether a row was written.
	Create(ctx context.Context, p *models.Profile) (bool, error)
	Get(ctx context.Context, accountID string) (*models.Profile, error)
	// GetForUpdate reads the profile and locks its row until the
	// surrounding transaction ends. Must be called on a *sql.Tx.
	GetForUpdate(ctx context.Context, accountID string) (*models.Profile, error)
	UpdateLoginState(ctx context.Context, p *models.Profile, at time.Time) error
	UpdateDetails(ctx context.Context, accountID string, d models.ProfileDetails, at time.Time) error
	// SetRole assigns roleID; an empty roleID clears the assignment.
	SetRole(ctx context.Context, accountID string, roleID string, at time.Time) error
	SetAvatarKey(ctx context.Context, accountID string, key string, at time.Time) error
	SetEmailVerificationDigest(ctx context.Context, accountID string, digest string, at time.Time) error
	// MarkEmailVerified flags the profile owning digest as verified, clears
	// the digest and returns the account ID.
	MarkEmailVerified(ctx context.Context, digest string, at time.Time) (string, error)
	ListLocked(ctx context.Context) ([]string, error)
}
