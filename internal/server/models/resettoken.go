package models

import "time"

// ResetToken authorizes a single password reset until ExpiresAt.
// Only the digest of the token string is persisted.
type ResetToken struct {
	ID          string
	AccountID   string
	TokenDigest string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	IsUsed      bool
}
