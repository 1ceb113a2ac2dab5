package models

import "time"

// Profile is the per-account mutable state: role, lockout counters,
// email verification, login metadata and personal details.
type Profile struct {
	AccountID string
	// RoleID is empty when no role is assigned.
	RoleID string
	// Role is populated by reads that join roles; nil means no capabilities.
	Role *Role

	Bio         string
	PhoneNumber string
	DateOfBirth *time.Time
	AvatarKey   string

	IsEmailVerified bool
	// EmailVerificationDigest is the SHA-256 of the outstanding verification token.
	EmailVerificationDigest string

	LoginAttempts    int
	IsLocked         bool
	LastLogin        *time.Time
	LastLoginIP      string
	LastLoginAttempt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProfileDetails are the user-editable profile fields.
type ProfileDetails struct {
	Bio         string
	PhoneNumber string
	DateOfBirth *time.Time
}
