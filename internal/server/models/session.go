package models

import "time"

// RememberMeLifetime is the session lifetime granted when the user asks to
// stay signed in.
const RememberMeLifetime = 30 * 24 * time.Hour

// SessionDescriptor is returned by a successful login. The caller decides how
// to persist it (cookie, header, ...).
type SessionDescriptor struct {
	ID         string
	AccountID  string
	UserName   string
	Token      string
	IssuedAt   time.Time
	RememberMe bool
	// Lifetime is zero for browser-session semantics.
	Lifetime time.Duration
	// ExpiresAt is nil for browser sessions.
	ExpiresAt *time.Time
}
