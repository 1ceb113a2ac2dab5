// Package models defines server-side data models persisted in the database.
package models

import "time"

// Account is an identity: unique username and email plus a password hash.
// Username and Email are stored lower-cased.
type Account struct {
	ID           string
	UserName     string
	Email        string
	PasswordHash string
	// ExternalRef is an opaque reference owned by the enclosing service.
	ExternalRef string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
