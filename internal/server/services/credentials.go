package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

const (
	MaxUserNameLength = 150
	MaxEmailLength    = 254
	MinPasswordLength = 8
)

var userNamePattern = regexp.MustCompile(`^[a-z0-9.+_-]+$`)

// NormalizeUserName trims and lower-cases a username. Every insert and
// lookup goes through it.
func NormalizeUserName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateUserName expects a normalized name. '@' is reserved: identifiers
// containing it are looked up by email.
func ValidateUserName(name string) error {
	switch {
	case name == "":
		return invalid("username", "must not be empty")
	case len(name) > MaxUserNameLength:
		return invalid("username", fmt.Sprintf("must be at most %d characters", MaxUserNameLength))
	case !userNamePattern.MatchString(name):
		return invalid("username", "may contain only letters, digits and . + - _")
	}
	return nil
}

// ValidateEmail expects a normalized address without a display name.
func ValidateEmail(email string) error {
	if email == "" {
		return invalid("email", "must not be empty")
	}
	if len(email) > MaxEmailLength {
		return invalid("email", "is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, "@") {
		return invalid("email", "is not a valid address")
	}
	return nil
}

// ValidatePassword applies the password rules. userName and email may be
// empty when unknown.
func ValidatePassword(raw, userName, email string) error {
	switch {
	case len(raw) < MinPasswordLength:
		return invalid("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	case len(raw) > cryptox.MaxPasswordBytes:
		return invalid("password", fmt.Sprintf("must be at most %d bytes", cryptox.MaxPasswordBytes))
	case strings.Trim(raw, "0123456789") == "":
		return invalid("password", "must not be entirely numeric")
	}

	lower := strings.ToLower(raw)
	if userName != "" && lower == userName {
		return invalid("password", "is too similar to the username")
	}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" && lower == local {
		return invalid("password", "is too similar to the email")
	}
	return nil
}

// CredentialStore owns account identities and their password hashes.
type CredentialStore struct {
	repomanager repomanager.RepositoryManager
	hasher      cryptox.PasswordHasher
	clock       Clock

	dummyOnce sync.Once
	dummyHash string
}

func NewCredentialStore(rm repomanager.RepositoryManager, hasher cryptox.PasswordHasher, clock Clock) *CredentialStore {
	return &CredentialStore{repomanager: rm, hasher: hasher, clock: clock}
}

// CreateAccount validates and inserts a new account on db.
func (c *CredentialStore) CreateAccount(ctx context.Context, db dbx.DBTX, userName, email, raw string) (*models.Account, error) {
	userName = NormalizeUserName(userName)
	email = NormalizeEmail(email)

	if err := ValidateUserName(userName); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(raw, userName, email); err != nil {
		return nil, err
	}

	repo := c.repomanager.Accounts(db)

	if _, err := repo.GetByUserName(ctx, userName); err == nil {
		return nil, ErrDuplicateUsername
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error checking username: %w", err)
	}
	if _, err := repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error checking email: %w", err)
	}

	hash, err := c.hasher.Hash(raw)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	account, err := repo.Create(ctx, &models.Account{
		UserName:     userName,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    c.clock.Now(),
	})
	switch {
	case errors.Is(err, accounts.ErrUserNameTaken):
		return nil, ErrDuplicateUsername
	case errors.Is(err, accounts.ErrEmailTaken):
		return nil, ErrDuplicateEmail
	case err != nil:
		return nil, fmt.Errorf("error creating account: %w", err)
	}
	return account, nil
}

// VerifyPassword reports whether raw matches the account's hash. A nil
// account is compared against a throwaway hash so that unknown identifiers
// cost the same as wrong passwords.
func (c *CredentialStore) VerifyPassword(account *models.Account, raw string) bool {
	if account == nil {
		c.hasher.Compare(c.dummy(), raw)
		return false
	}
	return c.hasher.Compare(account.PasswordHash, raw)
}

func (c *CredentialStore) dummy() string {
	c.dummyOnce.Do(func() {
		c.dummyHash, _ = c.hasher.Hash(hex.EncodeToString(common.GenerateRandByteArray(16)))
	})
	return c.dummyHash
}

// SetPassword validates raw, stores its hash and updates account in place.
func (c *CredentialStore) SetPassword(ctx context.Context, db dbx.DBTX, account *models.Account, raw string) error {
	if err := ValidatePassword(raw, account.UserName, account.Email); err != nil {
		return err
	}
	hash, err := c.hasher.Hash(raw)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}
	now := c.clock.Now()
	if err := c.repomanager.Accounts(db).UpdatePasswordHash(ctx, account.ID, hash, now); err != nil {
		return fmt.Errorf("error updating password: %w", err)
	}
	account.PasswordHash = hash
	account.UpdatedAt = now
	return nil
}

// FindByIdentifier resolves an email when identifier contains '@' and a
// username otherwise. It returns common.ErrorNotFound when nothing matches.
func (c *CredentialStore) FindByIdentifier(ctx context.Context, db dbx.DBTX, identifier string) (*models.Account, error) {
	if strings.Contains(identifier, "@") {
		return c.FindByEmail(ctx, db, identifier)
	}
	name := NormalizeUserName(identifier)
	if name == "" {
		return nil, common.ErrorNotFound
	}
	return c.repomanager.Accounts(db).GetByUserName(ctx, name)
}

func (c *CredentialStore) FindByEmail(ctx context.Context, db dbx.DBTX, email string) (*models.Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, common.ErrorNotFound
	}
	return c.repomanager.Accounts(db).GetByEmail(ctx, email)
}
