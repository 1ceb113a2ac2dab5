// Package services contains server-side business logic: credentials, roles,
// lockout, reset tokens, login sessions and the AccountService facade the
// transport layers call.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

const (
	MaxPhoneNumberLength = 20
	MaxBioLength         = 500
)

// Principal is the caller behind a verified session token.
type Principal struct {
	Account *models.Account
	Profile *models.Profile
	Session *auth.SessionClaims
}

// AccountService is the entry point for registration, login, password
// management, profile management and authorization.
type AccountService struct {
	tr          dbx.Transactor
	repomanager repomanager.RepositoryManager
	creds       *CredentialStore
	roles       *RoleRegistry
	lockout     *LockoutPolicy
	resets      *ResetTokenManager
	sessions    *SessionEngine
	notifier    *Notifier
	clock       Clock
	secret      []byte
	log         logging.Logger
}

// NewAccountService wires the core components from cfg. notifier may be nil,
// in which case no mail is sent.
func NewAccountService(tr dbx.Transactor, rm repomanager.RepositoryManager, cfg *config.Config, notifier *Notifier, clock Clock, log logging.Logger) *AccountService {
	creds := NewCredentialStore(rm, cryptox.NewBcryptHasher(cfg.BcryptCost), clock)
	roles := NewRoleRegistry(tr, rm, clock, log)
	lockout := NewLockoutPolicy(cfg.MaxLoginAttempts)
	secret := []byte(cfg.SecretKey)

	return &AccountService{
		tr:          tr,
		repomanager: rm,
		creds:       creds,
		roles:       roles,
		lockout:     lockout,
		resets:      NewResetTokenManager(tr, rm, clock, cfg.ResetTokenTTL, log),
		sessions: NewSessionEngine(tr, rm, creds, roles, lockout, clock, SessionConfig{
			SecretKey:          secret,
			RememberMeLifetime: cfg.RememberMeLifetime,
			BrowserSessionTTL:  cfg.BrowserSessionTokenTTL,
		}, log),
		notifier: notifier,
		clock:    clock,
		secret:   secret,
		log:      log.With("module", "accounts"),
	}
}

func (s *AccountService) Roles() *RoleRegistry { return s.roles }
func (s *AccountService) ResetTokens() *ResetTokenManager { return s.resets }
func (s *AccountService) Lockout() *LockoutPolicy { return s.lockout }
func (s *AccountService) Credentials() *CredentialStore { return s.creds }
func (s *AccountService) Sessions() *SessionEngine { return s.sessions }

// RegisterAccount creates the account and its profile with the default role
// in one transaction, then mails an email verification link.
func (s *AccountService) RegisterAccount(ctx context.Context, userName, email, raw string) (*models.Account, error) {
	var (
		account *models.Account
		token   string
	)
	err := s.tr.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		account, err = s.creds.CreateAccount(ctx, tx, userName, email, raw)
		if err != nil {
			return err
		}

		role, err := s.roles.DefaultRole(ctx, tx)
		if err != nil {
			return err
		}

		token, err = common.MakeRandHexString(common.VerificationTokenBytes)
		if err != nil {
			return fmt.Errorf("error generating verification token: %w", err)
		}

		profiles := s.repomanager.Profiles(tx)
		_, err = profiles.Create(ctx, &models.Profile{
			AccountID: account.ID,
			RoleID:    role.ID,
			CreatedAt: account.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("error creating profile: %w", err)
		}
		return profiles.SetEmailVerificationDigest(ctx, account.ID, cryptox.DigestToken(token), account.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "account registered", "account_id", account.ID, "username", account.UserName)
	if s.notifier != nil {
		s.notifier.NotifyEmailVerification(ctx, account, token)
	}
	return account, nil
}

// Login delegates to the session engine.
func (s *AccountService) Login(ctx context.Context, req LoginRequest) (*models.SessionDescriptor, error) {
	return s.sessions.Login(ctx, req)
}

// RequestPasswordReset issues a reset token for the account registered with
// email and mails the link. A delivery failure does not undo the issue.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) (*IssuedResetToken, error) {
	account, err := s.creds.FindByEmail(ctx, s.tr.DB(), email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Info(ctx, "password reset requested for unknown email")
			return nil, ErrUnknownEmail
		}
		return nil, fmt.Errorf("error resolving email: %w", err)
	}

	issued, err := s.resets.Issue(ctx, account, 0)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.NotifyPasswordReset(ctx, issued, s.resets.TTL())
	}
	return issued, nil
}

// ConfirmPasswordReset consumes token and sets the new password atomically.
// The lockout state is left untouched.
func (s *AccountService) ConfirmPasswordReset(ctx context.Context, token, newRaw string) error {
	var accountID string
	err := s.tr.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		account, err := s.resets.validate(ctx, tx, token)
		if err != nil {
			return err
		}
		if err := ValidatePassword(newRaw, account.UserName, account.Email); err != nil {
			return err
		}
		if err := s.resets.Consume(ctx, tx, token); err != nil {
			return err
		}
		accountID = account.ID
		return s.creds.SetPassword(ctx, tx, account, newRaw)
	})
	if err != nil {
		return err
	}
	s.log.Info(ctx, "password reset completed", "account_id", accountID)
	return nil
}

// ChangePassword replaces the password after checking the current one.
func (s *AccountService) ChangePassword(ctx context.Context, accountID, oldRaw, newRaw string) error {
	account, err := s.repomanager.Accounts(s.tr.DB()).GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !s.creds.VerifyPassword(account, oldRaw) {
		s.log.Info(ctx, "password change rejected", "account_id", accountID, "reason", "bad current password")
		return ErrInvalidCurrentPassword
	}
	if err := s.creds.SetPassword(ctx, s.tr.DB(), account, newRaw); err != nil {
		return err
	}
	s.log.Info(ctx, "password changed", "account_id", accountID)
	return nil
}

// Authorize reports whether profile holds capability. It never fails.
func (s *AccountService) Authorize(profile *models.Profile, capability string) bool {
	return s.roles.HasCapability(profile, capability)
}

// ResolveSession verifies a session token and loads its account and profile.
func (s *AccountService) ResolveSession(ctx context.Context, token string) (*Principal, error) {
	claims, err := auth.ParseSessionToken(token, s.secret)
	if err != nil {
		return nil, err
	}
	account, err := s.repomanager.Accounts(s.tr.DB()).GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}
	profile, err := s.sessions.EnsureProfile(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return &Principal{Account: account, Profile: profile, Session: claims}, nil
}

// GetProfile returns the account's profile, repairing a missing one.
func (s *AccountService) GetProfile(ctx context.Context, accountID string) (*models.Profile, error) {
	return s.sessions.EnsureProfile(ctx, accountID)
}

// UpdateProfile validates and stores the user-editable profile fields.
func (s *AccountService) UpdateProfile(ctx context.Context, accountID string, d models.ProfileDetails) (*models.Profile, error) {
	if len(d.PhoneNumber) > MaxPhoneNumberLength {
		return nil, invalid("phone_number", fmt.Sprintf("must be at most %d characters", MaxPhoneNumberLength))
	}
	if len(d.Bio) > MaxBioLength {
		return nil, invalid("bio", fmt.Sprintf("must be at most %d characters", MaxBioLength))
	}
	if d.DateOfBirth != nil {
		dob := d.DateOfBirth.UTC().Truncate(24 * time.Hour)
		if dob.After(s.clock.Now()) {
			return nil, invalid("date_of_birth", "must not be in the future")
		}
		d.DateOfBirth = &dob
	}

	if _, err := s.sessions.EnsureProfile(ctx, accountID); err != nil {
		return nil, err
	}
	if err := s.repomanager.Profiles(s.tr.DB()).UpdateDetails(ctx, accountID, d, s.clock.Now()); err != nil {
		return nil, err
	}
	return s.repomanager.Profiles(s.tr.DB()).Get(ctx, accountID)
}

// IssueEmailVerification replaces the outstanding verification token and
// mails the new one.
func (s *AccountService) IssueEmailVerification(ctx context.Context, accountID string) (string, error) {
	account, err := s.repomanager.Accounts(s.tr.DB()).GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	token, err := common.MakeRandHexString(common.VerificationTokenBytes)
	if err != nil {
		return "", fmt.Errorf("error generating verification token: %w", err)
	}
	if err := s.repomanager.Profiles(s.tr.DB()).SetEmailVerificationDigest(ctx, accountID, cryptox.DigestToken(token), s.clock.Now()); err != nil {
		return "", err
	}
	if s.notifier != nil {
		s.notifier.NotifyEmailVerification(ctx, account, token)
	}
	return token, nil
}

// VerifyEmail marks the profile owning token as verified.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return ErrVerificationTokenNotFound
	}
	accountID, err := s.repomanager.Profiles(s.tr.DB()).MarkEmailVerified(ctx, cryptox.DigestToken(token), s.clock.Now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return ErrVerificationTokenNotFound
		}
		return err
	}
	s.log.Info(ctx, "email verified", "account_id", accountID)
	return nil
}

// Unlock is the administrative exit from LOCKED.
func (s *AccountService) Unlock(ctx context.Context, accountID string) error {
	err := s.tr.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Profiles(tx)
		p, err := repo.GetForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		s.lockout.Reset(p)
		return repo.UpdateLoginState(ctx, p, s.clock.Now())
	})
	if err != nil {
		return err
	}
	s.log.Warn(ctx, "account unlocked", "account_id", accountID)
	return nil
}

func (s *AccountService) AssignRole(ctx context.Context, accountID string, name models.RoleName) error {
	return s.roles.AssignRole(ctx, accountID, name)
}

func (s *AccountService) DeleteRole(ctx context.Context, name models.RoleName) error {
	return s.roles.DeleteRole(ctx, name)
}

// ListLocked returns the IDs of locked accounts.
func (s *AccountService) ListLocked(ctx context.Context) ([]string, error) {
	return s.repomanager.Profiles(s.tr.DB()).ListLocked(ctx)
}

// FindAccount resolves a username or email for operator tooling.
func (s *AccountService) FindAccount(ctx context.Context, identifier string) (*models.Account, error) {
	return s.creds.FindByIdentifier(ctx, s.tr.DB(), identifier)
}
