package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// DefaultBrowserSessionTokenTTL bounds the token of a session that ends with
// the client session.
const DefaultBrowserSessionTokenTTL = 12 * time.Hour

const maxClientIPLength = 45

// LoginRequest is the input of SessionEngine.Login.
type LoginRequest struct {
	// Identifier is an email when it contains '@', a username otherwise.
	Identifier string
	Password   string
	RememberMe bool
	ClientIP   string
}

// SessionConfig controls the descriptor handed out on login.
type SessionConfig struct {
	SecretKey          []byte
	RememberMeLifetime time.Duration
	BrowserSessionTTL  time.Duration
}

// SessionEngine runs the login algorithm: resolve, check lock, verify,
// record the outcome, describe the session.
type SessionEngine struct {
	tr          dbx.Transactor
	repomanager repomanager.RepositoryManager
	creds       *CredentialStore
	roles       *RoleRegistry
	lockout     *LockoutPolicy
	clock       Clock
	cfg         SessionConfig
	log         logging.Logger
}

func NewSessionEngine(
	tr dbx.Transactor,
	rm repomanager.RepositoryManager,
	creds *CredentialStore,
	roles *RoleRegistry,
	lockout *LockoutPolicy,
	clock Clock,
	cfg SessionConfig,
	log logging.Logger,
) *SessionEngine {
	if cfg.RememberMeLifetime <= 0 {
		cfg.RememberMeLifetime = models.RememberMeLifetime
	}
	if cfg.BrowserSessionTTL <= 0 {
		cfg.BrowserSessionTTL = DefaultBrowserSessionTokenTTL
	}
	return &SessionEngine{
		tr:          tr,
		repomanager: rm,
		creds:       creds,
		roles:       roles,
		lockout:     lockout,
		clock:       clock,
		cfg:         cfg,
		log:         log.With("module", "session_engine"),
	}
}

// Login authenticates req. Rejections are *LoginError values wrapping
// ErrInvalidCredentials or ErrAccountLocked.
func (e *SessionEngine) Login(ctx context.Context, req LoginRequest) (*models.SessionDescriptor, error) {
	maxAttempts := e.lockout.Threshold()

	account, err := e.creds.FindByIdentifier(ctx, e.tr.DB(), req.Identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			e.creds.VerifyPassword(nil, req.Password)
			e.log.Info(ctx, "login failed", "reason", "unknown identifier", "ip", req.ClientIP)
			return nil, &LoginError{Err: ErrInvalidCredentials, Attempts: -1, MaxAttempts: maxAttempts}
		}
		return nil, fmt.Errorf("error resolving identifier: %w", err)
	}

	log := e.log.With("account_id", account.ID, "ip", req.ClientIP)

	profile, err := e.EnsureProfile(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if e.lockout.State(profile) == StateLocked {
		log.Warn(ctx, "login rejected", "reason", "locked")
		return nil, &LoginError{Err: ErrAccountLocked, Attempts: profile.LoginAttempts, MaxAttempts: maxAttempts}
	}

	// hashing happens outside the row lock; the outcome is applied to a
	// freshly locked row
	ok := e.creds.VerifyPassword(account, req.Password)

	var (
		state        LockState
		attempts     int
		lockedBefore bool
	)
	now := e.clock.Now()
	err = e.tr.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := e.repomanager.Profiles(tx)
		p, err := repo.GetForUpdate(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("error locking profile: %w", err)
		}
		if e.lockout.State(p) == StateLocked {
			lockedBefore = true
			attempts = p.LoginAttempts
			return nil
		}

		if ok {
			e.lockout.RegisterSuccess(p, now, clientIP(req.ClientIP))
			state = StateActive
		} else {
			state = e.lockout.RegisterFailure(p, now)
		}
		attempts = p.LoginAttempts
		return repo.UpdateLoginState(ctx, p, now)
	})
	if err != nil {
		return nil, err
	}

	switch {
	case lockedBefore:
		log.Warn(ctx, "login rejected", "reason", "locked concurrently")
		return nil, &LoginError{Err: ErrAccountLocked, Attempts: attempts, MaxAttempts: maxAttempts}
	case !ok && state == StateLocked:
		log.Warn(ctx, "account locked", "reason", "bad password", "attempts", attempts)
		return nil, &LoginError{Err: ErrAccountLocked, Attempts: attempts, MaxAttempts: maxAttempts}
	case !ok:
		log.Info(ctx, "login failed", "reason", "bad password", "attempts", attempts)
		return nil, &LoginError{Err: ErrInvalidCredentials, Attempts: attempts, MaxAttempts: maxAttempts}
	}

	desc, err := e.describe(account, req.RememberMe, now)
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "login succeeded", "session_id", desc.ID, "remember_me", req.RememberMe)
	return desc, nil
}

func (e *SessionEngine) describe(account *models.Account, remember bool, now time.Time) (*models.SessionDescriptor, error) {
	desc := &models.SessionDescriptor{
		ID:         uuid.NewString(),
		AccountID:  account.ID,
		UserName:   account.UserName,
		IssuedAt:   now,
		RememberMe: remember,
	}

	tokenTTL := e.cfg.BrowserSessionTTL
	if remember {
		desc.Lifetime = e.cfg.RememberMeLifetime
		exp := now.Add(desc.Lifetime)
		desc.ExpiresAt = &exp
		tokenTTL = desc.Lifetime
	}

	token, err := auth.IssueSessionToken(auth.SessionClaims{
		AccountID:  account.ID,
		SessionID:  desc.ID,
		RememberMe: remember,
		IssuedAt:   now,
	}, e.cfg.SecretKey, tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("error signing session token: %w", err)
	}
	desc.Token = token
	return desc, nil
}

// EnsureProfile loads the account's profile, creating it with the default
// role when it is missing.
func (e *SessionEngine) EnsureProfile(ctx context.Context, accountID string) (*models.Profile, error) {
	repo := e.repomanager.Profiles(e.tr.DB())

	p, err := repo.Get(ctx, accountID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error loading profile: %w", err)
	}

	err = e.tr.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		role, err := e.roles.DefaultRole(ctx, tx)
		if err != nil {
			return err
		}
		created, err := e.repomanager.Profiles(tx).Create(ctx, &models.Profile{
			AccountID: accountID,
			RoleID:    role.ID,
			CreatedAt: e.clock.Now(),
		})
		if err != nil {
			return fmt.Errorf("error creating profile: %w", err)
		}
		if created {
			e.log.Warn(ctx, "profile was missing, created with default role", "account_id", accountID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return repo.Get(ctx, accountID)
}

func clientIP(ip string) string {
	if len(ip) > maxClientIPLength {
		return ip[:maxClientIPLength]
	}
	return ip
}
