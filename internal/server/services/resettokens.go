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
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/resettokens"
)

// DefaultResetTokenTTL is used when no TTL is configured.
const DefaultResetTokenTTL = 24 * time.Hour

const maxDigestCollisions = 3

// IssuedResetToken carries the raw token back to the caller exactly once.
type IssuedResetToken struct {
	Token     string
	Account   *models.Account
	ExpiresAt time.Time
}

// ResetTokenManager issues, validates and consumes single-use password reset
// tokens. Issuing supersedes: earlier unused tokens of the account are deleted.
type ResetTokenManager struct {
	tr          dbx.Transactor
	repomanager repomanager.RepositoryManager
	clock       Clock
	ttl         time.Duration
	log         logging.Logger
}

func NewResetTokenManager(tr dbx.Transactor, rm repomanager.RepositoryManager, clock Clock, ttl time.Duration, log logging.Logger) *ResetTokenManager {
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	return &ResetTokenManager{tr: tr, repomanager: rm, clock: clock, ttl: ttl, log: log.With("module", "reset_tokens")}
}

// TTL is the default token lifetime.
func (m *ResetTokenManager) TTL() time.Duration { return m.ttl }

// Issue creates a fresh token for account. A non-positive ttl selects the
// default.
func (m *ResetTokenManager) Issue(ctx context.Context, account *models.Account, ttl time.Duration) (*IssuedResetToken, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}

	var (
		issued     *IssuedResetToken
		superseded int64
	)
	err := m.tr.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		// serializes issuance per account; the partial unique index covers
		// accounts without a profile
		if _, err := m.repomanager.Profiles(tx).GetForUpdate(ctx, account.ID); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("error locking profile: %w", err)
		}

		repo := m.repomanager.ResetTokens(tx)
		n, err := repo.DeleteUnused(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("error removing previous tokens: %w", err)
		}
		superseded = n

		now := m.clock.Now()
		for i := 0; ; i++ {
			token, err := common.MakeRandHexString(common.ResetTokenBytes)
			if err != nil {
				return fmt.Errorf("error generating token: %w", err)
			}
			rec := &models.ResetToken{
				AccountID:   account.ID,
				TokenDigest: cryptox.DigestToken(token),
				CreatedAt:   now,
				ExpiresAt:   now.Add(ttl),
			}
			err = repo.Create(ctx, rec)
			if errors.Is(err, resettokens.ErrDuplicateDigest) && i < maxDigestCollisions {
				continue
			}
			if err != nil {
				return fmt.Errorf("error storing token: %w", err)
			}
			issued = &IssuedResetToken{Token: token, Account: account, ExpiresAt: rec.ExpiresAt}
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	m.log.Info(ctx, "reset token issued",
		"account_id", account.ID, "superseded", superseded, "expires_at", issued.ExpiresAt)
	return issued, nil
}

// Validate checks existence, then use, then expiry, and returns the owning
// account.
func (m *ResetTokenManager) Validate(ctx context.Context, token string) (*models.Account, error) {
	return m.validate(ctx, m.tr.DB(), token)
}

func (m *ResetTokenManager) validate(ctx context.Context, db dbx.DBTX, token string) (*models.Account, error) {
	if token == "" {
		return nil, ErrResetTokenNotFound
	}

	rec, err := m.repomanager.ResetTokens(db).FindByDigest(ctx, cryptox.DigestToken(token))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrResetTokenNotFound
		}
		return nil, fmt.Errorf("error loading token: %w", err)
	}
	if rec.IsUsed {
		return nil, ErrResetTokenAlreadyUsed
	}
	if !rec.ExpiresAt.After(m.clock.Now()) {
		return nil, ErrResetTokenExpired
	}

	account, err := m.repomanager.Accounts(db).GetByID(ctx, rec.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrResetTokenNotFound
		}
		return nil, fmt.Errorf("error loading account: %w", err)
	}
	return account, nil
}

// Consume marks the token used. Only the first call succeeds; later calls
// fail with ErrResetTokenAlreadyUsed.
func (m *ResetTokenManager) Consume(ctx context.Context, db dbx.DBTX, token string) error {
	if token == "" {
		return ErrResetTokenNotFound
	}

	digest := cryptox.DigestToken(token)
	repo := m.repomanager.ResetTokens(db)

	ok, err := repo.MarkUsed(ctx, digest)
	if err != nil {
		return fmt.Errorf("error consuming token: %w", err)
	}
	if ok {
		return nil
	}

	if _, err := repo.FindByDigest(ctx, digest); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return ErrResetTokenNotFound
		}
		return fmt.Errorf("error loading token: %w", err)
	}
	return ErrResetTokenAlreadyUsed
}

// PurgeExpired deletes used and expired tokens.
func (m *ResetTokenManager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.repomanager.ResetTokens(m.tr.DB()).DeleteExpired(ctx, m.clock.Now())
	if err != nil {
		return 0, err
	}
	m.log.Info(ctx, "reset tokens purged", "count", n)
	return n, nil
}
