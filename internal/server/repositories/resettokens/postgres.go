package resettokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// ErrDuplicateDigest is returned by Create when the digest already exists.
var ErrDuplicateDigest = errors.New("reset token digest collision")

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.ResetToken) error {
	query :=
		`INSERT INTO password_reset_tokens (account_id, token_digest, created_at, expires_at, is_used)
		 VALUES ($1, $2, $3, $4, FALSE)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query, token.AccountID, token.TokenDigest, token.CreatedAt, token.ExpiresAt).
		Scan(&token.ID)
	if err != nil {
		if constraint, ok := dbx.UniqueViolation(err); ok && constraint == "password_reset_tokens_token_digest_key" {
			return ErrDuplicateDigest
		}
		return fmt.Errorf("db error: %w", err)
	}
	token.IsUsed = false
	return nil
}

func (r *PostgresRepository) DeleteUnused(ctx context.Context, accountID string) (int64, error) {
	query := `DELETE FROM password_reset_tokens WHERE account_id = $1 AND NOT is_used`
	return r.deleteWhere(ctx, query, accountID)
}

func (r *PostgresRepository) FindByDigest(ctx context.Context, digest string) (*models.ResetToken, error) {
	query :=
		`SELECT id, account_id, token_digest, created_at, expires_at, is_used
		   FROM password_reset_tokens
		  WHERE token_digest = $1
		 `

	t := &models.ResetToken{}
	err := r.db.QueryRowContext(ctx, query, digest).
		Scan(&t.ID, &t.AccountID, &t.TokenDigest, &t.CreatedAt, &t.ExpiresAt, &t.IsUsed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, digest string) (bool, error) {
	query := `UPDATE password_reset_tokens SET is_used = TRUE WHERE token_digest = $1 AND NOT is_used`

	res, err := r.db.ExecContext(ctx, query, digest)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM password_reset_tokens WHERE is_used OR expires_at < $1`
	return r.deleteWhere(ctx, query, now)
}

func (r *PostgresRepository) deleteWhere(ctx context.Context, query string, arg any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, arg)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
