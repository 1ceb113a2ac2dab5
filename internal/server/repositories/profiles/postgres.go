package profiles

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

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Profile) (bool, error) {
	query :=
		`INSERT INTO profiles (account_id, role_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (account_id) DO NOTHING
		 `

	res, err := r.db.ExecContext(ctx, query, p.AccountID, nullable(p.RoleID), p.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	p.UpdatedAt = p.CreatedAt
	return n > 0, nil
}

const selectProfile = `SELECT p.account_id, p.role_id, p.bio, p.phone_number, p.date_of_birth, p.avatar_key,
       p.is_email_verified, p.email_verification_digest,
       p.login_attempts, p.is_locked, p.last_login, p.last_login_ip, p.last_login_attempt,
       p.created_at, p.updated_at,
       r.id, r.name, r.description,
       r.can_delete_users, r.can_edit_users, r.can_view_reports, r.can_moderate_content,
       r.created_at, r.updated_at
  FROM profiles p
  LEFT JOIN roles r ON r.id = p.role_id
 WHERE p.account_id = $1`

func (r *PostgresRepository) Get(ctx context.Context, accountID string) (*models.Profile, error) {
	return r.getOne(ctx, selectProfile, accountID)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, accountID string) (*models.Profile, error) {
	return r.getOne(ctx, selectProfile+"\n   FOR UPDATE OF p", accountID)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, accountID string) (*models.Profile, error) {
	var (
		p                         models.Profile
		roleID, rID, rName, rDesc sql.NullString
		dob, lastLogin, lastTry   sql.NullTime
		rDelete, rEdit, rReports  sql.NullBool
		rModerate                 sql.NullBool
		rCreated, rUpdated        sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&p.AccountID, &roleID, &p.Bio, &p.PhoneNumber, &dob, &p.AvatarKey,
		&p.IsEmailVerified, &p.EmailVerificationDigest,
		&p.LoginAttempts, &p.IsLocked, &lastLogin, &p.LastLoginIP, &lastTry,
		&p.CreatedAt, &p.UpdatedAt,
		&rID, &rName, &rDesc,
		&rDelete, &rEdit, &rReports, &rModerate,
		&rCreated, &rUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	p.RoleID = roleID.String
	p.DateOfBirth = timePtr(dob)
	p.LastLogin = timePtr(lastLogin)
	p.LastLoginAttempt = timePtr(lastTry)

	if rID.Valid {
		p.Role = &models.Role{
			ID:          rID.String,
			Name:        models.RoleName(rName.String),
			Description: rDesc.String,
			Capabilities: models.Capabilities{
				DeleteUsers:     rDelete.Bool,
				EditUsers:       rEdit.Bool,
				ViewReports:     rReports.Bool,
				ModerateContent: rModerate.Bool,
			},
			CreatedAt: rCreated.Time,
			UpdatedAt: rUpdated.Time,
		}
	}

	return &p, nil
}

// UpdateLoginState writes the lockout and last-login fields of p.
func (r *PostgresRepository) UpdateLoginState(ctx context.Context, p *models.Profile, at time.Time) error {
	query :=
		`UPDATE profiles
		    SET login_attempts = $1, is_locked = $2, last_login = $3, last_login_ip = $4,
		        last_login_attempt = $5, updated_at = $6
		  WHERE account_id = $7
		 `

	return r.exec(ctx, query, p.LoginAttempts, p.IsLocked, p.LastLogin, p.LastLoginIP, p.LastLoginAttempt, at, p.AccountID)
}

func (r *PostgresRepository) UpdateDetails(ctx context.Context, accountID string, d models.ProfileDetails, at time.Time) error {
	query :=
		`UPDATE profiles
		    SET bio = $1, phone_number = $2, date_of_birth = $3, updated_at = $4
		  WHERE account_id = $5
		 `

	return r.exec(ctx, query, d.Bio, d.PhoneNumber, d.DateOfBirth, at, accountID)
}

func (r *PostgresRepository) SetRole(ctx context.Context, accountID string, roleID string, at time.Time) error {
	query := `UPDATE profiles SET role_id = $1, updated_at = $2 WHERE account_id = $3`
	return r.exec(ctx, query, nullable(roleID), at, accountID)
}

func (r *PostgresRepository) SetAvatarKey(ctx context.Context, accountID string, key string, at time.Time) error {
	query := `UPDATE profiles SET avatar_key = $1, updated_at = $2 WHERE account_id = $3`
	return r.exec(ctx, query, key, at, accountID)
}

func (r *PostgresRepository) SetEmailVerificationDigest(ctx context.Context, accountID string, digest string, at time.Time) error {
	query := `UPDATE profiles SET email_verification_digest = $1, updated_at = $2 WHERE account_id = $3`
	return r.exec(ctx, query, digest, at, accountID)
}

func (r *PostgresRepository) MarkEmailVerified(ctx context.Context, digest string, at time.Time) (string, error) {
	query :=
		`UPDATE profiles
		    SET is_email_verified = TRUE, email_verification_digest = '', updated_at = $1
		  WHERE email_verification_digest = $2 AND email_verification_digest <> ''
		 RETURNING account_id
		 `

	var accountID string
	if err := r.db.QueryRowContext(ctx, query, at, digest).Scan(&accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return accountID, nil
}

// ListLocked returns the IDs of all locked accounts.
func (r *PostgresRepository) ListLocked(ctx context.Context) ([]string, error) {
	query := `SELECT account_id FROM profiles WHERE is_locked ORDER BY account_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
