package roles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *PostgresRepository) CreateIfNotExists(ctx context.Context, role *models.Role) (bool, error) {
	query :=
		`INSERT INTO roles (name, description, can_delete_users, can_edit_users, can_view_reports, can_moderate_content,
		                    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 ON CONFLICT (name) DO NOTHING
		 `

	c := role.Capabilities
	res, err := r.db.ExecContext(ctx, query,
		string(role.Name), role.Description, c.DeleteUsers, c.EditUsers, c.ViewReports, c.ModerateContent, role.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

const selectRole = `SELECT id, name, description, can_delete_users, can_edit_users, can_view_reports, can_moderate_content,
       created_at, updated_at
  FROM roles`

type scanner interface {
	Scan(dest ...any) error
}

func scanRole(s scanner) (*models.Role, error) {
	var (
		role models.Role
		name string
	)
	err := s.Scan(&role.ID, &name, &role.Description,
		&role.Capabilities.DeleteUsers, &role.Capabilities.EditUsers,
		&role.Capabilities.ViewReports, &role.Capabilities.ModerateContent,
		&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, err
	}
	role.Name = models.RoleName(name)
	return &role, nil
}

func (r *PostgresRepository) GetByName(ctx context.Context, name models.RoleName) (*models.Role, error) {
	role, err := scanRole(r.db.QueryRowContext(ctx, selectRole+" WHERE name = $1", string(name)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return role, nil
}

// List returns all roles ordered by name.
func (r *PostgresRepository) List(ctx context.Context) ([]models.Role, error) {
	rows, err := r.db.QueryContext(ctx, selectRole+" ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, name models.RoleName) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE name = $1`, string(name))
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
