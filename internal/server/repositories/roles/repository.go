// Package roles persists named capability bundles shared by profiles.
package roles

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository persists roles. Names are unique.
type Repository interface {
	// CreateIfNotExists inserts role unless a role with the same name exists.
	// It reports whether a row was written; existing roles are left untouched.
	CreateIfNotExists(ctx context.Context, role *models.Role) (bool, error)
	GetByName(ctx context.Context, name models.RoleName) (*models.Role, error)
	List(ctx context.Context) ([]models.Role, error)
	// Delete removes the role; profiles holding it are left without a role.
	Delete(ctx context.Context, name models.RoleName) error
}
