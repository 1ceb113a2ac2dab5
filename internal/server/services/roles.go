package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

const maxRoleNameLength = 20

// RoleDefaults are applied when a role is created on first use.
type RoleDefaults struct {
	Description  string
	Capabilities models.Capabilities
}

// BuiltinRoles is the role set every installation starts with.
var BuiltinRoles = map[models.RoleName]RoleDefaults{
	models.RoleAdmin: {
		Description: "Administrator with full user management rights",
		Capabilities: models.Capabilities{
			DeleteUsers: true, EditUsers: true, ViewReports: true, ModerateContent: true,
		},
	},
	models.RoleModerator: {
		Description:  "Moderator who can review reports and moderate content",
		Capabilities: models.Capabilities{ViewReports: true, ModerateContent: true},
	},
	models.RoleUser: {
		Description: "Regular user with basic permissions",
	},
}

// RoleRegistry manages roles and answers capability checks.
type RoleRegistry struct {
	tr          dbx.Transactor
	repomanager repomanager.RepositoryManager
	clock       Clock
	log         logging.Logger
}

func NewRoleRegistry(tr dbx.Transactor, rm repomanager.RepositoryManager, clock Clock, log logging.Logger) *RoleRegistry {
	return &RoleRegistry{tr: tr, repomanager: rm, clock: clock, log: log.With("module", "role_registry")}
}

// GetOrCreateRole returns the named role, creating it with d if absent.
// Concurrent callers converge on the same row.
func (r *RoleRegistry) GetOrCreateRole(ctx context.Context, db dbx.DBTX, name models.RoleName, d RoleDefaults) (*models.Role, error) {
	if name == "" || len(name) > maxRoleNameLength {
		return nil, invalid("role", fmt.Sprintf("name must be 1 to %d characters", maxRoleNameLength))
	}

	repo := r.repomanager.Roles(db)
	created, err := repo.CreateIfNotExists(ctx, &models.Role{
		Name:         name,
		Description:  d.Description,
		Capabilities: d.Capabilities,
		CreatedAt:    r.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating role %q: %w", name, err)
	}
	if created {
		r.log.Info(ctx, "role created", "role", string(name))
	}

	role, err := repo.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("error loading role %q: %w", name, err)
	}
	return role, nil
}

// DefaultRole returns the role assigned to new profiles, creating it if needed.
func (r *RoleRegistry) DefaultRole(ctx context.Context, db dbx.DBTX) (*models.Role, error) {
	return r.GetOrCreateRole(ctx, db, models.DefaultRoleName, BuiltinRoles[models.DefaultRoleName])
}

// SeedBuiltinRoles makes sure every built-in role exists. Existing roles
// keep their current capabilities.
func (r *RoleRegistry) SeedBuiltinRoles(ctx context.Context) error {
	return r.tr.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		for _, name := range []models.RoleName{models.RoleAdmin, models.RoleModerator, models.RoleUser} {
			if _, err := r.GetOrCreateRole(ctx, tx, name, BuiltinRoles[name]); err != nil {
				return err
			}
		}
		return nil
	})
}

// HasCapability is the single authorization primitive. It is false for a
// nil profile, a profile without a role and an unrecognized capability.
func (r *RoleRegistry) HasCapability(p *models.Profile, name string) bool {
	if p == nil || p.Role == nil {
		return false
	}
	c, ok := models.ParseCapability(name)
	if !ok {
		return false
	}
	return p.Role.Capabilities.Has(c)
}

// HasRole reports whether p holds the named role.
func (r *RoleRegistry) HasRole(p *models.Profile, name models.RoleName) bool {
	return p != nil && p.Role != nil && p.Role.Name == name
}

// AssignRole points the account's profile at the named role.
func (r *RoleRegistry) AssignRole(ctx context.Context, accountID string, name models.RoleName) error {
	return r.tr.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		role, err := r.repomanager.Roles(tx).GetByName(ctx, name)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return ErrUnknownRole
			}
			return fmt.Errorf("error loading role: %w", err)
		}
		if err := r.repomanager.Profiles(tx).SetRole(ctx, accountID, role.ID, r.clock.Now()); err != nil {
			return err
		}
		r.log.Info(ctx, "role assigned", "account_id", accountID, "role", string(name))
		return nil
	})
}

// DeleteRole removes the role. Profiles holding it are left without a role.
func (r *RoleRegistry) DeleteRole(ctx context.Context, name models.RoleName) error {
	err := r.repomanager.Roles(r.tr.DB()).Delete(ctx, name)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return ErrUnknownRole
		}
		return fmt.Errorf("error deleting role: %w", err)
	}
	r.log.Warn(ctx, "role deleted", "role", string(name))
	return nil
}

func (r *RoleRegistry) ListRoles(ctx context.Context) ([]models.Role, error) {
	return r.repomanager.Roles(r.tr.DB()).List(ctx)
}
