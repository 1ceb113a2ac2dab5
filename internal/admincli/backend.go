package admincli

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

// Backend is the set of maintenance operations the CLI drives.
type Backend interface {
	Migrate(ctx context.Context) error
	FindAccount(ctx context.Context, identifier string) (*models.Account, error)
	RegisterAccount(ctx context.Context, userName, email, password string) (*models.Account, error)
	Unlock(ctx context.Context, accountID string) error
	ListLocked(ctx context.Context) ([]string, error)
	AssignRole(ctx context.Context, accountID string, name models.RoleName) error
	DeleteRole(ctx context.Context, name models.RoleName) error
	ListRoles(ctx context.Context) ([]models.Role, error)
	SeedRoles(ctx context.Context) error
	PurgeExpiredTokens(ctx context.Context) (int64, error)
	Close() error
}

var newBackend = func(ctx context.Context, cfg *config.Config, log logging.Logger) (Backend, error) {
	return openServiceBackend(ctx, cfg, log)
}

type serviceBackend struct {
	db       *sql.DB
	rm       repomanager.RepositoryManager
	accounts *services.AccountService
}

// openServiceBackend connects to the database named in cfg. Accounts created
// here get no verification mail; the user can request one after login.
func openServiceBackend(ctx context.Context, cfg *config.Config, log logging.Logger) (*serviceBackend, error) {
	db, err := server.OpenDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	rm := repomanager.NewPostgresRepositoryManager()
	tr := dbx.NewSQLTransactor(db)
	accounts := services.NewAccountService(tr, rm, cfg, nil, services.SystemClock{}, log)
	return &serviceBackend{db: db, rm: rm, accounts: accounts}, nil
}

func (b *serviceBackend) Migrate(ctx context.Context) error {
	return b.rm.RunMigrations(ctx, b.db)
}

func (b *serviceBackend) FindAccount(ctx context.Context, identifier string) (*models.Account, error) {
	return b.accounts.FindAccount(ctx, identifier)
}

func (b *serviceBackend) RegisterAccount(ctx context.Context, userName, email, password string) (*models.Account, error) {
	return b.accounts.RegisterAccount(ctx, userName, email, password)
}

func (b *serviceBackend) Unlock(ctx context.Context, accountID string) error {
	return b.accounts.Unlock(ctx, accountID)
}

func (b *serviceBackend) ListLocked(ctx context.Context) ([]string, error) {
	return b.accounts.ListLocked(ctx)
}

func (b *serviceBackend) AssignRole(ctx context.Context, accountID string, name models.RoleName) error {
	return b.accounts.AssignRole(ctx, accountID, name)
}

func (b *serviceBackend) DeleteRole(ctx context.Context, name models.RoleName) error {
	return b.accounts.DeleteRole(ctx, name)
}

func (b *serviceBackend) ListRoles(ctx context.Context) ([]models.Role, error) {
	return b.accounts.Roles().ListRoles(ctx)
}

func (b *serviceBackend) SeedRoles(ctx context.Context) error {
	return b.accounts.Roles().SeedBuiltinRoles(ctx)
}

func (b *serviceBackend) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return b.accounts.ResetTokens().PurgeExpired(ctx)
}

func (b *serviceBackend) Close() error {
	return b.db.Close()
}
