package accounts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const insertQ = `(?s)^INSERT\s+INTO\s+accounts\s*\(username,\s*email,\s*password_hash,\s*external_ref,\s*created_at,\s*updated_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$5\)\s*RETURNING\s+id\s*$`

func newAccount() *models.Account {
	return &models.Account{UserName: "alice", Email: "alice@x.com", PasswordHash: "$2a$hash", CreatedAt: now}
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).
		WithArgs("alice", "alice@x.com", "$2a$hash", "", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("acc-1"))

	got, err := repo.Create(context.Background(), newAccount())
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != "acc-1" || got.UpdatedAt != now {
		t.Fatalf("unexpected account: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestCreate_UniqueViolations(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{"accounts_username_key", ErrUserNameTaken},
		{"accounts_email_key", ErrEmailTaken},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectQuery(insertQ).
				WillReturnError(&pgconn.PgError{Code: dbx.CodeUniqueViolation, ConstraintName: tt.constraint})

			_, err := repo.Create(context.Background(), newAccount())
			if !errors.Is(err, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), newAccount())
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

var accountCols = []string{"id", "username", "email", "password_hash", "external_ref", "created_at", "updated_at"}

func TestGetters_Found(t *testing.T) {
	tests := []struct {
		name   string
		column string
		arg    string
		call   func(r *PostgresRepository) (*models.Account, error)
	}{
		{"by id", "id", "acc-1", func(r *PostgresRepository) (*models.Account, error) {
			return r.GetByID(context.Background(), "acc-1")
		}},
		{"by username", "username", "alice", func(r *PostgresRepository) (*models.Account, error) {
			return r.GetByUserName(context.Background(), "alice")
		}},
		{"by email", "email", "alice@x.com", func(r *PostgresRepository) (*models.Account, error) {
			return r.GetByEmail(context.Background(), "alice@x.com")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			q := `(?s)^SELECT\s+id,\s*username,\s*email,\s*password_hash,\s*external_ref,\s*created_at,\s*updated_at\s+FROM\s+accounts\s+WHERE\s+` + tt.column + `\s*=\s*\$1$`
			mock.ExpectQuery(q).
				WithArgs(tt.arg).
				WillReturnRows(sqlmock.NewRows(accountCols).AddRow("acc-1", "alice", "alice@x.com", "h", "ext", now, now))

			got, err := tt.call(repo)
			if err != nil {
				t.Fatalf("lookup error: %v", err)
			}
			if got.ID != "acc-1" || got.UserName != "alice" || got.Email != "alice@x.com" || got.ExternalRef != "ext" {
				t.Fatalf("unexpected account: %+v", got)
			}
		})
	}
}

func TestGetByUserName_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+accounts\s+WHERE\s+username`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByUserName(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetByEmail_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+accounts\s+WHERE\s+email`).
		WithArgs("a@x.com").
		WillReturnError(errors.New("db err"))

	_, err := repo.GetByEmail(context.Background(), "a@x.com")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestUpdatePasswordHash(t *testing.T) {
	q := `(?s)^UPDATE\s+accounts\s+SET\s+password_hash\s*=\s*\$1,\s*updated_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$3\s*$`

	t.Run("updated", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(q).WithArgs("new-hash", now, "acc-1").WillReturnResult(sqlmock.NewResult(0, 1))
		if err := repo.UpdatePasswordHash(context.Background(), "acc-1", "new-hash", now); err != nil {
			t.Fatalf("UpdatePasswordHash error: %v", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(q).WillReturnResult(sqlmock.NewResult(0, 0))
		err := repo.UpdatePasswordHash(context.Background(), "acc-x", "h", now)
		if !errors.Is(err, common.ErrorNotFound) {
			t.Fatalf("want common.ErrorNotFound, got %v", err)
		}
	})
}
