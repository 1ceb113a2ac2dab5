package profiles

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

var profileCols = []string{
	"account_id", "role_id", "bio", "phone_number", "date_of_birth", "avatar_key",
	"is_email_verified", "email_verification_digest",
	"login_attempts", "is_locked", "last_login", "last_login_ip", "last_login_attempt",
	"created_at", "updated_at",
	"id", "name", "description",
	"can_delete_users", "can_edit_users", "can_view_reports", "can_moderate_content",
	"created_at", "updated_at",
}

func TestCreate(t *testing.T) {
	q := `(?s)INSERT\s+INTO\s+profiles\s*\(account_id,\s*role_id,\s*created_at,\s*updated_at\).*ON\s+CONFLICT\s*\(account_id\)\s+DO\s+NOTHING`

	t.Run("inserted", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WithArgs("acc-1", "role-1", now).WillReturnResult(sqlmock.NewResult(0, 1))

		p := &models.Profile{AccountID: "acc-1", RoleID: "role-1", CreatedAt: now}
		created, err := repo.Create(context.Background(), p)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, now, p.UpdatedAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already exists without role", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WithArgs("acc-1", nil, now).WillReturnResult(sqlmock.NewResult(0, 0))

		created, err := repo.Create(context.Background(), &models.Profile{AccountID: "acc-1", CreatedAt: now})
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WillReturnError(errors.New("boom"))

		_, err := repo.Create(context.Background(), &models.Profile{AccountID: "acc-1", CreatedAt: now})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db error")
	})
}

func TestGet_WithRole(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	lastTry := now.Add(-time.Minute)

	mock.ExpectQuery(`(?s)FROM\s+profiles\s+p\s+LEFT\s+JOIN\s+roles\s+r\s+ON\s+r\.id\s*=\s*p\.role_id\s+WHERE\s+p\.account_id\s*=\s*\$1$`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows(profileCols).AddRow(
			"acc-1", "role-1", "hi", "+100", nil, "",
			true, "",
			2, false, nil, "10.0.0.1", lastTry,
			now, now,
			"role-1", "moderator", "Moderator",
			false, false, true, true,
			now, now,
		))

	p, err := repo.Get(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "role-1", p.RoleID)
	assert.Equal(t, 2, p.LoginAttempts)
	assert.Nil(t, p.LastLogin)
	require.NotNil(t, p.LastLoginAttempt)
	assert.Equal(t, lastTry, *p.LastLoginAttempt)
	require.NotNil(t, p.Role)
	assert.Equal(t, models.RoleModerator, p.Role.Name)
	assert.True(t, p.Role.Capabilities.Has(models.CapModerateContent))
	assert.False(t, p.Role.Capabilities.Has(models.CapDeleteUsers))
}

func TestGet_WithoutRole(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+profiles\s+p`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows(profileCols).AddRow(
			"acc-1", nil, "", "", nil, "",
			false, "digest",
			0, true, nil, "", nil,
			now, now,
			nil, nil, nil,
			nil, nil, nil, nil,
			nil, nil,
		))

	p, err := repo.Get(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Empty(t, p.RoleID)
	assert.Nil(t, p.Role)
	assert.True(t, p.IsLocked)
	assert.Equal(t, "digest", p.EmailVerificationDigest)
}

func TestGetForUpdate_LocksProfileRow(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)WHERE\s+p\.account_id\s*=\s*\$1\s+FOR\s+UPDATE\s+OF\s+p$`).
		WithArgs("acc-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetForUpdate(context.Background(), "acc-1")
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLoginState(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	last := now.Add(-time.Hour)

	mock.ExpectExec(`(?s)UPDATE\s+profiles\s+SET\s+login_attempts\s*=\s*\$1,\s*is_locked\s*=\s*\$2.*WHERE\s+account_id\s*=\s*\$7`).
		WithArgs(5, true, last, "1.2.3.4", now, now, "acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := &models.Profile{AccountID: "acc-1", LoginAttempts: 5, IsLocked: true, LastLogin: &last, LastLoginIP: "1.2.3.4", LastLoginAttempt: &now}
	require.NoError(t, repo.UpdateLoginState(context.Background(), p, now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLoginState_MissingProfile(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`UPDATE\s+profiles`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateLoginState(context.Background(), &models.Profile{AccountID: "ghost"}, now)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdateDetails(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	dob := time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`(?s)UPDATE\s+profiles\s+SET\s+bio\s*=\s*\$1,\s*phone_number\s*=\s*\$2,\s*date_of_birth\s*=\s*\$3`).
		WithArgs("bio", "+371", dob, now, "acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateDetails(context.Background(), "acc-1", models.ProfileDetails{Bio: "bio", PhoneNumber: "+371", DateOfBirth: &dob}, now)
	require.NoError(t, err)
}

func TestSetRole(t *testing.T) {
	q := `UPDATE\s+profiles\s+SET\s+role_id\s*=\s*\$1,\s*updated_at\s*=\s*\$2\s+WHERE\s+account_id\s*=\s*\$3`

	t.Run("assign", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WithArgs("role-2", now, "acc-1").WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.SetRole(context.Background(), "acc-1", "role-2", now))
	})

	t.Run("clear", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WithArgs(nil, now, "acc-1").WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.SetRole(context.Background(), "acc-1", "", now))
	})
}

func TestSetAvatarKeyAndDigest(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`SET\s+avatar_key\s*=\s*\$1`).WithArgs("avatars/acc-1", now, "acc-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET\s+email_verification_digest\s*=\s*\$1`).WithArgs("abc", now, "acc-1").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetAvatarKey(context.Background(), "acc-1", "avatars/acc-1", now))
	require.NoError(t, repo.SetEmailVerificationDigest(context.Background(), "acc-1", "abc", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEmailVerified(t *testing.T) {
	q := `(?s)SET\s+is_email_verified\s*=\s*TRUE.*RETURNING\s+account_id`

	t.Run("found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs(now, "digest").WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("acc-1"))

		id, err := repo.MarkEmailVerified(context.Background(), "digest", now)
		require.NoError(t, err)
		assert.Equal(t, "acc-1", id)
	})

	t.Run("unknown digest", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WillReturnError(sql.ErrNoRows)

		_, err := repo.MarkEmailVerified(context.Background(), "nope", now)
		require.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestListLocked(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT\s+account_id\s+FROM\s+profiles\s+WHERE\s+is_locked`).
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("a").AddRow("b"))

	ids, err := repo.ListLocked(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestListLocked_ScanError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+profiles\s+WHERE\s+is_locked`).
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow(nil))

	_, err := repo.ListLocked(context.Background())
	require.Error(t, err)
}
