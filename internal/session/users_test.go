package session

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mydiary/internal/models"
)

var userCols = []string{"id", "email", "password_hash", "display_name", "photo_url", "provider", "provider_subject", "created_at"}

func newUsersMock(t *testing.T) (*PostgresUsers, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return NewPostgresUsers(sqlx.NewDb(raw, "pgx")), mock
}

func TestPostgresUsers_FindByEmail(t *testing.T) {
	r, mock := newUsersMock(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .* FROM users WHERE email = \$1`).WithArgs("a@b.c").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("u1", "a@b.c", "hash", nil, nil, "password", nil, ts))

	u, err := r.FindByEmail(context.Background(), "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	require.NotNil(t, u.PasswordHash)
	assert.Equal(t, "hash", *u.PasswordHash)
	assert.Nil(t, u.DisplayName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUsers_NotFound(t *testing.T) {
	r, mock := newUsersMock(t)
	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := r.FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPostgresUsers_CreateDuplicate(t *testing.T) {
	r, mock := newUsersMock(t)
	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(&pgconn.PgError{Code: "23505"})

	hash := "h"
	err := r.Create(context.Background(), &models.User{Email: "a@b.c", PasswordHash: &hash})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestPostgresUsers_Create(t *testing.T) {
	r, mock := newUsersMock(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO users .* RETURNING created_at`).
		WithArgs(sqlmock.AnyArg(), "a@b.c", sqlmock.AnyArg(), nil, nil, "password", nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(ts))

	hash := "h"
	u := &models.User{Email: "a@b.c", PasswordHash: &hash}
	require.NoError(t, r.Create(context.Background(), u))
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "password", u.Provider)
	assert.Equal(t, ts, u.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
