package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinoplex/auth-api/internal/models"
	appErrors "github.com/kinoplex/auth-api/pkg/errors"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestCreateRefreshRecord(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshLedgerRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	now := time.Now().UTC()
	err := repo.Create(context.Background(), &models.RefreshRecord{
		TokenID:   "t1",
		UserID:    "u1",
		DeviceID:  "d1",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
		Active:    true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByTokenIDReturnsInactiveRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshLedgerRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"token_id", "user_id", "device_id", "issued_at", "expires_at", "active", "deactivated_at"}).
		AddRow("t1", "u1", "d1", now, now.Add(time.Hour), false, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT token_id, user_id, device_id, issued_at, expires_at, active, deactivated_at FROM refresh_tokens WHERE token_id = $1 LIMIT 1")).
		WithArgs("t1").
		WillReturnRows(rows)

	rec, err := repo.FindByTokenID(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, rec.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByTokenIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshLedgerRepository(db)

	mock.ExpectQuery("SELECT token_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"token_id", "user_id", "device_id", "issued_at", "expires_at", "active", "deactivated_at"}))

	_, err := repo.FindByTokenID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestDeactivateConditional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshLedgerRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET active = false, deactivated_at = $2 WHERE token_id = $1 AND active = true")).
		WithArgs("t1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Deactivate(context.Background(), "t1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateAlreadyInactiveIsConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshLedgerRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE refresh_tokens SET active = false").
		WithArgs("t1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Deactivate(context.Background(), "t1", at)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestDeactivateDeviceIsIdempotent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshLedgerRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE refresh_tokens SET active = false").
		WithArgs("u1", "d1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.DeactivateDevice(context.Background(), "u1", "d1", at))
}

func TestDeactivateAll(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshLedgerRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE refresh_tokens SET active = false").
		WithArgs("u1", at).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.DeactivateAll(context.Background(), "u1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
