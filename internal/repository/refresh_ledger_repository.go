package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kinoplex/auth-api/internal/models"
	appErrors "github.com/kinoplex/auth-api/pkg/errors"
)

// RefreshLedgerRepository owns the refresh_tokens table, the durable source
// of truth for refresh-token validity. Rows are append-only; deactivation is
// a one-way flip of the active flag and rows are never deleted, so the table
// grows monotonically (archival is an operational concern, not ours).
type RefreshLedgerRepository struct {
	db *sqlx.DB
}

// NewRefreshLedgerRepository creates a new instance.
func NewRefreshLedgerRepository(db *sqlx.DB) *RefreshLedgerRepository {
	return &RefreshLedgerRepository{db: db}
}

// Create appends a new active record.
func (r *RefreshLedgerRepository) Create(ctx context.Context, rec *models.RefreshRecord) error {
	const query = `INSERT INTO refresh_tokens (token_id, user_id, device_id, issued_at, expires_at, active) VALUES (:token_id, :user_id, :device_id, :issued_at, :expires_at, :active)`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "create refresh record")
	}
	return nil
}

// FindByTokenID returns the record for a token id regardless of its active
// flag. Callers need the inactive row back to tell replay (exists but
// inactive) apart from a token that never existed; an unreachable store is
// reported as Unavailable, never as NotFound.
func (r *RefreshLedgerRepository) FindByTokenID(ctx context.Context, tokenID string) (*models.RefreshRecord, error) {
	const query = `SELECT token_id, user_id, device_id, issued_at, expires_at, active, deactivated_at FROM refresh_tokens WHERE token_id = $1 LIMIT 1`
	var rec models.RefreshRecord
	if err := r.db.GetContext(ctx, &rec, query, tokenID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "refresh record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "find refresh record")
	}
	return &rec, nil
}

// Deactivate flips exactly one active record to inactive. The active=true
// guard makes the transition atomic: of two racing callers only one affects
// a row, the loser gets Conflict and must treat the token as replayed.
func (r *RefreshLedgerRepository) Deactivate(ctx context.Context, tokenID string, at time.Time) error {
	const query = `UPDATE refresh_tokens SET active = false, deactivated_at = $2 WHERE token_id = $1 AND active = true`
	res, err := r.db.ExecContext(ctx, query, tokenID, at)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "deactivate refresh record")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "deactivate refresh record")
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrConflict, "refresh record already inactive")
	}
	return nil
}

// DeactivateDevice revokes the active records of one device lineage. Zero
// affected rows is fine: logging out an already-logged-out device is a no-op.
func (r *RefreshLedgerRepository) DeactivateDevice(ctx context.Context, userID, deviceID string, at time.Time) error {
	const query = `UPDATE refresh_tokens SET active = false, deactivated_at = $3 WHERE user_id = $1 AND device_id = $2 AND active = true`
	if _, err := r.db.ExecContext(ctx, query, userID, deviceID, at); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "deactivate device refresh records")
	}
	return nil
}

// DeactivateAll revokes every active record of a user.
func (r *RefreshLedgerRepository) DeactivateAll(ctx context.Context, userID string, at time.Time) error {
	const query = `UPDATE refresh_tokens SET active = false, deactivated_at = $2 WHERE user_id = $1 AND active = true`
	if _, err := r.db.ExecContext(ctx, query, userID, at); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "deactivate user refresh records")
	}
	return nil
}
