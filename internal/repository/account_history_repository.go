package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kinoplex/auth-api/internal/models"
	appErrors "github.com/kinoplex/auth-api/pkg/errors"
)

// AccountHistoryRepository records the authentication event trail.
type AccountHistoryRepository struct {
	db *sqlx.DB
}

// NewAccountHistoryRepository creates a new instance.
func NewAccountHistoryRepository(db *sqlx.DB) *AccountHistoryRepository {
	return &AccountHistoryRepository{db: db}
}

// Create appends a history row.
func (r *AccountHistoryRepository) Create(ctx context.Context, entry *models.AccountHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO account_history (id, user_id, event, device_id, ip_address, user_agent, created_at) VALUES (:id, :user_id, :event, :device_id, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "create history entry")
	}
	return nil
}

// ListByUser returns a page of a user's history, newest first.
func (r *AccountHistoryRepository) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.AccountHistory, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const listQuery = `SELECT id, user_id, event, device_id, ip_address, user_agent, created_at FROM account_history WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	var entries []models.AccountHistory
	if err := r.db.SelectContext(ctx, &entries, listQuery, userID, pageSize, offset); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "list history")
	}

	const countQuery = `SELECT COUNT(*) FROM account_history WHERE user_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, userID); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "count history")
	}

	return entries, total, nil
}
