package models

import "time"

// RefreshRecord is one row of the refresh ledger. Rows are append-only:
// rotation and revocation only ever flip Active to false, never delete or
// rewrite the row, so the full rotation history of a device lineage stays
// queryable.
type RefreshRecord struct {
	TokenID       string     `db:"token_id" json:"token_id"`
	UserID        string     `db:"user_id" json:"user_id"`
	DeviceID      string     `db:"device_id" json:"device_id"`
	IssuedAt      time.Time  `db:"issued_at" json:"issued_at"`
	ExpiresAt     time.Time  `db:"expires_at" json:"expires_at"`
	Active        bool       `db:"active" json:"active"`
	DeactivatedAt *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
}
