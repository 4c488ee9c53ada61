package models

import "time"

// History event types.
const (
	HistoryEventLogin          = "LOGIN"
	HistoryEventRefresh        = "REFRESH"
	HistoryEventLogout         = "LOGOUT"
	HistoryEventLogoutAll      = "LOGOUT_ALL"
	HistoryEventReplayLockout  = "REPLAY_LOCKOUT"
	HistoryEventPasswordChange = "PASSWORD_CHANGE"
	HistoryEventRegister       = "REGISTER"
)

// AccountHistory is an append-only trail of authentication events.
type AccountHistory struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Event     string    `db:"event" json:"event"`
	DeviceID  string    `db:"device_id" json:"device_id"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
