package models

import "time"

// AuditAction constants represent auth events recorded in the trail.
const (
	AuditActionLogin       = "LOGIN"
	AuditActionLoginFailed = "LOGIN_FAILED"
	AuditActionRefresh     = "REFRESH"
	AuditActionReuseRevoke = "REUSE_REVOKED"
	AuditActionLogout      = "LOGOUT"
	AuditActionRegister    = "REGISTER"
	AuditActionUserList    = "USER_LIST_VIEWED"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Action    string    `db:"action" json:"action"`
	Detail    []byte    `db:"detail" json:"detail,omitempty"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
