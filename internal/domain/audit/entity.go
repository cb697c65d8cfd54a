// internal/domain/audit/entity.go
package audit

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// EventType is the closed enumeration of security events the ledger records.
type EventType string

const (
	EventLoginSuccess      EventType = "login_success"
	EventLoginFailure      EventType = "login_failure"
	EventLogout            EventType = "logout"
	EventTokenRefreshed    EventType = "token_refreshed"
	EventRefreshRejected   EventType = "refresh_rejected"
	EventTokenReuse        EventType = "token_reuse_detected"
	EventSessionRevoked    EventType = "session_revoked"
	EventSessionsBulkWipe  EventType = "sessions_revoked_bulk"
	EventSessionLimit      EventType = "session_limit_enforced"
	EventOrphanedToken     EventType = "orphaned_token"
	EventRoleMismatch      EventType = "role_mismatch"
	EventStepUpInitiated   EventType = "stepup_initiated"
	EventStepUpVerified    EventType = "stepup_verified"
	EventStepUpFailed      EventType = "stepup_failed"
	EventAccountSuspended  EventType = "account_suspended_access"
	EventAccountInactive   EventType = "account_inactive_access"
)

// RiskLevel classifies how alarming an event is.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Result is the outcome of the audited action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Entry is one append-only ledger record. Entries are never mutated.
type Entry struct {
	ID          int64          `json:"id" db:"id"`
	EventType   EventType      `json:"event_type" db:"event_type"`
	SubjectID   sql.NullInt64  `json:"subject_id" db:"subject_id"`
	Action      string         `json:"action" db:"action"`
	Result      Result         `json:"result" db:"result"`
	IPAddress   sql.NullString `json:"ip_address" db:"ip_address"`
	DeviceID    sql.NullString `json:"device_id" db:"device_id"`
	Country     sql.NullString `json:"country" db:"country"`
	City        sql.NullString `json:"city" db:"city"`
	RiskLevel   RiskLevel      `json:"risk_level" db:"risk_level"`
	RiskFactors pq.StringArray `json:"risk_factors" db:"risk_factors"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// QueryFilter narrows ledger queries for the admin endpoint.
type QueryFilter struct {
	SubjectID *int64
	EventType EventType
	RiskLevel RiskLevel
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}
