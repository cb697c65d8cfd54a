// internal/domain/session/entity.go
package session

import (
	"database/sql"
	"time"
)

// RevokeReason is the closed set of reasons a session may be revoked for.
type RevokeReason string

const (
	RevokeReasonUserLogout   RevokeReason = "user_logout"
	RevokeReasonRotation     RevokeReason = "token_rotation"
	RevokeReasonSessionLimit RevokeReason = "session_limit_exceeded"
	RevokeReasonTokenReuse   RevokeReason = "token_reuse_detected"
	RevokeReasonAdminAction  RevokeReason = "admin_action"
)

// Valid reports whether the reason belongs to the closed enumeration.
func (r RevokeReason) Valid() bool {
	switch r {
	case RevokeReasonUserLogout, RevokeReasonRotation, RevokeReasonSessionLimit,
		RevokeReasonTokenReuse, RevokeReasonAdminAction:
		return true
	}
	return false
}

// DeviceInfo carries the descriptive, non-authoritative device fields a client
// reports at login.
type DeviceInfo struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
	UserAgent  string `json:"-"`
	IPAddress  string `json:"-"`
	Country    string `json:"-"`
	City       string `json:"-"`
}

// Session represents one authenticated device binding. Token values are stored
// as one-way hashes only.
type Session struct {
	ID                string         `json:"id" db:"id"`
	SubjectID         int64          `json:"subject_id" db:"subject_id"`
	AccessTokenHash   string         `json:"-" db:"access_token_hash"`
	RefreshTokenHash  string         `json:"-" db:"refresh_token_hash"`
	TokenFamily       string         `json:"-" db:"token_family"`
	PreviousSessionID sql.NullString `json:"-" db:"previous_session_id"`
	DeviceID          sql.NullString `json:"device_id" db:"device_id"`
	DeviceName        sql.NullString `json:"device_name" db:"device_name"`
	DeviceType        sql.NullString `json:"device_type" db:"device_type"`
	UserAgent         sql.NullString `json:"user_agent" db:"user_agent"`
	IPAddress         sql.NullString `json:"ip_address" db:"ip_address"`
	Country           sql.NullString `json:"country" db:"country"`
	City              sql.NullString `json:"city" db:"city"`
	IssuedAt          time.Time      `json:"issued_at" db:"issued_at"`
	ExpiresAt         time.Time      `json:"expires_at" db:"expires_at"`
	LastActivityAt    time.Time      `json:"last_activity_at" db:"last_activity_at"`
	IsRevoked         bool           `json:"is_revoked" db:"is_revoked"`
	RevokedAt         sql.NullTime   `json:"revoked_at" db:"revoked_at"`
	RevokedReason     sql.NullString `json:"revoked_reason" db:"revoked_reason"`
}

// Live reports whether the session can still satisfy an authentication check.
// A revoked session is never live, regardless of expiry.
func (s *Session) Live(now time.Time) bool {
	return !s.IsRevoked && now.Before(s.ExpiresAt)
}

// Expired reports whether the session has passed its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
