// internal/domain/stepup/entity.go
package stepup

import (
	"database/sql"
	"fmt"
	"time"
)

// Status is the state of a secondary verification challenge.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusVerified Status = "VERIFIED"
	StatusFailed   Status = "FAILED"
	StatusExpired  Status = "EXPIRED"
)

// Purpose identifies why the challenge was issued.
type Purpose string

const (
	PurposeManagerFirstLogin Purpose = "manager_first_login"
	PurposeRoleUpgrade       Purpose = "role_upgrade"
	PurposeSensitiveAction   Purpose = "sensitive_action"
)

// Valid reports whether the purpose belongs to the closed set.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeManagerFirstLogin, PurposeRoleUpgrade, PurposeSensitiveAction:
		return true
	}
	return false
}

// Method is how the challenge is satisfied.
type Method string

const (
	MethodOTPCode          Method = "otp_code"
	MethodAdminApproval    Method = "admin_approval"
	MethodReauthentication Method = "reauthentication"
)

// Verification represents one pending or resolved secondary challenge for a
// (subject, purpose) pair. Only a code hash is ever stored.
type Verification struct {
	ID           string       `json:"id" db:"id"`
	SubjectID    int64        `json:"subject_id" db:"subject_id"`
	Purpose      Purpose      `json:"purpose" db:"purpose"`
	Method       Method       `json:"method" db:"method"`
	Status       Status       `json:"status" db:"status"`
	CodeHash     string       `json:"-" db:"code_hash"`
	AttemptCount int          `json:"attempt_count" db:"attempt_count"`
	MaxAttempts  int          `json:"max_attempts" db:"max_attempts"`
	ExpiresAt    time.Time    `json:"expires_at" db:"expires_at"`
	VerifiedAt   sql.NullTime `json:"verified_at" db:"verified_at"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}

// transitions lists the legal state changes. Anything else is rejected.
var transitions = map[Status][]Status{
	StatusPending: {StatusVerified, StatusFailed, StatusExpired},
}

func (v *Verification) transition(to Status) error {
	for _, next := range transitions[v.Status] {
		if next == to {
			v.Status = to
			return nil
		}
	}
	return fmt.Errorf("illegal step-up transition %s -> %s", v.Status, to)
}

// MarkVerified moves the challenge to VERIFIED and stamps verifiedAt.
func (v *Verification) MarkVerified(now time.Time) error {
	if err := v.transition(StatusVerified); err != nil {
		return err
	}
	v.VerifiedAt = sql.NullTime{Time: now, Valid: true}
	return nil
}

// MarkFailed moves the challenge to FAILED after attempts are exhausted.
func (v *Verification) MarkFailed() error {
	return v.transition(StatusFailed)
}

// MarkExpired moves the challenge to EXPIRED on timeout.
func (v *Verification) MarkExpired() error {
	return v.transition(StatusExpired)
}

// AttemptsExhausted reports whether no further submissions may be accepted.
func (v *Verification) AttemptsExhausted() bool {
	return v.AttemptCount >= v.MaxAttempts
}
