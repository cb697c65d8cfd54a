// internal/domain/user/entity.go
package user

import (
	"database/sql"
	"time"
)

// Role is the closed set of platform roles carried inside credentials.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Elevated reports whether the role requires step-up approval before its
// first login grants full capabilities.
func (r Role) Elevated() bool {
	return r == RoleManager || r == RoleAdmin
}

// User is the subject record the security core reads during gatekeeping.
// The core never mutates role or suspension state.
type User struct {
	ID                  int64          `json:"id" db:"id"`
	Email               string         `json:"email" db:"email"`
	FullName            sql.NullString `json:"full_name" db:"full_name"`
	PasswordHash        sql.NullString `json:"-" db:"password_hash"`
	Role                Role           `json:"role" db:"role"`
	IsActive            bool           `json:"is_active" db:"is_active"`
	IsSuspended         bool           `json:"is_suspended" db:"is_suspended"`
	SuspendedReason     sql.NullString `json:"suspended_reason" db:"suspended_reason"`
	ElevationApprovedAt sql.NullTime   `json:"-" db:"elevation_approved_at"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at" db:"updated_at"`
}

// ElevationApproved reports whether the elevated role has already passed
// step-up verification. Always true for non-elevated roles.
func (u *User) ElevationApproved() bool {
	if !u.Role.Elevated() {
		return true
	}
	return u.ElevationApprovedAt.Valid
}
