// internal/repository/postgres/session_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chakula-service/internal/domain/session"
	xerrors "chakula-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `
	id, subject_id, access_token_hash, refresh_token_hash, token_family,
	previous_session_id, device_id, device_name, device_type, user_agent,
	ip_address, country, city, issued_at, expires_at, last_activity_at,
	is_revoked, revoked_at, revoked_reason`

func scanSession(row pgx.Row) (*session.Session, error) {
	var s session.Session
	err := row.Scan(
		&s.ID, &s.SubjectID, &s.AccessTokenHash, &s.RefreshTokenHash, &s.TokenFamily,
		&s.PreviousSessionID, &s.DeviceID, &s.DeviceName, &s.DeviceType, &s.UserAgent,
		&s.IPAddress, &s.Country, &s.City, &s.IssuedAt, &s.ExpiresAt, &s.LastActivityAt,
		&s.IsRevoked, &s.RevokedAt, &s.RevokedReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return &s, nil
}

// Create persists a new session record.
func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	query := `
		INSERT INTO sessions (
			id, subject_id, access_token_hash, refresh_token_hash, token_family,
			previous_session_id, device_id, device_name, device_type, user_agent,
			ip_address, country, city, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING issued_at, last_activity_at
	`

	err := r.db.QueryRow(
		ctx, query,
		s.ID, s.SubjectID, s.AccessTokenHash, s.RefreshTokenHash, s.TokenFamily,
		s.PreviousSessionID, s.DeviceID, s.DeviceName, s.DeviceType, s.UserAgent,
		s.IPAddress, s.Country, s.City, s.ExpiresAt,
	).Scan(&s.IssuedAt, &s.LastActivityAt)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindLiveByAccessHash returns a non-revoked, unexpired session matching the
// access-token hash.
func (r *SessionRepository) FindLiveByAccessHash(ctx context.Context, hash string) (*session.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE access_token_hash = $1 AND is_revoked = FALSE AND expires_at > NOW()
	`
	return scanSession(r.db.QueryRow(ctx, query, hash))
}

// FindByRefreshHash returns the session matching the refresh-token hash
// regardless of revocation state. Used by the theft-detection path.
func (r *SessionRepository) FindByRefreshHash(ctx context.Context, hash string) (*session.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE refresh_token_hash = $1
	`
	return scanSession(r.db.QueryRow(ctx, query, hash))
}

// RevokeLiveByRefreshHash is the rotation linchpin: a single conditional
// update that only succeeds while the session is not yet revoked. A second
// caller racing on the same refresh token gets ErrNotFound and is routed to
// theft detection.
func (r *SessionRepository) RevokeLiveByRefreshHash(ctx context.Context, hash string, reason session.RevokeReason) (*session.Session, error) {
	query := `
		UPDATE sessions
		SET is_revoked = TRUE, revoked_at = NOW(), revoked_reason = $2
		WHERE refresh_token_hash = $1 AND is_revoked = FALSE
		RETURNING ` + sessionColumns + `
	`
	return scanSession(r.db.QueryRow(ctx, query, hash, string(reason)))
}

// RevokeByID marks one session revoked. Idempotent: returns false when the
// session was already revoked or does not exist.
func (r *SessionRepository) RevokeByID(ctx context.Context, id string, reason session.RevokeReason) (bool, error) {
	query := `
		UPDATE sessions
		SET is_revoked = TRUE, revoked_at = NOW(), revoked_reason = $2
		WHERE id = $1 AND is_revoked = FALSE
	`
	tag, err := r.db.Exec(ctx, query, id, string(reason))
	if err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindByID returns a session by id, revoked or not.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*session.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE id = $1
	`
	return scanSession(r.db.QueryRow(ctx, query, id))
}

// RevokeAllForSubject bulk-revokes every live session of a subject.
func (r *SessionRepository) RevokeAllForSubject(ctx context.Context, subjectID int64, reason session.RevokeReason) (int64, error) {
	query := `
		UPDATE sessions
		SET is_revoked = TRUE, revoked_at = NOW(), revoked_reason = $2
		WHERE subject_id = $1 AND is_revoked = FALSE
	`
	tag, err := r.db.Exec(ctx, query, subjectID, string(reason))
	if err != nil {
		return 0, fmt.Errorf("failed to revoke subject sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RevokeFamily revokes every live session sharing a token family.
func (r *SessionRepository) RevokeFamily(ctx context.Context, family string, reason session.RevokeReason) (int64, error) {
	query := `
		UPDATE sessions
		SET is_revoked = TRUE, revoked_at = NOW(), revoked_reason = $2
		WHERE token_family = $1 AND is_revoked = FALSE
	`
	tag, err := r.db.Exec(ctx, query, family, string(reason))
	if err != nil {
		return 0, fmt.Errorf("failed to revoke token family: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListLiveForSubject returns live, unexpired sessions most-recently-active
// first.
func (r *SessionRepository) ListLiveForSubject(ctx context.Context, subjectID int64) ([]*session.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE subject_id = $1 AND is_revoked = FALSE AND expires_at > NOW()
		ORDER BY last_activity_at DESC
	`
	rows, err := r.db.Query(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// TouchActivity updates the activity timestamp. Last writer wins; nothing
// depends on its exact value.
func (r *SessionRepository) TouchActivity(ctx context.Context, id string) error {
	query := `UPDATE sessions SET last_activity_at = $1 WHERE id = $2`
	_, err := r.db.Exec(ctx, query, time.Now(), id)
	return err
}

// DeleteExpired removes sessions past their expiry; stands in for a storage
// TTL index and keeps listings bounded.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= NOW()`
	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
