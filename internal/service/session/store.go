// internal/service/session/store.go
package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chakula-service/internal/domain/audit"
	domain "chakula-service/internal/domain/session"
	xerrors "chakula-service/internal/pkg/errors"
	"chakula-service/internal/pkg/hash"
	"chakula-service/internal/pkg/jwt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Repository is the persistence surface the store depends on.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	FindLiveByAccessHash(ctx context.Context, hash string) (*domain.Session, error)
	FindByRefreshHash(ctx context.Context, hash string) (*domain.Session, error)
	RevokeLiveByRefreshHash(ctx context.Context, hash string, reason domain.RevokeReason) (*domain.Session, error)
	RevokeByID(ctx context.Context, id string, reason domain.RevokeReason) (bool, error)
	FindByID(ctx context.Context, id string) (*domain.Session, error)
	RevokeAllForSubject(ctx context.Context, subjectID int64, reason domain.RevokeReason) (int64, error)
	RevokeFamily(ctx context.Context, family string, reason domain.RevokeReason) (int64, error)
	ListLiveForSubject(ctx context.Context, subjectID int64) ([]*domain.Session, error)
	TouchActivity(ctx context.Context, id string) error
}

// Recorder appends to the security audit ledger.
type Recorder interface {
	Record(ctx context.Context, e *audit.Entry)
}

// RevocationList is the fast deny-list consulted by the gatekeeper.
type RevocationList interface {
	Revoke(ctx context.Context, tokenHash string, ttl time.Duration) error
}

// Notifier delivers out-of-band security events to connected clients.
type Notifier interface {
	ForceLogout(subjectID int64, sessionID, reason string)
	SecurityAlert(subjectID int64, message string)
}

// TokenPair is what a successful login or rotation hands back to the client.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	SessionID    string `json:"session_id"`
}

// Store owns session lifecycle: creation under the per-subject cap, refresh
// rotation with reuse detection, revocation, and activity tracking.
type Store struct {
	repo        Repository
	ledger      Recorder
	revocations RevocationList
	notifier    Notifier
	tokens      *jwt.Manager
	hasher      *hash.Hasher
	maxSessions int
	logger      *zap.Logger
}

func NewStore(
	repo Repository,
	ledger Recorder,
	revocations RevocationList,
	notifier Notifier,
	tokens *jwt.Manager,
	hasher *hash.Hasher,
	maxSessions int,
	logger *zap.Logger,
) *Store {
	return &Store{
		repo:        repo,
		ledger:      ledger,
		revocations: revocations,
		notifier:    notifier,
		tokens:      tokens,
		hasher:      hasher,
		maxSessions: maxSessions,
		logger:      logger,
	}
}

// Create issues a fresh token pair and binds it to a new session for the
// device. When the subject is at the session cap, the least-recently-active
// session is evicted first.
func (s *Store) Create(ctx context.Context, subjectID int64, role string, dev domain.DeviceInfo) (*TokenPair, *domain.Session, error) {
	if err := s.enforceCap(ctx, subjectID, dev); err != nil {
		return nil, nil, err
	}

	accessToken, _, err := s.tokens.Generator.IssueAccess(subjectID, role)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	refreshToken, _, err := s.tokens.Generator.IssueRefresh(subjectID, role)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	now := time.Now()
	sess := &domain.Session{
		ID:               ulid.Make().String(),
		SubjectID:        subjectID,
		AccessTokenHash:  s.hasher.Token(accessToken),
		RefreshTokenHash: s.hasher.Token(refreshToken),
		TokenFamily:      ulid.Make().String(),
		DeviceID:         nullStr(dev.DeviceID),
		DeviceName:       nullStr(dev.DeviceName),
		DeviceType:       nullStr(dev.DeviceType),
		UserAgent:        nullStr(dev.UserAgent),
		IPAddress:        nullStr(dev.IPAddress),
		Country:          nullStr(dev.Country),
		City:             nullStr(dev.City),
		ExpiresAt:        now.Add(s.tokens.Generator.RefreshTTL),
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, nil, err
	}

	return s.pair(accessToken, refreshToken, sess.ID), sess, nil
}

// Rotate exchanges a refresh token for a new pair. The old session is revoked
// by a single conditional update, so two concurrent rotations of the same
// token cannot both succeed; the loser is routed through reuse detection.
func (s *Store) Rotate(ctx context.Context, rawRefresh string, dev domain.DeviceInfo) (*TokenPair, *domain.Session, error) {
	claims, err := s.tokens.Verifier.VerifyRefresh(rawRefresh)
	if err != nil {
		s.ledger.Record(ctx, &audit.Entry{
			EventType: audit.EventRefreshRejected,
			Action:    "refresh_token_rejected",
			Result:    audit.ResultFailure,
			IPAddress: nullStr(dev.IPAddress),
			DeviceID:  nullStr(dev.DeviceID),
			RiskLevel: audit.RiskMedium,
		})
		return nil, nil, err
	}

	refreshHash := s.hasher.Token(rawRefresh)

	old, err := s.repo.RevokeLiveByRefreshHash(ctx, refreshHash, domain.RevokeReasonRotation)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, nil, s.handleRotationMiss(ctx, refreshHash, dev)
	}
	if err != nil {
		return nil, nil, err
	}

	if old.Expired(time.Now()) {
		// The session stays revoked; a dead credential never comes back.
		s.ledger.Record(ctx, &audit.Entry{
			EventType: audit.EventRefreshRejected,
			SubjectID: sql.NullInt64{Int64: old.SubjectID, Valid: true},
			Action:    "refresh_token_expired",
			Result:    audit.ResultFailure,
			IPAddress: nullStr(dev.IPAddress),
			DeviceID:  nullStr(dev.DeviceID),
			RiskLevel: audit.RiskLow,
		})
		return nil, nil, xerrors.ErrRefreshTokenExpired
	}

	accessToken, _, err := s.tokens.Generator.IssueAccess(claims.SubjectID, claims.Role)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	refreshToken, _, err := s.tokens.Generator.IssueRefresh(claims.SubjectID, claims.Role)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	next := &domain.Session{
		ID:                ulid.Make().String(),
		SubjectID:         old.SubjectID,
		AccessTokenHash:   s.hasher.Token(accessToken),
		RefreshTokenHash:  s.hasher.Token(refreshToken),
		TokenFamily:       old.TokenFamily,
		PreviousSessionID: sql.NullString{String: old.ID, Valid: true},
		DeviceID:          coalesce(dev.DeviceID, old.DeviceID),
		DeviceName:        coalesce(dev.DeviceName, old.DeviceName),
		DeviceType:        coalesce(dev.DeviceType, old.DeviceType),
		UserAgent:         coalesce(dev.UserAgent, old.UserAgent),
		IPAddress:         coalesce(dev.IPAddress, old.IPAddress),
		Country:           coalesce(dev.Country, old.Country),
		City:              coalesce(dev.City, old.City),
		ExpiresAt:         time.Now().Add(s.tokens.Generator.RefreshTTL),
	}

	if err := s.repo.Create(ctx, next); err != nil {
		return nil, nil, err
	}

	s.ledger.Record(ctx, &audit.Entry{
		EventType: audit.EventTokenRefreshed,
		SubjectID: sql.NullInt64{Int64: old.SubjectID, Valid: true},
		Action:    "rotate_refresh_token",
		IPAddress: nullStr(dev.IPAddress),
		DeviceID:  next.DeviceID,
	})

	return s.pair(accessToken, refreshToken, next.ID), next, nil
}

// handleRotationMiss decides between a replayed token (theft signal) and a
// token we have never seen. Both answer with the same generic error so an
// attacker learns nothing from the response.
func (s *Store) handleRotationMiss(ctx context.Context, refreshHash string, dev domain.DeviceInfo) error {
	stale, err := s.repo.FindByRefreshHash(ctx, refreshHash)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		s.ledger.Record(ctx, &audit.Entry{
			EventType: audit.EventRefreshRejected,
			Action:    "unknown_refresh_token",
			Result:    audit.ResultFailure,
			IPAddress: nullStr(dev.IPAddress),
			DeviceID:  nullStr(dev.DeviceID),
			RiskLevel: audit.RiskHigh,
		})
		return xerrors.ErrInvalidRefreshToken
	}
	if err != nil {
		return err
	}

	// The token was already consumed. Someone is holding a credential that
	// legitimately rotated away, so the whole family is burned.
	revoked, err := s.repo.RevokeFamily(ctx, stale.TokenFamily, domain.RevokeReasonTokenReuse)
	if err != nil {
		s.logger.Error("failed to revoke token family after reuse",
			zap.String("token_family", stale.TokenFamily),
			zap.Error(err))
	}

	s.ledger.Record(ctx, &audit.Entry{
		EventType:   audit.EventTokenReuse,
		SubjectID:   sql.NullInt64{Int64: stale.SubjectID, Valid: true},
		Action:      "refresh_token_replayed",
		Result:      audit.ResultFailure,
		IPAddress:   nullStr(dev.IPAddress),
		DeviceID:    nullStr(dev.DeviceID),
		RiskLevel:   audit.RiskCritical,
		RiskFactors: []string{"token_reuse", "potential_theft"},
	})

	s.notifier.SecurityAlert(stale.SubjectID,
		"Suspicious activity detected on your account. All sessions have been signed out.")
	s.notifier.ForceLogout(stale.SubjectID, "", string(domain.RevokeReasonTokenReuse))

	s.logger.Warn("refresh token reuse detected",
		zap.Int64("subject_id", stale.SubjectID),
		zap.String("token_family", stale.TokenFamily),
		zap.Int64("sessions_revoked", revoked))

	return xerrors.ErrInvalidRefreshToken
}

// FindBinding resolves an access credential to its live session and touches
// the activity timestamp. An orphaned token (valid signature, no live
// session) maps to ErrSessionInvalid.
func (s *Store) FindBinding(ctx context.Context, rawAccess string) (*domain.Session, error) {
	sess, err := s.repo.FindLiveByAccessHash(ctx, s.hasher.Token(rawAccess))
	if xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrSessionInvalid
	}
	if err != nil {
		return nil, err
	}

	if err := s.repo.TouchActivity(ctx, sess.ID); err != nil {
		s.logger.Warn("failed to touch session activity",
			zap.String("session_id", sess.ID), zap.Error(err))
	}
	return sess, nil
}

// Revoke revokes one session owned by the subject. Idempotent on
// already-revoked sessions; revoking someone else's session is forbidden.
func (s *Store) Revoke(ctx context.Context, subjectID int64, sessionID string, reason domain.RevokeReason) error {
	sess, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.SubjectID != subjectID {
		return xerrors.ErrForbidden
	}

	fresh, err := s.repo.RevokeByID(ctx, sessionID, reason)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	s.denyList(ctx, sess.AccessTokenHash)
	s.notifier.ForceLogout(subjectID, sessionID, string(reason))
	s.ledger.Record(ctx, &audit.Entry{
		EventType: audit.EventSessionRevoked,
		SubjectID: sql.NullInt64{Int64: subjectID, Valid: true},
		Action:    "revoke_session:" + string(reason),
		DeviceID:  sess.DeviceID,
		RiskLevel: audit.RiskMedium,
	})
	return nil
}

// RevokeAll revokes every live session of a subject and deny-lists their
// access credentials so they die before their natural expiry.
func (s *Store) RevokeAll(ctx context.Context, subjectID int64, reason domain.RevokeReason) (int64, error) {
	live, err := s.repo.ListLiveForSubject(ctx, subjectID)
	if err != nil {
		return 0, err
	}
	for _, sess := range live {
		s.denyList(ctx, sess.AccessTokenHash)
	}

	count, err := s.repo.RevokeAllForSubject(ctx, subjectID, reason)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		s.notifier.ForceLogout(subjectID, "", string(reason))
		s.ledger.Record(ctx, &audit.Entry{
			EventType: audit.EventSessionsBulkWipe,
			SubjectID: sql.NullInt64{Int64: subjectID, Valid: true},
			Action:    "revoke_all_sessions:" + string(reason),
			RiskLevel: audit.RiskMedium,
		})
	}
	return count, nil
}

// List returns the subject's live sessions, most recently active first.
func (s *Store) List(ctx context.Context, subjectID int64, currentSessionID string) ([]domain.Info, error) {
	live, err := s.repo.ListLiveForSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	infos := make([]domain.Info, 0, len(live))
	for _, sess := range live {
		infos = append(infos, domain.NewInfo(sess, currentSessionID))
	}
	return infos, nil
}

// enforceCap evicts least-recently-active sessions until the subject is one
// below the cap, making room for the session about to be created.
func (s *Store) enforceCap(ctx context.Context, subjectID int64, dev domain.DeviceInfo) error {
	if s.maxSessions <= 0 {
		return nil
	}

	live, err := s.repo.ListLiveForSubject(ctx, subjectID)
	if err != nil {
		return err
	}
	if len(live) < s.maxSessions {
		return nil
	}

	// ListLiveForSubject orders by activity descending, so eviction candidates
	// sit at the tail.
	for _, victim := range live[s.maxSessions-1:] {
		fresh, err := s.repo.RevokeByID(ctx, victim.ID, domain.RevokeReasonSessionLimit)
		if err != nil {
			return err
		}
		if !fresh {
			continue
		}

		s.denyList(ctx, victim.AccessTokenHash)
		s.notifier.ForceLogout(subjectID, victim.ID, string(domain.RevokeReasonSessionLimit))
		s.ledger.Record(ctx, &audit.Entry{
			EventType: audit.EventSessionLimit,
			SubjectID: sql.NullInt64{Int64: subjectID, Valid: true},
			Action:    "evict_least_recently_active",
			DeviceID:  victim.DeviceID,
			IPAddress: nullStr(dev.IPAddress),
			RiskLevel: audit.RiskLow,
		})
	}
	return nil
}

// denyList puts an access-credential hash on the fast deny-list. The TTL is
// an upper bound on the credential's remaining life.
func (s *Store) denyList(ctx context.Context, accessHash string) {
	if err := s.revocations.Revoke(ctx, accessHash, s.tokens.Generator.AccessTTL); err != nil {
		s.logger.Warn("failed to deny-list access token", zap.Error(err))
	}
}

func (s *Store) pair(accessToken, refreshToken, sessionID string) *TokenPair {
	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.Generator.AccessTTL.Seconds()),
		SessionID:    sessionID,
	}
}

func nullStr(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func coalesce(v string, fallback sql.NullString) sql.NullString {
	if v != "" {
		return sql.NullString{String: v, Valid: true}
	}
	return fallback
}
