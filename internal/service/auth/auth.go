// internal/service/auth/auth.go
package auth

import (
	"context"
	"database/sql"
	"time"

	"chakula-service/internal/domain/audit"
	sessiondom "chakula-service/internal/domain/session"
	stepupdom "chakula-service/internal/domain/stepup"
	"chakula-service/internal/domain/user"
	xerrors "chakula-service/internal/pkg/errors"
	"chakula-service/internal/pkg/hash"
	"chakula-service/internal/pkg/jwt"
	sessionsvc "chakula-service/internal/service/session"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository is the subject lookup surface the service depends on.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*user.User, error)
	FindByEmail(ctx context.Context, email string) (*user.User, error)
	CreateFederated(ctx context.Context, u *user.User) error
	MarkElevationApproved(ctx context.Context, id int64) error
}

// SessionStore owns session lifecycle and token issuance.
type SessionStore interface {
	Create(ctx context.Context, subjectID int64, role string, dev sessiondom.DeviceInfo) (*sessionsvc.TokenPair, *sessiondom.Session, error)
	Rotate(ctx context.Context, rawRefresh string, dev sessiondom.DeviceInfo) (*sessionsvc.TokenPair, *sessiondom.Session, error)
	FindBinding(ctx context.Context, rawAccess string) (*sessiondom.Session, error)
	Revoke(ctx context.Context, subjectID int64, sessionID string, reason sessiondom.RevokeReason) error
	RevokeAll(ctx context.Context, subjectID int64, reason sessiondom.RevokeReason) (int64, error)
	List(ctx context.Context, subjectID int64, currentSessionID string) ([]sessiondom.Info, error)
}

// StepUpVerifier runs secondary verification challenges.
type StepUpVerifier interface {
	Initiate(ctx context.Context, subjectID int64, email string, purpose stepupdom.Purpose) (*stepupdom.Verification, error)
	Resend(ctx context.Context, subjectID int64, email string, purpose stepupdom.Purpose) (*stepupdom.Verification, error)
	Verify(ctx context.Context, subjectID int64, purpose stepupdom.Purpose, code string) (*stepupdom.Verification, error)
}

// Recorder appends to the security audit ledger.
type Recorder interface {
	Record(ctx context.Context, e *audit.Entry)
}

// RevocationList is the fast deny-list of individually killed credentials.
type RevocationList interface {
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
	Revoke(ctx context.Context, tokenHash string, ttl time.Duration) error
}

// RateLimiter throttles credential-guessing attempts.
type RateLimiter interface {
	CheckLoginAttempt(ctx context.Context, ip, email string) (bool, int64, error)
	ResetLoginAttempts(ctx context.Context, ip, email string) error
}

// Principal is the authenticated identity attached to a request after the
// gatekeeper admits it. Role comes from storage, not from the credential.
type Principal struct {
	SubjectID int64
	Email     string
	Role      user.Role
	SessionID string
}

// LoginResult is what a password or federated login hands back. Either a
// token pair, or a pending step-up challenge that must be cleared first.
type LoginResult struct {
	Tokens         *sessionsvc.TokenPair `json:"tokens,omitempty"`
	StepUpRequired bool                  `json:"step_up_required,omitempty"`
	StepUpPurpose  string                `json:"step_up_purpose,omitempty"`
}

// Service orchestrates login, refresh, logout and the gatekeeper pipeline.
type Service struct {
	users       UserRepository
	sessions    SessionStore
	stepups     StepUpVerifier
	ledger      Recorder
	revocations RevocationList
	limiter     RateLimiter
	tokens      *jwt.Manager
	hasher      *hash.Hasher
	logger      *zap.Logger
}

func NewService(
	users UserRepository,
	sessions SessionStore,
	stepups StepUpVerifier,
	ledger Recorder,
	revocations RevocationList,
	limiter RateLimiter,
	tokens *jwt.Manager,
	hasher *hash.Hasher,
	logger *zap.Logger,
) *Service {
	return &Service{
		users:       users,
		sessions:    sessions,
		stepups:     stepups,
		ledger:      ledger,
		revocations: revocations,
		limiter:     limiter,
		tokens:      tokens,
		hasher:      hasher,
		logger:      logger,
	}
}

// Login authenticates an email/password pair and opens a session. Elevated
// roles that have never cleared step-up get a challenge instead of tokens.
func (s *Service) Login(ctx context.Context, email, password string, dev sessiondom.DeviceInfo) (*LoginResult, error) {
	allowed, _, err := s.limiter.CheckLoginAttempt(ctx, dev.IPAddress, email)
	if err != nil {
		return nil, err
	}
	if !allowed {
		s.recordLoginFailure(ctx, nil, dev, "rate_limited", audit.RiskMedium, []string{"rate_limited"})
		return nil, xerrors.ErrRateLimited
	}

	u, err := s.users.FindByEmail(ctx, email)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		s.recordLoginFailure(ctx, nil, dev, "unknown_email", audit.RiskLow, nil)
		return nil, xerrors.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}

	if !u.PasswordHash.Valid {
		// Federated-only account; it has no password to check against.
		s.recordLoginFailure(ctx, u, dev, "no_password_credential", audit.RiskLow, nil)
		return nil, xerrors.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash.String), []byte(password)) != nil {
		s.recordLoginFailure(ctx, u, dev, "password_mismatch", audit.RiskMedium, nil)
		return nil, xerrors.ErrUnauthorized
	}

	if err := s.checkAccountState(ctx, u, dev); err != nil {
		return nil, err
	}

	if err := s.limiter.ResetLoginAttempts(ctx, dev.IPAddress, email); err != nil {
		s.logger.Warn("failed to reset login attempts", zap.Error(err))
	}

	if u.Role.Elevated() && !u.ElevationApproved() {
		if _, err := s.stepups.Initiate(ctx, u.ID, u.Email, stepupdom.PurposeManagerFirstLogin); err != nil {
			return nil, err
		}
		return &LoginResult{
			StepUpRequired: true,
			StepUpPurpose:  string(stepupdom.PurposeManagerFirstLogin),
		}, nil
	}

	return s.openSession(ctx, u, dev, nil)
}

// FederatedLogin opens a session for an externally verified identity,
// provisioning the subject on first contact.
func (s *Service) FederatedLogin(ctx context.Context, provider, email, fullName string, dev sessiondom.DeviceInfo) (*LoginResult, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		u = &user.User{
			Email:    email,
			FullName: sql.NullString{String: fullName, Valid: fullName != ""},
			Role:     user.RoleCustomer,
		}
		if err := s.users.CreateFederated(ctx, u); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err := s.checkAccountState(ctx, u, dev); err != nil {
		return nil, err
	}

	if u.Role.Elevated() && !u.ElevationApproved() {
		if _, err := s.stepups.Initiate(ctx, u.ID, u.Email, stepupdom.PurposeManagerFirstLogin); err != nil {
			return nil, err
		}
		return &LoginResult{
			StepUpRequired: true,
			StepUpPurpose:  string(stepupdom.PurposeManagerFirstLogin),
		}, nil
	}

	return s.openSession(ctx, u, dev, []string{"federated:" + provider})
}

// VerifyStepUp completes a step-up-gated login: the password is checked
// again, the code verified, the sticky approval stamped, and only then is a
// session opened.
func (s *Service) VerifyStepUp(ctx context.Context, email, password, code string, dev sessiondom.DeviceInfo) (*LoginResult, error) {
	u, err := s.authenticatePassword(ctx, email, password, dev)
	if err != nil {
		return nil, err
	}

	if _, err := s.stepups.Verify(ctx, u.ID, stepupdom.PurposeManagerFirstLogin, code); err != nil {
		return nil, err
	}

	if err := s.users.MarkElevationApproved(ctx, u.ID); err != nil {
		return nil, err
	}

	return s.openSession(ctx, u, dev, []string{"step_up_cleared"})
}

// ResendStepUpCode re-authenticates the password and issues a replacement
// challenge, subject to the resend throttle.
func (s *Service) ResendStepUpCode(ctx context.Context, email, password string, dev sessiondom.DeviceInfo) error {
	u, err := s.authenticatePassword(ctx, email, password, dev)
	if err != nil {
		return err
	}
	_, err = s.stepups.Resend(ctx, u.ID, u.Email, stepupdom.PurposeManagerFirstLogin)
	return err
}

// Refresh rotates a refresh credential into a fresh pair.
func (s *Service) Refresh(ctx context.Context, rawRefresh string, dev sessiondom.DeviceInfo) (*sessionsvc.TokenPair, error) {
	pair, _, err := s.sessions.Rotate(ctx, rawRefresh, dev)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout ends the calling session and deny-lists its access credential.
func (s *Service) Logout(ctx context.Context, p *Principal, rawAccess string) error {
	if err := s.revocations.Revoke(ctx, s.hasher.Token(rawAccess), s.tokens.Generator.AccessTTL); err != nil {
		s.logger.Warn("failed to deny-list access token on logout", zap.Error(err))
	}
	if err := s.sessions.Revoke(ctx, p.SubjectID, p.SessionID, sessiondom.RevokeReasonUserLogout); err != nil {
		return err
	}
	s.ledger.Record(ctx, &audit.Entry{
		EventType: audit.EventLogout,
		SubjectID: sql.NullInt64{Int64: p.SubjectID, Valid: true},
		Action:    "logout",
	})
	return nil
}

// LogoutAll ends every session of the subject, this one included.
func (s *Service) LogoutAll(ctx context.Context, p *Principal) (int64, error) {
	return s.sessions.RevokeAll(ctx, p.SubjectID, sessiondom.RevokeReasonUserLogout)
}

// Authenticate is the gatekeeper pipeline. Order matters: the cheap
// deny-list check comes first, then signature and expiry, then the session
// binding, then the subject's stored state. The stored role is authoritative;
// a credential carrying a stale role is rejected outright.
func (s *Service) Authenticate(ctx context.Context, rawAccess string) (*Principal, error) {
	accessHash := s.hasher.Token(rawAccess)

	revoked, err := s.revocations.IsRevoked(ctx, accessHash)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, xerrors.ErrTokenRevoked
	}

	claims, err := s.tokens.Verifier.VerifyAccess(rawAccess)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.FindBinding(ctx, rawAccess)
	if xerrors.Is(err, xerrors.ErrSessionInvalid) {
		// Valid signature, no live session: either the session was revoked
		// or the token was minted outside the normal login path.
		s.ledger.Record(ctx, &audit.Entry{
			EventType:   audit.EventOrphanedToken,
			SubjectID:   sql.NullInt64{Int64: claims.SubjectID, Valid: true},
			Action:      "access_token_without_live_session",
			Result:      audit.ResultFailure,
			RiskLevel:   audit.RiskHigh,
			RiskFactors: []string{"orphaned_token"},
		})
		return nil, xerrors.ErrSessionInvalid
	}
	if err != nil {
		return nil, err
	}

	u, err := s.users.FindByID(ctx, claims.SubjectID)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrSessionInvalid
	}
	if err != nil {
		return nil, err
	}

	if err := s.checkAccountState(ctx, u, sessiondom.DeviceInfo{}); err != nil {
		return nil, err
	}

	if string(u.Role) != claims.Role {
		s.ledger.Record(ctx, &audit.Entry{
			EventType:   audit.EventRoleMismatch,
			SubjectID:   sql.NullInt64{Int64: u.ID, Valid: true},
			Action:      "credential_role_stale",
			Result:      audit.ResultFailure,
			RiskLevel:   audit.RiskHigh,
			RiskFactors: []string{"role_mismatch"},
		})
		return nil, xerrors.ErrRoleMismatch
	}

	return &Principal{
		SubjectID: u.ID,
		Email:     u.Email,
		Role:      u.Role,
		SessionID: sess.ID,
	}, nil
}

// authenticatePassword is the shared email/password check used by the
// step-up endpoints, which run before any session exists.
func (s *Service) authenticatePassword(ctx context.Context, email, password string, dev sessiondom.DeviceInfo) (*user.User, error) {
	allowed, _, err := s.limiter.CheckLoginAttempt(ctx, dev.IPAddress, email)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, xerrors.ErrRateLimited
	}

	u, err := s.users.FindByEmail(ctx, email)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		s.recordLoginFailure(ctx, nil, dev, "unknown_email", audit.RiskLow, nil)
		return nil, xerrors.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}

	if !u.PasswordHash.Valid ||
		bcrypt.CompareHashAndPassword([]byte(u.PasswordHash.String), []byte(password)) != nil {
		s.recordLoginFailure(ctx, u, dev, "password_mismatch", audit.RiskMedium, nil)
		return nil, xerrors.ErrUnauthorized
	}

	if err := s.checkAccountState(ctx, u, dev); err != nil {
		return nil, err
	}
	return u, nil
}

// checkAccountState rejects inactive and suspended subjects, recording the
// blocked access attempt.
func (s *Service) checkAccountState(ctx context.Context, u *user.User, dev sessiondom.DeviceInfo) error {
	if !u.IsActive {
		s.ledger.Record(ctx, &audit.Entry{
			EventType: audit.EventAccountInactive,
			SubjectID: sql.NullInt64{Int64: u.ID, Valid: true},
			Action:    "blocked_inactive_account",
			Result:    audit.ResultFailure,
			IPAddress: nullStr(dev.IPAddress),
			RiskLevel: audit.RiskMedium,
		})
		return xerrors.ErrAccountInactive
	}
	if u.IsSuspended {
		s.ledger.Record(ctx, &audit.Entry{
			EventType: audit.EventAccountSuspended,
			SubjectID: sql.NullInt64{Int64: u.ID, Valid: true},
			Action:    "blocked_suspended_account",
			Result:    audit.ResultFailure,
			IPAddress: nullStr(dev.IPAddress),
			RiskLevel: audit.RiskMedium,
		})
		return xerrors.ErrAccountSuspended
	}
	return nil
}

func (s *Service) openSession(ctx context.Context, u *user.User, dev sessiondom.DeviceInfo, riskFactors []string) (*LoginResult, error) {
	pair, sess, err := s.sessions.Create(ctx, u.ID, string(u.Role), dev)
	if err != nil {
		return nil, err
	}

	s.ledger.Record(ctx, &audit.Entry{
		EventType:   audit.EventLoginSuccess,
		SubjectID:   sql.NullInt64{Int64: u.ID, Valid: true},
		Action:      "login",
		IPAddress:   nullStr(dev.IPAddress),
		DeviceID:    sess.DeviceID,
		Country:     nullStr(dev.Country),
		City:        nullStr(dev.City),
		RiskFactors: riskFactors,
	})

	return &LoginResult{Tokens: pair}, nil
}

func (s *Service) recordLoginFailure(ctx context.Context, u *user.User, dev sessiondom.DeviceInfo, detail string, level audit.RiskLevel, factors []string) {
	entry := &audit.Entry{
		EventType:   audit.EventLoginFailure,
		Action:      "login_failed:" + detail,
		Result:      audit.ResultFailure,
		IPAddress:   nullStr(dev.IPAddress),
		DeviceID:    nullStr(dev.DeviceID),
		RiskLevel:   level,
		RiskFactors: factors,
	}
	if u != nil {
		entry.SubjectID = sql.NullInt64{Int64: u.ID, Valid: true}
	}
	s.ledger.Record(ctx, entry)
}

func nullStr(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
