package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sync"
	"testing"
	"time"

	"chakula-service/internal/domain/audit"
	sessiondom "chakula-service/internal/domain/session"
	stepupdom "chakula-service/internal/domain/stepup"
	"chakula-service/internal/domain/user"
	xerrors "chakula-service/internal/pkg/errors"
	"chakula-service/internal/pkg/hash"
	"chakula-service/internal/pkg/jwt"
	sessionsvc "chakula-service/internal/service/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ----- fakes -----

type fakeUsers struct {
	mu       sync.Mutex
	byID     map[int64]*user.User
	nextID   int64
	approved []int64
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[int64]*user.User), nextID: 1}
}

func (f *fakeUsers) add(u *user.User) *user.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == 0 {
		u.ID = f.nextID
		f.nextID++
	}
	f.byID[u.ID] = u
	return u
}

func (f *fakeUsers) FindByID(_ context.Context, id int64) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeUsers) CreateFederated(_ context.Context, u *user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = f.nextID
	f.nextID++
	u.IsActive = true
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeUsers) MarkElevationApproved(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved = append(f.approved, id)
	if u, ok := f.byID[id]; ok {
		u.ElevationApprovedAt.Time, u.ElevationApprovedAt.Valid = time.Now(), true
	}
	return nil
}

// fakeSessions issues real signed tokens and keeps bindings in memory.
type fakeSessions struct {
	mu       sync.Mutex
	tokens   *jwt.Manager
	nextID   int
	bindings map[string]*sessiondom.Session
	revokes  []string
	wipes    []int64
}

func newFakeSessions(tokens *jwt.Manager) *fakeSessions {
	return &fakeSessions{tokens: tokens, bindings: make(map[string]*sessiondom.Session)}
}

func (f *fakeSessions) Create(_ context.Context, subjectID int64, role string, _ sessiondom.DeviceInfo) (*sessionsvc.TokenPair, *sessiondom.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	access, _, err := f.tokens.Generator.IssueAccess(subjectID, role)
	if err != nil {
		return nil, nil, err
	}
	refresh, _, err := f.tokens.Generator.IssueRefresh(subjectID, role)
	if err != nil {
		return nil, nil, err
	}
	f.nextID++
	sess := &sessiondom.Session{
		ID:        fmt.Sprintf("sess-%d", f.nextID),
		SubjectID: subjectID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	f.bindings[access] = sess
	pair := &sessionsvc.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		SessionID:    sess.ID,
	}
	return pair, sess, nil
}

func (f *fakeSessions) Rotate(_ context.Context, _ string, _ sessiondom.DeviceInfo) (*sessionsvc.TokenPair, *sessiondom.Session, error) {
	return nil, nil, xerrors.ErrInvalidRefreshToken
}

func (f *fakeSessions) FindBinding(_ context.Context, rawAccess string) (*sessiondom.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess, ok := f.bindings[rawAccess]; ok {
		cp := *sess
		return &cp, nil
	}
	return nil, xerrors.ErrSessionInvalid
}

func (f *fakeSessions) Revoke(_ context.Context, _ int64, sessionID string, _ sessiondom.RevokeReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokes = append(f.revokes, sessionID)
	for access, sess := range f.bindings {
		if sess.ID == sessionID {
			delete(f.bindings, access)
		}
	}
	return nil
}

func (f *fakeSessions) RevokeAll(_ context.Context, subjectID int64, _ sessiondom.RevokeReason) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wipes = append(f.wipes, subjectID)
	var n int64
	for access, sess := range f.bindings {
		if sess.SubjectID == subjectID {
			delete(f.bindings, access)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) List(_ context.Context, _ int64, _ string) ([]sessiondom.Info, error) {
	return nil, nil
}

type stepupCall struct {
	subjectID int64
	purpose   stepupdom.Purpose
}

type fakeStepups struct {
	mu        sync.Mutex
	initiated []stepupCall
	verifyErr error
}

func (f *fakeStepups) Initiate(_ context.Context, subjectID int64, _ string, purpose stepupdom.Purpose) (*stepupdom.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiated = append(f.initiated, stepupCall{subjectID, purpose})
	return &stepupdom.Verification{SubjectID: subjectID, Purpose: purpose, Status: stepupdom.StatusPending}, nil
}

func (f *fakeStepups) Resend(ctx context.Context, subjectID int64, email string, purpose stepupdom.Purpose) (*stepupdom.Verification, error) {
	return f.Initiate(ctx, subjectID, email, purpose)
}

func (f *fakeStepups) Verify(_ context.Context, subjectID int64, purpose stepupdom.Purpose, _ string) (*stepupdom.Verification, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &stepupdom.Verification{SubjectID: subjectID, Purpose: purpose, Status: stepupdom.StatusVerified}, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func (l *fakeLedger) Record(_ context.Context, e *audit.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

func (l *fakeLedger) byType(t audit.EventType) []*audit.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*audit.Entry
	for _, e := range l.entries {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeRevocations struct {
	mu     sync.Mutex
	hashes map[string]bool
}

func newFakeRevocations() *fakeRevocations {
	return &fakeRevocations{hashes: make(map[string]bool)}
}

func (f *fakeRevocations) IsRevoked(_ context.Context, tokenHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hashes[tokenHash], nil
}

func (f *fakeRevocations) Revoke(_ context.Context, tokenHash string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes[tokenHash] = true
	return nil
}

type fakeLimiter struct {
	mu     sync.Mutex
	allow  bool
	resets int
}

func (f *fakeLimiter) CheckLoginAttempt(_ context.Context, _, _ string) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allow, 0, nil
}

func (f *fakeLimiter) ResetLoginAttempts(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

// ----- harness -----

type harness struct {
	svc         *Service
	users       *fakeUsers
	sessions    *fakeSessions
	stepups     *fakeStepups
	ledger      *fakeLedger
	revocations *fakeRevocations
	limiter     *fakeLimiter
	tokens      *jwt.Manager
	hasher      *hash.Hasher
	priv        *rsa.PrivateKey
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokens := &jwt.Manager{
		Generator: jwt.NewGenerator(priv, "chakula-app", "chakula-users", "test-key", time.Hour, 7*24*time.Hour),
		Verifier:  jwt.NewVerifier(&priv.PublicKey, "chakula-app", "chakula-users"),
	}

	users := newFakeUsers()
	sessions := newFakeSessions(tokens)
	stepups := &fakeStepups{}
	ledger := &fakeLedger{}
	revocations := newFakeRevocations()
	limiter := &fakeLimiter{allow: true}
	hasher := hash.NewHasher("test-hash-key")

	return &harness{
		svc:         NewService(users, sessions, stepups, ledger, revocations, limiter, tokens, hasher, zap.NewNop()),
		users:       users,
		sessions:    sessions,
		stepups:     stepups,
		ledger:      ledger,
		revocations: revocations,
		limiter:     limiter,
		tokens:      tokens,
		hasher:      hasher,
		priv:        priv,
	}
}

func (h *harness) addCustomer(t *testing.T, email, password string) *user.User {
	t.Helper()
	return h.addUser(t, email, password, user.RoleCustomer, true)
}

func (h *harness) addUser(t *testing.T, email, password string, role user.Role, approved bool) *user.User {
	t.Helper()
	pw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := &user.User{
		Email:    email,
		Role:     role,
		IsActive: true,
	}
	u.PasswordHash.String, u.PasswordHash.Valid = string(pw), true
	if approved {
		u.ElevationApprovedAt.Time, u.ElevationApprovedAt.Valid = time.Now(), true
	}
	return h.users.add(u)
}

var testDevice = sessiondom.DeviceInfo{IPAddress: "203.0.113.7", DeviceID: "dev-1"}

// ----- login tests -----

func TestLoginSuccess(t *testing.T) {
	h := newHarness(t)
	h.addCustomer(t, "amina@example.com", "correct-horse")

	result, err := h.svc.Login(context.Background(), "amina@example.com", "correct-horse", testDevice)
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)
	assert.False(t, result.StepUpRequired)

	assert.Equal(t, 1, h.limiter.resets)
	require.Len(t, h.ledger.byType(audit.EventLoginSuccess), 1)
}

func TestLoginWrongPassword(t *testing.T) {
	h := newHarness(t)
	h.addCustomer(t, "amina@example.com", "correct-horse")

	_, err := h.svc.Login(context.Background(), "amina@example.com", "wrong", testDevice)
	assert.ErrorIs(t, err, xerrors.ErrUnauthorized)
	require.Len(t, h.ledger.byType(audit.EventLoginFailure), 1)
}

func TestLoginUnknownEmail(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Login(context.Background(), "nobody@example.com", "whatever", testDevice)
	assert.ErrorIs(t, err, xerrors.ErrUnauthorized)
}

func TestLoginRateLimited(t *testing.T) {
	h := newHarness(t)
	h.addCustomer(t, "amina@example.com", "correct-horse")
	h.limiter.allow = false

	_, err := h.svc.Login(context.Background(), "amina@example.com", "correct-horse", testDevice)
	assert.ErrorIs(t, err, xerrors.ErrRateLimited)
}

func TestLoginInactiveAccount(t *testing.T) {
	h := newHarness(t)
	u := h.addCustomer(t, "amina@example.com", "correct-horse")
	h.users.byID[u.ID].IsActive = false

	_, err := h.svc.Login(context.Background(), "amina@example.com", "correct-horse", testDevice)
	assert.ErrorIs(t, err, xerrors.ErrAccountInactive)
	require.Len(t, h.ledger.byType(audit.EventAccountInactive), 1)
}

func TestLoginSuspendedAccount(t *testing.T) {
	h := newHarness(t)
	u := h.addCustomer(t, "amina@example.com", "correct-horse")
	h.users.byID[u.ID].IsSuspended = true

	_, err := h.svc.Login(context.Background(), "amina@example.com", "correct-horse", testDevice)
	assert.ErrorIs(t, err, xerrors.ErrAccountSuspended)
}

func TestLoginManagerFirstLoginRequiresStepUp(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "chef@example.com", "correct-horse", user.RoleManager, false)

	result, err := h.svc.Login(context.Background(), "chef@example.com", "correct-horse", testDevice)
	require.NoError(t, err)

	assert.True(t, result.StepUpRequired)
	assert.Nil(t, result.Tokens)
	require.Len(t, h.stepups.initiated, 1)
	assert.Equal(t, u.ID, h.stepups.initiated[0].subjectID)
	assert.Equal(t, stepupdom.PurposeManagerFirstLogin, h.stepups.initiated[0].purpose)
}

func TestLoginApprovedManagerGetsTokens(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "chef@example.com", "correct-horse", user.RoleManager, true)

	result, err := h.svc.Login(context.Background(), "chef@example.com", "correct-horse", testDevice)
	require.NoError(t, err)
	assert.False(t, result.StepUpRequired)
	require.NotNil(t, result.Tokens)
}

func TestVerifyStepUpCompletesLogin(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "chef@example.com", "correct-horse", user.RoleManager, false)

	result, err := h.svc.VerifyStepUp(context.Background(), "chef@example.com", "correct-horse", "123456", testDevice)
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)

	assert.Contains(t, h.users.approved, u.ID)
}

func TestVerifyStepUpWrongCode(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "chef@example.com", "correct-horse", user.RoleManager, false)
	h.stepups.verifyErr = xerrors.ErrVerificationFailed

	_, err := h.svc.VerifyStepUp(context.Background(), "chef@example.com", "correct-horse", "000000", testDevice)
	assert.ErrorIs(t, err, xerrors.ErrVerificationFailed)
	assert.Empty(t, h.users.approved)
}

func TestVerifyStepUpNeedsPassword(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "chef@example.com", "correct-horse", user.RoleManager, false)

	_, err := h.svc.VerifyStepUp(context.Background(), "chef@example.com", "wrong", "123456", testDevice)
	assert.ErrorIs(t, err, xerrors.ErrUnauthorized)
}

func TestFederatedLoginProvisionsSubject(t *testing.T) {
	h := newHarness(t)

	result, err := h.svc.FederatedLogin(context.Background(), "google", "new@example.com", "New Person", testDevice)
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)

	u, err := h.users.FindByEmail(context.Background(), "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.RoleCustomer, u.Role)
}

func TestFederatedLoginExistingSubject(t *testing.T) {
	h := newHarness(t)
	existing := h.addCustomer(t, "amina@example.com", "correct-horse")

	result, err := h.svc.FederatedLogin(context.Background(), "google", "amina@example.com", "", testDevice)
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)

	claims, err := h.tokens.Verifier.VerifyAccess(result.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, claims.SubjectID)
}

// ----- gatekeeper tests -----

func login(t *testing.T, h *harness, email, password string) *sessionsvc.TokenPair {
	t.Helper()
	result, err := h.svc.Login(context.Background(), email, password, testDevice)
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)
	return result.Tokens
}

func TestAuthenticateHappyPath(t *testing.T) {
	h := newHarness(t)
	u := h.addCustomer(t, "amina@example.com", "correct-horse")
	pair := login(t, h, "amina@example.com", "correct-horse")

	p, err := h.svc.Authenticate(context.Background(), pair.AccessToken)
	require.NoError(t, err)

	assert.Equal(t, u.ID, p.SubjectID)
	assert.Equal(t, "amina@example.com", p.Email)
	assert.Equal(t, user.RoleCustomer, p.Role)
	assert.Equal(t, pair.SessionID, p.SessionID)
}

func TestAuthenticateDenyListedToken(t *testing.T) {
	h := newHarness(t)
	h.addCustomer(t, "amina@example.com", "correct-horse")
	pair := login(t, h, "amina@example.com", "correct-horse")

	require.NoError(t, h.revocations.Revoke(context.Background(), h.hasher.Token(pair.AccessToken), time.Hour))

	_, err := h.svc.Authenticate(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, xerrors.ErrTokenRevoked)
}

func TestAuthenticateGarbageToken(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Authenticate(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, xerrors.ErrTokenInvalid)
}

func TestAuthenticateExpiredToken(t *testing.T) {
	h := newHarness(t)

	expiredGen := jwt.NewGenerator(h.priv, "chakula-app", "chakula-users", "test-key", -time.Minute, -time.Minute)
	stale, _, err := expiredGen.IssueAccess(42, "customer")
	require.NoError(t, err)

	_, err = h.svc.Authenticate(context.Background(), stale)
	assert.ErrorIs(t, err, xerrors.ErrTokenExpired)
}

func TestAuthenticateOrphanedToken(t *testing.T) {
	h := newHarness(t)
	h.addCustomer(t, "amina@example.com", "correct-horse")

	// Correctly signed, but never bound to a session.
	orphan, _, err := h.tokens.Generator.IssueAccess(1, "customer")
	require.NoError(t, err)

	_, err = h.svc.Authenticate(context.Background(), orphan)
	assert.ErrorIs(t, err, xerrors.ErrSessionInvalid)
	require.Len(t, h.ledger.byType(audit.EventOrphanedToken), 1)
}

func TestAuthenticateAfterLogout(t *testing.T) {
	h := newHarness(t)
	h.addCustomer(t, "amina@example.com", "correct-horse")
	pair := login(t, h, "amina@example.com", "correct-horse")

	p, err := h.svc.Authenticate(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	require.NoError(t, h.svc.Logout(context.Background(), p, pair.AccessToken))

	_, err = h.svc.Authenticate(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, xerrors.ErrTokenRevoked)
}

func TestAuthenticateRoleMismatch(t *testing.T) {
	h := newHarness(t)
	u := h.addCustomer(t, "amina@example.com", "correct-horse")
	pair := login(t, h, "amina@example.com", "correct-horse")

	// Role changed in storage after the credential was minted.
	h.users.byID[u.ID].Role = user.RoleManager

	_, err := h.svc.Authenticate(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, xerrors.ErrRoleMismatch)

	entries := h.ledger.byType(audit.EventRoleMismatch)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.RiskHigh, entries[0].RiskLevel)
}

func TestAuthenticateSuspendedMidSession(t *testing.T) {
	h := newHarness(t)
	u := h.addCustomer(t, "amina@example.com", "correct-horse")
	pair := login(t, h, "amina@example.com", "correct-horse")

	h.users.byID[u.ID].IsSuspended = true

	_, err := h.svc.Authenticate(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, xerrors.ErrAccountSuspended)
}

func TestLogoutRevokesSessionAndDenyLists(t *testing.T) {
	h := newHarness(t)
	h.addCustomer(t, "amina@example.com", "correct-horse")
	pair := login(t, h, "amina@example.com", "correct-horse")

	p, err := h.svc.Authenticate(context.Background(), pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, h.svc.Logout(context.Background(), p, pair.AccessToken))

	assert.Contains(t, h.sessions.revokes, pair.SessionID)
	revoked, err := h.revocations.IsRevoked(context.Background(), h.hasher.Token(pair.AccessToken))
	require.NoError(t, err)
	assert.True(t, revoked)
	require.Len(t, h.ledger.byType(audit.EventLogout), 1)
}

func TestLogoutAll(t *testing.T) {
	h := newHarness(t)
	h.addCustomer(t, "amina@example.com", "correct-horse")
	login(t, h, "amina@example.com", "correct-horse")
	pair := login(t, h, "amina@example.com", "correct-horse")

	p, err := h.svc.Authenticate(context.Background(), pair.AccessToken)
	require.NoError(t, err)

	count, err := h.svc.LogoutAll(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
