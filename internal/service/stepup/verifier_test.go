package stepup

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"chakula-service/internal/domain/audit"
	domain "chakula-service/internal/domain/stepup"
	xerrors "chakula-service/internal/pkg/errors"
	"chakula-service/internal/pkg/hash"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ----- fakes -----

type fakeRepo struct {
	mu         sync.Mutex
	challenges map[string]*domain.Verification
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{challenges: make(map[string]*domain.Verification)}
}

func (r *fakeRepo) Create(_ context.Context, v *domain.Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v.CreatedAt = time.Now()
	cp := *v
	r.challenges[v.ID] = &cp
	return nil
}

func (r *fakeRepo) FindLatest(_ context.Context, subjectID int64, purpose domain.Purpose) (*domain.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matches []*domain.Verification
	now := time.Now()
	for _, v := range r.challenges {
		if v.SubjectID == subjectID && v.Purpose == purpose && v.ExpiresAt.After(now) {
			matches = append(matches, v)
		}
	}
	if len(matches) == 0 {
		return nil, xerrors.ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	cp := *matches[0]
	return &cp, nil
}

func (r *fakeRepo) IncrementAttempts(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.challenges[id]
	if !ok {
		return 0, xerrors.ErrNotFound
	}
	v.AttemptCount++
	return v.AttemptCount, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, v *domain.Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.challenges[v.ID]
	if !ok {
		return xerrors.ErrNotFound
	}
	stored.Status = v.Status
	stored.VerifiedAt = v.VerifiedAt
	return nil
}

func (r *fakeRepo) get(id string) *domain.Verification {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.challenges[id]
	return &cp
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

type fakeSender struct {
	mu    sync.Mutex
	codes []string
	fail  bool
}

func (s *fakeSender) SendOneTimeCode(_ context.Context, _, code string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("smtp unavailable")
	}
	s.codes = append(s.codes, code)
	return nil
}

func (s *fakeSender) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return ""
	}
	return s.codes[len(s.codes)-1]
}

type fakeThrottle struct {
	mu      sync.Mutex
	allow   bool
	resets  int
}

func (f *fakeThrottle) CheckCodeResend(_ context.Context, _ int64, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allow, nil
}

func (f *fakeThrottle) ResetCodeResend(_ context.Context, _ int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

// ----- harness -----

type harness struct {
	verifier *Verifier
	repo     *fakeRepo
	ledger   *fakeLedger
	sender   *fakeSender
	throttle *fakeThrottle
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := newFakeRepo()
	ledger := &fakeLedger{}
	sender := &fakeSender{}
	throttle := &fakeThrottle{allow: true}
	hasher := hash.NewHasher("test-hash-key")
	return &harness{
		verifier: NewVerifier(repo, ledger, sender, throttle, hasher, 10*time.Minute, 3, zap.NewNop()),
		repo:     repo,
		ledger:   ledger,
		sender:   sender,
		throttle: throttle,
	}
}

// ----- tests -----

func TestInitiateCreatesPendingChallenge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	challenge, err := h.verifier.Initiate(ctx, 42, "chef@example.com", domain.PurposeManagerFirstLogin)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, challenge.Status)
	assert.Equal(t, 3, challenge.MaxAttempts)
	assert.Equal(t, 0, challenge.AttemptCount)

	code := h.sender.lastCode()
	require.Len(t, code, 6)
	assert.NotContains(t, challenge.CodeHash, code) // only the hash is stored

	require.Len(t, h.ledger.byType(audit.EventStepUpInitiated), 1)
}

func TestInitiateUnknownPurpose(t *testing.T) {
	h := newHarness(t)

	_, err := h.verifier.Initiate(context.Background(), 42, "chef@example.com", domain.Purpose("makes_no_sense"))
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestInitiateDeliveryFailure(t *testing.T) {
	h := newHarness(t)
	h.sender.fail = true

	_, err := h.verifier.Initiate(context.Background(), 42, "chef@example.com", domain.PurposeManagerFirstLogin)
	assert.ErrorIs(t, err, xerrors.ErrCodeDeliveryFailed)
}

func TestVerifyCorrectCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	challenge, err := h.verifier.Initiate(ctx, 42, "chef@example.com", domain.PurposeManagerFirstLogin)
	require.NoError(t, err)

	verified, err := h.verifier.Verify(ctx, 42, domain.PurposeManagerFirstLogin, h.sender.lastCode())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusVerified, verified.Status)
	assert.True(t, verified.VerifiedAt.Valid)
	assert.Equal(t, domain.StatusVerified, h.repo.get(challenge.ID).Status)
	assert.Equal(t, 1, h.throttle.resets)
	require.Len(t, h.ledger.byType(audit.EventStepUpVerified), 1)
}

func TestVerifyWrongCodeCountsAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	challenge, err := h.verifier.Initiate(ctx, 42, "chef@example.com", domain.PurposeManagerFirstLogin)
	require.NoError(t, err)

	_, err = h.verifier.Verify(ctx, 42, domain.PurposeManagerFirstLogin, "000000")
	assert.ErrorIs(t, err, xerrors.ErrVerificationFailed)

	stored := h.repo.get(challenge.ID)
	assert.Equal(t, 1, stored.AttemptCount)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestVerifyExhaustionLocksChallenge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	challenge, err := h.verifier.Initiate(ctx, 42, "chef@example.com", domain.PurposeManagerFirstLogin)
	require.NoError(t, err)
	code := h.sender.lastCode()

	_, err = h.verifier.Verify(ctx, 42, domain.PurposeManagerFirstLogin, "000000")
	assert.ErrorIs(t, err, xerrors.ErrVerificationFailed)
	_, err = h.verifier.Verify(ctx, 42, domain.PurposeManagerFirstLogin, "111111")
	assert.ErrorIs(t, err, xerrors.ErrVerificationFailed)
	_, err = h.verifier.Verify(ctx, 42, domain.PurposeManagerFirstLogin, "222222")
	assert.ErrorIs(t, err, xerrors.ErrMaxAttemptsExceeded)

	assert.Equal(t, domain.StatusFailed, h.repo.get(challenge.ID).Status)

	// The correct code no longer helps once the challenge is burned.
	_, err = h.verifier.Verify(ctx, 42, domain.PurposeManagerFirstLogin, code)
	assert.ErrorIs(t, err, xerrors.ErrMaxAttemptsExceeded)

	exhausted := h.ledger.byType(audit.EventStepUpFailed)
	require.NotEmpty(t, exhausted)
	last := exhausted[len(exhausted)-1]
	assert.Equal(t, audit.RiskHigh, last.RiskLevel)
}

func TestVerifyWithoutChallenge(t *testing.T) {
	h := newHarness(t)

	_, err := h.verifier.Verify(context.Background(), 42, domain.PurposeManagerFirstLogin, "123456")
	assert.ErrorIs(t, err, xerrors.ErrNoVerificationPending)
}

func TestVerifyAlreadyVerified(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.verifier.Initiate(ctx, 42, "chef@example.com", domain.PurposeManagerFirstLogin)
	require.NoError(t, err)
	code := h.sender.lastCode()

	_, err = h.verifier.Verify(ctx, 42, domain.PurposeManagerFirstLogin, code)
	require.NoError(t, err)

	_, err = h.verifier.Verify(ctx, 42, domain.PurposeManagerFirstLogin, code)
	assert.ErrorIs(t, err, xerrors.ErrNoVerificationPending)
}

func TestResendSupersedesOldChallenge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.verifier.Initiate(ctx, 42, "chef@example.com", domain.PurposeManagerFirstLogin)
	require.NoError(t, err)

	_, err = h.verifier.Resend(ctx, 42, "chef@example.com", domain.PurposeManagerFirstLogin)
	require.NoError(t, err)
	newCode := h.sender.lastCode()

	// The latest challenge wins; its code verifies.
	verified, err := h.verifier.Verify(ctx, 42, domain.PurposeManagerFirstLogin, newCode)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVerified, verified.Status)
}

func TestResendThrottled(t *testing.T) {
	h := newHarness(t)
	h.throttle.allow = false

	_, err := h.verifier.Resend(context.Background(), 42, "chef@example.com", domain.PurposeManagerFirstLogin)
	assert.ErrorIs(t, err, xerrors.ErrRateLimited)
}
