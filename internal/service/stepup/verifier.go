// internal/service/stepup/verifier.go
package stepup

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"chakula-service/internal/domain/audit"
	domain "chakula-service/internal/domain/stepup"
	xerrors "chakula-service/internal/pkg/errors"
	"chakula-service/internal/pkg/hash"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Repository is the persistence surface for secondary challenges.
type Repository interface {
	Create(ctx context.Context, v *domain.Verification) error
	FindLatest(ctx context.Context, subjectID int64, purpose domain.Purpose) (*domain.Verification, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
	UpdateStatus(ctx context.Context, v *domain.Verification) error
}

// Recorder appends to the security audit ledger.
type Recorder interface {
	Record(ctx context.Context, e *audit.Entry)
}

// CodeSender delivers one-time codes out of band.
type CodeSender interface {
	SendOneTimeCode(ctx context.Context, email, code string, ttl time.Duration) error
}

// Throttle limits how often codes can be requested.
type Throttle interface {
	CheckCodeResend(ctx context.Context, subjectID int64, purpose string) (bool, error)
	ResetCodeResend(ctx context.Context, subjectID int64, purpose string) error
}

// Verifier runs the secondary verification challenges elevated roles must
// pass before their credentials gain full capabilities.
type Verifier struct {
	repo        Repository
	ledger      Recorder
	sender      CodeSender
	throttle    Throttle
	hasher      *hash.Hasher
	codeTTL     time.Duration
	maxAttempts int
	logger      *zap.Logger
}

func NewVerifier(
	repo Repository,
	ledger Recorder,
	sender CodeSender,
	throttle Throttle,
	hasher *hash.Hasher,
	codeTTL time.Duration,
	maxAttempts int,
	logger *zap.Logger,
) *Verifier {
	return &Verifier{
		repo:        repo,
		ledger:      ledger,
		sender:      sender,
		throttle:    throttle,
		hasher:      hasher,
		codeTTL:     codeTTL,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Initiate creates a fresh challenge for the subject and delivers the code.
// A newer challenge supersedes any earlier one for the same purpose.
func (v *Verifier) Initiate(ctx context.Context, subjectID int64, email string, purpose domain.Purpose) (*domain.Verification, error) {
	if !purpose.Valid() {
		return nil, fmt.Errorf("%w: unknown step-up purpose %q", xerrors.ErrInvalidInput, purpose)
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	challenge := &domain.Verification{
		ID:          ulid.Make().String(),
		SubjectID:   subjectID,
		Purpose:     purpose,
		Method:      domain.MethodOTPCode,
		Status:      domain.StatusPending,
		CodeHash:    v.hasher.Code(code),
		MaxAttempts: v.maxAttempts,
		ExpiresAt:   time.Now().Add(v.codeTTL),
	}

	if err := v.repo.Create(ctx, challenge); err != nil {
		return nil, err
	}

	if err := v.sender.SendOneTimeCode(ctx, email, code, v.codeTTL); err != nil {
		v.logger.Error("failed to deliver one-time code",
			zap.Int64("subject_id", subjectID),
			zap.String("purpose", string(purpose)),
			zap.Error(err))
		return nil, xerrors.ErrCodeDeliveryFailed
	}

	v.ledger.Record(ctx, &audit.Entry{
		EventType: audit.EventStepUpInitiated,
		SubjectID: sql.NullInt64{Int64: subjectID, Valid: true},
		Action:    "stepup_initiated:" + string(purpose),
	})
	return challenge, nil
}

// Resend issues a replacement challenge, subject to the resend throttle.
func (v *Verifier) Resend(ctx context.Context, subjectID int64, email string, purpose domain.Purpose) (*domain.Verification, error) {
	allowed, err := v.throttle.CheckCodeResend(ctx, subjectID, string(purpose))
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, xerrors.ErrRateLimited
	}
	return v.Initiate(ctx, subjectID, email, purpose)
}

// Verify checks a submitted code against the latest challenge for the
// (subject, purpose) pair. An exhausted challenge keeps rejecting submissions
// even when the code is correct.
func (v *Verifier) Verify(ctx context.Context, subjectID int64, purpose domain.Purpose, code string) (*domain.Verification, error) {
	challenge, err := v.repo.FindLatest(ctx, subjectID, purpose)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrNoVerificationPending
	}
	if err != nil {
		return nil, err
	}

	switch challenge.Status {
	case domain.StatusFailed:
		return nil, xerrors.ErrMaxAttemptsExceeded
	case domain.StatusVerified, domain.StatusExpired:
		return nil, xerrors.ErrNoVerificationPending
	}

	now := time.Now()
	if now.After(challenge.ExpiresAt) {
		if err := challenge.MarkExpired(); err == nil {
			if uerr := v.repo.UpdateStatus(ctx, challenge); uerr != nil {
				v.logger.Warn("failed to expire challenge", zap.Error(uerr))
			}
		}
		return nil, xerrors.ErrNoVerificationPending
	}

	if challenge.AttemptsExhausted() {
		return nil, xerrors.ErrMaxAttemptsExceeded
	}

	if v.hasher.Matches(code, challenge.CodeHash) {
		if err := challenge.MarkVerified(now); err != nil {
			return nil, err
		}
		if err := v.repo.UpdateStatus(ctx, challenge); err != nil {
			return nil, err
		}
		if err := v.throttle.ResetCodeResend(ctx, subjectID, string(purpose)); err != nil {
			v.logger.Warn("failed to reset resend throttle", zap.Error(err))
		}
		v.ledger.Record(ctx, &audit.Entry{
			EventType: audit.EventStepUpVerified,
			SubjectID: sql.NullInt64{Int64: subjectID, Valid: true},
			Action:    "stepup_verified:" + string(purpose),
		})
		return challenge, nil
	}

	count, err := v.repo.IncrementAttempts(ctx, challenge.ID)
	if err != nil {
		return nil, err
	}
	challenge.AttemptCount = count

	if count >= challenge.MaxAttempts {
		if err := challenge.MarkFailed(); err != nil {
			return nil, err
		}
		if err := v.repo.UpdateStatus(ctx, challenge); err != nil {
			return nil, err
		}
		v.ledger.Record(ctx, &audit.Entry{
			EventType:   audit.EventStepUpFailed,
			SubjectID:   sql.NullInt64{Int64: subjectID, Valid: true},
			Action:      "stepup_attempts_exhausted:" + string(purpose),
			Result:      audit.ResultFailure,
			RiskLevel:   audit.RiskHigh,
			RiskFactors: []string{"max_attempts_exceeded"},
		})
		return nil, xerrors.ErrMaxAttemptsExceeded
	}

	v.ledger.Record(ctx, &audit.Entry{
		EventType: audit.EventStepUpFailed,
		SubjectID: sql.NullInt64{Int64: subjectID, Valid: true},
		Action:    "stepup_code_mismatch:" + string(purpose),
		Result:    audit.ResultFailure,
		RiskLevel: audit.RiskMedium,
	})
	return nil, xerrors.ErrVerificationFailed
}

// generateCode draws a uniform 6-digit code from crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
