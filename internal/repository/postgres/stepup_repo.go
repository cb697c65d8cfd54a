// internal/repository/postgres/stepup_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"chakula-service/internal/domain/stepup"
	xerrors "chakula-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type StepUpRepository struct {
	db *pgxpool.Pool
}

func NewStepUpRepository(db *pgxpool.Pool) *StepUpRepository {
	return &StepUpRepository{db: db}
}

const stepUpColumns = `
	id, subject_id, purpose, method, status, code_hash,
	attempt_count, max_attempts, expires_at, verified_at, created_at`

func scanVerification(row pgx.Row) (*stepup.Verification, error) {
	var v stepup.Verification
	err := row.Scan(
		&v.ID, &v.SubjectID, &v.Purpose, &v.Method, &v.Status, &v.CodeHash,
		&v.AttemptCount, &v.MaxAttempts, &v.ExpiresAt, &v.VerifiedAt, &v.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan verification: %w", err)
	}
	return &v, nil
}

// Create persists a new challenge.
func (r *StepUpRepository) Create(ctx context.Context, v *stepup.Verification) error {
	query := `
		INSERT INTO stepup_verifications (
			id, subject_id, purpose, method, status, code_hash,
			attempt_count, max_attempts, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := r.db.QueryRow(
		ctx, query,
		v.ID, v.SubjectID, v.Purpose, v.Method, v.Status, v.CodeHash,
		v.AttemptCount, v.MaxAttempts, v.ExpiresAt,
	).Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create verification: %w", err)
	}
	return nil
}

// FindLatest returns the most recent unexpired challenge for a
// (subject, purpose) pair, whatever its status. The verifier needs resolved
// records too: an exhausted challenge must keep rejecting submissions.
func (r *StepUpRepository) FindLatest(ctx context.Context, subjectID int64, purpose stepup.Purpose) (*stepup.Verification, error) {
	query := `
		SELECT ` + stepUpColumns + `
		FROM stepup_verifications
		WHERE subject_id = $1 AND purpose = $2 AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanVerification(r.db.QueryRow(ctx, query, subjectID, purpose))
}

// IncrementAttempts bumps the attempt counter and returns the new count.
func (r *StepUpRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE stepup_verifications
		SET attempt_count = attempt_count + 1
		WHERE id = $1
		RETURNING attempt_count
	`
	var count int
	if err := r.db.QueryRow(ctx, query, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}
	return count, nil
}

// UpdateStatus records a state transition; verified_at is set only on VERIFIED.
func (r *StepUpRepository) UpdateStatus(ctx context.Context, v *stepup.Verification) error {
	query := `
		UPDATE stepup_verifications
		SET status = $2, verified_at = $3
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, v.ID, v.Status, v.VerifiedAt)
	if err != nil {
		return fmt.Errorf("failed to update verification status: %w", err)
	}
	return nil
}

// DeleteExpired removes challenges past expiry; pending ones simply lapse
// (EXPIRED is a virtual terminal state once expires_at passes).
func (r *StepUpRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM stepup_verifications WHERE expires_at <= NOW()`
	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired verifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
