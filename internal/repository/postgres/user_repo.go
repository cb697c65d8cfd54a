// internal/repository/postgres/user_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chakula-service/internal/domain/user"
	xerrors "chakula-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository gives the security core read access to subject records. The
// core never writes role or suspension state; the single write here is the
// sticky step-up approval stamp.
type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	id, email, full_name, password_hash, role, is_active, is_suspended,
	suspended_reason, elevation_approved_at, created_at, updated_at`

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.Role, &u.IsActive,
		&u.IsSuspended, &u.SuspendedReason, &u.ElevationApprovedAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// FindByID retrieves a subject by id.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*user.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// FindByEmail retrieves a subject by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

// CreateFederated inserts a subject created through federated login. The
// identity was verified externally before this is called.
func (r *UserRepository) CreateFederated(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users (email, full_name, role, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, u.Email, u.FullName, u.Role).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create federated user: %w", err)
	}
	return nil
}

// MarkElevationApproved stamps the sticky step-up approval on the subject.
func (r *UserRepository) MarkElevationApproved(ctx context.Context, id int64) error {
	query := `
		UPDATE users
		SET elevation_approved_at = $1, updated_at = $1
		WHERE id = $2 AND elevation_approved_at IS NULL
	`
	_, err := r.db.Exec(ctx, query, time.Now(), id)
	return err
}
