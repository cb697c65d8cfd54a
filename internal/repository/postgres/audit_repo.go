// internal/repository/postgres/audit_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"chakula-service/internal/domain/audit"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type AuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends one ledger entry. Entries are never updated afterwards.
func (r *AuditRepository) Create(ctx context.Context, e *audit.Entry) error {
	query := `
		INSERT INTO security_audit_log (
			event_type, subject_id, action, result, ip_address, device_id,
			country, city, risk_level, risk_factors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(
		ctx, query,
		e.EventType, e.SubjectID, e.Action, e.Result, e.IPAddress, e.DeviceID,
		e.Country, e.City, e.RiskLevel, []string(e.RiskFactors),
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Query returns entries matching the filter, newest first.
func (r *AuditRepository) Query(ctx context.Context, f audit.QueryFilter) ([]*audit.Entry, error) {
	query := `
		SELECT id, event_type, subject_id, action, result, ip_address, device_id,
		       country, city, risk_level, risk_factors, created_at
		FROM security_audit_log
		WHERE 1=1
	`
	args := []interface{}{}
	argN := 1

	addFilter := func(cond string, value interface{}) {
		query += fmt.Sprintf(" AND %s $%d", cond, argN)
		args = append(args, value)
		argN++
	}

	if f.SubjectID != nil {
		addFilter("subject_id =", *f.SubjectID)
	}
	if f.EventType != "" {
		addFilter("event_type =", f.EventType)
	}
	if f.RiskLevel != "" {
		addFilter("risk_level =", f.RiskLevel)
	}
	if f.Since != nil {
		addFilter("created_at >=", *f.Since)
	}
	if f.Until != nil {
		addFilter("created_at <=", *f.Until)
	}

	query += " ORDER BY created_at DESC"

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d", limit)
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		var e audit.Entry
		var factors []string
		if err := rows.Scan(
			&e.ID, &e.EventType, &e.SubjectID, &e.Action, &e.Result, &e.IPAddress,
			&e.DeviceID, &e.Country, &e.City, &e.RiskLevel, &factors, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.RiskFactors = pq.StringArray(factors)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// DeleteOlderThan purges entries past the retention window.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM security_audit_log WHERE created_at < $1`
	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit log: %w", err)
	}
	return tag.RowsAffected(), nil
}
