// internal/service/audit/ledger.go
package audit

import (
	"context"
	"time"

	"chakula-service/internal/domain/audit"

	"go.uber.org/zap"
)

// Repository is the persistence surface the ledger needs.
type Repository interface {
	Create(ctx context.Context, e *audit.Entry) error
	Query(ctx context.Context, f audit.QueryFilter) ([]*audit.Entry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Ledger appends security events. Recording never fails the caller's
// operation: a broken ledger must not lock users out or let a revocation
// silently not happen.
type Ledger struct {
	repo   Repository
	logger *zap.Logger
}

func NewLedger(repo Repository, logger *zap.Logger) *Ledger {
	return &Ledger{repo: repo, logger: logger}
}

// Record appends one entry. Persistence errors are logged and swallowed.
func (l *Ledger) Record(ctx context.Context, e *audit.Entry) {
	if e.Result == "" {
		e.Result = audit.ResultSuccess
	}
	if e.RiskLevel == "" {
		e.RiskLevel = audit.RiskLow
	}

	if err := l.repo.Create(ctx, e); err != nil {
		l.logger.Error("failed to append audit entry",
			zap.String("event_type", string(e.EventType)),
			zap.Int64("subject_id", e.SubjectID.Int64),
			zap.Error(err))
		return
	}

	if e.RiskLevel == audit.RiskCritical || e.RiskLevel == audit.RiskHigh {
		l.logger.Warn("security event",
			zap.String("event_type", string(e.EventType)),
			zap.Int64("subject_id", e.SubjectID.Int64),
			zap.String("risk_level", string(e.RiskLevel)),
			zap.Strings("risk_factors", e.RiskFactors))
	}
}

// Query returns ledger entries matching the filter, newest first.
func (l *Ledger) Query(ctx context.Context, f audit.QueryFilter) ([]*audit.Entry, error) {
	return l.repo.Query(ctx, f)
}

// Purge removes entries older than the retention window and returns how many
// were dropped.
func (l *Ledger) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return l.repo.DeleteOlderThan(ctx, time.Now().Add(-retention))
}
