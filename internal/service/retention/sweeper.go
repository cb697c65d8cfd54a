// internal/service/retention/sweeper.go
package retention

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SessionPurger removes session records past expiry.
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// ChallengePurger removes step-up challenges past expiry.
type ChallengePurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// LedgerPurger removes audit entries past the retention window.
type LedgerPurger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// Sweeper periodically clears expired sessions, stale challenges and audit
// entries outside the retention window. It stands in for storage-level TTL
// indexes.
type Sweeper struct {
	sessions   SessionPurger
	challenges ChallengePurger
	ledger     LedgerPurger
	interval   time.Duration
	retention  time.Duration
	logger     *zap.Logger
}

func NewSweeper(
	sessions SessionPurger,
	challenges ChallengePurger,
	ledger LedgerPurger,
	interval time.Duration,
	retention time.Duration,
	logger *zap.Logger,
) *Sweeper {
	return &Sweeper{
		sessions:   sessions,
		challenges: challenges,
		ledger:     ledger,
		interval:   interval,
		retention:  retention,
		logger:     logger,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("retention sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("audit_retention", s.retention))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if n, err := s.sessions.DeleteExpired(ctx); err != nil {
		s.logger.Error("failed to purge expired sessions", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("purged expired sessions", zap.Int64("count", n))
	}

	if n, err := s.challenges.DeleteExpired(ctx); err != nil {
		s.logger.Error("failed to purge expired challenges", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("purged expired challenges", zap.Int64("count", n))
	}

	if n, err := s.ledger.Purge(ctx, s.retention); err != nil {
		s.logger.Error("failed to purge audit ledger", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("purged audit entries", zap.Int64("count", n))
	}
}
