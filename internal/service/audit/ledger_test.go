package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	auditdom "chakula-service/internal/domain/audit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRepo struct {
	entries   []*auditdom.Entry
	createErr error
	purged    time.Time
}

func (r *fakeRepo) Create(_ context.Context, e *auditdom.Entry) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *fakeRepo) Query(_ context.Context, _ auditdom.QueryFilter) ([]*auditdom.Entry, error) {
	return r.entries, nil
}

func (r *fakeRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.purged = cutoff
	return 7, nil
}

func TestRecordDefaultsResultAndRisk(t *testing.T) {
	repo := &fakeRepo{}
	ledger := NewLedger(repo, zap.NewNop())

	ledger.Record(context.Background(), &auditdom.Entry{
		EventType: auditdom.EventLogout,
		Action:    "logout",
	})

	require.Len(t, repo.entries, 1)
	assert.Equal(t, auditdom.ResultSuccess, repo.entries[0].Result)
	assert.Equal(t, auditdom.RiskLow, repo.entries[0].RiskLevel)
}

func TestRecordSwallowsPersistenceErrors(t *testing.T) {
	repo := &fakeRepo{createErr: errors.New("database gone")}
	ledger := NewLedger(repo, zap.NewNop())

	// Must not panic or surface the failure to the caller.
	ledger.Record(context.Background(), &auditdom.Entry{
		EventType: auditdom.EventLoginFailure,
		Action:    "login_failed",
		Result:    auditdom.ResultFailure,
	})

	assert.Empty(t, repo.entries)
}

func TestPurgeUsesRetentionWindow(t *testing.T) {
	repo := &fakeRepo{}
	ledger := NewLedger(repo, zap.NewNop())

	n, err := ledger.Purge(context.Background(), 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.WithinDuration(t, time.Now().Add(-90*24*time.Hour), repo.purged, time.Minute)
}
