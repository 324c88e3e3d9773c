package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/wanderline/auth-api/internal/models"
	"github.com/wanderline/auth-api/pkg/config"
)

type mockSignalStore struct {
	count    int
	countErr error
	last     *time.Time
	lastErr  error
}

func (m *mockSignalStore) CountAttemptsSince(ctx context.Context, email, ip string, since time.Time) (int, error) {
	return m.count, m.countErr
}

func (m *mockSignalStore) LastAttemptAt(ctx context.Context, email, ip string) (*time.Time, error) {
	return m.last, m.lastErr
}

func newFraudService(store attemptSignalStore, flagged ...string) *FraudService {
	return NewFraudService(store, zap.NewNop(), config.FraudConfig{
		RiskyThreshold:    50,
		BlockThreshold:    80,
		VelocityWindow:    5 * time.Minute,
		VelocityThreshold: 10,
		FlaggedIPs:        flagged,
	})
}

func TestFraudScoreCleanRequest(t *testing.T) {
	svc := newFraudService(&mockSignalStore{})

	assessment := svc.Score(models.ActivitySignals{
		Email:     "user@example.com",
		IPAddress: "10.0.0.1",
		UserAgent: "Mozilla/5.0",
		Now:       time.Now().UTC(),
	})

	assert.Equal(t, 0, assessment.RiskScore)
	assert.False(t, assessment.IsRisky)
	assert.False(t, assessment.Blocked)
	assert.Empty(t, assessment.Reasons)
}

func TestFraudScoreAdditiveSignals(t *testing.T) {
	svc := newFraudService(&mockSignalStore{}, "198.51.100.7")
	now := time.Now().UTC()
	last := now.Add(-time.Second)

	assessment := svc.Score(models.ActivitySignals{
		Email:         "user@example.com",
		IPAddress:     "198.51.100.7",
		UserAgent:     "",
		Now:           now,
		RecentCount:   11,
		LastAttemptAt: &last,
	})

	// 35 velocity + 25 rapid retry + 20 missing agent + 40 flagged ip,
	// clamped to 100
	assert.Equal(t, 100, assessment.RiskScore)
	assert.True(t, assessment.IsRisky)
	assert.True(t, assessment.Blocked)
	assert.Len(t, assessment.Reasons, 4)
}

func TestFraudScoreTemplatedAgent(t *testing.T) {
	svc := newFraudService(&mockSignalStore{})

	assessment := svc.Score(models.ActivitySignals{
		UserAgent: "python-requests/2.31",
		Now:       time.Now().UTC(),
	})

	assert.Equal(t, scoreTemplatedAgent, assessment.RiskScore)
	assert.False(t, assessment.IsRisky)
}

func TestFraudScoreRiskyButNotBlocked(t *testing.T) {
	svc := newFraudService(&mockSignalStore{})
	now := time.Now().UTC()
	last := now.Add(-500 * time.Millisecond)

	assessment := svc.Score(models.ActivitySignals{
		UserAgent:     "curl/8.0",
		Now:           now,
		RecentCount:   11,
		LastAttemptAt: &last,
	})

	// 35 + 25 + 15 = 75: risky, below the block threshold
	assert.Equal(t, 75, assessment.RiskScore)
	assert.True(t, assessment.IsRisky)
	assert.False(t, assessment.Blocked)
}

func TestFraudAssessDegradedOnSignalFailure(t *testing.T) {
	store := &mockSignalStore{countErr: errors.New("db down"), lastErr: errors.New("db down")}
	svc := newFraudService(store)

	assessment := svc.Assess(context.Background(), "user@example.com", "10.0.0.1", "Mozilla/5.0")

	assert.True(t, assessment.Degraded)
	assert.False(t, assessment.Blocked)
	assert.Equal(t, 0, assessment.RiskScore)
}
