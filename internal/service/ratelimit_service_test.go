package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/wanderline/auth-api/pkg/config"
)

type mockWindowCounter struct {
	counts  map[string]int64
	window  time.Duration
	err     error
	lastKey string
}

func newMockWindowCounter() *mockWindowCounter {
	return &mockWindowCounter{counts: make(map[string]int64)}
}

func (m *mockWindowCounter) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if m.err != nil {
		return 0, 0, m.err
	}
	m.lastKey = key
	m.window = window
	m.counts[key]++
	return m.counts[key], window, nil
}

func (m *mockWindowCounter) Reset(ctx context.Context, key string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.counts, key)
	return nil
}

func newRateLimitService(counter windowCounter) *RateLimitService {
	return NewRateLimitService(counter, zap.NewNop(), config.RateLimitConfig{
		Auth:    config.RateLimitRule{Window: 15 * time.Minute, Max: 5},
		General: config.RateLimitRule{Window: 15 * time.Minute, Max: 100},
		Payment: config.RateLimitRule{Window: time.Minute, Max: 3},
	})
}

func TestRateLimitAllowsWithinBudget(t *testing.T) {
	counter := newMockWindowCounter()
	svc := newRateLimitService(counter)

	for i := 0; i < 5; i++ {
		result := svc.CheckAndConsume(context.Background(), ClassAuth, "10.0.0.1")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 4-i, result.Remaining)
	}
}

func TestRateLimitRejectsBeyondBudget(t *testing.T) {
	counter := newMockWindowCounter()
	svc := newRateLimitService(counter)

	for i := 0; i < 5; i++ {
		svc.CheckAndConsume(context.Background(), ClassAuth, "10.0.0.1")
	}

	result := svc.CheckAndConsume(context.Background(), ClassAuth, "10.0.0.1")
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, 15*time.Minute, result.RetryAfter)
}

func TestRateLimitKeysAreClassScoped(t *testing.T) {
	counter := newMockWindowCounter()
	svc := newRateLimitService(counter)

	for i := 0; i < 5; i++ {
		svc.CheckAndConsume(context.Background(), ClassAuth, "10.0.0.1")
	}

	// a different class keeps its own budget for the same client
	result := svc.CheckAndConsume(context.Background(), ClassGeneral, "10.0.0.1")
	assert.True(t, result.Allowed)
	assert.Equal(t, "general:10.0.0.1", counter.lastKey)
}

func TestRateLimitFailsOpenOnCounterError(t *testing.T) {
	counter := newMockWindowCounter()
	counter.err = errors.New("redis down")
	svc := newRateLimitService(counter)

	result := svc.CheckAndConsume(context.Background(), ClassAuth, "10.0.0.1")
	assert.True(t, result.Allowed)
}

func TestRateLimitResetReopensWindow(t *testing.T) {
	counter := newMockWindowCounter()
	svc := newRateLimitService(counter)
	key := LoginKey("10.0.0.1", "user@example.com")

	for i := 0; i < 6; i++ {
		svc.CheckAndConsume(context.Background(), ClassAuth, key)
	}
	assert.False(t, svc.CheckAndConsume(context.Background(), ClassAuth, key).Allowed)

	assert.NoError(t, svc.Reset(context.Background(), ClassAuth, key))
	result := svc.CheckAndConsume(context.Background(), ClassAuth, key)
	assert.True(t, result.Allowed)
	assert.Equal(t, 4, result.Remaining)
}

func TestLoginKey(t *testing.T) {
	assert.Equal(t, "10.0.0.1:user@example.com", LoginKey("10.0.0.1", "user@example.com"))
}
