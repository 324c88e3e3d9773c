package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wanderline/auth-api/pkg/config"
)

// EndpointClass selects which fixed-window budget applies.
type EndpointClass string

const (
	ClassAuth    EndpointClass = "auth"
	ClassGeneral EndpointClass = "general"
	ClassPayment EndpointClass = "payment"
)

type windowCounter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Reset(ctx context.Context, key string) error
}

// RateLimitResult is the structured outcome of a consume attempt.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimitService enforces fixed-window request budgets per client key.
type RateLimitService struct {
	counter windowCounter
	logger  *zap.Logger
	rules   map[EndpointClass]config.RateLimitRule
}

// NewRateLimitService constructs a RateLimitService from configured rules.
func NewRateLimitService(counter windowCounter, logger *zap.Logger, cfg config.RateLimitConfig) *RateLimitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitService{
		counter: counter,
		logger:  logger,
		rules: map[EndpointClass]config.RateLimitRule{
			ClassAuth:    cfg.Auth,
			ClassGeneral: cfg.General,
			ClassPayment: cfg.Payment,
		},
	}
}

// CheckAndConsume counts this request against the key's window and reports
// whether it is allowed. The counter increment is atomic in the store, so a
// concurrent burst cannot slip past the threshold. Counter errors fail open:
// rate limiting is an availability shield, not the primary gate.
func (s *RateLimitService) CheckAndConsume(ctx context.Context, class EndpointClass, key string) RateLimitResult {
	rule, ok := s.rules[class]
	if !ok || rule.Max <= 0 {
		return RateLimitResult{Allowed: true}
	}

	scopedKey := fmt.Sprintf("%s:%s", class, key)
	count, ttl, err := s.counter.IncrementWindow(ctx, scopedKey, rule.Window)
	if err != nil {
		s.logger.Warn("rate limit counter unavailable", zap.String("key", scopedKey), zap.Error(err))
		return RateLimitResult{Allowed: true}
	}

	remaining := rule.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if count > int64(rule.Max) {
		return RateLimitResult{Allowed: false, Remaining: 0, RetryAfter: ttl}
	}
	return RateLimitResult{Allowed: true, Remaining: remaining}
}

// Reset clears the window for one key in one class. Admin lockout clears
// use this so the pair can retry immediately instead of waiting out the
// window that filled up alongside the lockout.
func (s *RateLimitService) Reset(ctx context.Context, class EndpointClass, key string) error {
	return s.counter.Reset(ctx, fmt.Sprintf("%s:%s", class, key))
}

// LoginKey builds the ip:email composite key used for the auth class so a
// stuffing run against one account does not exhaust an entire NAT'd IP.
func LoginKey(ip, email string) string {
	return fmt.Sprintf("%s:%s", ip, email)
}
