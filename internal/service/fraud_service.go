package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wanderline/auth-api/internal/models"
	"github.com/wanderline/auth-api/pkg/config"
)

// Score weights for the additive heuristics.
const (
	scoreHighVelocity   = 35
	scoreRapidRetry     = 25
	scoreMissingAgent   = 20
	scoreTemplatedAgent = 15
	scoreFlaggedIP      = 40
	rapidRetryFloor     = 2 * time.Second
)

var templatedAgentPattern = regexp.MustCompile(`(?i)(curl|python-requests|wget|httpclient|go-http-client|libwww|scrapy|postmanruntime)`)

type attemptSignalStore interface {
	CountAttemptsSince(ctx context.Context, email, ip string, since time.Time) (int, error)
	LastAttemptAt(ctx context.Context, email, ip string) (*time.Time, error)
}

// FraudService computes an explainable 0-100 risk score from behavioural
// signals. Each contributing reason is returned with the score so the audit
// trail can say why a request was blocked, not just that it was.
type FraudService struct {
	attempts   attemptSignalStore
	logger     *zap.Logger
	cfg        config.FraudConfig
	flaggedIPs map[string]struct{}
}

// NewFraudService constructs a FraudService.
func NewFraudService(attempts attemptSignalStore, logger *zap.Logger, cfg config.FraudConfig) *FraudService {
	if logger == nil {
		logger = zap.NewNop()
	}
	flagged := make(map[string]struct{}, len(cfg.FlaggedIPs))
	for _, ip := range cfg.FlaggedIPs {
		flagged[ip] = struct{}{}
	}
	return &FraudService{attempts: attempts, logger: logger, cfg: cfg, flaggedIPs: flagged}
}

// Assess gathers behavioural signals for the identity and scores them.
// A signal that cannot be computed contributes zero and marks the
// assessment degraded instead of aborting it.
func (s *FraudService) Assess(ctx context.Context, email, ip, userAgent string) models.FraudAssessment {
	now := time.Now().UTC()
	signals := models.ActivitySignals{
		Email:     email,
		IPAddress: ip,
		UserAgent: userAgent,
		Now:       now,
	}

	degraded := false

	count, err := s.attempts.CountAttemptsSince(ctx, email, ip, now.Add(-s.cfg.VelocityWindow))
	if err != nil {
		s.logger.Warn("velocity signal unavailable", zap.String("email", email), zap.Error(err))
		degraded = true
	} else {
		signals.RecentCount = count
	}

	last, err := s.attempts.LastAttemptAt(ctx, email, ip)
	if err != nil {
		s.logger.Warn("recency signal unavailable", zap.String("email", email), zap.Error(err))
		degraded = true
	} else {
		signals.LastAttemptAt = last
	}

	assessment := s.Score(signals)
	assessment.Degraded = assessment.Degraded || degraded
	return assessment
}

// Score applies the additive heuristics to pre-gathered signals. Pure:
// no store access, freely parallelisable.
func (s *FraudService) Score(signals models.ActivitySignals) models.FraudAssessment {
	score := 0
	var reasons []string

	if s.cfg.VelocityThreshold > 0 && signals.RecentCount > s.cfg.VelocityThreshold {
		score += scoreHighVelocity
		reasons = append(reasons, fmt.Sprintf("request velocity %d exceeds %d in window", signals.RecentCount, s.cfg.VelocityThreshold))
	}

	if signals.LastAttemptAt != nil {
		elapsed := signals.Now.Sub(*signals.LastAttemptAt)
		if elapsed >= 0 && elapsed < rapidRetryFloor {
			score += scoreRapidRetry
			reasons = append(reasons, fmt.Sprintf("retry after %s is faster than human interaction", elapsed.Round(time.Millisecond)))
		}
	}

	agent := strings.TrimSpace(signals.UserAgent)
	switch {
	case agent == "":
		score += scoreMissingAgent
		reasons = append(reasons, "missing user agent")
	case templatedAgentPattern.MatchString(agent):
		score += scoreTemplatedAgent
		reasons = append(reasons, "templated user agent")
	}

	if _, ok := s.flaggedIPs[signals.IPAddress]; ok {
		score += scoreFlaggedIP
		reasons = append(reasons, "ip address previously flagged")
	}

	if score > 100 {
		score = 100
	}

	return models.FraudAssessment{
		RiskScore: score,
		IsRisky:   score >= s.cfg.RiskyThreshold,
		Blocked:   score >= s.cfg.BlockThreshold,
		Reasons:   reasons,
	}
}
