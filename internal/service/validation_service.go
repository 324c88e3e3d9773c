package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/kennygrant/sanitize"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/wanderline/auth-api/pkg/config"
)

// passwordSpecials is the accepted symbol set for password strength.
const passwordSpecials = `!@#$%^&*()_+-=[]{}|;:'",.<>/?~` + "`"

var (
	emailPattern     = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)
	jsSchemePattern  = regexp.MustCompile(`(?i)javascript\s*:`)
	eventAttrPattern = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
	commonPasswords  = []string{
		"password", "password1", "password123", "12345678", "123456789",
		"qwerty123", "letmein123", "welcome1", "iloveyou", "admin123",
		"sunshine", "football", "princess", "dragon123", "trustno1",
	}
)

// PasswordCheck reports the outcome of a strength validation with every
// violated rule, so callers can display all of them at once.
type PasswordCheck struct {
	Valid  bool
	Errors []string
}

// ValidationService holds the stateless credential checks plus the optional
// breach-database lookup.
type ValidationService struct {
	cfg       config.PasswordConfig
	client    *http.Client
	leakCache *gocache.Cache
	logger    *zap.Logger
}

// NewValidationService constructs a ValidationService.
func NewValidationService(cfg config.PasswordConfig, logger *zap.Logger) *ValidationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationService{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.LeakCheckTimeout},
		leakCache: gocache.New(cfg.LeakCacheTTL, 2*cfg.LeakCacheTTL),
		logger:    logger,
	}
}

// ValidateEmail applies an RFC-5322-lite pattern match.
func (s *ValidationService) ValidateEmail(email string) bool {
	if len(email) == 0 || len(email) > 254 {
		return false
	}
	return emailPattern.MatchString(email)
}

// ValidatePasswordStrength checks all five rules and returns every
// violation, not just the first.
func (s *ValidationService) ValidatePasswordStrength(password string) PasswordCheck {
	var errs []string

	if len(password) < 8 {
		errs = append(errs, "password must be at least 8 characters")
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(passwordSpecials, r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		errs = append(errs, "password must contain an uppercase letter")
	}
	if !hasLower {
		errs = append(errs, "password must contain a lowercase letter")
	}
	if !hasDigit {
		errs = append(errs, "password must contain a digit")
	}
	if !hasSpecial {
		errs = append(errs, "password must contain a special character")
	}

	lowered := strings.ToLower(password)
	for _, common := range commonPasswords {
		if lowered == common {
			errs = append(errs, "password is too common")
			break
		}
	}

	return PasswordCheck{Valid: len(errs) == 0, Errors: errs}
}

// Sanitize strips HTML, javascript: schemes and inline event handlers from
// free-text input, then trims whitespace. Applied to every free-text field
// before storage or echoing.
func (s *ValidationService) Sanitize(input string) string {
	cleaned := sanitize.HTML(input)
	cleaned = jsSchemePattern.ReplaceAllString(cleaned, "")
	cleaned = eventAttrPattern.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// CheckPasswordLeak queries the breach database via the k-anonymity range
// API. The second return value reports degradation: any lookup failure
// yields (false, true) so availability is never sacrificed for this
// secondary check, while logs can still tell a clean "not leaked" from a
// blind one.
func (s *ValidationService) CheckPasswordLeak(ctx context.Context, password string) (leaked bool, degraded bool) {
	if !s.cfg.LeakCheckEnabled {
		return false, false
	}

	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:5], digest[5:]

	if cached, ok := s.leakCache.Get(digest); ok {
		return cached.(bool), false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", s.cfg.LeakCheckURL, prefix), nil)
	if err != nil {
		s.logger.Warn("leak check request build failed", zap.Error(err))
		return false, true
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("leak check lookup failed", zap.Error(err))
		return false, true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("leak check returned non-200", zap.Int("status", resp.StatusCode))
		return false, true
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		s.logger.Warn("leak check read failed", zap.Error(err))
		return false, true
	}

	found := false
	for _, line := range strings.Split(string(body), "\n") {
		if candidate, _, ok := strings.Cut(strings.TrimSpace(line), ":"); ok && strings.EqualFold(candidate, suffix) {
			found = true
			break
		}
	}

	s.leakCache.SetDefault(digest, found)
	return found, false
}
