package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// minSecretLength is the minimum accepted length for token signing secrets.
const minSecretLength = 32

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	RateLimit RateLimitConfig
	Lockout   LockoutConfig
	Fraud     FraudConfig
	Session   SessionConfig
	Password  PasswordConfig
	Notify    NotifyConfig
	Export    ExportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds token issuance settings. Access and refresh tokens are
// signed with distinct secrets so one can never be replayed as the other.
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RateLimitRule is one fixed-window budget: at most Max requests per Window.
type RateLimitRule struct {
	Window time.Duration
	Max    int
}

// RateLimitConfig defines per-endpoint-class budgets.
type RateLimitConfig struct {
	Auth    RateLimitRule
	General RateLimitRule
	Payment RateLimitRule
}

// LockoutConfig governs failed-attempt counting and account locking.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration
	Cooldown  time.Duration
}

// FraudConfig tunes the heuristic risk scorer.
type FraudConfig struct {
	RiskyThreshold    int
	BlockThreshold    int
	VelocityWindow    time.Duration
	VelocityThreshold int
	FlaggedIPs        []string
}

// SessionConfig governs idle extension and the absolute session ceiling.
type SessionConfig struct {
	IdleWindow  time.Duration
	AbsoluteTTL time.Duration
}

// PasswordConfig toggles the breach-database lookup.
type PasswordConfig struct {
	LeakCheckEnabled bool
	LeakCheckURL     string
	LeakCheckTimeout time.Duration
	LeakCacheTTL     time.Duration
}

// NotifyConfig configures out-of-band security notices.
type NotifyConfig struct {
	Enabled     bool
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	FromAddress string
	Workers     int
}

// ExportConfig governs audit-trail CSV exports and their download links.
type ExportConfig struct {
	Dir           string
	URLTTL        time.Duration
	Retention     time.Duration
	SigningSecret string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		AccessSecret:  v.GetString("JWT_ACCESS_SECRET"),
		RefreshSecret: v.GetString("JWT_REFRESH_SECRET"),
		Issuer:        v.GetString("JWT_ISSUER"),
		AccessExpiry:  parseDuration(v.GetString("JWT_ACCESS_EXPIRATION"), 15*time.Minute),
		RefreshExpiry: parseDuration(v.GetString("JWT_REFRESH_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.RateLimit = RateLimitConfig{
		Auth: RateLimitRule{
			Window: parseDuration(v.GetString("RATE_LIMIT_AUTH_WINDOW"), 15*time.Minute),
			Max:    v.GetInt("RATE_LIMIT_AUTH_MAX"),
		},
		General: RateLimitRule{
			Window: parseDuration(v.GetString("RATE_LIMIT_GENERAL_WINDOW"), 15*time.Minute),
			Max:    v.GetInt("RATE_LIMIT_GENERAL_MAX"),
		},
		Payment: RateLimitRule{
			Window: parseDuration(v.GetString("RATE_LIMIT_PAYMENT_WINDOW"), time.Minute),
			Max:    v.GetInt("RATE_LIMIT_PAYMENT_MAX"),
		},
	}

	cfg.Lockout = LockoutConfig{
		Threshold: v.GetInt("LOCKOUT_THRESHOLD"),
		Window:    parseDuration(v.GetString("LOCKOUT_WINDOW"), 15*time.Minute),
		Cooldown:  parseDuration(v.GetString("LOCKOUT_COOLDOWN"), 30*time.Minute),
	}

	cfg.Fraud = FraudConfig{
		RiskyThreshold:    v.GetInt("FRAUD_RISKY_THRESHOLD"),
		BlockThreshold:    v.GetInt("FRAUD_BLOCK_THRESHOLD"),
		VelocityWindow:    parseDuration(v.GetString("FRAUD_VELOCITY_WINDOW"), 5*time.Minute),
		VelocityThreshold: v.GetInt("FRAUD_VELOCITY_THRESHOLD"),
		FlaggedIPs:        splitAndTrim(v.GetString("FRAUD_FLAGGED_IPS")),
	}

	cfg.Session = SessionConfig{
		IdleWindow:  parseDuration(v.GetString("SESSION_IDLE_WINDOW"), 30*time.Minute),
		AbsoluteTTL: parseDuration(v.GetString("SESSION_ABSOLUTE_TTL"), 24*time.Hour),
	}

	cfg.Password = PasswordConfig{
		LeakCheckEnabled: v.GetBool("PASSWORD_LEAK_CHECK_ENABLED"),
		LeakCheckURL:     v.GetString("PASSWORD_LEAK_CHECK_URL"),
		LeakCheckTimeout: parseDuration(v.GetString("PASSWORD_LEAK_CHECK_TIMEOUT"), 2*time.Second),
		LeakCacheTTL:     parseDuration(v.GetString("PASSWORD_LEAK_CACHE_TTL"), time.Hour),
	}

	cfg.Notify = NotifyConfig{
		Enabled:     v.GetBool("NOTIFY_ENABLED"),
		SMTPHost:    v.GetString("SMTP_HOST"),
		SMTPPort:    v.GetInt("SMTP_PORT"),
		SMTPUser:    v.GetString("SMTP_USER"),
		SMTPPass:    v.GetString("SMTP_PASSWORD"),
		FromAddress: v.GetString("NOTIFY_FROM_ADDRESS"),
		Workers:     v.GetInt("NOTIFY_WORKERS"),
	}

	cfg.Export = ExportConfig{
		Dir:           v.GetString("EXPORT_DIR"),
		URLTTL:        parseDuration(v.GetString("EXPORT_URL_TTL"), time.Hour),
		Retention:     parseDuration(v.GetString("EXPORT_RETENTION"), 24*time.Hour),
		SigningSecret: v.GetString("EXPORT_SIGNING_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces invariants that must hold before the server starts.
// Secret length is only enforced in production so local development can run
// with the insecure defaults.
func (c *Config) Validate() error {
	if c.Env != EnvProduction {
		return nil
	}
	if len(c.JWT.AccessSecret) < minSecretLength {
		return fmt.Errorf("JWT_ACCESS_SECRET must be at least %d characters", minSecretLength)
	}
	if len(c.JWT.RefreshSecret) < minSecretLength {
		return fmt.Errorf("JWT_REFRESH_SECRET must be at least %d characters", minSecretLength)
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if len(c.Export.SigningSecret) < minSecretLength {
		return fmt.Errorf("EXPORT_SIGNING_SECRET must be at least %d characters", minSecretLength)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "wanderline_auth")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_ACCESS_SECRET", "dev_access_secret")
	v.SetDefault("JWT_REFRESH_SECRET", "dev_refresh_secret")
	v.SetDefault("JWT_ISSUER", "wanderline-auth")
	v.SetDefault("JWT_ACCESS_EXPIRATION", "15m")
	v.SetDefault("JWT_REFRESH_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("RATE_LIMIT_AUTH_WINDOW", "15m")
	v.SetDefault("RATE_LIMIT_AUTH_MAX", 5)
	v.SetDefault("RATE_LIMIT_GENERAL_WINDOW", "15m")
	v.SetDefault("RATE_LIMIT_GENERAL_MAX", 100)
	v.SetDefault("RATE_LIMIT_PAYMENT_WINDOW", "1m")
	v.SetDefault("RATE_LIMIT_PAYMENT_MAX", 3)

	v.SetDefault("LOCKOUT_THRESHOLD", 5)
	v.SetDefault("LOCKOUT_WINDOW", "15m")
	v.SetDefault("LOCKOUT_COOLDOWN", "30m")

	v.SetDefault("FRAUD_RISKY_THRESHOLD", 50)
	v.SetDefault("FRAUD_BLOCK_THRESHOLD", 80)
	v.SetDefault("FRAUD_VELOCITY_WINDOW", "5m")
	v.SetDefault("FRAUD_VELOCITY_THRESHOLD", 10)
	v.SetDefault("FRAUD_FLAGGED_IPS", "")

	v.SetDefault("SESSION_IDLE_WINDOW", "30m")
	v.SetDefault("SESSION_ABSOLUTE_TTL", "24h")

	v.SetDefault("PASSWORD_LEAK_CHECK_ENABLED", false)
	v.SetDefault("PASSWORD_LEAK_CHECK_URL", "https://api.pwnedpasswords.com/range")
	v.SetDefault("PASSWORD_LEAK_CHECK_TIMEOUT", "2s")
	v.SetDefault("PASSWORD_LEAK_CACHE_TTL", "1h")

	v.SetDefault("NOTIFY_ENABLED", false)
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("NOTIFY_FROM_ADDRESS", "security@wanderline.example")
	v.SetDefault("NOTIFY_WORKERS", 1)

	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("EXPORT_URL_TTL", "1h")
	v.SetDefault("EXPORT_RETENTION", "24h")
	v.SetDefault("EXPORT_SIGNING_SECRET", "dev_export_secret")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
