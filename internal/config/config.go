// Package config loads runtime settings from the environment. A .env file in
// the working directory is read first when present.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret is only acceptable outside production.
const DefaultJWTSecret = "larder-dev-secret-change-me"

type Config struct {
	Environment string
	Port        string
	DBPath      string
	LogLevel    string
	LogFormat   string

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration
	ResetTTL  time.Duration

	// StoreTimeout bounds every service call's database work.
	StoreTimeout time.Duration

	RateLimitCount  int
	RateLimitWindow time.Duration
	AuthRateLimit   int

	RedisURL string

	// AdminEmails are promoted to the admin role when they register.
	AdminEmails []string

	PostmarkToken string
	EmailFrom     string
	BaseURL       string

	S3Endpoint  string
	S3Bucket    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string

	BackupEnabled       bool
	BackupDir           string
	BackupPassphrase    string
	BackupHour          int
	BackupRetentionDays int

	OTLPEndpoint string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("LARDER_ENV", "development"),
		Port:        getEnv("LARDER_PORT", "8080"),
		DBPath:      getEnv("LARDER_DB_PATH", "larder.db"),
		LogLevel:    getEnv("LARDER_LOG_LEVEL", "info"),
		LogFormat:   getEnv("LARDER_LOG_FORMAT", "text"),

		JWTSecret: getEnv("LARDER_JWT_SECRET", DefaultJWTSecret),
		JWTIssuer: getEnv("LARDER_JWT_ISSUER", "larder"),
		JWTTTL:    getEnvDuration("LARDER_JWT_TTL", 24*time.Hour),
		ResetTTL:  getEnvDuration("LARDER_RESET_TTL", time.Hour),

		StoreTimeout: getEnvDuration("LARDER_STORE_TIMEOUT", 5*time.Second),

		RateLimitCount:  getEnvInt("LARDER_RATE_LIMIT", 100),
		RateLimitWindow: getEnvDuration("LARDER_RATE_LIMIT_WINDOW", 15*time.Minute),
		AuthRateLimit:   getEnvInt("LARDER_AUTH_RATE_LIMIT", 10),

		RedisURL:    getEnv("LARDER_REDIS_URL", ""),
		AdminEmails: splitList(getEnv("LARDER_ADMIN_EMAILS", "")),

		PostmarkToken: getEnv("LARDER_POSTMARK_TOKEN", ""),
		EmailFrom:     getEnv("LARDER_EMAIL_FROM", "noreply@larder.local"),
		BaseURL:       strings.TrimRight(getEnv("LARDER_BASE_URL", "http://localhost:8080"), "/"),

		S3Endpoint:  getEnv("LARDER_S3_ENDPOINT", ""),
		S3Bucket:    getEnv("LARDER_S3_BUCKET", ""),
		S3Region:    getEnv("LARDER_S3_REGION", "us-east-1"),
		S3AccessKey: getEnv("LARDER_S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("LARDER_S3_SECRET_KEY", ""),

		BackupEnabled:       getEnvBool("LARDER_BACKUP_ENABLED", true),
		BackupDir:           getEnv("LARDER_BACKUP_DIR", "backups"),
		BackupPassphrase:    getEnv("LARDER_BACKUP_PASSPHRASE", ""),
		BackupHour:          getEnvInt("LARDER_BACKUP_HOUR", 2),
		BackupRetentionDays: getEnvInt("LARDER_BACKUP_RETENTION_DAYS", 7),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// S3Enabled reports whether backups should go to object storage.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// IsAdminEmail reports whether email is listed in LARDER_ADMIN_EMAILS.
func (c *Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, e := range c.AdminEmails {
		if e == email {
			return true
		}
	}
	return false
}

// MailEnabled reports whether outgoing mail can be sent.
func (c *Config) MailEnabled() bool {
	return c.PostmarkToken != ""
}

func (c *Config) Validate() error {
	var errs []error
	if c.IsProduction() && c.JWTSecret == DefaultJWTSecret {
		errs = append(errs, errors.New("LARDER_JWT_SECRET must be set in production"))
	}
	if c.IsProduction() && !c.MailEnabled() {
		errs = append(errs, errors.New("LARDER_POSTMARK_TOKEN must be set in production so password resets are emailed"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("LARDER_JWT_SECRET must not be empty"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("LARDER_STORE_TIMEOUT must be positive"))
	}
	if c.RateLimitCount <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate limit count and window must be positive"))
	}
	if c.BackupHour < 0 || c.BackupHour > 23 {
		errs = append(errs, errors.New("LARDER_BACKUP_HOUR must be between 0 and 23"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, errors.New("LARDER_LOG_FORMAT must be text or json"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
