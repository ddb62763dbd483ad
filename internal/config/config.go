// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN for the profile store; empty until DB is wired.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// IdentityProvider selects the identity backend: "local" (self-hosted dev authority) or "rest" (hosted identity-toolkit API).
	IdentityProvider string `mapstructure:"IDENTITY_PROVIDER"`
	// IdentityAPIURL is the base URL of the hosted identity-toolkit API; required when IDENTITY_PROVIDER=rest.
	IdentityAPIURL string `mapstructure:"IDENTITY_API_URL"`
	// IdentityAPIKey is the API key sent with hosted identity-toolkit requests.
	IdentityAPIKey string `mapstructure:"IDENTITY_API_KEY"`
	// AuthTokenSecret is the HMAC secret for session and email-verification tokens issued by the local authority.
	AuthTokenSecret string `mapstructure:"AUTH_TOKEN_SECRET"`
	// SessionTTL is the local-authority session token lifetime (e.g. "24h").
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// VerifyTokenTTL is the email-verification token lifetime (e.g. "24h").
	VerifyTokenTTL string `mapstructure:"VERIFY_TOKEN_TTL"`
	// VerifyRedirectURL is where the verification link lands the user after verification (the web client).
	VerifyRedirectURL string `mapstructure:"VERIFY_REDIRECT_URL"`
	// PublicBaseURL is this server's public base URL, used as the verification-link target in mail sent by the local authority.
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12. Used by the local authority.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SMTPHost is the SMTP server host for verification mail; empty disables delivery (mail is logged instead).
	SMTPHost string `mapstructure:"SMTP_HOST"`
	// SMTPPort is the SMTP server port (default 587).
	SMTPPort int `mapstructure:"SMTP_PORT"`
	// SMTPUsername is the SMTP auth username.
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	// SMTPPassword is the SMTP auth password.
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	// SMTPFrom is the From address on verification mail.
	SMTPFrom string `mapstructure:"SMTP_FROM"`

	// RecoveryDBPath is the sqlite file backing the device-local recovery cache (default maeul-recovery.db).
	RecoveryDBPath string `mapstructure:"RECOVERY_DB_PATH"`
	// RecoveryTTL is how long a recovery record stays mergeable (default 24h).
	RecoveryTTL string `mapstructure:"RECOVERY_TTL"`

	// LoginFailThreshold is the failure count at which lockout starts (default 5).
	LoginFailThreshold int `mapstructure:"LOGIN_FAIL_THRESHOLD"`
	// LoginLockBase is the first lockout duration at the threshold (default 60s); doubles per further failure.
	LoginLockBase string `mapstructure:"LOGIN_LOCK_BASE"`
	// SubmitCooldown is the fixed cooldown applied after every auth submission (default 1500ms).
	SubmitCooldown string `mapstructure:"SUBMIT_COOLDOWN"`
	// ProfileOpTimeout bounds every profile-store operation (default 10s).
	ProfileOpTimeout string `mapstructure:"PROFILE_OP_TIMEOUT"`
	// SignoutDelay is the deferred sign-out delay after signup completion (default 2s).
	SignoutDelay string `mapstructure:"SIGNOUT_DELAY"`

	// OTLPEndpoint is the OTLP gRPC endpoint for traces/metrics/logs (e.g. http://localhost:4317). Empty disables export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`

	// Telemetry (optional). When Kafka brokers are set, the server emits account events to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for account events (default maeul-telemetry).
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("IDENTITY_PROVIDER", "local")
	v.SetDefault("IDENTITY_API_URL", "")
	v.SetDefault("IDENTITY_API_KEY", "")
	v.SetDefault("AUTH_TOKEN_SECRET", "")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("VERIFY_TOKEN_TTL", "24h")
	v.SetDefault("VERIFY_REDIRECT_URL", "http://localhost:5173")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@maeul-board.kr")
	v.SetDefault("RECOVERY_DB_PATH", "maeul-recovery.db")
	v.SetDefault("RECOVERY_TTL", "24h")
	v.SetDefault("LOGIN_FAIL_THRESHOLD", 5)
	v.SetDefault("LOGIN_LOCK_BASE", "60s")
	v.SetDefault("SUBMIT_COOLDOWN", "1500ms")
	v.SetDefault("PROFILE_OP_TIMEOUT", "10s")
	v.SetDefault("SIGNOUT_DELAY", "2s")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "maeul-telemetry")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "maeul-telemetry-worker")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	switch cfg.IdentityProvider {
	case "local", "rest":
	default:
		return nil, errors.New("config: IDENTITY_PROVIDER must be local or rest")
	}
	if cfg.IdentityProvider == "rest" && cfg.IdentityAPIURL == "" {
		return nil, errors.New("config: IDENTITY_API_URL must be set when IDENTITY_PROVIDER=rest")
	}
	if cfg.IdentityProvider == "local" && cfg.AuthTokenSecret == "" && cfg.Env == "production" {
		return nil, errors.New("config: AUTH_TOKEN_SECRET must be set when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.LoginFailThreshold <= 0 {
		return nil, errors.New("config: LOGIN_FAIL_THRESHOLD must be positive")
	}

	return &cfg, nil
}

// SessionTokenTTL parses SessionTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) SessionTokenTTL() time.Duration {
	return durationOr(c.SessionTTL, 24*time.Hour)
}

// VerifyTTL parses VerifyTokenTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) VerifyTTL() time.Duration {
	return durationOr(c.VerifyTokenTTL, 24*time.Hour)
}

// RecoveryRecordTTL parses RecoveryTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) RecoveryRecordTTL() time.Duration {
	return durationOr(c.RecoveryTTL, 24*time.Hour)
}

// LockBase parses LoginLockBase as a time.Duration. Returns 60s if unset or invalid.
func (c *Config) LockBase() time.Duration {
	return durationOr(c.LoginLockBase, 60*time.Second)
}

// Cooldown parses SubmitCooldown as a time.Duration. Returns 1500ms if unset or invalid.
func (c *Config) Cooldown() time.Duration {
	return durationOr(c.SubmitCooldown, 1500*time.Millisecond)
}

// ProfileTimeout parses ProfileOpTimeout as a time.Duration. Returns 10s if unset or invalid.
func (c *Config) ProfileTimeout() time.Duration {
	return durationOr(c.ProfileOpTimeout, 10*time.Second)
}

// SignoutDelayDuration parses SignoutDelay as a time.Duration. Returns 2s if unset or invalid.
func (c *Config) SignoutDelayDuration() time.Duration {
	return durationOr(c.SignoutDelay, 2*time.Second)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
