package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	CORSAllowedOrigins []string
	AccessTokenTTL     time.Duration

	// Rental policy knobs. The day cap and default deposit percentage are
	// configuration, not constants, because different deployments enforce
	// different rental rules.
	RentalMaxDays     int
	DepositDefaultPct float64

	CatalogCacheTTL time.Duration

	// Outbound automation webhook (n8n) delivery.
	WebhookURL             string
	WebhookSecret          string
	WebhookDeliveryEnabled bool
	WebhookMaxAttempts     int
	WebhookBackoffBase     time.Duration
	WebhookRequestTimeout  time.Duration
	WebhookReplayTTL       time.Duration

	// Circuit breaker and per-attempt retry around the webhook HTTP client.
	// The delivery schedule retries via the queue; these knobs only bound a
	// single attempt so a dead endpoint opens the circuit instead of
	// consuming the full attempt budget on timeouts.
	CircuitWebhookMinReq      int
	CircuitWebhookFailureRate float64
	CircuitWebhookOpenFor     time.Duration
	WebhookRetryMaxAttempts   int
	WebhookRetryBase          time.Duration
	WebhookRetryJitter        float64

	QueuePrefix            string
	QueueConcurrency       int
	QueueVisibilityTimeout time.Duration
	QueueBackoffBase       time.Duration
	QueueBackoffJitter     float64

	IdempotencyTTL   time.Duration
	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	AnalyticsCacheTTL     time.Duration
	AnalyticsDefaultRange int

	AuditEnabled      bool
	AuditSamplingRate float64

	MigrationsPath string

	RateLimitWindow time.Duration
	RateLimitMax    int
	BodyLimitBytes  int64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		AccessTokenTTL:     parseDuration(k.String("ACCESS_TOKEN_TTL"), "12h"),

		RentalMaxDays:     parseInt(k.String("RENTAL_MAX_DAYS"), 30),
		DepositDefaultPct: parseFloat(k.String("DEPOSIT_DEFAULT_PCT"), 30),

		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),

		WebhookURL:             strings.TrimSpace(k.String("N8N_WEBHOOK_URL")),
		WebhookSecret:          k.String("N8N_WEBHOOK_SECRET"),
		WebhookDeliveryEnabled: parseBool(k.String("WEBHOOK_DELIVERY_ENABLED")),
		WebhookMaxAttempts:     parseInt(k.String("WEBHOOK_MAX_ATTEMPTS"), 6),
		WebhookBackoffBase:     parseDuration(k.String("WEBHOOK_BACKOFF_BASE"), "30s"),
		WebhookRequestTimeout:  parseDuration(k.String("WEBHOOK_REQUEST_TIMEOUT"), "10s"),
		WebhookReplayTTL:       parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "10m"),

		CircuitWebhookMinReq:      parseInt(k.String("CIRCUIT_WEBHOOK_MIN_REQUESTS"), 10),
		CircuitWebhookFailureRate: parseFloat(k.String("CIRCUIT_WEBHOOK_FAILURE_RATE"), 0.5),
		CircuitWebhookOpenFor:     parseDuration(k.String("CIRCUIT_WEBHOOK_OPEN_FOR"), "30s"),
		WebhookRetryMaxAttempts:   parseInt(k.String("WEBHOOK_RETRY_MAX_ATTEMPTS"), 2),
		WebhookRetryBase:          parseDuration(k.String("WEBHOOK_RETRY_BASE"), "200ms"),
		WebhookRetryJitter:        parseFloat(k.String("WEBHOOK_RETRY_JITTER"), 0.2),

		QueuePrefix:            valueOrDefault(k.String("QUEUE_REDIS_PREFIX"), "cunha"),
		QueueConcurrency:       parseInt(k.String("QUEUE_CONCURRENCY"), 4),
		QueueVisibilityTimeout: parseDuration(k.String("QUEUE_VISIBILITY_TIMEOUT"), "2m"),
		QueueBackoffBase:       parseDuration(k.String("QUEUE_BACKOFF_BASE"), "5s"),
		QueueBackoffJitter:     parseFloat(k.String("QUEUE_BACKOFF_JITTER"), 0.2),

		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		LockTTL:          parseDuration(k.String("LOCK_TTL"), "15s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),

		AnalyticsCacheTTL:     parseDuration(k.String("ANALYTICS_CACHE_TTL"), "5m"),
		AnalyticsDefaultRange: parseInt(k.String("ANALYTICS_DEFAULT_RANGE_DAYS"), 365),

		AuditEnabled:      parseBool(valueOrDefault(k.String("AUDIT_ENABLED"), "true")),
		AuditSamplingRate: parseFloat(k.String("AUDIT_SAMPLING_RATE"), 1),

		MigrationsPath: valueOrDefault(k.String("MIGRATIONS_PATH"), "migrations"),

		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    parseInt(k.String("RATE_LIMIT_MAX"), 120),
		BodyLimitBytes:  int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.RentalMaxDays < 1 {
		return nil, errors.New("RENTAL_MAX_DAYS must be at least 1")
	}
	if cfg.DepositDefaultPct < 0 || cfg.DepositDefaultPct > 100 {
		return nil, errors.New("DEPOSIT_DEFAULT_PCT must be between 0 and 100")
	}
	if cfg.WebhookDeliveryEnabled && cfg.WebhookURL == "" {
		return nil, errors.New("N8N_WEBHOOK_URL is required when webhook delivery is enabled")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
