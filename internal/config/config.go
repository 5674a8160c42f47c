package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string

	// Domain is the network domain this server registers identities for.
	Domain          string
	RegisterEnabled bool

	JWTSecret string
	TokenTTL  time.Duration

	SigningKeyFile        string
	SigningKeyFingerprint string
	SigningKeyPassphrase  string

	// VerificationStore selects the code store backend: postgres, redis or
	// memory. The postgres backend shares DatabaseURL.
	VerificationStore string
	RedisURL          string

	CodeTTL    time.Duration
	CodeLength int

	SMSProvider       string
	SMSProviderConfig string

	// Per-IP limiter for the registration endpoints. RateLimitRPS <= 0
	// disables it.
	RateLimitRPS   float64
	RateLimitBurst int

	MetricsEnabled bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              "8080",
		RegisterEnabled:   true,
		TokenTTL:          24 * time.Hour,
		VerificationStore: "postgres",
		CodeTTL:           15 * time.Minute,
		CodeLength:        6,
		SMSProvider:       "stub",
		RateLimitRPS:      0.5,
		RateLimitBurst:    10,
		MetricsEnabled:    true,
	}

	cfg.Domain = os.Getenv("DOMAIN")
	if cfg.Domain == "" {
		return nil, fmt.Errorf("DOMAIN environment variable is required")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	cfg.SigningKeyFile = os.Getenv("SIGNING_KEY_FILE")
	if cfg.SigningKeyFile == "" {
		return nil, fmt.Errorf("SIGNING_KEY_FILE environment variable is required")
	}
	cfg.SigningKeyFingerprint = os.Getenv("SIGNING_KEY_FINGERPRINT")
	cfg.SigningKeyPassphrase = os.Getenv("SIGNING_KEY_PASSPHRASE")

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	if v := os.Getenv("REGISTER_ENABLED"); v != "" {
		cfg.RegisterEnabled = v == "true"
	}

	if v := os.Getenv("VERIFICATION_STORE"); v != "" {
		cfg.VerificationStore = strings.ToLower(v)
	}
	switch cfg.VerificationStore {
	case "postgres", "redis", "memory":
	default:
		return nil, fmt.Errorf("unsupported VERIFICATION_STORE %q", cfg.VerificationStore)
	}

	// Account bindings always live in Postgres, whichever backend holds
	// the verification codes.
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.VerificationStore == "redis" && cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL environment variable is required")
	}

	if v := os.Getenv("TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
		}
		cfg.TokenTTL = ttl
	}

	if v := os.Getenv("CODE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CODE_TTL: %w", err)
		}
		if ttl <= 0 {
			return nil, fmt.Errorf("CODE_TTL must be positive")
		}
		cfg.CodeTTL = ttl
	}

	if v := os.Getenv("CODE_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 4 || n > 12 {
			return nil, fmt.Errorf("CODE_LENGTH must be an integer between 4 and 12")
		}
		cfg.CodeLength = n
	}

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRPS = rps
	}

	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("RATE_LIMIT_BURST must be a positive integer")
		}
		cfg.RateLimitBurst = n
	}

	if v := os.Getenv("SMS_PROVIDER"); v != "" {
		cfg.SMSProvider = v
	}
	cfg.SMSProviderConfig = os.Getenv("SMS_PROVIDER_CONFIG")

	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.MetricsEnabled = v == "true"
	}

	return cfg, nil
}
