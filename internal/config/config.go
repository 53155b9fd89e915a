// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Storage
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)
	RedisURL    string // Redis connection string (optional, uses in-memory counters if not set)

	// Checkout token
	TokenSecret string // HMAC secret for ownership tokens (required)
	TokenMaxAge time.Duration
	OrderMaxAge time.Duration

	// Payment processor
	StripeAPIKey string
	SuccessURL   string
	CancelURL    string

	// Rate limiting (per identity, fixed window)
	SensitiveLimit  int // requests per minute on checkout/risk endpoints
	DefaultLimit    int // requests per minute everywhere else
	LimiterFailOpen bool

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultTokenMaxAge    = time.Hour
	DefaultOrderMaxAge    = time.Hour
	DefaultSensitiveLimit = 5
	DefaultDefaultLimit   = 60
	DefaultSuccessURL     = "https://www.purrify.ca/checkout/success"
	DefaultCancelURL      = "https://www.purrify.ca/checkout/cancel"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:     os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RedisURL:        os.Getenv("REDIS_URL"),    // Optional, uses in-memory if not set
		TokenSecret:     os.Getenv("CHECKOUT_TOKEN_SECRET"),
		TokenMaxAge:     getEnvDuration("TOKEN_MAX_AGE", DefaultTokenMaxAge),
		OrderMaxAge:     getEnvDuration("ORDER_MAX_AGE", DefaultOrderMaxAge),
		StripeAPIKey:    os.Getenv("STRIPE_API_KEY"),
		SuccessURL:      getEnv("CHECKOUT_SUCCESS_URL", DefaultSuccessURL),
		CancelURL:       getEnv("CHECKOUT_CANCEL_URL", DefaultCancelURL),
		SensitiveLimit:  getEnvInt("RATE_LIMIT_SENSITIVE", DefaultSensitiveLimit),
		DefaultLimit:    getEnvInt("RATE_LIMIT_DEFAULT", DefaultDefaultLimit),
		LimiterFailOpen: getEnvBool("RATE_LIMIT_FAIL_OPEN", false),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.TokenSecret == "" {
		return fmt.Errorf("CHECKOUT_TOKEN_SECRET is required")
	}
	if len(c.TokenSecret) < 32 {
		return fmt.Errorf("CHECKOUT_TOKEN_SECRET must be at least 32 characters")
	}

	if c.TokenMaxAge <= 0 {
		return fmt.Errorf("TOKEN_MAX_AGE must be positive")
	}
	if c.OrderMaxAge <= 0 {
		return fmt.Errorf("ORDER_MAX_AGE must be positive")
	}
	if c.SensitiveLimit <= 0 || c.DefaultLimit <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
