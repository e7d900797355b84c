// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Security
	AdminSecret  string // X-Admin-Secret value for the admin API
	RateLimitRPM int    // per-IP requests per minute

	// Abuse alerting
	AbuseWebhookURL    string // optional fraud-ops endpoint notified per abuse event
	AbuseWebhookSecret string // HMAC secret for signing abuse notifications

	// Tracing
	OTLPEndpoint string // OTLP gRPC collector; empty disables tracing
}

// Defaults
const (
	DefaultPort      = "8080"
	DefaultEnv       = "development"
	DefaultLogLevel  = "info"
	DefaultRateLimit = 120
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		AdminSecret:        os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:       getEnvInt("RATE_LIMIT_RPM", DefaultRateLimit),
		AbuseWebhookURL:    os.Getenv("ABUSE_WEBHOOK_URL"),
		AbuseWebhookSecret: os.Getenv("ABUSE_WEBHOOK_SECRET"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive")
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}
	if c.AbuseWebhookURL != "" && c.AbuseWebhookSecret == "" {
		return fmt.Errorf("ABUSE_WEBHOOK_SECRET is required when ABUSE_WEBHOOK_URL is set")
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
