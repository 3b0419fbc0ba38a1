// Package config builds the PaySentry configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/paysentry/internal/domain"
)

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present.
func Load() (*domain.Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	return FromEnv()
}

// FromEnv starts from the tier defaults and applies environment overrides.
func FromEnv() (*domain.Config, error) {
	var cfg *domain.Config
	switch tier := strings.ToLower(os.Getenv("PAYSENTRY_TIER")); tier {
	case "", string(domain.TierCommunity):
		cfg = domain.DefaultConfig()
	case string(domain.TierPro):
		cfg = domain.ProConfig()
	default:
		return nil, fmt.Errorf("PAYSENTRY_TIER must be community or pro, got %q", tier)
	}

	var err error
	if cfg.Server.Port, err = getEnvInt("PAYSENTRY_PORT", cfg.Server.Port); err != nil {
		return nil, err
	}
	cfg.Server.Host = getEnv("PAYSENTRY_HOST", cfg.Server.Host)

	// Logging
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	if os.Getenv("PAYSENTRY_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	// Repository
	cfg.Repository.SQLitePath = getEnv("PAYSENTRY_DB_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = getEnv("POSTGRES_HOST", cfg.Repository.PostgresHost)
	if cfg.Repository.PostgresPort, err = getEnvInt("POSTGRES_PORT", cfg.Repository.PostgresPort); err != nil {
		return nil, err
	}
	cfg.Repository.PostgresUser = getEnv("POSTGRES_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = getEnv("POSTGRES_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = getEnv("POSTGRES_DB", cfg.Repository.PostgresDB)
	cfg.Repository.PostgresSSLMode = getEnv("POSTGRES_SSLMODE", cfg.Repository.PostgresSSLMode)

	// Cache and bus
	cfg.Cache.RedisAddr = getEnv("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.EventBus.NATSUrl = getEnv("NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = getEnv("NATS_TOKEN", cfg.EventBus.NATSToken)

	// Tracing
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Endpoint = endpoint
	}

	// Risk core
	if v := getEnvList("PAYSENTRY_TRUSTED_HANDLES"); v != nil {
		cfg.Risk.TrustedHandles = v
	}
	if v := getEnvList("PAYSENTRY_SUSPICIOUS_KEYWORDS"); v != nil {
		cfg.Risk.SuspiciousKeywords = v
	}
	if cfg.Suggestions.FavoriteTriggerCount, err = getEnvInt("PAYSENTRY_FAVORITE_TRIGGER", cfg.Suggestions.FavoriteTriggerCount); err != nil {
		return nil, err
	}
	if cfg.Geo.TravelThresholdKm, err = getEnvFloat("PAYSENTRY_TRAVEL_THRESHOLD_KM", cfg.Geo.TravelThresholdKm); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values an operator can get wrong.
func Validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("PAYSENTRY_PORT must be between 1 and 65535")
	}
	if cfg.Suggestions.FavoriteTriggerCount < 1 {
		return fmt.Errorf("PAYSENTRY_FAVORITE_TRIGGER must be at least 1")
	}
	if cfg.Geo.TravelThresholdKm <= 0 {
		return fmt.Errorf("PAYSENTRY_TRAVEL_THRESHOLD_KM must be positive")
	}
	if cfg.Risk.ModerateThreshold >= cfg.Risk.RiskyThreshold {
		return fmt.Errorf("moderate threshold must be below risky threshold")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return i, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

// getEnvList splits a comma-separated variable; nil when unset or empty.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
