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

	// Policy gate
	MaxBatchSize     int
	MaxPIIFields     int
	PIIPolicyEnabled bool
	InjectionEnabled bool

	// Classifier
	ModelPath    string // path to the ONNX model artifact
	ModelVersion string

	// Narrative LLM
	GeminiAPIKey string // optional, narratives disabled if not set

	// Observability
	OTLPEndpoint string // optional, tracing disabled if not set

	// Security
	RateLimitRPM int
}

// Defaults
const (
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
	DefaultMaxBatchSize = 100
	DefaultMaxPIIFields = 2
	DefaultModelPath    = "models/fraud_classifier.onnx"
	DefaultModelVersion = "fraud-xgb-1"
	DefaultRateLimit    = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:      os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		MaxBatchSize:     int(getEnvInt64("MAX_BATCH_SIZE", DefaultMaxBatchSize)),
		MaxPIIFields:     int(getEnvInt64("MAX_PII_FIELDS", DefaultMaxPIIFields)),
		PIIPolicyEnabled: getEnvBool("PII_POLICY_ENABLED", true),
		InjectionEnabled: getEnvBool("INJECTION_DETECTION_ENABLED", true),
		ModelPath:        getEnv("MODEL_PATH", DefaultModelPath),
		ModelVersion:     getEnv("MODEL_VERSION", DefaultModelVersion),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:     int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH is required")
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("MAX_BATCH_SIZE must be positive")
	}
	if c.MaxPIIFields < 0 {
		return fmt.Errorf("MAX_PII_FIELDS must not be negative")
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive")
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
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
