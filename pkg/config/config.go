package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// SQLite metadata store
	SQLitePath         string
	StoreMaxOpenConns  int
	StoreMaxIdleConns  int
	StoreBusyTimeoutMS int

	// LLM extraction
	LiteLLMURL              string
	ModelID                 string
	OpenRouterAPIKey        string
	ExtractionConfidenceMin float64

	// Distributed transactions
	TxnTimeoutMS     int
	TxnMaxConcurrent int

	// Analytics
	AnalyticsMaxIterations int
	AnalyticsDamping       float64

	// Schema registry
	SchemaDir string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		Neo4jURI:                getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:               getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:           getEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:           getEnv("NEO4J_DATABASE", "neo4j"),
		SQLitePath:              getEnv("SQLITE_PATH", "kgas.db"),
		StoreMaxOpenConns:       getEnvInt("STORE_MAX_OPEN_CONNS", 10),
		StoreMaxIdleConns:       getEnvInt("STORE_MAX_IDLE_CONNS", 5),
		StoreBusyTimeoutMS:      getEnvInt("STORE_BUSY_TIMEOUT_MS", 5000),
		LiteLLMURL:              getEnv("LITELLM_URL", "http://localhost:4000"),
		ModelID:                 getEnv("MODEL_ID", "openrouter/anthropic/claude-3.5-sonnet"),
		OpenRouterAPIKey:        getEnv("OPENROUTER_API_KEY", ""),
		ExtractionConfidenceMin: getEnvFloat("EXTRACTION_CONFIDENCE_MIN", 0.5),
		TxnTimeoutMS:            getEnvInt("TXN_TIMEOUT_MS", 30000),
		TxnMaxConcurrent:        getEnvInt("TXN_MAX_CONCURRENT", 8),
		AnalyticsMaxIterations:  getEnvInt("ANALYTICS_MAX_ITERATIONS", 100),
		AnalyticsDamping:        getEnvFloat("ANALYTICS_DAMPING", 0.85),
		SchemaDir:               getEnv("SCHEMA_DIR", "schemas"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return fmt.Errorf("NEO4J_URI is required")
	}
	if c.Neo4jUser == "" {
		return fmt.Errorf("NEO4J_USER is required")
	}
	if c.Neo4jPassword == "" {
		return fmt.Errorf("NEO4J_PASSWORD is required")
	}
	if c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required")
	}
	if c.LiteLLMURL == "" {
		return fmt.Errorf("LITELLM_URL is required")
	}
	if c.ModelID == "" {
		return fmt.Errorf("MODEL_ID is required")
	}
	if c.TxnMaxConcurrent < 1 {
		return fmt.Errorf("TXN_MAX_CONCURRENT must be at least 1")
	}
	if c.ExtractionConfidenceMin < 0 || c.ExtractionConfidenceMin > 1 {
		return fmt.Errorf("EXTRACTION_CONFIDENCE_MIN must be between 0 and 1")
	}
	if c.AnalyticsDamping <= 0 || c.AnalyticsDamping >= 1 {
		return fmt.Errorf("ANALYTICS_DAMPING must be between 0 and 1 exclusive")
	}
	// OpenRouter API key is optional for development (LiteLLM accepts a dummy key)
	return nil
}

// TxnTimeout returns the per-transaction deadline as a duration
func (c *Config) TxnTimeout() time.Duration {
	return time.Duration(c.TxnTimeoutMS) * time.Millisecond
}

// StoreBusyTimeout returns the SQLite busy timeout as a duration
func (c *Config) StoreBusyTimeout() time.Duration {
	return time.Duration(c.StoreBusyTimeoutMS) * time.Millisecond
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
