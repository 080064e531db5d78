package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	LogLevel         string // DEBUG, INFO, WARN, ERROR
	OpenRouterAPIKey string // Required for LLM operations
	DefaultModel     string // Default LLM model to use
	EndCheckModel    string // Model for early-end checks; empty means DefaultModel
	DataDir          string // Root of the file-backed repository
	DBPath           string // SQLite database used by the HTTP server
	Addr             string // HTTP listen address
	BaseURL          string // Public origin used in share links
}

// LoadConfig loads configuration from environment variables. A .env file in
// the working directory is read first when present; real environment
// variables win over its entries.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(".env")
}

// LoadConfigFrom is LoadConfig with explicit dotenv files. Missing files are
// ignored.
func LoadConfigFrom(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	logLevel := getEnvOrDefault("LOG_LEVEL", "info")

	// DEBUG flag overrides log level
	if os.Getenv("DEBUG") == "1" {
		logLevel = "debug"
	}

	dataDir := getEnvOrDefault("FORMATE_DATA_DIR", ".formate")

	cfg := &Config{
		LogLevel:         logLevel,
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		DefaultModel:     getEnvOrDefault("DEFAULT_MODEL", "anthropic/claude-3.5-sonnet"),
		EndCheckModel:    os.Getenv("END_CHECK_MODEL"),
		DataDir:          dataDir,
		DBPath:           getEnvOrDefault("FORMATE_DB_PATH", dataDir+"/formate.db"),
		Addr:             getEnvOrDefault("FORMATE_ADDR", ":8080"),
		BaseURL:          getEnvOrDefault("FORMATE_BASE_URL", "http://localhost:8080"),
	}

	// API key is validated when LLM operations are attempted

	return cfg, nil
}

// getEnvOrDefault returns the value of an environment variable or a default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
