package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Host           string
	Port           int
	DBPath         string
	FixtureDir     string
	LLM            LLMConfig
	ScoringWorkers int
	ToolTimeout    time.Duration
	CORSOrigins    []string
}

// LLMConfig selects and parameterizes the interpreter/planner backend.
type LLMConfig struct {
	Mode    string // "mock" or "http"
	BaseURL string
	APIKey  string
	Model   string
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Try the executable's directory first (deployed binaries carry their .env)
	exePath, err := os.Executable()
	if err == nil {
		envPath := filepath.Join(filepath.Dir(exePath), ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to the working directory (development / go run)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	dbPath := getEnv("MOBIUS_DB_PATH", filepath.Join("data", "mobius.db"))
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Warn().Err(err).Str("path", dir).Msg("Failed to create data directory")
		}
	}

	cfg := &AppConfig{
		Host:       getEnv("MOBIUS_HOST", "127.0.0.1"),
		Port:       getEnvInt("MOBIUS_PORT", 8080),
		DBPath:     dbPath,
		FixtureDir: getEnv("MOBIUS_FIXTURE_DIR", ""),
		LLM: LLMConfig{
			Mode:    getEnv("MOBIUS_LLM_MODE", "mock"),
			BaseURL: getEnv("MOBIUS_LLM_BASE_URL", ""),
			APIKey:  getEnv("MOBIUS_LLM_API_KEY", ""),
			Model:   getEnv("MOBIUS_LLM_MODEL", ""),
		},
		ScoringWorkers: getEnvInt("MOBIUS_SCORING_WORKERS", 4),
		ToolTimeout:    time.Duration(getEnvInt("MOBIUS_TOOL_TIMEOUT_SECONDS", 10)) * time.Second,
		CORSOrigins:    splitCSV(getEnv("MOBIUS_CORS_ORIGINS", "*")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *AppConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ScoringWorkers < 1 {
		return fmt.Errorf("scoring workers must be >= 1, got %d", c.ScoringWorkers)
	}
	switch c.LLM.Mode {
	case "mock":
	case "http":
		if c.LLM.BaseURL == "" {
			return fmt.Errorf("MOBIUS_LLM_BASE_URL required when MOBIUS_LLM_MODE=http")
		}
	default:
		return fmt.Errorf("unknown LLM mode %q", c.LLM.Mode)
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
