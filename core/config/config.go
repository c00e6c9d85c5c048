package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"forgeflow.app/engine/core/db"
)

type Config struct {
	Env     string
	OTel    OTelConfig
	GitLab  GitLabConfig
	Engine  EngineConfig
	Status  StatusConfig
	Workers WorkersConfig
	DB      db.Config
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type GitLabConfig struct {
	Token        string
	BaseURL      string
	ProjectID    int64
	TargetBranch string
}

// EngineConfig holds the scheduling knobs. Defaults match the cadence the
// engine was tuned for: five-minute cycles, ten-minute check timeouts.
type EngineConfig struct {
	IterationInterval time.Duration
	CheckTimeout      time.Duration
	CheckInterval     time.Duration
	CycleQuota        int
	ItemPacing        time.Duration
	DefaultRoute      string
}

type StatusConfig struct {
	RedisURL string
	Stream   string
}

// WorkersConfig maps each route to an external worker command line. Routes
// without a command run the built-in no-op processor.
type WorkersConfig struct {
	Backend      string
	Frontend     string
	Architecture string
	Dir          string
}

type ServiceType string

const (
	ServiceTypeEngine ServiceType = "engine"
	ServiceTypeOnce   ServiceType = "once"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.engine for the continuous loop
//   - .env.once for the single-cycle runner
//
// Falls back to .env if the service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("ENGINE_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env: getEnv("ENGINE_ENV", "development"),
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 5),
			MinConns: getEnvInt32("DB_MIN_CONNS", 1),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "forgeflow-engine"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		GitLab: GitLabConfig{
			Token:        getEnv("GITLAB_TOKEN", ""),
			BaseURL:      getEnv("GITLAB_BASE_URL", ""),
			ProjectID:    getEnvInt64("GITLAB_PROJECT_ID", 0),
			TargetBranch: getEnv("GITLAB_TARGET_BRANCH", "main"),
		},
		Engine: EngineConfig{
			IterationInterval: getEnvSeconds("ITERATION_INTERVAL_SECONDS", 300),
			CheckTimeout:      getEnvSeconds("CHECK_TIMEOUT_SECONDS", 600),
			CheckInterval:     getEnvSeconds("CHECK_POLL_INTERVAL_SECONDS", 30),
			CycleQuota:        getEnvInt("WORKER_CYCLE_QUOTA", 2),
			ItemPacing:        getEnvSeconds("ITEM_PACING_SECONDS", 30),
			DefaultRoute:      getEnv("DEFAULT_ROUTE", "architecture"),
		},
		Status: StatusConfig{
			RedisURL: getEnv("REDIS_URL", ""),
			Stream:   getEnv("STATUS_STREAM", "engine-status"),
		},
		Workers: WorkersConfig{
			Backend:      getEnv("WORKER_COMMAND_BACKEND", ""),
			Frontend:     getEnv("WORKER_COMMAND_FRONTEND", ""),
			Architecture: getEnv("WORKER_COMMAND_ARCHITECTURE", ""),
			Dir:          getEnv("WORKER_DIR", ""),
		},
	}

	if cfg.GitLab.Token == "" {
		return Config{}, fmt.Errorf("GITLAB_TOKEN is required")
	}
	if cfg.GitLab.ProjectID == 0 {
		return Config{}, fmt.Errorf("GITLAB_PROJECT_ID is required")
	}
	if cfg.Engine.CycleQuota <= 0 {
		return Config{}, fmt.Errorf("WORKER_CYCLE_QUOTA must be positive")
	}
	if cfg.Engine.CheckInterval <= 0 || cfg.Engine.CheckTimeout <= 0 {
		return Config{}, fmt.Errorf("check poll interval and timeout must be positive")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c StatusConfig) Enabled() bool {
	return c.RedisURL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}
