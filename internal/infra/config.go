package infra

import (
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	StoragePath string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	PollInterval  time.Duration

	MaxConcurrentJobs int
	MaxJobsPerWindow  int
	RateWindow        time.Duration
	TickInterval      time.Duration
	JobRetention      time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. DATABASE_URL is optional: without it the service
// runs with env-provided credentials only and nothing is persisted.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StoragePath: getEnv("STORAGE_PATH", "./storage"),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "veo-3.0-generate-001"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		PollInterval:  time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 5000)),

		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 4),
		MaxJobsPerWindow:  getEnvInt("MAX_JOBS_PER_WINDOW", 4),
		RateWindow:        time.Second * time.Duration(getEnvInt("RATE_WINDOW_SECONDS", 60)),
		TickInterval:      time.Millisecond * time.Duration(getEnvInt("TICK_INTERVAL_MS", 1000)),
		JobRetention:      time.Hour * time.Duration(getEnvInt("JOB_RETENTION_HOURS", 24)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		AllowedOrigins:   []string{getEnv("ALLOWED_ORIGIN", "http://localhost:5173")},
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
