package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port     string
	MongoURI string
	RedisURL string

	// Analysis engine
	EngineURL     string
	EngineTimeout time.Duration

	// Submission retry policy
	SubmitMaxAttempts int
	SubmitBackoffBase time.Duration

	// Polling policy
	PollInterval          time.Duration
	PollMaxPolls          int
	PollMaxConsecutiveErr int

	// Corpus export
	ExportBatchSize int

	// Auth
	JWTSecret string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3001"),
		MongoURI: getEnv("MONGODB_URI", ""),
		RedisURL: getEnv("REDIS_URL", ""),

		EngineURL:     getEnv("ANALYSIS_ENGINE_URL", "http://localhost:8000"),
		EngineTimeout: getDurationEnv("ANALYSIS_ENGINE_TIMEOUT", 60*time.Second),

		SubmitMaxAttempts: getIntEnv("SUBMIT_MAX_ATTEMPTS", 5),
		SubmitBackoffBase: getDurationEnv("SUBMIT_BACKOFF_BASE", 1*time.Second),

		PollInterval:          getDurationEnv("POLL_INTERVAL", 30*time.Second),
		PollMaxPolls:          getIntEnv("POLL_MAX_POLLS", 120),
		PollMaxConsecutiveErr: getIntEnv("POLL_MAX_CONSECUTIVE_ERRORS", 5),

		ExportBatchSize: getIntEnv("EXPORT_BATCH_SIZE", 50),

		JWTSecret: getEnv("JWT_SECRET", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
