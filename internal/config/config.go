// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	OpenAI     OpenAIConfig
	Session    SessionConfig
	Quota      QuotaConfig
	RateLimit  RateLimitConfig
	Transcript TranscriptConfig
}

// OpenAIConfig controls the completion provider client.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// SessionConfig holds orchestration constants.
type SessionConfig struct {
	HistoryLimit   int
	MinCueInterval time.Duration
	MaxCueInterval time.Duration
	CuesPerSet     int
	TapInterval    time.Duration
}

// QuotaConfig controls the monthly usage allowance for rate-limited tiers.
type QuotaConfig struct {
	MonthlyLimit int
}

// RateLimitConfig controls the per-user HTTP request throttle.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// TranscriptConfig controls NDJSON transcript logging.
type TranscriptConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/seren.db"),
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout: getEnvDuration("OPENAI_TIMEOUT", 30*time.Second),
		},
		Session: SessionConfig{
			HistoryLimit:   getEnvInt("SESSION_HISTORY_LIMIT", 30),
			MinCueInterval: getEnvDuration("CUE_MIN_INTERVAL", 500*time.Millisecond),
			MaxCueInterval: getEnvDuration("CUE_MAX_INTERVAL", 1500*time.Millisecond),
			CuesPerSet:     getEnvInt("CUES_PER_SET", 5),
			TapInterval:    getEnvDuration("TAP_INTERVAL", 800*time.Millisecond),
		},
		Quota: QuotaConfig{
			MonthlyLimit: getEnvInt("MONTHLY_QUOTA", 100),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Transcript: TranscriptConfig{
			Enabled:       getEnvBool("TRANSCRIPT_ENABLED", true),
			Dir:           getEnv("TRANSCRIPT_DIR", "./data/transcripts"),
			GlobalEnabled: getEnvBool("TRANSCRIPT_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("TRANSCRIPT_GLOBAL_PATH", "./data/transcripts/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY cannot be empty")
	}
	if c.Session.HistoryLimit <= 0 {
		return fmt.Errorf("SESSION_HISTORY_LIMIT must be > 0")
	}
	if c.Quota.MonthlyLimit <= 0 {
		return fmt.Errorf("MONTHLY_QUOTA must be > 0")
	}
	if c.Session.MinCueInterval > c.Session.MaxCueInterval {
		return fmt.Errorf("CUE_MIN_INTERVAL cannot exceed CUE_MAX_INTERVAL")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_DIR cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
