package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration, loaded from environment
// variables with sensible defaults.
//
// Environment Variables:
//
// Server:
// - LISTEN_ADDR: HTTP listen address (default: :7000)
// - BASE_URL: externally visible base URL (default: http://localhost:7000)
//
// Provider:
// - PROVIDER_API_URL: subtitle search API endpoint (default: OpenSubtitles v1)
// - PROVIDER_API_KEY: subtitle search API key
// - PROVIDER_LANGUAGES: source subtitle languages to search (default: en)
//
// Cache:
// - CACHE_DIR: directory for cached subtitle records (default: ./subtitles)
// - CACHE_TTL_HOURS: record time-to-live in hours (default: 168)
//
// Rate limiting:
// - RATE_CAPACITY: translation calls admitted per window (default: 15)
// - RATE_WINDOW_SECONDS: window size in seconds (default: 60)
//
// Background translation:
// - JOBS_DB_PATH: SQLite path for continuation jobs (default: ./data/sublate.db)
// - JOBS_WORKERS: continuation worker count (default: 2)
//
// Logging:
// - LOG_LEVEL: debug, info, warn or error (default: info)
// - LOG_FILE: optional log file path; stdout when empty

type Config struct {
	Server    ServerConfig    `json:"server"`
	Provider  ProviderConfig  `json:"provider"`
	Cache     CacheConfig     `json:"cache"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Jobs      JobsConfig      `json:"jobs"`
	Log       LogConfig       `json:"log"`
}

type ServerConfig struct {
	ListenAddr string `json:"listen_addr"`
	BaseURL    string `json:"base_url"`
}

type ProviderConfig struct {
	APIURL    string `json:"api_url"`
	APIKey    string `json:"api_key"`
	Languages string `json:"languages"`
}

type CacheConfig struct {
	Dir      string `json:"dir"`
	TTLHours int    `json:"ttl_hours"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

type RateLimitConfig struct {
	Capacity      int `json:"capacity"`
	WindowSeconds int `json:"window_seconds"`
}

func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

type JobsConfig struct {
	DBPath  string `json:"db_path"`
	Workers int    `json:"workers"`
}

type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment
// variables and options. A .env file next to the binary is honored when
// present.
func NewFromEnv(opts ...Option) (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			ListenAddr: getEnvString("LISTEN_ADDR", ":7000"),
			BaseURL:    getEnvString("BASE_URL", "http://localhost:7000"),
		},
		Provider: ProviderConfig{
			APIURL:    getEnvString("PROVIDER_API_URL", "https://api.opensubtitles.com/api/v1"),
			APIKey:    getEnvString("PROVIDER_API_KEY", ""),
			Languages: getEnvString("PROVIDER_LANGUAGES", "en"),
		},
		Cache: CacheConfig{
			Dir:      getEnvString("CACHE_DIR", "./subtitles"),
			TTLHours: getEnvInt("CACHE_TTL_HOURS", 168),
		},
		RateLimit: RateLimitConfig{
			Capacity:      getEnvInt("RATE_CAPACITY", 15),
			WindowSeconds: getEnvInt("RATE_WINDOW_SECONDS", 60),
		},
		Jobs: JobsConfig{
			DBPath:  getEnvString("JOBS_DB_PATH", "./data/sublate.db"),
			Workers: getEnvInt("JOBS_WORKERS", 2),
		},
		Log: LogConfig{
			Level: getEnvString("LOG_LEVEL", "info"),
			File:  getEnvString("LOG_FILE", ""),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Cache.TTLHours <= 0 {
		return fmt.Errorf("CACHE_TTL_HOURS must be positive")
	}
	if c.RateLimit.Capacity <= 0 {
		return fmt.Errorf("RATE_CAPACITY must be positive")
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("JOBS_WORKERS must be positive")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
