// Package config loads application settings from environment variables using
// viper. Values are read once at startup and passed down as an explicit
// dependency; nothing in the application reads the environment directly.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime settings.
type Config struct {
	// API keys for the external model capabilities.
	GeminiAPIKey  string `mapstructure:"gemini_api_key"`
	MistralAPIKey string `mapstructure:"mistral_api_key"`

	// Optional tracing.
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	TracingAPIKey  string `mapstructure:"tracing_api_key"`

	// GitHub access token for cloning private repositories.
	GitHubToken string `mapstructure:"github_token"`

	// Storage paths.
	DBPath    string `mapstructure:"db_path"`
	ReposPath string `mapstructure:"repos_path"`

	// HTTP server.
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// Pipeline limits.
	MaxConcurrentIngests int           `mapstructure:"max_concurrent_ingests"`
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout"`
	GenerateTimeout      time.Duration `mapstructure:"generate_timeout"`

	// Retrieval defaults.
	TopK             int `mapstructure:"top_k"`
	MaxChunkBytes    int `mapstructure:"max_chunk_bytes"`
	ContextBudget    int `mapstructure:"context_budget"`
	ResponseCacheTTL time.Duration `mapstructure:"response_cache_ttl"`

	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	setDefaults(v)
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Debug && cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "./data/repochat.db")
	v.SetDefault("repos_path", "./repos")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("max_concurrent_ingests", 2)
	v.SetDefault("fetch_timeout", 2*time.Minute)
	v.SetDefault("generate_timeout", 2*time.Minute)
	v.SetDefault("top_k", 5)
	v.SetDefault("max_chunk_bytes", 4096)
	v.SetDefault("context_budget", 24*1024)
	v.SetDefault("response_cache_ttl", time.Hour)
	v.SetDefault("log_level", "info")
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("gemini_api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("mistral_api_key", "MISTRAL_API_KEY")
	_ = v.BindEnv("tracing_enabled", "TRACING_ENABLED")
	_ = v.BindEnv("tracing_api_key", "TRACING_API_KEY")
	_ = v.BindEnv("github_token", "GITHUB_TOKEN")
	_ = v.BindEnv("db_path", "REPOCHAT_DB_PATH")
	_ = v.BindEnv("repos_path", "REPOCHAT_REPOS_PATH")
	_ = v.BindEnv("host", "HOST")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("max_concurrent_ingests", "REPOCHAT_MAX_CONCURRENT_INGESTS")
	_ = v.BindEnv("fetch_timeout", "REPOCHAT_FETCH_TIMEOUT")
	_ = v.BindEnv("generate_timeout", "REPOCHAT_GENERATE_TIMEOUT")
	_ = v.BindEnv("top_k", "REPOCHAT_TOP_K")
	_ = v.BindEnv("max_chunk_bytes", "REPOCHAT_MAX_CHUNK_BYTES")
	_ = v.BindEnv("context_budget", "REPOCHAT_CONTEXT_BUDGET")
	_ = v.BindEnv("response_cache_ttl", "REPOCHAT_RESPONSE_CACHE_TTL")
	_ = v.BindEnv("debug", "DEBUG")
	_ = v.BindEnv("log_level", "REPOCHAT_LOG_LEVEL")
}
