package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"cymbytes.com/cymlure/internal/api"
	"cymbytes.com/cymlure/internal/generator/llm"
	"cymbytes.com/cymlure/internal/inbox"
	"cymbytes.com/cymlure/internal/webhooks"
	"cymbytes.com/cymlure/internal/worker"
)

// Config holds the complete server configuration.
type Config struct {
	Server   api.Config          `yaml:"server"`
	Database DatabaseConfig      `yaml:"database"`
	LLM      llm.ProvidersConfig `yaml:"llm"`
	Worker   worker.Config       `yaml:"worker"`
	Webhooks webhooks.Config     `yaml:"webhooks"`
	Inbox    inbox.Config        `yaml:"inbox"`
	Logging  LoggingConfig       `yaml:"logging"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	EnableWAL       bool          `yaml:"enable_wal"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: api.DefaultConfig(),
		Database: DatabaseConfig{
			Path:            "/data/cymlure.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			EnableWAL:       true,
		},
		LLM:      llm.DefaultProvidersConfig(),
		Worker:   worker.DefaultConfig(),
		Webhooks: webhooks.DefaultConfig(),
		Inbox:    inbox.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func loadConfig(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) {
	// Database path
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Server port
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Log level
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// LLM providers
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Default = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.OpenAI.BaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.LLM.Gemini.APIKey = v
	}

	// Webhooks
	if v := os.Getenv("WEBHOOKS_ENABLED"); v == "true" || v == "1" {
		cfg.Webhooks.Enabled = true
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Webhooks.URL = v
	}

	// IMAP delivery
	if v := os.Getenv("IMAP_SERVER"); v != "" {
		cfg.Inbox.Server = v
	}
	if v := os.Getenv("IMAP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Inbox.Port = port
		}
	}
	if v := os.Getenv("IMAP_USERNAME"); v != "" {
		cfg.Inbox.Username = v
	}
	if v := os.Getenv("IMAP_PASSWORD"); v != "" {
		cfg.Inbox.Password = v
	}
}
