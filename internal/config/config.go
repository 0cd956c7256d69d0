package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents configuration data for the dashboard service.
type Config struct {
	BackendURL        string  `yaml:"backend_url"`
	DataDirectory     string  `yaml:"data_directory"`
	RequestTimeoutSec int     `yaml:"request_timeout_seconds"`
	HistoryLimit      int     `yaml:"history_limit"`
	LogFormat         string  `yaml:"log_format"`
	LogLevel          string  `yaml:"log_level"`
	Monitor           Monitor `yaml:"monitor"`
}

// Monitor holds the connectivity monitor's timing knobs.
type Monitor struct {
	PollIntervalMs   int `yaml:"poll_interval_ms"`
	MaxRetries       int `yaml:"max_retries"`
	BaseRetryDelayMs int `yaml:"base_retry_delay_ms"`
}

// DefaultConfig returns sensible defaults in case no configuration file is
// provided.
func DefaultConfig() Config {
	return Config{
		BackendURL:        "http://localhost:8000",
		DataDirectory:     filepath.Join(".dist", "data"),
		RequestTimeoutSec: 10,
		HistoryLimit:      200,
		LogFormat:         "text",
		LogLevel:          "info",
		Monitor: Monitor{
			PollIntervalMs:   5000,
			MaxRetries:       3,
			BaseRetryDelayMs: 2000,
		},
	}
}

// Load reads configuration from yaml file. Missing files fall back to
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.BackendURL == "" {
		return Config{}, errors.New("backend_url is required")
	}
	parsed, err := url.Parse(cfg.BackendURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Config{}, fmt.Errorf("backend_url %q is not a valid URL", cfg.BackendURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Config{}, fmt.Errorf("backend_url scheme %q is not supported", parsed.Scheme)
	}
	if cfg.DataDirectory == "" {
		cfg.DataDirectory = DefaultConfig().DataDirectory
	}
	if cfg.RequestTimeoutSec <= 0 {
		cfg.RequestTimeoutSec = DefaultConfig().RequestTimeoutSec
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Monitor.PollIntervalMs <= 0 {
		cfg.Monitor.PollIntervalMs = DefaultConfig().Monitor.PollIntervalMs
	}
	if cfg.Monitor.MaxRetries < 0 {
		cfg.Monitor.MaxRetries = DefaultConfig().Monitor.MaxRetries
	}
	if cfg.Monitor.BaseRetryDelayMs <= 0 {
		cfg.Monitor.BaseRetryDelayMs = DefaultConfig().Monitor.BaseRetryDelayMs
	}
	return cfg, nil
}
