// Package config provides configuration loading and validation for the
// authoring agent.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config is the agent configuration. All fields are optional; missing
// values use defaults or come from the environment.
type Config struct {
	Port        int    `json:"port,omitempty"`         // HTTP listen port
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL; empty runs in-memory
	APIKey      string `json:"api_key,omitempty"`      // Gemini API key; empty disables the model

	UseBrowser bool `json:"use_browser,omitempty"` // Headless browser fallback for SPA postings
	Verbose    bool `json:"verbose,omitempty"`     // Print event details to the log

	ReadinessThreshold    float64 `json:"readiness_threshold,omitempty"`     // Research coverage required to advance (0.0-1.0)
	ReviewStrategy        string  `json:"review_strategy,omitempty"`         // "guided" or "bundled"
	AutoApproveSupporting bool    `json:"auto_approve_supporting,omitempty"` // Skip review for the supporting bundle
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:               8080,
		ReadinessThreshold: 0.6,
		ReviewStrategy:     "guided",
	}
}

// LoadConfig loads configuration from a JSON file.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return &cfg, nil
}

// FromEnv overlays environment variables onto the config. Environment wins
// over file values.
func (c *Config) FromEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("USE_BROWSER"); v != "" {
		c.UseBrowser = v == "1" || v == "true"
	}
	if v := os.Getenv("READINESS_THRESHOLD"); v != "" {
		if threshold, err := strconv.ParseFloat(v, 64); err == nil {
			c.ReadinessThreshold = threshold
		}
	}
	if v := os.Getenv("REVIEW_STRATEGY"); v != "" {
		c.ReviewStrategy = v
	}
	if v := os.Getenv("AUTO_APPROVE_SUPPORTING"); v != "" {
		c.AutoApproveSupporting = v == "1" || v == "true"
	}
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be a valid port number, got %d", c.Port)
	}
	if c.ReadinessThreshold < 0 || c.ReadinessThreshold > 1 {
		return fmt.Errorf("config error: 'readiness_threshold' must be between 0 and 1, got %g", c.ReadinessThreshold)
	}
	if c.ReviewStrategy != "" && c.ReviewStrategy != "guided" && c.ReviewStrategy != "bundled" {
		return fmt.Errorf("config error: 'review_strategy' must be \"guided\" or \"bundled\", got %q", c.ReviewStrategy)
	}
	return nil
}

// MergeWithDefaults fills empty fields from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.ReadinessThreshold == 0 {
		result.ReadinessThreshold = defaults.ReadinessThreshold
	}
	if result.ReviewStrategy == "" {
		result.ReviewStrategy = defaults.ReviewStrategy
	}
	return result
}
