// Package config loads and validates the SDK configuration. Settings come
// from a YAML file, with environment variables as fallback for the common
// deployment knobs.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds validated engine configuration.
type Config struct {
	TenantID  string `yaml:"tenant_id" json:"tenant_id"`
	SessionID string `yaml:"session_id" json:"session_id"`

	// Mode is the enforcement posture: ADVISORY, GUARDED or STRICT.
	Mode string `yaml:"mode" json:"mode"`

	// Packs lists the default policy pack ids applied when a request does
	// not name any.
	Packs []string `yaml:"packs,omitempty" json:"packs,omitempty"`

	// PackDir, when set, is a directory of extra pack bundles loaded on
	// top of the bundled packs.
	PackDir string `yaml:"pack_dir,omitempty" json:"pack_dir,omitempty"`

	// DatabasePath is the SQLite file the audit chain is mirrored to.
	// Empty keeps the chain in memory only.
	DatabasePath string `yaml:"database_path,omitempty" json:"database_path,omitempty"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{
		TenantID:  "default",
		SessionID: "default",
		Mode:      "ADVISORY",
		LogLevel:  "INFO",
	}
	if v := os.Getenv("LUMEN_TENANT_ID"); v != "" {
		cfg.TenantID = v
	}
	if v := os.Getenv("LUMEN_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("LUMEN_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("LUMEN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg
}

// Load reads a YAML configuration file over the defaults and validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.TenantID == "" {
		return fmt.Errorf("config: tenant_id is required")
	}
	if c.SessionID == "" {
		return fmt.Errorf("config: session_id is required")
	}
	switch c.Mode {
	case "ADVISORY", "GUARDED", "STRICT":
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	switch c.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
