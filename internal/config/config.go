// Package config loads the posprint YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	VendorName string     `yaml:"vendor_name"`
	Currency   string     `yaml:"currency"`
	DBPath     string     `yaml:"db_path"`
	LogLevel   string     `yaml:"log_level"`
	Scan       ScanConfig `yaml:"scan"`
	BLE        BLEConfig  `yaml:"ble"`
}

// ScanConfig holds discovery settings.
type ScanConfig struct {
	DurationSeconds int `yaml:"duration_seconds"`
}

// BLEConfig holds transport tuning. These used to be literals buried
// in the protocol code; keeping them here lets deployments tune per
// printer model without touching protocol logic.
type BLEConfig struct {
	ChunkSize             int `yaml:"chunk_size"`
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`
	WriteTimeoutSeconds   int `yaml:"write_timeout_seconds"`
	InterChunkDelayMillis int `yaml:"inter_chunk_delay_ms"`
}

// Duration returns the scan window.
func (s ScanConfig) Duration() time.Duration {
	return time.Duration(s.DurationSeconds) * time.Second
}

// ConnectTimeout returns the connect-phase bound.
func (b BLEConfig) ConnectTimeout() time.Duration {
	return time.Duration(b.ConnectTimeoutSeconds) * time.Second
}

// WriteTimeout returns the per-write bound.
func (b BLEConfig) WriteTimeout() time.Duration {
	return time.Duration(b.WriteTimeoutSeconds) * time.Second
}

// InterChunkDelay returns the pause between chunk writes.
func (b BLEConfig) InterChunkDelay() time.Duration {
	return time.Duration(b.InterChunkDelayMillis) * time.Millisecond
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "posprint")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dbPath := filepath.Join(home, ".local", "share", "posprint", "posprint.db")

	return &Config{
		VendorName: "TOZZO BURGER",
		Currency:   "R$",
		DBPath:     dbPath,
		LogLevel:   "info",
		Scan: ScanConfig{
			DurationSeconds: 10,
		},
		BLE: BLEConfig{
			ChunkSize:             20,
			ConnectTimeoutSeconds: 10,
			WriteTimeoutSeconds:   5,
			InterChunkDelayMillis: 20,
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in db_path is expanded to the user's home
// directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.DBPath = expandTilde(cfg.DBPath)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.VendorName == "" {
		return fmt.Errorf("vendor_name must not be empty")
	}

	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}

	if c.Scan.DurationSeconds <= 0 {
		return fmt.Errorf("scan.duration_seconds must be > 0")
	}

	if c.BLE.ChunkSize <= 0 {
		return fmt.Errorf("ble.chunk_size must be > 0")
	}

	if c.BLE.ConnectTimeoutSeconds <= 0 {
		return fmt.Errorf("ble.connect_timeout_seconds must be > 0")
	}

	if c.BLE.WriteTimeoutSeconds <= 0 {
		return fmt.Errorf("ble.write_timeout_seconds must be > 0")
	}

	if c.BLE.InterChunkDelayMillis < 0 {
		return fmt.Errorf("ble.inter_chunk_delay_ms must be >= 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
