// Package config loads pdftask settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all pdftask configuration.
type Config struct {
	Temp      TempConfig      `yaml:"temp"`
	Logging   LoggingConfig   `yaml:"logging"`
	Watermark WatermarkConfig `yaml:"watermark"`
	Passwords PasswordConfig  `yaml:"passwords"`
	Writer    WriterConfig    `yaml:"writer"`
	Limits    LimitsConfig    `yaml:"limits"`
}

// TempConfig places intermediate artifacts. An empty Dir uses the system
// temporary directory.
type TempConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// WatermarkConfig sets the watermark used when a task does not name one.
type WatermarkConfig struct {
	Text string `yaml:"text"`
	// Always watermarks every organize result, even without explicit text.
	Always bool `yaml:"always"`
}

// PasswordConfig controls password map parsing and output passwords.
type PasswordConfig struct {
	// Strict rejects malformed password map entries instead of skipping them.
	Strict bool `yaml:"strict"`
	// EnforcePolicy requires output passwords to pass task.ValidatePassword.
	EnforcePolicy bool `yaml:"enforce_policy"`
}

// WriterConfig configures output serialization.
type WriterConfig struct {
	Compress         bool `yaml:"compress"`
	CompressionLevel int  `yaml:"compression_level"`
	Deterministic    bool `yaml:"deterministic"`
}

// LimitsConfig bounds inputs. Zero disables a limit.
type LimitsConfig struct {
	MaxSourceBytes      int64 `yaml:"max_source_bytes"`
	MaxDecompressedSize int64 `yaml:"max_decompressed_size"`
	MaxPages            int   `yaml:"max_pages"`
	MaxSources          int   `yaml:"max_sources"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Watermark: WatermarkConfig{
			Text: "pdftask",
		},
		Passwords: PasswordConfig{
			EnforcePolicy: true,
		},
		Writer: WriterConfig{
			Compress: true,
		},
		Limits: LimitsConfig{
			MaxSourceBytes:      256 << 20,
			MaxDecompressedSize: 512 << 20,
			MaxPages:            5000,
			MaxSources:          64,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("PDFTASK_TEMP_DIR"); dir != "" {
		c.Temp.Dir = dir
	}
	if level := os.Getenv("PDFTASK_LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
	if text := os.Getenv("PDFTASK_WATERMARK_TEXT"); text != "" {
		c.Watermark.Text = text
	}
	if v := os.Getenv("PDFTASK_STRICT_PASSWORDS"); v != "" {
		if strict, err := strconv.ParseBool(v); err == nil {
			c.Passwords.Strict = strict
		}
	}
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	valid := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Logging.Format)
	}
	if c.Writer.CompressionLevel < -2 || c.Writer.CompressionLevel > 9 {
		return fmt.Errorf("invalid compression level: %d", c.Writer.CompressionLevel)
	}
	if c.Limits.MaxPages < 0 || c.Limits.MaxSources < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	return nil
}
