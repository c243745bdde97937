// Package config defines the labscan configuration file, its defaults and
// validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/labscan/internal/errors"
)

// LabTargetEnv overrides the configured lab target when set.
const LabTargetEnv = "LAB_TARGET"

// Config represents the complete labscan configuration
type Config struct {
	// Lab scan engine configuration
	Lab LabConfig `yaml:"lab" json:"lab"`

	// API configuration
	API APIConfig `yaml:"api" json:"api"`

	// Backend client configuration
	Client ClientConfig `yaml:"client" json:"client"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// LabConfig holds the fixed lab target and the scan profile run against it.
type LabConfig struct {
	// Hard-coded lab target; never taken from a request
	Target string `yaml:"target" json:"target" validate:"required"`

	// Number of most common ports to scan
	TopPorts int `yaml:"top_ports" json:"top_ports" validate:"min=1,max=65535"`

	// nmap timing template, 0 (paranoid) to 5 (insane)
	Timing int `yaml:"timing" json:"timing" validate:"min=0,max=5"`

	// Optional explicit path to the nmap binary
	BinaryPath string `yaml:"binary_path" json:"binary_path"`

	// Maximum nmap processes running at once
	MaxConcurrentScans int `yaml:"max_concurrent_scans" json:"max_concurrent_scans" validate:"min=1"`

	// Upper bound for a single nmap run, 0 disables it
	ScanTimeout time.Duration `yaml:"scan_timeout" json:"scan_timeout" validate:"min=0"`

	// Cron expression for automatic dashboard scans, empty disables them
	Schedule string `yaml:"schedule" json:"schedule"`
}

// APIConfig holds API server settings
type APIConfig struct {
	Host           string        `yaml:"host" json:"host" validate:"required"`
	Port           int           `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes" json:"max_header_bytes"`
	EnableCORS     bool          `yaml:"enable_cors" json:"enable_cors"`
	CORSOrigins    []string      `yaml:"cors_origins" json:"cors_origins"`

	// Scan requests allowed per client within RateLimitWindow, 0 disables
	RateLimitRequests int           `yaml:"rate_limit_requests" json:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window" json:"rate_limit_window" validate:"min=0"`
	// Proxies (IPs or CIDRs) whose forwarding headers name the real client
	TrustedProxies []string `yaml:"trusted_proxies" json:"trusted_proxies" validate:"dive,ip|cidr"`
}

// ClientConfig holds settings for talking to a scan backend.
type ClientConfig struct {
	// Base URL of the backend serving POST /scan; empty means the local API
	BaseURL string `yaml:"base_url" json:"base_url" validate:"omitempty,url"`

	// Transport timeout, 0 means none
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"min=0"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Log file rotation
	Rotation RotationConfig `yaml:"rotation" json:"rotation"`
}

// RotationConfig holds log rotation settings
type RotationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	MaxSizeMB  int  `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool `yaml:"compress" json:"compress"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Lab: LabConfig{
			Target:             "10.0.0.5",
			TopPorts:           100,
			Timing:             4,
			MaxConcurrentScans: 1,
			ScanTimeout:        10 * time.Minute,
		},
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           5000,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   15 * time.Minute,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20,
			EnableCORS:     true,
			CORSOrigins:    []string{"*"},

			RateLimitRequests: 10,
			RateLimitWindow:   time.Minute,
		},
		Client: ClientConfig{
			BaseURL: "",
			Timeout: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
			Rotation: RotationConfig{
				Enabled:    false,
				MaxSizeMB:  100,
				MaxBackups: 5,
				MaxAgeDays: 30,
				Compress:   true,
			},
		},
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if err := config.readFile(path); err != nil {
			return nil, err
		}
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) readFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Keep defaults if no config file
	}

	data, err := os.ReadFile(path) //nolint:gosec // operator supplied config path
	if err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
	}

	// JSON is a subset of YAML, so one decoder covers .yaml, .yml and .json
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration,
			fmt.Sprintf("failed to parse config %s", filepath.Base(path)), err)
	}
	return nil
}

// ApplyEnv applies environment overrides that predate the config file.
func (c *Config) ApplyEnv() {
	if target := os.Getenv(LabTargetEnv); target != "" {
		c.Lab.Target = target
	}
}

var validate = validator.New()

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if ok := asValidationErrors(err, &fieldErrs); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errors.ErrConfigInvalid(fe.Namespace(), fe.Value())
		}
		return errors.WrapConfigError(errors.CodeValidation, "configuration validation failed", err)
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	fieldErrs, ok := err.(validator.ValidationErrors) //nolint:errorlint // validator returns the slice directly
	if ok {
		*target = fieldErrs
	}
	return ok
}

// GetAPIAddress returns the full API address
func (c *Config) GetAPIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// BackendURL returns the base URL the scan client should call.
func (c *Config) BackendURL() string {
	if c.Client.BaseURL != "" {
		return c.Client.BaseURL
	}
	u := url.URL{Scheme: "http", Host: c.GetAPIAddress()}
	return u.String()
}
