// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for labgate.
type Config struct {
	// Environment identifies the deployment type (development, staging,
	// production).
	Environment Environment `yaml:"environment"`

	// ControlPlane configures the control plane API client.
	ControlPlane ControlPlaneConfig `yaml:"control_plane"`

	// Broker configures the connection broker handshake.
	Broker BrokerConfig `yaml:"broker"`

	// Audit configures the audit event spool.
	Audit AuditConfig `yaml:"audit"`

	// Log configures diagnostic logging.
	Log LogConfig `yaml:"log"`

	// Per-environment overrides, applied after the base config loads.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	ControlPlane *ControlPlaneConfig `yaml:"control_plane,omitempty"`
	Broker       *BrokerConfig       `yaml:"broker,omitempty"`
	Audit        *AuditConfig        `yaml:"audit,omitempty"`
	Log          *LogConfig          `yaml:"log,omitempty"`
}

// ControlPlaneConfig configures the control plane API client.
type ControlPlaneConfig struct {
	// BaseURL is the control plane's base URL.
	// Default: http://web:8000 (the platform's internal DNS name).
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each API request end to end, as a Go duration
	// string. Default: 30s
	Timeout string `yaml:"timeout"`
}

// BrokerConfig configures the connection broker handshake.
type BrokerConfig struct {
	// Address is the broker's host:port.
	// Default: ssh-proxy:8001 (the platform's internal DNS name).
	Address string `yaml:"address"`

	// HandshakeTimeout bounds a whole handshake (dial, request,
	// response), as a Go duration string. Default: 30s
	HandshakeTimeout string `yaml:"handshake_timeout"`
}

// AuditConfig configures the audit event spool.
type AuditConfig struct {
	// SpoolPath is the file audit events are appended to. Empty
	// disables auditing. Default: /var/log/labgate/audit.spool
	SpoolPath string `yaml:"spool_path"`
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	// Level is the minimum level emitted: debug, info, warn, or error.
	// Default: info (warn in production unless overridden).
	Level string `yaml:"level"`
}

// Default returns the default configuration. The defaults match the
// platform's internal service names so that a config file is only
// needed when a deployment deviates from them.
func Default() *Config {
	return &Config{
		Environment: Development,
		ControlPlane: ControlPlaneConfig{
			BaseURL: "http://web:8000",
			Timeout: "30s",
		},
		Broker: BrokerConfig{
			Address:          "ssh-proxy:8001",
			HandshakeTimeout: "30s",
		},
		Audit: AuditConfig{
			SpoolPath: "/var/log/labgate/audit.spool",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the LABGATE_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// If LABGATE_CONFIG is not set, Load fails; callers that must survive a
// missing configuration (the shared library) fall back to Default
// themselves.
func Load() (*Config, error) {
	configPath := os.Getenv("LABGATE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("LABGATE_CONFIG environment variable not set; " +
			"set it to the path of your labgate.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values; the only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production default: keep sshd's log stream quiet unless the
		// file says otherwise.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Log: &LogConfig{Level: "warn"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.ControlPlane != nil {
		if overrides.ControlPlane.BaseURL != "" {
			c.ControlPlane.BaseURL = overrides.ControlPlane.BaseURL
		}
		if overrides.ControlPlane.Timeout != "" {
			c.ControlPlane.Timeout = overrides.ControlPlane.Timeout
		}
	}

	if overrides.Broker != nil {
		if overrides.Broker.Address != "" {
			c.Broker.Address = overrides.Broker.Address
		}
		if overrides.Broker.HandshakeTimeout != "" {
			c.Broker.HandshakeTimeout = overrides.Broker.HandshakeTimeout
		}
	}

	if overrides.Audit != nil {
		// SpoolPath may be overridden to empty to disable auditing in
		// an environment, so it is always applied.
		c.Audit.SpoolPath = overrides.Audit.SpoolPath
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Audit.SpoolPath = expandVars(c.Audit.SpoolPath, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.ControlPlane.BaseURL == "" {
		errs = append(errs, fmt.Errorf("control_plane.base_url is required"))
	} else if u, err := url.Parse(c.ControlPlane.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("control_plane.base_url: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("control_plane.base_url must be http or https, got %q", u.Scheme))
	}

	if _, err := positiveDuration(c.ControlPlane.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("control_plane.timeout: %w", err))
	}

	if c.Broker.Address == "" {
		errs = append(errs, fmt.Errorf("broker.address is required"))
	} else if _, _, err := net.SplitHostPort(c.Broker.Address); err != nil {
		errs = append(errs, fmt.Errorf("broker.address: %w", err))
	}

	if _, err := positiveDuration(c.Broker.HandshakeTimeout); err != nil {
		errs = append(errs, fmt.Errorf("broker.handshake_timeout: %w", err))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func positiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}
	return d, nil
}

// ControlTimeout returns the parsed control plane request timeout,
// falling back to the default when the configured value does not parse.
// Validate reports unparseable values; this accessor never fails.
func (c *Config) ControlTimeout() time.Duration {
	if d, err := positiveDuration(c.ControlPlane.Timeout); err == nil {
		return d
	}
	return 30 * time.Second
}

// HandshakeTimeout returns the parsed broker handshake timeout, falling
// back to the default when the configured value does not parse.
func (c *Config) HandshakeTimeout() time.Duration {
	if d, err := positiveDuration(c.Broker.HandshakeTimeout); err == nil {
		return d
	}
	return 30 * time.Second
}

// LogLevel returns the configured slog level. Unknown values fall back
// to info.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
