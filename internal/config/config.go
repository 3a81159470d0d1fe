// Package config handles configuration loading using viper.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrConfigInvalid is wrapped by every validation failure.
var ErrConfigInvalid = errors.New("config: invalid configuration")

// Config is the top-level configuration.
// Maps to the `ntpwire:` root key in YAML.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Capture CaptureConfig `mapstructure:"capture"`
	Report  ReportConfig  `mapstructure:"report"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`   // trace / debug / info / warn / error
	Pattern string           `mapstructure:"pattern"` // %time %level %field %msg %caller %func
	Time    string           `mapstructure:"time"`    // Go time layout for %time
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log output destinations.
type LogOutputsConfig struct {
	Console ConsoleOutputConfig `mapstructure:"console"`
	File    FileOutputConfig    `mapstructure:"file"`
}

// ConsoleOutputConfig configures console log output.
type ConsoleOutputConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Stream  string `mapstructure:"stream"` // stdout / stderr
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Capture ───

// CaptureConfig controls where datagrams come from.
type CaptureConfig struct {
	Ports       []int  `mapstructure:"ports"`        // UDP ports treated as NTP in capture files
	Listen      string `mapstructure:"listen"`       // UDP listen address for `listen`
	ReadBuffer  int    `mapstructure:"read_buffer"`  // socket receive buffer in bytes, 0 = OS default
	MaxDatagram int    `mapstructure:"max_datagram"` // largest datagram read from the socket

	MaxPerSource int           `mapstructure:"max_per_source"` // datagrams per source address per window, 0 = unlimited
	RateWindow   time.Duration `mapstructure:"rate_window"`
}

// ─── Report ───

// ReportConfig selects the output format for decoded packets.
type ReportConfig struct {
	Format  string         `mapstructure:"format"`  // text / json / yaml
	Options map[string]any `mapstructure:"options"` // format options, see reporter.Options
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

type configRoot struct {
	NTPWire Config `mapstructure:"ntpwire"`
}

// Load loads configuration from path. An empty path loads defaults and
// environment overrides only.
// The YAML file uses `ntpwire:` as root key; env vars use the NTPWIRE_ prefix
// (e.g. NTPWIRE_LOG_LEVEL).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "ntpwire.log.level" → env "NTPWIRE_LOG_LEVEL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.NTPWire

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in defaults, ignoring files and environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		panic(fmt.Sprintf("config: bad defaults: %v", err))
	}
	return &root.NTPWire
}

// setDefaults sets default values for configuration.
// All keys use the "ntpwire." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("ntpwire.log.level", "info")
	v.SetDefault("ntpwire.log.pattern", "%time [%level] %msg %field")
	v.SetDefault("ntpwire.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("ntpwire.log.outputs.console.enabled", true)
	v.SetDefault("ntpwire.log.outputs.console.stream", "stderr")
	v.SetDefault("ntpwire.log.outputs.file.enabled", false)
	v.SetDefault("ntpwire.log.outputs.file.path", "/var/log/ntpwire/ntpwire.log")
	v.SetDefault("ntpwire.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("ntpwire.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("ntpwire.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("ntpwire.log.outputs.file.rotation.compress", true)

	// Capture defaults
	v.SetDefault("ntpwire.capture.ports", []int{123})
	v.SetDefault("ntpwire.capture.listen", ":123")
	v.SetDefault("ntpwire.capture.read_buffer", 0)
	v.SetDefault("ntpwire.capture.max_datagram", 2048)
	v.SetDefault("ntpwire.capture.max_per_source", 0)
	v.SetDefault("ntpwire.capture.rate_window", "10s")

	// Report defaults
	v.SetDefault("ntpwire.report.format", "text")
	v.SetDefault("ntpwire.report.options", map[string]any{})

	// Metrics defaults
	v.SetDefault("ntpwire.metrics.enabled", false)
	v.SetDefault("ntpwire.metrics.listen", ":9123")
	v.SetDefault("ntpwire.metrics.path", "/metrics")
}

var (
	validLevels  = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	validStreams = map[string]bool{"stdout": true, "stderr": true}
	validFormats = map[string]bool{"text": true, "json": true, "yaml": true}
)

// Validate checks field values. It does not touch the network or filesystem.
func (cfg *Config) Validate() error {
	// ── Log ──
	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error): %w", cfg.Log.Level, ErrConfigInvalid)
	}
	if cfg.Log.Outputs.Console.Enabled && !validStreams[cfg.Log.Outputs.Console.Stream] {
		return fmt.Errorf("invalid console stream: %s (must be stdout/stderr): %w", cfg.Log.Outputs.Console.Stream, ErrConfigInvalid)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("log.outputs.file.path is required when file output is enabled: %w", ErrConfigInvalid)
	}

	// ── Capture ──
	if len(cfg.Capture.Ports) == 0 {
		return fmt.Errorf("capture.ports must not be empty: %w", ErrConfigInvalid)
	}
	for _, port := range cfg.Capture.Ports {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid capture port: %d: %w", port, ErrConfigInvalid)
		}
	}
	if _, _, err := net.SplitHostPort(cfg.Capture.Listen); err != nil {
		return fmt.Errorf("invalid capture.listen %q: %v: %w", cfg.Capture.Listen, err, ErrConfigInvalid)
	}
	if cfg.Capture.ReadBuffer < 0 {
		return fmt.Errorf("capture.read_buffer must not be negative: %w", ErrConfigInvalid)
	}
	if cfg.Capture.MaxDatagram < 48 || cfg.Capture.MaxDatagram > 65535 {
		return fmt.Errorf("capture.max_datagram %d out of range [48, 65535]: %w", cfg.Capture.MaxDatagram, ErrConfigInvalid)
	}
	if cfg.Capture.MaxPerSource < 0 {
		return fmt.Errorf("capture.max_per_source must not be negative: %w", ErrConfigInvalid)
	}
	if cfg.Capture.MaxPerSource > 0 && cfg.Capture.RateWindow <= 0 {
		return fmt.Errorf("capture.rate_window must be positive when max_per_source is set: %w", ErrConfigInvalid)
	}

	// ── Report ──
	if !validFormats[cfg.Report.Format] {
		return fmt.Errorf("invalid report format: %s (must be text/json/yaml): %w", cfg.Report.Format, ErrConfigInvalid)
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("invalid metrics.listen %q: %v: %w", cfg.Metrics.Listen, err, ErrConfigInvalid)
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with '/': %w", ErrConfigInvalid)
		}
	}

	return nil
}

// PortSet returns the capture ports as a lookup set.
func (c CaptureConfig) PortSet() map[uint16]bool {
	set := make(map[uint16]bool, len(c.Ports))
	for _, p := range c.Ports {
		set[uint16(p)] = true
	}
	return set
}
