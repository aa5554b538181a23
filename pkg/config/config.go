package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Device kinds accepted in a testbed file.
const (
	KindAndroid = "android"
	KindBumble  = "bumble"
)

// Output formats of a run report.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Config holds the testbed description and the run settings
type Config struct {
	LogLevel     string        `yaml:"log_level" default:"info"`
	OutputFormat string        `yaml:"output_format" default:"table"` // table, json
	TestTimeout  time.Duration `yaml:"test_timeout" default:"3m"`
	ResetTimeout time.Duration `yaml:"reset_timeout" default:"30s"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"10s"`

	// Devices lists the testbed devices; the first one is the DUT.
	Devices []DeviceConfig `yaml:"devices"`

	MMI MMIConfig `yaml:"mmi"`
}

// DeviceConfig describes one Pandora server of the testbed.
type DeviceConfig struct {
	Name string `yaml:"name"`
	// Kind is android or bumble. Empty means android for the DUT and bumble otherwise.
	Kind   string `yaml:"kind"`
	Target string `yaml:"target"` // host:port of the Pandora gRPC server
	Serial string `yaml:"serial"` // adb serial, android only

	// Flags are Android bluetooth flags overridden through adb before the run.
	Flags []string `yaml:"flags"`

	// Launch starts a Bumble Pandora server for this device when set.
	Launch *LaunchConfig `yaml:"launch"`
}

// LaunchConfig describes a Bumble Pandora server started by the harness.
type LaunchConfig struct {
	Command   []string `yaml:"command"`
	Transport string   `yaml:"transport" default:"tcp-client:127.0.0.1:6402"`

	IOCapability      string `yaml:"io_capability" default:"no_output_no_input"`
	MITM              bool   `yaml:"mitm"`
	Classic           bool   `yaml:"classic"`
	LE                bool   `yaml:"le"`
	SSP               bool   `yaml:"ssp"`
	SecureConnections bool   `yaml:"secure_connections"`
}

// MMIConfig configures the PTS prompt dispatcher.
type MMIConfig struct {
	// Rootcanal is the host:port of the rootcanal control channel, empty when PTS runs on real hardware.
	Rootcanal string `yaml:"rootcanal"`
	// PTSAddress is the address of the PTS dongle.
	PTSAddress string `yaml:"pts_address"`
	Dongle     string `yaml:"dongle" default:"laird_bl654"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML testbed file, fills unset fields with their defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML testbed description.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	defaults.SetDefaults(cfg)
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.Kind == "" {
			d.Kind = KindBumble
			if i == 0 {
				d.Kind = KindAndroid
			}
		}
		if d.Launch != nil {
			defaults.SetDefaults(d.Launch)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors a run cannot recover from.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.OutputFormat {
	case FormatTable, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("output_format: unknown format %q", c.OutputFormat))
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		switch {
		case d.Name == "":
			errs = append(errs, fmt.Errorf("devices[%d]: name is required", i))
		case seen[d.Name]:
			errs = append(errs, fmt.Errorf("devices[%d]: duplicate name %q", i, d.Name))
		}
		seen[d.Name] = true

		if d.Target == "" {
			errs = append(errs, fmt.Errorf("devices[%d]: target is required", i))
		}
		switch d.Kind {
		case KindAndroid:
			if d.Launch != nil {
				errs = append(errs, fmt.Errorf("devices[%d]: launch is only supported for bumble devices", i))
			}
		case KindBumble:
			if len(d.Flags) > 0 {
				errs = append(errs, fmt.Errorf("devices[%d]: flags are only supported for android devices", i))
			}
		default:
			errs = append(errs, fmt.Errorf("devices[%d]: unknown kind %q", i, d.Kind))
		}
		if d.Launch != nil && len(d.Launch.Command) == 0 {
			errs = append(errs, fmt.Errorf("devices[%d]: launch.command is required", i))
		}
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level, InfoLevel when it cannot be parsed.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(c.LogLevel))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
