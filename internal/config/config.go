// Package config loads blecentral settings from YAML. Fields missing from
// the file take the values of their `default` struct tags.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/mqttbridge"
	"gopkg.in/yaml.v3"
)

// Output formats and color modes accepted by the CLI
var (
	OutputFormats = []string{"table", "json"}
	ColorModes    = []string{"auto", "always", "never"}
)

// Config holds application configuration
type Config struct {
	LogLevel string        `yaml:"log_level" default:"info"`
	Scan     ScanConfig    `yaml:"scan"`
	Events   EventsConfig  `yaml:"events"`
	Output   OutputConfig  `yaml:"output"`
	Metrics  MetricsConfig `yaml:"metrics"`
	MQTT     MQTTConfig    `yaml:"mqtt"`
}

type ScanConfig struct {
	// Duration of a one-shot scan. Zero scans until interrupted.
	Duration        time.Duration `yaml:"duration" default:"10s"`
	AllowDuplicates bool          `yaml:"allow_duplicates"`
	Services        []string      `yaml:"services"`
}

type EventsConfig struct {
	// BufferSize is the number of events buffered per subscriber before the oldest are dropped
	BufferSize int `yaml:"buffer_size" default:"256"`
}

type OutputConfig struct {
	Format string `yaml:"format" default:"table"`
	Color  string `yaml:"color" default:"auto"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path" default:"/metrics"`
}

// MQTTConfig enables event forwarding when Broker is set
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TopicPrefix    string        `yaml:"topic_prefix" default:"blecentral"`
	QoS            int           `yaml:"qos"`
	Retain         bool          `yaml:"retain"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`
	PublishTimeout time.Duration `yaml:"publish_timeout" default:"5s"`
}

// Enabled reports whether a broker is configured
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// BridgeConfig converts to the mqttbridge client configuration
func (m MQTTConfig) BridgeConfig() mqttbridge.Config {
	return mqttbridge.Config{
		Broker:         m.Broker,
		ClientID:       m.ClientID,
		Username:       m.Username,
		Password:       m.Password,
		TopicPrefix:    m.TopicPrefix,
		QoS:            byte(m.QoS),
		Retain:         m.Retain,
		ConnectTimeout: m.ConnectTimeout,
		PublishTimeout: m.PublishTimeout,
	}
}

// Default returns default configuration values
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file, applies defaults and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	defaults.SetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Scan.Duration < 0 {
		errs = append(errs, fmt.Errorf("scan.duration: must not be negative, got %v", c.Scan.Duration))
	}
	if _, err := device.NewScanFilter(c.Scan.Services...); err != nil {
		errs = append(errs, fmt.Errorf("scan.services: %w", err))
	}
	if c.Events.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("events.buffer_size: must be positive, got %d", c.Events.BufferSize))
	}
	if !slices.Contains(OutputFormats, c.Output.Format) {
		errs = append(errs, fmt.Errorf("output.format: unsupported format %q (use %v)", c.Output.Format, OutputFormats))
	}
	if !slices.Contains(ColorModes, c.Output.Color) {
		errs = append(errs, fmt.Errorf("output.color: unsupported mode %q (use %v)", c.Output.Color, ColorModes))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos: %w", mqttbridge.ErrInvalidQoS))
	}

	return errors.Join(errs...)
}

// ScanFilter builds the scan filter from the configured services
func (c *Config) ScanFilter() (device.ScanFilter, error) {
	return device.NewScanFilter(c.Scan.Services...)
}

// Level returns the configured log level, Info when it does not parse
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
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
