package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/turnstream/log"
)

// DefaultPath is the config file read when --config is not given and the file exists.
const DefaultPath = "turnstream.yaml"

// Config represents a turnstream.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Endpoint    EndpointConfig `yaml:"endpoint"`
	Request     RequestConfig  `yaml:"request"`
	LogLevel    string         `yaml:"log_level"`
	Storage     StorageConfig  `yaml:"storage"`
	Adapter     AdapterConfig  `yaml:"adapter"`
	MetricsFile string         `yaml:"metrics_file"`
}

// EndpointConfig describes the conversation backend.
type EndpointConfig struct {
	URL       string            `yaml:"url"`
	Transport string            `yaml:"transport"` // http or websocket
	Headers   map[string]string `yaml:"headers,omitempty"`
	Timeout   Duration          `yaml:"timeout,omitempty"`
}

// RequestConfig holds request defaults.
type RequestConfig struct {
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	SessionID   string   `yaml:"session_id"`
}

// StorageConfig holds turn record storage defaults.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"` // fs or s3
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds notification adapter defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"` // redis or webhook
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerated fields. Empty values are allowed everywhere.
func (c *Config) Validate() error {
	var errs []error
	switch c.Endpoint.Transport {
	case "", "http", "websocket":
	default:
		errs = append(errs, fmt.Errorf("endpoint.transport must be http or websocket, got %q", c.Endpoint.Transport))
	}
	switch c.Storage.Backend {
	case "", "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be fs or s3, got %q", c.Storage.Backend))
	}
	switch c.Adapter.Type {
	case "", "redis", "webhook":
	default:
		errs = append(errs, fmt.Errorf("adapter.type must be redis or webhook, got %q", c.Adapter.Type))
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		errs = append(errs, errors.New("adapter.url is required when adapter.type is set"))
	}
	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("log_level: %w", err))
		}
	}
	if t := c.Request.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("request.temperature must be in [0, 2], got %v", *t))
	}
	return errors.Join(errs...)
}
