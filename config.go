package fsmflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/fsmflow/internal/expand"
	"github.com/viant/fsmflow/internal/logger"
	"github.com/viant/fsmflow/policy"
	"gopkg.in/yaml.v3"
)

// Loop kinds
const (
	LoopInline = "inline"
	LoopSerial = "serial"
	LoopPool   = "pool"
)

// Config is a serialisable representation of the service configuration. It can
// be populated from YAML or JSON; the zero value of nested sections inherits
// their defaults.
type Config struct {
	Name      string         `json:"name,omitempty" yaml:"name,omitempty"`
	Loop      LoopConfig     `json:"loop" yaml:"loop"`
	Admission *policy.Config `json:"admission,omitempty" yaml:"admission,omitempty"`
	Events    EventsConfig   `json:"events" yaml:"events"`
	Metrics   MetricsConfig  `json:"metrics" yaml:"metrics"`
	Tracing   TracingConfig  `json:"tracing" yaml:"tracing"`
	Logging   LoggingConfig  `json:"logging" yaml:"logging"`
}

// LoopConfig selects the execution loop flows are drained on
type LoopConfig struct {
	Kind    string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Workers int    `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// EventsConfig enables lifecycle event publishing
type EventsConfig struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// MetricsConfig enables Prometheus metrics
type MetricsConfig struct {
	Enabled   bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// TracingConfig enables OpenTelemetry spans around every dispatch
type TracingConfig struct {
	Enabled bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Service string `json:"service,omitempty" yaml:"service,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	// Output is the trace file, stdout when empty
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
}

// LoggingConfig sets the log level
type LoggingConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
}

// DefaultConfig returns a Config populated with the defaults used by New.
func DefaultConfig() *Config {
	return &Config{
		Name:    "fsmflow",
		Loop:    LoopConfig{Kind: LoopPool, Workers: 4},
		Metrics: MetricsConfig{Namespace: "fsmflow"},
		Tracing: TracingConfig{Service: "fsmflow", Version: Version},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	switch strings.ToLower(c.Loop.Kind) {
	case "", LoopInline, LoopSerial:
	case LoopPool:
		if c.Loop.Workers <= 0 {
			errs = append(errs, fmt.Errorf("loop.workers must be > 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported loop.kind: %q", c.Loop.Kind))
	}
	if err := c.Admission.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Level != "" {
		if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
			errs = append(errs, fmt.Errorf("invalid logging.level: %w", err))
		}
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML or JSON config from URL (file, mem or embed scheme),
// expanding ${env.KEY} expressions, over DefaultConfig.
func LoadConfig(ctx context.Context, URL string, options ...storage.Option) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", URL, err)
	}
	return DecodeConfig(data)
}

// DecodeConfig decodes YAML or JSON config text over DefaultConfig
func DecodeConfig(data []byte) (*Config, error) {
	ret := DefaultConfig()
	expanded := expand.Env(string(data))
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(ret); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// EncodeConfig encodes config as YAML
func EncodeConfig(config *Config) ([]byte, error) {
	return yaml.Marshal(config)
}
