// Package config manages typebus configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Strategy names accepted by the strategy setting.
const (
	StrategyMap    = "map"
	StrategySparse = "sparse"
	StrategyShared = "shared"
)

// Config is the root typebus configuration document.
type Config struct {
	Strategy  string          `yaml:"strategy"`
	Async     AsyncConfig     `yaml:"async"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AsyncConfig sizes the asynchronous dispatch path. A zero QueueSize leaves
// async dispatch disabled.
type AsyncConfig struct {
	QueueSize   int           `yaml:"queueSize"`
	Workers     WorkerSetting `yaml:"workers"`
	RateLimit   float64       `yaml:"rateLimit"`
	EnqueueWait Duration      `yaml:"enqueueWait"`
}

// Duration decodes YAML scalars in Go duration syntax ("50ms") or integer
// nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil || strings.TrimSpace(node.Value) == "" {
		*d = 0
		return nil
	}
	text := strings.TrimSpace(node.Value)
	if ns, err := strconv.ParseInt(text, 10, 64); err == nil {
		*d = Duration(ns)
		return nil
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("duration: invalid value %q", node.Value)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the setting as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// TelemetryConfig configures the optional OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

type workerKind int

const (
	workerUnset workerKind = iota
	workerExplicit
	workerAuto
	workerDefault
)

const defaultWorkers = 4

// WorkerSetting encapsulates the async worker count, allowing both numeric
// and symbolic ("auto", "default") values.
type WorkerSetting struct {
	kind  workerKind
	value int
}

// Workers constructs an explicit worker setting, mainly for tests and
// programmatic configuration.
func Workers(n int) WorkerSetting {
	if n <= 0 {
		return WorkerSetting{kind: workerDefault, value: 0}
	}
	return WorkerSetting{kind: workerExplicit, value: n}
}

// UnmarshalYAML supports integer, "auto", and "default" values for workers.
func (s *WorkerSetting) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = WorkerSetting{kind: workerUnset, value: 0}
		return nil
	}

	text := strings.TrimSpace(node.Value)
	if text == "" {
		s.kind = workerUnset
		s.value = 0
		return nil
	}

	switch strings.ToLower(text) {
	case "auto":
		s.kind = workerAuto
		s.value = 0
		return nil
	case "default":
		s.kind = workerDefault
		s.value = 0
		return nil
	}

	val, err := strconv.Atoi(text)
	if err != nil {
		return fmt.Errorf("workers: invalid value %q", node.Value)
	}
	if val <= 0 {
		return fmt.Errorf("workers: numeric value must be > 0")
	}
	s.kind = workerExplicit
	s.value = val
	return nil
}

// Resolve returns the effective worker count derived from the setting.
func (s WorkerSetting) Resolve() int {
	switch s.kind {
	case workerExplicit:
		return s.value
	case workerAuto:
		if cores := runtime.NumCPU(); cores > 0 {
			return cores
		}
		return defaultWorkers
	case workerDefault, workerUnset:
		return defaultWorkers
	default:
		return defaultWorkers
	}
}

// Default returns the configuration used when no document is supplied.
func Default() Config {
	return Config{
		Strategy: StrategyMap,
		Async: AsyncConfig{
			QueueSize:   0,
			Workers:     WorkerSetting{kind: workerUnset, value: 0},
			RateLimit:   0,
			EnqueueWait: 0,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "",
			ServiceName:  "typebus",
		},
	}
}

// Parse decodes a YAML document, applies defaults, and validates it.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the YAML document at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Validate ensures the configuration is well-formed.
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyMap, StrategySparse, StrategyShared:
	default:
		return fmt.Errorf("strategy: unknown value %q", c.Strategy)
	}
	if c.Async.QueueSize < 0 {
		return fmt.Errorf("async.queueSize: must be >= 0")
	}
	if c.Async.RateLimit < 0 {
		return fmt.Errorf("async.rateLimit: must be >= 0")
	}
	if c.Async.EnqueueWait < 0 {
		return fmt.Errorf("async.enqueueWait: must be >= 0")
	}
	return nil
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.Strategy) == "" {
		c.Strategy = StrategyMap
	}
	c.Strategy = strings.ToLower(strings.TrimSpace(c.Strategy))
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = "typebus"
	}
}
