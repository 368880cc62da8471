// Copyright (c) 2021 - The Event Horizon authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the runtime options of a mediator pipeline from a YAML
// file and MEDIATOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/behavior/caching"
	"github.com/looplab/mediator/behavior/performance"
	"github.com/looplab/mediator/behavior/retry"
	"github.com/looplab/mediator/behavior/transactional"
	"github.com/looplab/mediator/outbox"
)

// EnvPrefix is the prefix of all environment overrides.
const EnvPrefix = "MEDIATOR_"

// Config is the resolved runtime configuration of a pipeline.
type Config struct {
	Pipeline             []med.BehaviorKind
	PerformanceThreshold time.Duration

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration

	CacheDefaultTTL time.Duration
	CacheKeyPrefix  string

	DispatchOrder    transactional.DispatchOrder
	ParallelDispatch bool

	OutboxInterval time.Duration

	TracingEnabled     bool
	TracingServiceName string
	TracingAgentAddr   string

	LogLevel zapcore.Level
}

// file mirrors the YAML schema.
type file struct {
	Pipeline struct {
		Order                []string      `yaml:"order"`
		PerformanceThreshold time.Duration `yaml:"performance_threshold"`
	} `yaml:"pipeline"`
	Retry struct {
		MaxAttempts int           `yaml:"max_attempts"`
		BaseDelay   time.Duration `yaml:"base_delay"`
	} `yaml:"retry"`
	Caching struct {
		DefaultTTL time.Duration `yaml:"default_ttl"`
		KeyPrefix  string        `yaml:"key_prefix"`
	} `yaml:"caching"`
	Events struct {
		DispatchOrder string `yaml:"dispatch_order"`
		Parallel      *bool  `yaml:"parallel"`
	} `yaml:"events"`
	Outbox struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"outbox"`
	Tracing struct {
		Enabled     *bool  `yaml:"enabled"`
		ServiceName string `yaml:"service_name"`
		AgentAddr   string `yaml:"agent_addr"`
	} `yaml:"tracing"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Pipeline:           med.DefaultPipelineOrder(),
		RetryMaxAttempts:   retry.DefaultMaxAttempts,
		RetryBaseDelay:     retry.DefaultBaseDelay,
		CacheDefaultTTL:    caching.DefaultTTL,
		DispatchOrder:      transactional.DomainFirst,
		OutboxInterval:     outbox.DefaultInterval,
		TracingServiceName: "mediator",
		TracingAgentAddr:   "localhost:6831",
		LogLevel:           zapcore.InfoLevel,
	}
}

// Load resolves the configuration in priority order: defaults, then the file
// at path, then the environment. A missing file or an empty path is skipped.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		} else if err == nil {
			if err := cfg.apply(raw); err != nil {
				return Config{}, err
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Parse resolves the configuration from YAML bytes on top of the defaults,
// without the environment.
func Parse(raw []byte) (Config, error) {
	cfg := Default()

	if err := cfg.apply(raw); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) apply(raw []byte) error {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if len(f.Pipeline.Order) > 0 {
		c.Pipeline = kinds(f.Pipeline.Order)
	}

	if f.Pipeline.PerformanceThreshold > 0 {
		c.PerformanceThreshold = f.Pipeline.PerformanceThreshold
	}

	if f.Retry.MaxAttempts != 0 {
		c.RetryMaxAttempts = f.Retry.MaxAttempts
	}

	if f.Retry.BaseDelay != 0 {
		c.RetryBaseDelay = f.Retry.BaseDelay
	}

	if f.Caching.DefaultTTL != 0 {
		c.CacheDefaultTTL = f.Caching.DefaultTTL
	}

	if f.Caching.KeyPrefix != "" {
		c.CacheKeyPrefix = f.Caching.KeyPrefix
	}

	if f.Events.DispatchOrder != "" {
		o, err := ParseDispatchOrder(f.Events.DispatchOrder)
		if err != nil {
			return err
		}

		c.DispatchOrder = o
	}

	if f.Events.Parallel != nil {
		c.ParallelDispatch = *f.Events.Parallel
	}

	if f.Outbox.Interval != 0 {
		c.OutboxInterval = f.Outbox.Interval
	}

	if f.Tracing.Enabled != nil {
		c.TracingEnabled = *f.Tracing.Enabled
	}

	if f.Tracing.ServiceName != "" {
		c.TracingServiceName = f.Tracing.ServiceName
	}

	if f.Tracing.AgentAddr != "" {
		c.TracingAgentAddr = f.Tracing.AgentAddr
	}

	if f.Log.Level != "" {
		if err := c.LogLevel.UnmarshalText([]byte(f.Log.Level)); err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
	}

	return nil
}

func (c *Config) applyEnv() error {
	c.Pipeline = kinds(envCSV("PIPELINE_ORDER", strings.Join(strs(c.Pipeline), ",")))
	c.CacheKeyPrefix = envOrDefault("CACHE_KEY_PREFIX", c.CacheKeyPrefix)
	c.TracingServiceName = envOrDefault("TRACING_SERVICE_NAME", c.TracingServiceName)
	c.TracingAgentAddr = envOrDefault("TRACING_AGENT_ADDR", c.TracingAgentAddr)

	var err error
	if c.RetryMaxAttempts, err = envInt("RETRY_MAX_ATTEMPTS", c.RetryMaxAttempts); err != nil {
		return err
	}

	if c.ParallelDispatch, err = envBool("PARALLEL_DISPATCH", c.ParallelDispatch); err != nil {
		return err
	}

	if c.TracingEnabled, err = envBool("TRACING_ENABLED", c.TracingEnabled); err != nil {
		return err
	}

	durations := []struct {
		name string
		d    *time.Duration
	}{
		{"PERFORMANCE_THRESHOLD", &c.PerformanceThreshold},
		{"RETRY_BASE_DELAY", &c.RetryBaseDelay},
		{"CACHE_DEFAULT_TTL", &c.CacheDefaultTTL},
		{"OUTBOX_INTERVAL", &c.OutboxInterval},
	}
	for _, d := range durations {
		if *d.d, err = envDuration(d.name, *d.d); err != nil {
			return err
		}
	}

	if raw := os.Getenv(EnvPrefix + "DISPATCH_ORDER"); raw != "" {
		if c.DispatchOrder, err = ParseDispatchOrder(raw); err != nil {
			return err
		}
	}

	if raw := os.Getenv(EnvPrefix + "LOG_LEVEL"); raw != "" {
		if err := c.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			return fmt.Errorf("invalid %sLOG_LEVEL: %w", EnvPrefix, err)
		}
	}

	return nil
}

// Validate checks that the configuration can be used to create components.
func (c Config) Validate() error {
	seen := map[med.BehaviorKind]bool{}

	for _, k := range c.Pipeline {
		if k == "" {
			return errors.New("empty behavior kind in pipeline order")
		}

		if seen[k] {
			return fmt.Errorf("duplicate behavior kind in pipeline order: %s", k)
		}

		seen[k] = true
	}

	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("invalid retry max attempts: %d", c.RetryMaxAttempts)
	}

	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("invalid retry base delay: %s", c.RetryBaseDelay)
	}

	if c.CacheDefaultTTL <= 0 {
		return fmt.Errorf("invalid cache default TTL: %s", c.CacheDefaultTTL)
	}

	if c.OutboxInterval <= 0 {
		return fmt.Errorf("invalid outbox interval: %s", c.OutboxInterval)
	}

	if c.TracingEnabled && (c.TracingServiceName == "" || c.TracingAgentAddr == "") {
		return errors.New("missing tracing service name or agent address")
	}

	return nil
}

// ParseDispatchOrder parses "domain_first" or "integration_first".
func ParseDispatchOrder(s string) (transactional.DispatchOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case transactional.DomainFirst.String():
		return transactional.DomainFirst, nil
	case transactional.IntegrationFirst.String():
		return transactional.IntegrationFirst, nil
	default:
		return 0, fmt.Errorf("invalid dispatch order: %q", s)
	}
}

// PipelineOrder returns the configured order of the behaviors.
func (c Config) PipelineOrder() med.PipelineOrder {
	return append(med.PipelineOrder(nil), c.Pipeline...)
}

// RetryOptions returns the options of the retry behavior.
func (c Config) RetryOptions(logger *zap.Logger) []retry.Option {
	return []retry.Option{
		retry.WithMaxAttempts(c.RetryMaxAttempts),
		retry.WithBaseDelay(c.RetryBaseDelay),
		retry.WithLogger(logger),
	}
}

// CachingOptions returns the options of the caching behavior.
func (c Config) CachingOptions(logger *zap.Logger) []caching.Option {
	return []caching.Option{
		caching.WithDefaultTTL(c.CacheDefaultTTL),
		caching.WithKeyPrefix(c.CacheKeyPrefix),
		caching.WithLogger(logger),
	}
}

// PerformanceOptions returns the options of the performance behavior.
func (c Config) PerformanceOptions(logger *zap.Logger) []performance.Option {
	return []performance.Option{
		performance.WithLogger(logger),
		performance.WithThreshold(c.PerformanceThreshold),
	}
}

// TransactionalOptions returns the dispatch options of the transactional
// behavior.
func (c Config) TransactionalOptions() []transactional.Option {
	opts := []transactional.Option{
		transactional.WithDispatchOrder(c.DispatchOrder),
	}

	if c.ParallelDispatch {
		opts = append(opts, transactional.WithParallelDispatch())
	}

	return opts
}

// ProcessorOptions returns the options of the outbox processor.
func (c Config) ProcessorOptions() []outbox.Option {
	return []outbox.Option{
		outbox.WithInterval(c.OutboxInterval),
	}
}

// Logger builds a production logger at the configured level.
func (c Config) Logger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(c.LogLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func kinds(names []string) []med.BehaviorKind {
	out := make([]med.BehaviorKind, 0, len(names))
	for _, n := range names {
		out = append(out, med.BehaviorKind(strings.TrimSpace(n)))
	}

	return out
}

func strs(kinds []med.BehaviorKind) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k.String())
	}

	return out
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(EnvPrefix + name); value != "" {
		return value
	}

	return fallback
}

func envInt(name string, fallback int) (int, error) {
	raw := os.Getenv(EnvPrefix + name)
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}

	return v, nil
}

func envBool(name string, fallback bool) (bool, error) {
	raw := os.Getenv(EnvPrefix + name)
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}

	return v, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(EnvPrefix + name)
	if raw == "" {
		return fallback, nil
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}

	return v, nil
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback string) []string {
	raw := os.Getenv(EnvPrefix + name)
	if raw == "" {
		raw = fallback
	}

	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}

	return parts
}
