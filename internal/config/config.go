// Package config provides configuration management for the freight AI gateway.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the gateway, loaded from YAML with
// environment-variable overrides applied afterwards.
type Config struct {
	// APIKey authenticates against the remote completion API. When empty the
	// gateway runs in degraded mode and serves fallback responses only.
	APIKey string `yaml:"api-key,omitempty" json:"-"`

	// BaseURL is the remote completion API endpoint.
	BaseURL string `yaml:"base-url,omitempty" json:"base-url,omitempty"`

	// Model is the remote model identifier sent with every request.
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// Port is the HTTP listen port.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug,omitempty" json:"debug,omitempty"`

	// LoggingToFile writes logs to a rotating file in addition to stderr.
	LoggingToFile bool `yaml:"logging-to-file,omitempty" json:"logging-to-file,omitempty"`

	// FallbackAllowed is the default for requests that do not set the flag
	// explicitly. Individual requests may still opt out.
	FallbackAllowed *bool `yaml:"fallback-allowed,omitempty" json:"fallback-allowed,omitempty"`

	// RequestTimeout bounds a single remote attempt, e.g. "30s".
	RequestTimeout string `yaml:"request-timeout,omitempty" json:"request-timeout,omitempty"`

	Retry      RetryConfig      `yaml:"retry,omitempty" json:"retry,omitempty"`
	RateLimits RateLimitsConfig `yaml:"rate-limits,omitempty" json:"rate-limits,omitempty"`
	Cache      CacheConfig      `yaml:"cache,omitempty" json:"cache,omitempty"`
	Pricing    PricingConfig    `yaml:"pricing,omitempty" json:"pricing,omitempty"`
	Batch      BatchConfig      `yaml:"batch,omitempty" json:"batch,omitempty"`
	Usage      UsageConfig      `yaml:"usage,omitempty" json:"usage,omitempty"`
	Tracing    TracingConfig    `yaml:"tracing,omitempty" json:"tracing,omitempty"`
}

// RetryConfig controls the retry/backoff executor.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `yaml:"max-attempts,omitempty" json:"max-attempts,omitempty"`
	// BaseDelay is the delay before the second attempt, e.g. "1s".
	BaseDelay string `yaml:"base-delay,omitempty" json:"base-delay,omitempty"`
	// MaxDelay caps the exponential backoff, e.g. "10s".
	MaxDelay string `yaml:"max-delay,omitempty" json:"max-delay,omitempty"`
}

// RateLimitsConfig holds the six admission ceilings.
type RateLimitsConfig struct {
	RequestsPerMinute int64 `yaml:"requests-per-minute,omitempty" json:"requests-per-minute,omitempty"`
	RequestsPerHour   int64 `yaml:"requests-per-hour,omitempty" json:"requests-per-hour,omitempty"`
	RequestsPerDay    int64 `yaml:"requests-per-day,omitempty" json:"requests-per-day,omitempty"`
	TokensPerMinute   int64 `yaml:"tokens-per-minute,omitempty" json:"tokens-per-minute,omitempty"`
	TokensPerHour     int64 `yaml:"tokens-per-hour,omitempty" json:"tokens-per-hour,omitempty"`
	TokensPerDay      int64 `yaml:"tokens-per-day,omitempty" json:"tokens-per-day,omitempty"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	// TTL is the default entry lifetime, e.g. "30m".
	TTL string `yaml:"ttl,omitempty" json:"ttl,omitempty"`
	// MaxEntries bounds the cache; oldest entries are evicted past it.
	MaxEntries int `yaml:"max-entries,omitempty" json:"max-entries,omitempty"`
	// SweepInterval is how often the background sweep runs, e.g. "15m".
	SweepInterval string `yaml:"sweep-interval,omitempty" json:"sweep-interval,omitempty"`
}

// PricingConfig holds per-1K-token prices in USD.
type PricingConfig struct {
	InputPer1K  float64 `yaml:"input-per-1k,omitempty" json:"input-per-1k,omitempty"`
	OutputPer1K float64 `yaml:"output-per-1k,omitempty" json:"output-per-1k,omitempty"`
}

// BatchConfig controls GenerateBatch behavior.
type BatchConfig struct {
	// Concurrency is the maximum number of in-flight remote attempts.
	Concurrency int `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	// Delay is the pause between dispatches, e.g. "200ms".
	Delay string `yaml:"delay,omitempty" json:"delay,omitempty"`
}

// UsageConfig controls usage-record persistence.
type UsageConfig struct {
	// DSN selects the backend: sqlite:///path or postgres://... Empty disables
	// persistence.
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	// BatchSize is the number of records batched per write.
	BatchSize int `yaml:"batch-size,omitempty" json:"batch-size,omitempty"`
	// FlushInterval is how often pending records are flushed, e.g. "5s".
	FlushInterval string `yaml:"flush-interval,omitempty" json:"flush-interval,omitempty"`
	// RetentionDays is how many days of records to keep.
	RetentionDays int `yaml:"retention-days,omitempty" json:"retention-days,omitempty"`
}

// TracingConfig controls OpenTelemetry trace export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Exporter     string  `yaml:"exporter,omitempty" json:"exporter,omitempty"`
	OTLPEndpoint string  `yaml:"otlp-endpoint,omitempty" json:"otlp-endpoint,omitempty"`
	SampleRate   float64 `yaml:"sample-rate,omitempty" json:"sample-rate,omitempty"`
}

// Defaults applied when fields are zero-valued.
const (
	DefaultBaseURL        = "https://api.anthropic.com/v1/messages"
	DefaultModel          = "claude-3-5-haiku-latest"
	DefaultPort           = 8422
	DefaultRequestTimeout = 30 * time.Second

	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second

	DefaultRequestsPerMinute = 50
	DefaultRequestsPerHour   = 1000
	DefaultRequestsPerDay    = 10000
	DefaultTokensPerMinute   = 40000
	DefaultTokensPerHour     = 200000
	DefaultTokensPerDay      = 1000000

	DefaultCacheTTL      = 30 * time.Minute
	DefaultMaxEntries    = 500
	DefaultSweepInterval = 15 * time.Minute

	DefaultInputPer1K  = 0.003
	DefaultOutputPer1K = 0.015

	DefaultBatchConcurrency = 3
	DefaultBatchDelay       = 200 * time.Millisecond
)

// NewDefaultConfig returns a config populated with defaults.
func NewDefaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Model:   DefaultModel,
		Port:    DefaultPort,
	}
}

// LoadConfig reads and parses the YAML config at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadConfigOptional loads config from path, returning defaults when the file
// does not exist and optional is true.
func LoadConfigOptional(path string, optional bool) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		if optional && os.IsNotExist(unwrapPathError(err)) {
			return NewDefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func unwrapPathError(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return err
}

// Save writes the config back to disk as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// IsConfigured reports whether the remote API can be called at all.
func (c *Config) IsConfigured() bool {
	return c != nil && c.APIKey != ""
}

// FallbackDefault returns the default fallback-allowed flag (true unless
// explicitly disabled).
func (c *Config) FallbackDefault() bool {
	if c == nil || c.FallbackAllowed == nil {
		return true
	}
	return *c.FallbackAllowed
}

// parseDuration parses s, returning fallback when s is empty or invalid.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// RequestTimeoutDuration returns the per-attempt timeout.
func (c *Config) RequestTimeoutDuration() time.Duration {
	return parseDuration(c.RequestTimeout, DefaultRequestTimeout)
}

// BaseDelayDuration returns the retry base delay.
func (r RetryConfig) BaseDelayDuration() time.Duration {
	return parseDuration(r.BaseDelay, DefaultBaseDelay)
}

// MaxDelayDuration returns the retry delay cap.
func (r RetryConfig) MaxDelayDuration() time.Duration {
	return parseDuration(r.MaxDelay, DefaultMaxDelay)
}

// Attempts returns the total attempt budget.
func (r RetryConfig) Attempts() int {
	if r.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return r.MaxAttempts
}

// TTLDuration returns the default cache TTL.
func (cc CacheConfig) TTLDuration() time.Duration {
	return parseDuration(cc.TTL, DefaultCacheTTL)
}

// SweepIntervalDuration returns the background sweep interval.
func (cc CacheConfig) SweepIntervalDuration() time.Duration {
	return parseDuration(cc.SweepInterval, DefaultSweepInterval)
}

// Bound returns the maximum entry count.
func (cc CacheConfig) Bound() int {
	if cc.MaxEntries <= 0 {
		return DefaultMaxEntries
	}
	return cc.MaxEntries
}

// Ceiling returns v or fallback when v is zero or negative.
func ceiling(v, fallback int64) int64 {
	if v <= 0 {
		return fallback
	}
	return v
}

// Normalized returns the rate ceilings with defaults applied.
func (r RateLimitsConfig) Normalized() RateLimitsConfig {
	return RateLimitsConfig{
		RequestsPerMinute: ceiling(r.RequestsPerMinute, DefaultRequestsPerMinute),
		RequestsPerHour:   ceiling(r.RequestsPerHour, DefaultRequestsPerHour),
		RequestsPerDay:    ceiling(r.RequestsPerDay, DefaultRequestsPerDay),
		TokensPerMinute:   ceiling(r.TokensPerMinute, DefaultTokensPerMinute),
		TokensPerHour:     ceiling(r.TokensPerHour, DefaultTokensPerHour),
		TokensPerDay:      ceiling(r.TokensPerDay, DefaultTokensPerDay),
	}
}

// Normalized returns the pricing with defaults applied.
func (p PricingConfig) Normalized() PricingConfig {
	out := p
	if out.InputPer1K <= 0 {
		out.InputPer1K = DefaultInputPer1K
	}
	if out.OutputPer1K <= 0 {
		out.OutputPer1K = DefaultOutputPer1K
	}
	return out
}

// ConcurrencyLimit returns the batch concurrency bound.
func (b BatchConfig) ConcurrencyLimit() int {
	if b.Concurrency <= 0 {
		return DefaultBatchConcurrency
	}
	return b.Concurrency
}

// DelayDuration returns the inter-dispatch delay.
func (b BatchConfig) DelayDuration() time.Duration {
	return parseDuration(b.Delay, DefaultBatchDelay)
}

// GenerateDefaultConfigYAML returns a commented starter config.
func GenerateDefaultConfigYAML() []byte {
	return []byte(`# freight-ai gateway configuration
# api-key: ""            # remote API credential (or FREIGHT_AI_API_KEY)
# base-url: ` + DefaultBaseURL + `
# model: ` + DefaultModel + `
port: 8422
debug: false
logging-to-file: false
fallback-allowed: true
request-timeout: 30s
retry:
  max-attempts: 3
  base-delay: 1s
  max-delay: 10s
rate-limits:
  requests-per-minute: 50
  requests-per-hour: 1000
  requests-per-day: 10000
  tokens-per-minute: 40000
  tokens-per-hour: 200000
  tokens-per-day: 1000000
cache:
  ttl: 30m
  max-entries: 500
  sweep-interval: 15m
pricing:
  input-per-1k: 0.003
  output-per-1k: 0.015
batch:
  concurrency: 3
  delay: 200ms
# usage:
#   dsn: sqlite://~/.config/freight-ai/usage.sqlite
#   batch-size: 100
#   flush-interval: 5s
#   retention-days: 30
`)
}
