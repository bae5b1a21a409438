// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level job configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Job       JobConfig       `yaml:"job"`
	Database  DatabaseConfig  `yaml:"database"`
	Engine    EngineConfig    `yaml:"engine"`
	Cache     CacheConfig     `yaml:"cache"`
	Sink      SinkConfig      `yaml:"sink"`
	Admin     AdminConfig     `yaml:"admin"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// LogConfig controls the process logger. Level "debug" also selects the
// per-item reporting policy.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// JobConfig sizes the worker pool.
type JobConfig struct {
	Workers    int    `yaml:"workers"`
	HowMany    int    `yaml:"how_many"`
	Cursor     string `yaml:"cursor"`      // slice, rows, chan
	ChanBuffer int    `yaml:"chan_buffer"` // chan cursor only
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // file path or ":memory:"
}

// EngineConfig selects and decorates the scoring engine.
type EngineConfig struct {
	Kind       string           `yaml:"kind"` // similarity, remote
	Similarity SimilarityConfig `yaml:"similarity"`
	Remote     RemoteConfig     `yaml:"remote"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

// SimilarityConfig configures the in-process engine.
type SimilarityConfig struct {
	Measure string `yaml:"measure"` // cosine, tanimoto
}

// RemoteConfig configures the HTTP scoring engine.
type RemoteConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	DNSCache   bool          `yaml:"dns_cache"`
	DNSRefresh time.Duration `yaml:"dns_refresh"`
	Auth       AuthConfig    `yaml:"auth"`
}

// AuthConfig configures remote engine authentication.
type AuthConfig struct {
	Kind            string   `yaml:"kind"` // none, api_key, oauth2, gcp, aws_sigv4
	APIKey          string   `yaml:"api_key"`
	Header          string   `yaml:"header"`
	Prefix          string   `yaml:"prefix"`
	TokenURL        string   `yaml:"token_url"`
	ClientID        string   `yaml:"client_id"`
	ClientSecret    string   `yaml:"client_secret"`
	Scopes          []string `yaml:"scopes"`
	Region          string   `yaml:"region"`
	Service         string   `yaml:"service"`
	AccessKeyID     string   `yaml:"access_key_id"`
	SecretAccessKey string   `yaml:"secret_access_key"`
	SessionToken    string   `yaml:"session_token"`
}

// BreakerConfig configures the engine circuit breaker.
type BreakerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ErrorThreshold float64       `yaml:"error_threshold"`
	MinSamples     int           `yaml:"min_samples"`
	WindowSeconds  int           `yaml:"window_seconds"`
	OpenTimeout    time.Duration `yaml:"open_timeout"`
}

// RateLimitConfig throttles engine calls across all workers.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"` // 0 = unlimited
	Burst     int     `yaml:"burst"`
}

// CacheConfig holds pairwise similarity cache settings.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	MaxSize int           `yaml:"max_size"`
	TTL     time.Duration `yaml:"ttl"`
}

// SinkConfig selects how results reach the database.
type SinkConfig struct {
	Kind      string        `yaml:"kind"` // batch, direct
	QueueSize int           `yaml:"queue_size"`
	BatchSize int           `yaml:"batch_size"`
	Linger    time.Duration `yaml:"linger"` // wait for more lists once the queue is empty
}

// AdminConfig holds admin HTTP server settings.
type AdminConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	Token           string        `yaml:"token"` // bearer token for POST routes
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// BootstrapConfig seeds preferences into an empty database.
type BootstrapConfig struct {
	PreferencesCSV string            `yaml:"preferences_csv"` // user_id,item_id,value rows
	Preferences    []PreferenceEntry `yaml:"preferences"`
}

// PreferenceEntry is an inline preference seed.
type PreferenceEntry struct {
	UserID int64   `yaml:"user_id"`
	ItemID int64   `yaml:"item_id"`
	Value  float64 `yaml:"value"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Job: JobConfig{
			Workers:    4,
			HowMany:    10,
			Cursor:     "slice",
			ChanBuffer: 64,
		},
		Database: DatabaseConfig{DSN: "tasteworker.db"},
		Engine: EngineConfig{
			Kind:       "similarity",
			Similarity: SimilarityConfig{Measure: "cosine"},
			Remote: RemoteConfig{
				Timeout:    10 * time.Second,
				DNSRefresh: 5 * time.Minute,
			},
			Breaker: BreakerConfig{
				ErrorThreshold: 0.50,
				MinSamples:     20,
				WindowSeconds:  30,
				OpenTimeout:    10 * time.Second,
			},
			RateLimit: RateLimitConfig{Burst: 1},
		},
		Cache: CacheConfig{
			Enabled: true,
			MaxSize: 100_000,
		},
		Sink: SinkConfig{
			Kind:      "batch",
			QueueSize: 1000,
			BatchSize: 100,
		},
		Admin: AdminConfig{
			Addr:            ":8081",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads and parses a YAML config file, expanding environment variables.
// The result is validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Job.Workers <= 0 {
		errs = append(errs, fmt.Errorf("job.workers must be positive, got %d", c.Job.Workers))
	}
	if c.Job.HowMany <= 0 {
		errs = append(errs, fmt.Errorf("job.how_many must be positive, got %d", c.Job.HowMany))
	}
	switch c.Job.Cursor {
	case "slice", "rows", "chan":
	default:
		errs = append(errs, fmt.Errorf("job.cursor: unknown kind %q", c.Job.Cursor))
	}
	switch c.Engine.Kind {
	case "similarity":
		switch c.Engine.Similarity.Measure {
		case "", "cosine", "tanimoto":
		default:
			errs = append(errs, fmt.Errorf("engine.similarity.measure: unknown measure %q", c.Engine.Similarity.Measure))
		}
	case "remote":
		if c.Engine.Remote.BaseURL == "" {
			errs = append(errs, errors.New("engine.remote.base_url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("engine.kind: unknown kind %q", c.Engine.Kind))
	}
	if b := c.Engine.Breaker; b.Enabled && (b.ErrorThreshold <= 0 || b.ErrorThreshold > 1.5) {
		errs = append(errs, fmt.Errorf("engine.breaker.error_threshold out of range: %v", b.ErrorThreshold))
	}
	if c.Engine.RateLimit.PerSecond < 0 {
		errs = append(errs, errors.New("engine.rate_limit.per_second must not be negative"))
	}
	switch c.Sink.Kind {
	case "batch", "direct":
	default:
		errs = append(errs, fmt.Errorf("sink.kind: unknown kind %q", c.Sink.Kind))
	}
	if c.Cache.Enabled && c.Cache.MaxSize <= 0 {
		errs = append(errs, errors.New("cache.max_size must be positive when the cache is enabled"))
	}
	if s := c.Telemetry.Tracing.SampleRate; s < 0 || s > 1 {
		errs = append(errs, fmt.Errorf("telemetry.tracing.sample_rate out of range: %v", s))
	}
	return errors.Join(errs...)
}
