package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
// PDFPOOL_POOL_MIN_SIZE maps to pool.min_size.
const EnvPrefix = "PDFPOOL"

// Selection policies understood by the pool.
const (
	PolicyFirst     = "first"
	PolicyLeastUsed = "least_used"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host"`                                     // default: "0.0.0.0"
	Port int    `mapstructure:"port" validate:"gt=0,lt=65536"`            // default: 8080
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"` // default: "release"

	// ShutdownTimeout bounds HTTP draining and, separately, pool shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"` // default: 15s
}

// BrowserConfig controls how each worker's Chromium process is launched.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool `mapstructure:"headless"` // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `mapstructure:"no_sandbox"` // default: false

	// Bin overrides the Chromium binary path.
	Bin string `mapstructure:"bin"`

	// LaunchTimeout bounds process start plus CDP connect.
	LaunchTimeout time.Duration `mapstructure:"launch_timeout" validate:"gt=0"` // default: 30s
}

// PoolConfig controls worker pool sizing, retries and health checking.
type PoolConfig struct {
	MinSize int `mapstructure:"min_size" validate:"gte=0"`                  // default: 2
	MaxSize int `mapstructure:"max_size" validate:"gte=1,gtefield=MinSize"` // default: 5

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0,lte=10"` // default: 3

	// DefaultTimeout is the per-attempt deadline when the request has none.
	DefaultTimeout time.Duration `mapstructure:"default_timeout" validate:"gt=0"` // default: 45s

	// BackoffBase is multiplied by 2^attempt between retries.
	BackoffBase time.Duration `mapstructure:"backoff_base" validate:"gte=0"` // default: 1s

	HealthCheckInterval time.Duration `mapstructure:"health_check_interval" validate:"gt=0"` // default: 60s
	ProbeTimeout        time.Duration `mapstructure:"probe_timeout" validate:"gt=0"`         // default: 5s
	MaxWorkerAge        time.Duration `mapstructure:"max_worker_age" validate:"gt=0"`        // default: 30m
	MaxUsageCount       int64         `mapstructure:"max_usage_count" validate:"gt=0"`       // default: 100

	// SelectionPolicy is "first" or "least_used".
	SelectionPolicy string `mapstructure:"selection_policy" validate:"oneof=first least_used"` // default: "first"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool `mapstructure:"enabled"` // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string `mapstructure:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gt=0"` // default: 5

	// Burst is the maximum burst size per API key.
	Burst int `mapstructure:"burst" validate:"gt=0"` // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"` // default: "info"
	Format string `mapstructure:"format" validate:"oneof=json text"`            // default: "json"
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"` // default: true
}

// CacheConfig controls the in-memory result cache used for max_age requests.
type CacheConfig struct {
	Enabled    bool `mapstructure:"enabled"`                     // default: true
	MaxEntries int  `mapstructure:"max_entries" validate:"gt=0"` // default: 256
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Mode:            "release",
			ShutdownTimeout: 15 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:      true,
			LaunchTimeout: 30 * time.Second,
		},
		Pool: PoolConfig{
			MinSize:             2,
			MaxSize:             5,
			MaxRetries:          3,
			DefaultTimeout:      45 * time.Second,
			BackoffBase:         time.Second,
			HealthCheckInterval: 60 * time.Second,
			ProbeTimeout:        5 * time.Second,
			MaxWorkerAge:        30 * time.Minute,
			MaxUsageCount:       100,
			SelectionPolicy:     PolicyFirst,
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 256,
		},
	}
}

// Load reads configuration from an optional file and PDFPOOL_* environment
// variables on top of Default, then validates the result. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint and reports them in one error.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("browser.headless", d.Browser.Headless)
	v.SetDefault("browser.no_sandbox", d.Browser.NoSandbox)
	v.SetDefault("browser.bin", d.Browser.Bin)
	v.SetDefault("browser.launch_timeout", d.Browser.LaunchTimeout)

	v.SetDefault("pool.min_size", d.Pool.MinSize)
	v.SetDefault("pool.max_size", d.Pool.MaxSize)
	v.SetDefault("pool.max_retries", d.Pool.MaxRetries)
	v.SetDefault("pool.default_timeout", d.Pool.DefaultTimeout)
	v.SetDefault("pool.backoff_base", d.Pool.BackoffBase)
	v.SetDefault("pool.health_check_interval", d.Pool.HealthCheckInterval)
	v.SetDefault("pool.probe_timeout", d.Pool.ProbeTimeout)
	v.SetDefault("pool.max_worker_age", d.Pool.MaxWorkerAge)
	v.SetDefault("pool.max_usage_count", d.Pool.MaxUsageCount)
	v.SetDefault("pool.selection_policy", d.Pool.SelectionPolicy)

	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.api_keys", d.Auth.APIKeys)

	v.SetDefault("rate_limit.requests_per_second", d.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
}
