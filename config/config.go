package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration. Values come from, in order of
// precedence: FQ_* environment variables, an optional YAML file, defaults.
type Config struct {
	// Upstream session
	Region     string        `mapstructure:"region"`
	Lang       string        `mapstructure:"lang"`
	Timeout    time.Duration `mapstructure:"timeout"`
	ProxyURL   string        `mapstructure:"proxy"`
	UserAgent  string        `mapstructure:"user_agent"`
	DisableSSL bool          `mapstructure:"disable_ssl"` // skip TLS verification, for intercepting proxies

	// Auth
	AuthTTL        time.Duration `mapstructure:"auth_ttl"`
	AuthMinRefresh time.Duration `mapstructure:"auth_min_refresh"`

	// Batch
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`

	// Infrastructure
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	MetricsAddr   string `mapstructure:"metrics_addr"`
	LogLevel      string `mapstructure:"log_level"`

	// Watch mode: comma-separated symbols polled on a cron schedule
	WatchSymbols  string `mapstructure:"watch_symbols"`
	WatchSchedule string `mapstructure:"watch_schedule"`
}

var keys = map[string]any{
	"region":           "US",
	"lang":             "en-US",
	"timeout":          10 * time.Second,
	"proxy":            "",
	"user_agent":       "",
	"disable_ssl":      false,
	"auth_ttl":         time.Hour,
	"auth_min_refresh": 60 * time.Second,
	"max_concurrency":  10,
	"cache_ttl":        time.Duration(0),
	"redis_addr":       "",
	"redis_password":   "",
	"sqlite_path":      "data/charts.db",
	"metrics_addr":     ":9090",
	"log_level":        "info",
	"watch_symbols":    "AAPL,MSFT,NVDA",
	"watch_schedule":   "@every 1m",
}

// Load reads configuration. path may name a YAML file or be empty.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	for k, def := range keys {
		v.SetDefault(k, def)
	}
	v.SetEnvPrefix("FQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows about; bind them so
	// Unmarshal sees env overrides too.
	for k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the client cannot run with.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("config: timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("config: max_concurrency must be >= 1, got %d", c.MaxConcurrency)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("config: cache_ttl must not be negative, got %s", c.CacheTTL)
	}
	if c.AuthMinRefresh < 0 || c.AuthTTL < 0 {
		return errors.New("config: auth durations must not be negative")
	}
	return nil
}

// ParseSymbols parses WatchSymbols into an upper-cased, de-duplicated slice.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.WatchSymbols, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
