// Package config loads and validates all runtime configuration for the AI
// gateway.
//
// Configuration is read from environment variables or from a config.yaml
// file in the working directory. Environment variables take precedence over
// the YAML file. A .env file, when present, is loaded into the process
// environment first.
//
// Naming convention: env vars use UPPER_SNAKE_CASE; the YAML file uses the
// same names in lower_snake_case. For example AI_API_KEY becomes ai_api_key
// in YAML.
//
// Exactly one vendor is active at a time. Redis is optional: CACHE_MODE=memory
// keeps the response cache in-process and the per-user rate limiter is only
// enabled when REDIS_URL is set.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn, error.
	// Default: info.
	LogLevel string

	// AI is the single active vendor configuration.
	AI providers.Config

	// Features gates each assist operation independently of AI.Enabled.
	Features FeatureFlags

	// Instrumented lists the providers whose calls go through the response
	// cache and the performance monitor. Default: all four.
	Instrumented []string

	// Retry controls per-attempt timeouts and transport retries.
	Retry RetryConfig

	// Redis holds the connection URL for the Redis-backed cache and rate limiter.
	Redis RedisConfig

	// Cache controls response caching.
	Cache CacheConfig

	// History selects where generation records are written.
	History HistoryConfig

	// RateLimit controls the per-user generation limit.
	RateLimit RateLimitConfig
}

// FeatureFlags enables or disables each assist operation.
type FeatureFlags struct {
	Summary           bool
	WritingSuggestion bool
	SEO               bool
	Completion        bool
}

// Enabled reports whether op is switched on.
func (f FeatureFlags) Enabled(op providers.Operation) bool {
	switch op {
	case providers.OpSummary:
		return f.Summary
	case providers.OpWritingSuggestion:
		return f.WritingSuggestion
	case providers.OpSEO:
		return f.SEO
	case providers.OpCompletion:
		return f.Completion
	}
	return false
}

// RetryConfig controls the gateway's attempt loop.
type RetryConfig struct {
	// MaxRetries is the number of extra attempts after the first. Default: 2.
	MaxRetries int

	// Delay is the fixed pause between attempts. Default: 1s.
	Delay time.Duration

	// Timeout is the base per-attempt timeout before vendor, operation and
	// content-length adjustments. Default: 30s.
	Timeout time.Duration
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. Example: redis://localhost:6379
	URL string
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	// Mode selects the cache backend:
	//   "memory" in-process TTL cache (default).
	//   "redis"  shared cache, requires REDIS_URL.
	//   "none"   caching disabled.
	Mode string

	// TTL is the lifetime of a cached response. Default: 5m.
	TTL time.Duration
}

// HistoryConfig selects the generation history backend.
type HistoryConfig struct {
	// Backend is one of "sqlite" (default), "clickhouse" or "none".
	Backend string

	// DSN is the SQLite file path or the ClickHouse DSN.
	// Default: ai_history.db
	DSN string
}

// RateLimitConfig controls per-user rate limiting.
type RateLimitConfig struct {
	// RPMLimit is the maximum generations per minute per user.
	// 0 disables rate limiting. Default: 0.
	RPMLimit int
}

// Load reads configuration from environment variables and (optionally) from
// config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := fromViper(v)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("AI_PROVIDER", providers.OpenAI)
	v.SetDefault("AI_TEMPERATURE", 0.7)
	v.SetDefault("AI_MAX_TOKENS", 1000)
	v.SetDefault("AI_ENABLED", true)

	v.SetDefault("AI_FEATURE_SUMMARY", true)
	v.SetDefault("AI_FEATURE_WRITING_SUGGESTION", true)
	v.SetDefault("AI_FEATURE_SEO", true)
	v.SetDefault("AI_FEATURE_COMPLETION", true)
	v.SetDefault("AI_INSTRUMENTED_PROVIDERS", providers.Known)

	v.SetDefault("AI_MAX_RETRIES", providers.DefaultMaxRetries)
	v.SetDefault("AI_RETRY_DELAY", providers.DefaultRetryDelay.String())
	v.SetDefault("AI_TIMEOUT", providers.DefaultTimeout.String())

	v.SetDefault("CACHE_MODE", "memory")
	v.SetDefault("CACHE_TTL", "5m")

	v.SetDefault("HISTORY_BACKEND", "sqlite")
	v.SetDefault("HISTORY_DSN", "ai_history.db")

	// 0 = disabled.
	v.SetDefault("AI_RPM_LIMIT", 0)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),

		AI: providers.Config{
			Provider:    strings.ToLower(v.GetString("AI_PROVIDER")),
			APIKey:      v.GetString("AI_API_KEY"),
			SecretKey:   v.GetString("AI_SECRET_KEY"),
			TokenURL:    v.GetString("AI_TOKEN_URL"),
			BaseURL:     v.GetString("AI_BASE_URL"),
			Model:       v.GetString("AI_MODEL"),
			Temperature: v.GetFloat64("AI_TEMPERATURE"),
			MaxTokens:   v.GetInt("AI_MAX_TOKENS"),
			Enabled:     v.GetBool("AI_ENABLED"),
		},

		Features: FeatureFlags{
			Summary:           v.GetBool("AI_FEATURE_SUMMARY"),
			WritingSuggestion: v.GetBool("AI_FEATURE_WRITING_SUGGESTION"),
			SEO:               v.GetBool("AI_FEATURE_SEO"),
			Completion:        v.GetBool("AI_FEATURE_COMPLETION"),
		},
		Instrumented: normalizeList(v.GetStringSlice("AI_INSTRUMENTED_PROVIDERS")),

		Retry: RetryConfig{
			MaxRetries: v.GetInt("AI_MAX_RETRIES"),
			Delay:      v.GetDuration("AI_RETRY_DELAY"),
			Timeout:    v.GetDuration("AI_TIMEOUT"),
		},

		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},

		Cache: CacheConfig{
			Mode: strings.ToLower(v.GetString("CACHE_MODE")),
			TTL:  v.GetDuration("CACHE_TTL"),
		},

		History: HistoryConfig{
			Backend: strings.ToLower(v.GetString("HISTORY_BACKEND")),
			DSN:     v.GetString("HISTORY_DSN"),
		},

		RateLimit: RateLimitConfig{
			RPMLimit: v.GetInt("AI_RPM_LIMIT"),
		},
	}
}

// normalizeList accepts both YAML lists and comma-separated env values.
func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validate checks all semantic constraints that cannot be expressed as defaults.
// Vendor credentials are not checked here: a disabled or half-configured AI
// section must not stop the server, it surfaces as a configuration error on
// the first generation instead.
func (c *Config) validate() error {
	if c.AI.Provider != "" && !providers.IsKnown(c.AI.Provider) {
		return fmt.Errorf(
			"config: invalid AI_PROVIDER %q; must be one of: %s",
			c.AI.Provider, strings.Join(providers.Known, ", "),
		)
	}

	for _, name := range c.Instrumented {
		if !providers.IsKnown(name) {
			return fmt.Errorf("config: AI_INSTRUMENTED_PROVIDERS contains unknown provider %q", name)
		}
	}

	if c.Cache.Mode == "redis" && c.Redis.URL == "" {
		return fmt.Errorf(
			"config: REDIS_URL is required when CACHE_MODE=redis; " +
				"set CACHE_MODE=memory to use the built-in in-process cache",
		)
	}

	switch c.Cache.Mode {
	case "redis", "memory", "none":
	default:
		return fmt.Errorf(
			"config: invalid CACHE_MODE %q; must be one of: redis, memory, none",
			c.Cache.Mode,
		)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: CACHE_TTL must be a positive duration")
	}

	switch c.History.Backend {
	case "sqlite", "clickhouse":
		if c.History.DSN == "" {
			return fmt.Errorf("config: HISTORY_DSN is required when HISTORY_BACKEND=%s", c.History.Backend)
		}
	case "none":
	default:
		return fmt.Errorf(
			"config: invalid HISTORY_BACKEND %q; must be one of: sqlite, clickhouse, none",
			c.History.Backend,
		)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf(
			"config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error",
			c.LogLevel,
		)
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("config: AI_MAX_RETRIES must be >= 0, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("config: AI_RETRY_DELAY must not be negative")
	}
	if c.Retry.Timeout <= 0 {
		return fmt.Errorf("config: AI_TIMEOUT must be a positive duration")
	}
	if c.RateLimit.RPMLimit < 0 {
		return fmt.Errorf("config: AI_RPM_LIMIT must be >= 0, got %d", c.RateLimit.RPMLimit)
	}

	return nil
}

// TimeoutPolicy returns the default vendor timeout table rebased on
// AI_TIMEOUT. Vendor entries scale with it: at AI_TIMEOUT=30s deepseek gets
// 60s, at 5s it gets 10s.
func (c *Config) TimeoutPolicy() *providers.TimeoutPolicy {
	p := providers.DefaultTimeoutPolicy().Rebase(c.Retry.Timeout)
	return &p
}

// RetryPolicy returns the retry policy built from AI_MAX_RETRIES and
// AI_RETRY_DELAY.
func (c *Config) RetryPolicy() *providers.RetryPolicy {
	p := providers.NewRetryPolicy(c.Retry.MaxRetries, c.Retry.Delay)
	return &p
}

// Masked returns a copy of the AI section safe to display: the API key and
// secret key are masked.
func (c *Config) Masked() providers.Config {
	out := c.AI
	out.APIKey = MaskKey(out.APIKey)
	out.SecretKey = MaskKey(out.SecretKey)
	return out
}

// MaskKey keeps the first and last four characters of a key and hides the
// rest. Keys of eight characters or fewer are hidden entirely.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
