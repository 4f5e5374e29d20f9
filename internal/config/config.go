package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrAPIURLRequired is returned when neither FORECAST_API_URL nor api.base_url is set.
var ErrAPIURLRequired = errors.New("FORECAST_API_URL required (set env, .env or api.base_url)")

// Config holds service configuration loaded from YAML, .env and env.
type Config struct {
	ServerPort string

	ForecastAPIURL string
	APITimeout     time.Duration

	RequestTimeout    time.Duration
	LocationStaleTime time.Duration
	ForecastTTL       time.Duration
	CoalesceTimeout   time.Duration
	PrefetchEnabled   bool
	PrefetchTimeout   time.Duration
	TrustForwardedFor bool
	TimezoneLookup    bool

	CacheBackend string // "in_memory" or "memcached"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitRPS   int
	RateLimitBurst int

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerTimeout          time.Duration

	ShutdownTimeout time.Duration

	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	IdleThresholdReqPerMin int
	IdleWindow             time.Duration
	MinimumLifespan        time.Duration
	DegradedWindow         time.Duration
	DegradedErrorPct       int
}

type fileConfig struct {
	Server struct {
		Port              string `yaml:"port"`
		TrustForwardedFor bool   `yaml:"trust_forwarded_for"`
	} `yaml:"server"`

	API struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Location struct {
		StaleTime      string `yaml:"stale_time"`
		TimezoneLookup *bool  `yaml:"timezone_lookup"`
	} `yaml:"location"`

	Forecast struct {
		TTL             string `yaml:"ttl"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
		Prefetch        struct {
			Enabled bool   `yaml:"enabled"`
			Timeout string `yaml:"timeout"`
		} `yaml:"prefetch"`
	} `yaml:"forecast"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdPct   int    `yaml:"overload_threshold_pct"`
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		IdleWindow             string `yaml:"idle_window"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedErrorPct       int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev). A .env file in the
// working directory is loaded first; it never overrides variables already set.
// The API base URL comes from FORECAST_API_URL or api.base_url. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	cfg.ServerPort = strings.TrimSpace(os.Getenv("PORT"))
	if cfg.ServerPort == "" {
		cfg.ServerPort = fc.Server.Port
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.TrustForwardedFor = fc.Server.TrustForwardedFor

	cfg.ForecastAPIURL = strings.TrimSpace(os.Getenv("FORECAST_API_URL"))
	if cfg.ForecastAPIURL == "" {
		cfg.ForecastAPIURL = strings.TrimSpace(fc.API.BaseURL)
	}
	if cfg.ForecastAPIURL == "" {
		return nil, ErrAPIURLRequired
	}
	cfg.APITimeout = parseDurationOrZero(fc.API.Timeout, 5*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.LocationStaleTime = parseDuration(fc.Location.StaleTime, 30*time.Minute)
	cfg.TimezoneLookup = true
	if fc.Location.TimezoneLookup != nil {
		cfg.TimezoneLookup = *fc.Location.TimezoneLookup
	}

	// A zero forecast TTL is honoured and disables forecast caching.
	cfg.ForecastTTL = parseDurationOrZero(fc.Forecast.TTL, 5*time.Minute)
	cfg.CoalesceTimeout = parseDurationOrZero(fc.Forecast.CoalesceTimeout, 10*time.Second)
	cfg.PrefetchEnabled = fc.Forecast.Prefetch.Enabled
	cfg.PrefetchTimeout = parseDuration(fc.Forecast.Prefetch.Timeout, 10*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)

	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 50)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 100)
	cfg.BreakerFailureThreshold = positiveOr(fc.Reliability.CircuitBreaker.FailureThreshold, 5)
	cfg.BreakerSuccessThreshold = positiveOr(fc.Reliability.CircuitBreaker.SuccessThreshold, 2)
	cfg.BreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = positiveOr(fc.Lifecycle.OverloadThresholdPct, 80)
	cfg.IdleThresholdReqPerMin = positiveOr(fc.Lifecycle.IdleThresholdReqPerMin, 5)
	cfg.IdleWindow = parseDuration(fc.Lifecycle.IdleWindow, 5*time.Minute)
	cfg.MinimumLifespan = parseDuration(fc.Lifecycle.MinimumLifespan, 5*time.Minute)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = positiveOr(fc.Lifecycle.DegradedErrorPct, 50)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func positiveOr(v, defaultVal int) int {
	if v <= 0 {
		return defaultVal
	}
	return v
}

// validate performs post-load validation. It raises RequestTimeout above
// APITimeout so a page request can outlive the upstream call it waits on.
func validate(cfg *Config) error {
	if cfg.APITimeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.APITimeout {
		cfg.RequestTimeout = cfg.APITimeout + time.Second
	}
	if cfg.ForecastTTL < 0 {
		return fmt.Errorf("forecast.ttl must not be negative")
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
