// Package config loads application configuration from environment
// variables. Every required field is validated at startup so a
// misconfigured process fails before serving anything.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment
// variables.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Redis configuration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Solana configuration. RPCEndpoints holds one or more RPC URLs; the
	// client picks one at random per process to spread load.
	RPCEndpoints []string

	// Price API configuration. Empty disables USD-denominated dust checks.
	PriceAPIURL string

	// Fetch configuration
	SignaturePageLimit int
	MaxSignaturePages  int
	FetchWindow        time.Duration
	RequestDelay       time.Duration

	// Spam filter configuration
	MinSolAmount      float64
	MinTokenAmountUSD float64
	MinConfidence     float64
	AllowFailed       bool

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Polling configuration
	DefaultPollInterval time.Duration
	MinPollInterval     time.Duration
}

// Load reads configuration from environment variables and validates all
// required fields. All validation errors are returned together.
func Load() (*Config, error) {
	// Pick up a local .env file when present; real environment wins.
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	cfg.RedisAddr = getEnvOrDefault("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	redisDB, err := parseInt("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RedisDB = redisDB
	}
	cacheTTL, err := parseDuration("CACHE_TTL", "30m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.CacheTTL = cacheTTL
	}

	// SOLANA_RPC_URLS is a comma-separated list; SOLANA_RPC_URL is the
	// single-endpoint fallback.
	if urls := os.Getenv("SOLANA_RPC_URLS"); urls != "" {
		for _, u := range strings.Split(urls, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.RPCEndpoints = append(cfg.RPCEndpoints, u)
			}
		}
	} else if url := os.Getenv("SOLANA_RPC_URL"); url != "" {
		cfg.RPCEndpoints = []string{url}
	}
	if len(cfg.RPCEndpoints) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URLS or SOLANA_RPC_URL is required"))
	}

	cfg.PriceAPIURL = os.Getenv("PRICE_API_URL")

	pageLimit, err := parseInt("SIGNATURE_PAGE_LIMIT", 100)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SignaturePageLimit = pageLimit
	}
	maxPages, err := parseInt("MAX_SIGNATURE_PAGES", 10)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MaxSignaturePages = maxPages
	}
	window, err := parseDuration("FETCH_WINDOW", "2160h") // 90 days
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.FetchWindow = window
	}
	delay, err := parseDuration("RPC_REQUEST_DELAY", "600ms")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RequestDelay = delay
	}

	minSol, err := parseFloat("SPAM_MIN_SOL_AMOUNT", 0.001)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MinSolAmount = minSol
	}
	minTokenUSD, err := parseFloat("SPAM_MIN_TOKEN_AMOUNT_USD", 0.01)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MinTokenAmountUSD = minTokenUSD
	}
	minConfidence, err := parseFloat("SPAM_MIN_CONFIDENCE", 0.5)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MinConfidence = minConfidence
	}
	cfg.AllowFailed = os.Getenv("SPAM_ALLOW_FAILED") == "true"

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "soltrace-wallet-polling")

	defaultInterval, err := parseDuration("DEFAULT_POLL_INTERVAL", "60s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DefaultPollInterval = defaultInterval
	}
	minInterval, err := parseDuration("MIN_POLL_INTERVAL", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MinPollInterval = minInterval
	}
	if cfg.MinPollInterval > cfg.DefaultPollInterval {
		errs = append(errs, fmt.Errorf("MIN_POLL_INTERVAL (%v) cannot be greater than DEFAULT_POLL_INTERVAL (%v)",
			cfg.MinPollInterval, cfg.DefaultPollInterval))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}
	return cfg, nil
}

// MustLoad is like Load but panics on invalid configuration. Used during
// server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks a Config built in code rather than loaded from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}
	if len(c.RPCEndpoints) == 0 {
		errs = append(errs, fmt.Errorf("RPCEndpoints is required"))
	}
	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}
	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}
	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}
	if c.SignaturePageLimit <= 0 || c.SignaturePageLimit > 1000 {
		errs = append(errs, fmt.Errorf("SignaturePageLimit must be in (0, 1000]"))
	}
	if c.MaxSignaturePages <= 0 {
		errs = append(errs, fmt.Errorf("MaxSignaturePages must be positive"))
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("MinConfidence must be in [0, 1]"))
	}
	if c.MinPollInterval > c.DefaultPollInterval {
		errs = append(errs, fmt.Errorf("MinPollInterval cannot be greater than DefaultPollInterval"))
	}
	if c.DefaultPollInterval < time.Second {
		errs = append(errs, fmt.Errorf("DefaultPollInterval must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid float %q: %w", key, value, err)
	}
	return result, nil
}
