package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	LogFile  string
	HTTPPort string
	Locale   string

	// Backend API
	APIBaseURL  string
	APIKey      string
	AuthToken   string
	HTTPTimeout time.Duration

	// Chain
	Network     string
	NetworkFile string
	RPCURL      string
	PrivateKey  string
	TxTimeout   time.Duration

	// Orders
	OrderNonce          int64
	LimitOrderTTL       time.Duration
	MarketOrderTTL      time.Duration
	MarketFallbackClamp bool
	ApprovalPolicy      string // "unlimited" or "exact"

	// Polling
	BookPollInterval     time.Duration
	PositionPollInterval time.Duration
	MarketCacheTTL       time.Duration
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),
		Locale:   getEnvOrDefault("LOCALE", "en"),

		APIBaseURL:  strings.TrimRight(getEnvOrDefault("PREDICT_API_URL", "https://api.predict.fun/v1"), "/"),
		APIKey:      os.Getenv("PREDICT_API_KEY"),
		AuthToken:   os.Getenv("PREDICT_AUTH_TOKEN"),
		HTTPTimeout: getDurationOrDefault("HTTP_TIMEOUT", 10*time.Second),

		Network:     getEnvOrDefault("NETWORK", "bsc"),
		NetworkFile: os.Getenv("NETWORK_FILE"),
		RPCURL:      os.Getenv("RPC_URL"),
		PrivateKey:  os.Getenv("PRIVATE_KEY"),
		TxTimeout:   getDurationOrDefault("TX_TIMEOUT", 2*time.Minute),

		OrderNonce:          getInt64OrDefault("ORDER_NONCE", 0),
		LimitOrderTTL:       getDurationOrDefault("LIMIT_ORDER_TTL", 0),
		MarketOrderTTL:      getDurationOrDefault("MARKET_ORDER_TTL", 5*time.Minute),
		MarketFallbackClamp: getBoolOrDefault("MARKET_FALLBACK_CLAMP", false),
		ApprovalPolicy:      getEnvOrDefault("APPROVAL_POLICY", "unlimited"),

		BookPollInterval:     getDurationOrDefault("BOOK_POLL_INTERVAL", 3*time.Second),
		PositionPollInterval: getDurationOrDefault("POSITION_POLL_INTERVAL", 30*time.Second),
		MarketCacheTTL:       getDurationOrDefault("MARKET_CACHE_TTL", 5*time.Minute),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.APIBaseURL == "" {
		return fmt.Errorf("PREDICT_API_URL cannot be empty")
	}

	if c.Network == "" {
		return fmt.Errorf("NETWORK cannot be empty")
	}

	if c.OrderNonce < 0 {
		return fmt.Errorf("ORDER_NONCE must be non-negative, got %d", c.OrderNonce)
	}

	if c.LimitOrderTTL < 0 {
		return fmt.Errorf("LIMIT_ORDER_TTL must be non-negative, got %v", c.LimitOrderTTL)
	}

	if c.MarketOrderTTL <= 0 {
		return fmt.Errorf("MARKET_ORDER_TTL must be positive, got %v", c.MarketOrderTTL)
	}

	if c.ApprovalPolicy != "unlimited" && c.ApprovalPolicy != "exact" {
		return fmt.Errorf("APPROVAL_POLICY must be 'unlimited' or 'exact', got %q", c.ApprovalPolicy)
	}

	if c.BookPollInterval <= 0 || c.PositionPollInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}

	if c.Locale != "en" && c.Locale != "zh" {
		return fmt.Errorf("LOCALE must be 'en' or 'zh', got %q", c.Locale)
	}

	return nil
}

// RequireWallet checks the settings needed for on-chain and signing commands.
func (c *Config) RequireWallet() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY cannot be empty")
	}
	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
