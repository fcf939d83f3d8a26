package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultMainnetRPC is the public mainnet RPC endpoint used when no other
// endpoint is configured.
const DefaultMainnetRPC = "https://api.mainnet-beta.solana.com"

// DefaultDevnetRPC is the public devnet RPC endpoint.
const DefaultDevnetRPC = "https://api.devnet.solana.com"

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Solana configuration
	SolanaRPCURL string

	// Optional integrations; empty means the integration is disabled.
	DatabaseURL string
	NATSURL     string

	// Report defaults
	ReportDays        int
	MaxTx             int
	FetchConcurrency  int
	FetchDelay        time.Duration
	OutputDir         string
	KnownProgramsPath string
}

// Load reads configuration from environment variables and validates all fields.
// Returns an error if any configuration value is invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", DefaultMainnetRPC)

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	days, err := parseInt("REPORT_DAYS", "30")
	if err != nil {
		errs = append(errs, err)
	} else if days < 1 {
		errs = append(errs, fmt.Errorf("REPORT_DAYS must be at least 1, got %d", days))
	} else {
		cfg.ReportDays = days
	}

	maxTx, err := parseInt("REPORT_MAX_TX", "1000")
	if err != nil {
		errs = append(errs, err)
	} else if maxTx < 1 {
		errs = append(errs, fmt.Errorf("REPORT_MAX_TX must be at least 1, got %d", maxTx))
	} else {
		cfg.MaxTx = maxTx
	}

	concurrency, err := parseInt("FETCH_CONCURRENCY", "3")
	if err != nil {
		errs = append(errs, err)
	} else if concurrency < 1 {
		errs = append(errs, fmt.Errorf("FETCH_CONCURRENCY must be at least 1, got %d", concurrency))
	} else {
		cfg.FetchConcurrency = concurrency
	}

	delay, err := parseDuration("FETCH_DELAY", "400ms")
	if err != nil {
		errs = append(errs, err)
	} else if delay < 0 {
		errs = append(errs, fmt.Errorf("FETCH_DELAY cannot be negative, got %v", delay))
	} else {
		cfg.FetchDelay = delay
	}

	cfg.OutputDir = getEnvOrDefault("OUTPUT_DIR", "output")
	cfg.KnownProgramsPath = os.Getenv("KNOWN_PROGRAMS_PATH")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt parses an integer environment variable with a default.
func parseInt(key, defaultValue string) (int, error) {
	value := getEnvOrDefault(key, defaultValue)
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not an integer", key, value)
	}
	return n, nil
}

// parseDuration parses a duration environment variable with a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not a duration", key, value)
	}
	return d, nil
}
