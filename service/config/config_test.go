package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cleanupEnv() {
	for _, key := range []string{
		"SERVER_ADDR",
		"LOG_LEVEL",
		"SOLANA_RPC_URL",
		"DATABASE_URL",
		"NATS_URL",
		"REPORT_DAYS",
		"REPORT_MAX_TX",
		"FETCH_CONCURRENCY",
		"FETCH_DELAY",
		"OUTPUT_DIR",
		"KNOWN_PROGRAMS_PATH",
	} {
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultMainnetRPC, cfg.SolanaRPCURL)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, 30, cfg.ReportDays)
	assert.Equal(t, 1000, cfg.MaxTx)
	assert.Equal(t, 3, cfg.FetchConcurrency)
	assert.Equal(t, 400*time.Millisecond, cfg.FetchDelay)
	assert.Equal(t, "output", cfg.OutputDir)
}

func TestLoad_Overrides(t *testing.T) {
	cleanupEnv()
	os.Setenv("SOLANA_RPC_URL", "https://rpc.example.test")
	os.Setenv("DATABASE_URL", "postgres://localhost/ledgerlens")
	os.Setenv("NATS_URL", "nats://localhost:4222")
	os.Setenv("REPORT_DAYS", "7")
	os.Setenv("REPORT_MAX_TX", "250")
	os.Setenv("FETCH_CONCURRENCY", "5")
	os.Setenv("FETCH_DELAY", "1s")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.test", cfg.SolanaRPCURL)
	assert.Equal(t, "postgres://localhost/ledgerlens", cfg.DatabaseURL)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, 7, cfg.ReportDays)
	assert.Equal(t, 250, cfg.MaxTx)
	assert.Equal(t, 5, cfg.FetchConcurrency)
	assert.Equal(t, time.Second, cfg.FetchDelay)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"non-integer days", "REPORT_DAYS", "soon", "not an integer"},
		{"zero days", "REPORT_DAYS", "0", "at least 1"},
		{"zero max tx", "REPORT_MAX_TX", "0", "at least 1"},
		{"zero concurrency", "FETCH_CONCURRENCY", "0", "at least 1"},
		{"bad delay", "FETCH_DELAY", "fast", "not a duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanupEnv()
			os.Setenv(tt.key, tt.value)
			defer cleanupEnv()

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
