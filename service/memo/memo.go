// Package memo builds the on-chain memo payload that anchors a generated
// report: "WalletReport:" followed by the sha256 hex of the report JSON.
// Actually sending the memo requires a transaction signing endpoint, so
// only dry runs complete; a configured AgentWallet is detected and reported
// but never used to sign.
package memo

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// PayloadPrefix precedes the report hash in the memo payload.
const PayloadPrefix = "WalletReport:"

// PayloadFileName is the artifact written next to the report files.
const PayloadFileName = "memo_payload.txt"

// ErrSigningUnavailable is returned for non-dry-run publishes when an
// AgentWallet config exists but no signing endpoint is available.
var ErrSigningUnavailable = errors.New(
	"AgentWallet config detected, but memo publish requires a Solana transaction signing endpoint which is not available; run with --dry-run to produce the payload only")

// AgentWalletConfig mirrors ~/.agentwallet/config.json. Only the fields we
// validate are listed with their required status.
type AgentWalletConfig struct {
	Username      string `json:"username"`
	Email         string `json:"email,omitempty"`
	SolanaAddress string `json:"solanaAddress,omitempty"`
	APIToken      string `json:"apiToken"`
}

// PublishOptions controls a memo publish attempt.
type PublishOptions struct {
	OutDir string
	DryRun bool
}

// Memo prepares and (in dry-run form) publishes report memo payloads.
type Memo struct {
	logger     *slog.Logger
	configPath string
}

// New creates a Memo using the default AgentWallet config location.
func New(logger *slog.Logger) *Memo {
	return &Memo{
		logger:     logger,
		configPath: defaultConfigPath(),
	}
}

// Payload computes the memo payload for a report body.
func Payload(reportJSON []byte) string {
	sum := sha256.Sum256(reportJSON)
	return PayloadPrefix + hex.EncodeToString(sum[:])
}

// Publish reads a report JSON file, writes its memo payload to the output
// directory, and returns the payload. With DryRun set that is all it does;
// without it, the publish fails either because no AgentWallet is configured
// or because no signing endpoint exists.
func (m *Memo) Publish(reportPath string, opts PublishOptions) (string, error) {
	reportJSON, err := os.ReadFile(reportPath)
	if err != nil {
		return "", fmt.Errorf("failed to read report: %w", err)
	}

	payload := Payload(reportJSON)

	if opts.OutDir != "" {
		if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
		payloadPath := filepath.Join(opts.OutDir, PayloadFileName)
		if err := os.WriteFile(payloadPath, []byte(payload), 0o644); err != nil {
			return "", fmt.Errorf("failed to write memo payload: %w", err)
		}
		m.logger.Info("wrote memo payload", "path", payloadPath)
	}

	if opts.DryRun {
		return payload, nil
	}

	cfg := m.loadConfig()
	if cfg == nil {
		return "", errors.New(agentWalletHelp())
	}

	return "", ErrSigningUnavailable
}

// ConfigPath returns the AgentWallet config location in use.
func (m *Memo) ConfigPath() string {
	return m.configPath
}

// Config returns the AgentWallet config, or nil when none is usable.
func (m *Memo) Config() *AgentWalletConfig {
	return m.loadConfig()
}

// loadConfig reads the AgentWallet config, returning nil when it is
// missing, unparseable or lacks the required fields.
func (m *Memo) loadConfig() *AgentWalletConfig {
	raw, err := os.ReadFile(m.configPath)
	if err != nil {
		return nil
	}

	var cfg AgentWalletConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		m.logger.Warn("failed to parse AgentWallet config", "path", m.configPath, "error", err)
		return nil
	}
	if cfg.Username == "" || cfg.APIToken == "" {
		return nil
	}
	return &cfg
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".agentwallet", "config.json")
}

func agentWalletHelp() string {
	return "AgentWallet not configured.\n" +
		"Expected config at ~/.agentwallet/config.json with apiToken.\n" +
		"Follow: https://agentwallet.mcpay.tech/skill.md\n" +
		"Connect flow: POST /api/connect/start -> POST /api/connect/complete"
}
