package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerlens/ledgerlens/service/config"
	"github.com/ledgerlens/ledgerlens/service/report"
)

const (
	maxAddressLength = 100 // Solana addresses are 44 chars, give buffer

	// API requests run against public RPC nodes with a single worker, so
	// the transaction cap is tighter than the CLI's.
	minAPITx     = 1
	maxAPITx     = 200
	defaultAPITx = 50

	apiConcurrency = 1
	apiFetchDelay  = 800 * time.Millisecond
)

// Valid Solana address characters: base58 (no 0, O, I, l)
var validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

// handleGenerateReport returns a handler that runs a full report for a
// wallet and responds with the report JSON.
// GET /api/v1/report?address={address}&days={days}&maxTx={maxTx}&rpc={rpc}
func handleGenerateReport(runner ReportRunner, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := strings.TrimSpace(r.URL.Query().Get("address"))
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		days := cfg.ReportDays
		if raw := r.URL.Query().Get("days"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				writeError(w, "days must be a positive integer", http.StatusBadRequest)
				return
			}
			days = parsed
		}

		maxTx := defaultAPITx
		if raw := r.URL.Query().Get("maxTx"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, "maxTx must be an integer", http.StatusBadRequest)
				return
			}
			maxTx = parsed
		}
		maxTx = clamp(maxTx, minAPITx, maxAPITx)

		rpcURL := strings.TrimSpace(r.URL.Query().Get("rpc"))
		if rpcURL == "" {
			rpcURL = cfg.SolanaRPCURL
		}

		result, hash, err := runner.Run(r.Context(), report.RunParams{
			Address:           address,
			Days:              days,
			RPCURL:            rpcURL,
			OutDir:            cfg.OutputDir,
			MaxTx:             maxTx,
			Concurrency:       apiConcurrency,
			Delay:             apiFetchDelay,
			KnownProgramsPath: cfg.KnownProgramsPath,
		})
		if err != nil {
			logger.Error("report run failed", "address", address, "error", err)
			writeError(w, "failed to generate report", http.StatusInternalServerError)
			return
		}

		logger.Info("report generated",
			"address", address,
			"days", days,
			"total_tx", result.Summary.TotalTx,
		)

		w.Header().Set("X-Report-Hash", hash)
		writeJSON(w, result, http.StatusOK)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a wallet address for format and length.
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address is required")
	}
	if len(address) > maxAddressLength {
		return fmt.Errorf("address too long")
	}
	if !validAddressRegex.MatchString(address) {
		return fmt.Errorf("address contains invalid characters")
	}
	return nil
}

func clamp(n, lo, hi int) int {
	return max(lo, min(hi, n))
}
