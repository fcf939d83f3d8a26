package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/ledgerlens/ledgerlens/service/analysis"
	"github.com/ledgerlens/ledgerlens/service/config"
	"github.com/ledgerlens/ledgerlens/service/db"
	"github.com/ledgerlens/ledgerlens/service/metrics"
	"github.com/ledgerlens/ledgerlens/service/nats"
	"github.com/ledgerlens/ledgerlens/service/solana"
)

// Fetcher is the slice of the Solana client the runner needs. Tests swap in
// a fake to run the whole pipeline without an RPC node.
type Fetcher interface {
	FetchSignatures(ctx context.Context, wallet solanago.PublicKey, since time.Time, maxTx int) ([]solana.SignatureInfo, error)
	FetchRecords(ctx context.Context, wallet solanago.PublicKey, sigs []solana.SignatureInfo, concurrency int, delay time.Duration) ([]*analysis.TxRecord, error)
}

// RunParams describes one report generation request.
type RunParams struct {
	Address           string
	Days              int
	RPCURL            string
	OutDir            string
	MaxTx             int
	Concurrency       int
	Delay             time.Duration
	KnownProgramsPath string
}

// Runner orchestrates a full report run: fetch history, analyze, write the
// report artifacts, and notify optional downstream consumers.
type Runner struct {
	logger     *slog.Logger
	metrics    *metrics.Metrics
	publisher  nats.Publisher
	store      *db.Store
	newFetcher func(rpcURL string) Fetcher
	now        func() time.Time
}

// NewRunner creates a runner that fetches from real Solana RPC nodes.
// Publisher and store are optional; nil disables the integration.
func NewRunner(m *metrics.Metrics, publisher nats.Publisher, store *db.Store, logger *slog.Logger) *Runner {
	return &Runner{
		logger:    logger,
		metrics:   m,
		publisher: publisher,
		store:     store,
		newFetcher: func(rpcURL string) Fetcher {
			return solana.NewClient(solana.NewRPCClient(rpcURL), endpointLabel(rpcURL), m, logger)
		},
		now: time.Now,
	}
}

// Run executes one report generation and returns the report together with
// the sha256 hex hash of its JSON body.
func (r *Runner) Run(ctx context.Context, params RunParams) (*analysis.Report, string, error) {
	start := r.now()

	report, hash, err := r.run(ctx, params)

	status := "success"
	if err != nil {
		status = "error"
	}
	r.metrics.RecordReportGenerated(status, r.now().Sub(start).Seconds())

	return report, hash, err
}

func (r *Runner) run(ctx context.Context, params RunParams) (*analysis.Report, string, error) {
	wallet, err := solanago.PublicKeyFromBase58(params.Address)
	if err != nil {
		return nil, "", fmt.Errorf("invalid wallet address %q: %w", params.Address, err)
	}
	if params.Days < 1 {
		return nil, "", fmt.Errorf("days must be at least 1, got %d", params.Days)
	}
	if params.MaxTx < 1 {
		return nil, "", fmt.Errorf("maxTx must be at least 1, got %d", params.MaxTx)
	}

	rpcURL := params.RPCURL
	if rpcURL == "" {
		rpcURL = config.DefaultMainnetRPC
	}
	concurrency := params.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	fetcher := r.newFetcher(rpcURL)
	since := r.now().UTC().Add(-time.Duration(params.Days) * 24 * time.Hour)

	r.logger.InfoContext(ctx, "starting report run",
		"address", params.Address,
		"days", params.Days,
		"max_tx", params.MaxTx,
	)

	sigs, err := fetcher.FetchSignatures(ctx, wallet, since, params.MaxTx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch signatures: %w", err)
	}

	records, err := fetcher.FetchRecords(ctx, wallet, sigs, concurrency, params.Delay)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch transactions: %w", err)
	}

	programs := LoadKnownPrograms(params.KnownProgramsPath, r.logger)

	report := analysis.BuildReport(analysis.BuildReportParams{
		Address:       params.Address,
		Days:          params.Days,
		RPCURL:        rpcURL,
		Records:       records,
		KnownPrograms: programs,
		Now:           r.now,
	})

	for action, count := range report.Summary.ActionCounts {
		r.metrics.RecordActionClassified(string(action), count)
	}

	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal report: %w", err)
	}
	sum := sha256.Sum256(reportJSON)
	hash := hex.EncodeToString(sum[:])

	if params.OutDir != "" {
		if err := writeArtifacts(params.OutDir, report, reportJSON, hash); err != nil {
			return nil, "", err
		}
	}

	// Persistence and publishing are best-effort: the report is already
	// complete, so downstream failures are logged rather than returned.
	if r.store != nil {
		if _, err := r.store.SaveReport(ctx, report, hash); err != nil {
			r.logger.ErrorContext(ctx, "failed to persist report run",
				"address", params.Address,
				"hash", hash,
				"error", err,
			)
		}
	}
	if r.publisher != nil {
		r.publishEvent(ctx, report, hash)
	}

	r.logger.InfoContext(ctx, "report run complete",
		"address", params.Address,
		"tx_scanned", report.Metadata.TxScanned,
		"total_tx", report.Summary.TotalTx,
		"hash", hash,
	)

	return report, hash, nil
}

func (r *Runner) publishEvent(ctx context.Context, report *analysis.Report, hash string) {
	event := nats.FromReport(report, hash)
	subject := fmt.Sprintf("reports.%s", event.Address)

	start := r.now()
	err := r.publisher.PublishReport(ctx, event)
	duration := r.now().Sub(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		r.logger.ErrorContext(ctx, "failed to publish report event",
			"subject", subject,
			"error", err,
		)
	}
	r.metrics.RecordNATSPublish(subject, status, duration)
}

// writeArtifacts writes report.json, report.md and report.hash.txt to the
// output directory, creating it if needed.
func writeArtifacts(outDir string, report *analysis.Report, reportJSON []byte, hash string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	files := map[string][]byte{
		"report.json":     reportJSON,
		"report.md":       []byte(analysis.RenderMarkdown(report)),
		"report.hash.txt": []byte(hash),
	}
	for name, data := range files {
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	return nil
}

// endpointLabel reduces an RPC URL to a low-cardinality metrics label.
func endpointLabel(rpcURL string) string {
	u, err := url.Parse(rpcURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
