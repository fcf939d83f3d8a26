package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerlens/ledgerlens/service/analysis"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a requested report run does not exist.
var ErrNotFound = errors.New("report run not found")

// Store provides database operations for persisted report runs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema applies the embedded schema. All statements are idempotent,
// so it is safe to call on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// ReportRun is one persisted report generation.
type ReportRun struct {
	ID          int64
	Address     string
	Days        int
	ReportHash  string
	TxScanned   int
	TotalTx     int
	GeneratedAt time.Time
	Report      *analysis.Report
	CreatedAt   time.Time
}

// ReportRunSummary is a listing row without the report body.
type ReportRunSummary struct {
	ID          int64
	Address     string
	Days        int
	ReportHash  string
	TxScanned   int
	TotalTx     int
	GeneratedAt time.Time
	CreatedAt   time.Time
}

// SaveReport persists a report run keyed by its content hash. Saving the
// same hash twice is a no-op that returns the existing row's id.
func (s *Store) SaveReport(ctx context.Context, report *analysis.Report, hash string) (int64, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal report: %w", err)
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO report_runs (address, days, report_hash, tx_scanned, total_tx, generated_at, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (report_hash) DO UPDATE SET report_hash = EXCLUDED.report_hash
		RETURNING id`,
		report.Metadata.Address,
		report.Metadata.Days,
		hash,
		report.Metadata.TxScanned,
		report.Summary.TotalTx,
		report.Metadata.GeneratedAt,
		body,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save report run: %w", err)
	}

	return id, nil
}

// GetReportByHash retrieves a persisted report run by its content hash.
func (s *Store) GetReportByHash(ctx context.Context, hash string) (*ReportRun, error) {
	var (
		run  ReportRun
		body []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, address, days, report_hash, tx_scanned, total_tx, generated_at, report, created_at
		FROM report_runs
		WHERE report_hash = $1`,
		hash,
	).Scan(&run.ID, &run.Address, &run.Days, &run.ReportHash, &run.TxScanned, &run.TotalTx, &run.GeneratedAt, &body, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report run: %w", err)
	}

	run.Report = &analysis.Report{}
	if err := json.Unmarshal(body, run.Report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report body: %w", err)
	}

	return &run, nil
}

// ListReportsByAddress lists persisted runs for a wallet, most recent first.
// The report bodies are omitted.
func (s *Store) ListReportsByAddress(ctx context.Context, address string, limit int32) ([]*ReportRunSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, address, days, report_hash, tx_scanned, total_tx, generated_at, created_at
		FROM report_runs
		WHERE address = $1
		ORDER BY generated_at DESC
		LIMIT $2`,
		address, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list report runs: %w", err)
	}
	defer rows.Close()

	var runs []*ReportRunSummary
	for rows.Next() {
		var run ReportRunSummary
		if err := rows.Scan(&run.ID, &run.Address, &run.Days, &run.ReportHash, &run.TxScanned, &run.TotalTx, &run.GeneratedAt, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report run: %w", err)
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate report runs: %w", err)
	}

	return runs, nil
}

// DeleteReportsOlderThan removes runs generated before the cutoff and
// returns how many rows were deleted.
func (s *Store) DeleteReportsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM report_runs WHERE generated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete report runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
