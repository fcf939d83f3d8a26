package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/itchyny/gojq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/ledgerlens/ledgerlens/service/analysis"
	"github.com/ledgerlens/ledgerlens/service/db"
	"github.com/ledgerlens/ledgerlens/service/nats"
	"github.com/ledgerlens/ledgerlens/service/report"
)

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Generate a wallet activity report",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "days",
				Usage:   "Time window in days",
				EnvVars: []string{"REPORT_DAYS"},
				Value:   30,
			},
			&cli.StringFlag{
				Name:    "rpc",
				Usage:   "Solana RPC URL",
				EnvVars: []string{"SOLANA_RPC_URL"},
			},
			&cli.StringFlag{
				Name:    "out-dir",
				Usage:   "Output directory for report artifacts",
				EnvVars: []string{"OUTPUT_DIR"},
				Value:   "output",
			},
			&cli.IntFlag{
				Name:    "max-tx",
				Usage:   "Maximum transactions to scan",
				EnvVars: []string{"REPORT_MAX_TX"},
				Value:   1000,
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "RPC concurrency for transaction fetches",
				EnvVars: []string{"FETCH_CONCURRENCY"},
				Value:   3,
			},
			&cli.DurationFlag{
				Name:    "delay",
				Usage:   "Delay between fetch batches",
				EnvVars: []string{"FETCH_DELAY"},
				Value:   400 * time.Millisecond,
			},
			&cli.StringFlag{
				Name:    "known-programs",
				Usage:   "Path to a known programs JSON list",
				EnvVars: []string{"KNOWN_PROGRAMS_PATH"},
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "Publish a report event to this NATS server",
				EnvVars: []string{"NATS_URL"},
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Persist the report run to this Postgres database",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "Print the report filtered through a jq expression",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Print the full report JSON to stdout",
			},
		},
		Action: runReportAction,
	}
}

func runReportAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("wallet address is required")
	}
	address := c.Args().Get(0)

	logger := setupLogger(c.String("log-level"))
	ctx := c.Context

	var publisher nats.Publisher
	if natsURL := c.String("nats-url"); natsURL != "" {
		p, err := nats.NewPublisher(natsURL, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer p.Close()
		publisher = p
	}

	var store *db.Store
	if dbURL := c.String("database-url"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		store = db.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	runner := report.NewRunner(nil, publisher, store, logger)

	rep, hash, err := runner.Run(ctx, report.RunParams{
		Address:           address,
		Days:              c.Int("days"),
		RPCURL:            c.String("rpc"),
		OutDir:            c.String("out-dir"),
		MaxTx:             c.Int("max-tx"),
		Concurrency:       c.Int("concurrency"),
		Delay:             c.Duration("delay"),
		KnownProgramsPath: c.String("known-programs"),
	})
	if err != nil {
		return err
	}

	if filter := c.String("jq"); filter != "" {
		return printFiltered(rep, filter)
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Printf("Report generated. Hash: %s\n", hash)
	fmt.Printf("  Address:  %s\n", rep.Metadata.Address)
	fmt.Printf("  Scanned:  %d transactions\n", rep.Metadata.TxScanned)
	fmt.Printf("  Counted:  %d transactions\n", rep.Summary.TotalTx)
	fmt.Printf("  Out dir:  %s\n", c.String("out-dir"))
	return nil
}

// printFiltered runs a jq expression over the report JSON and prints each
// result on its own line.
func printFiltered(rep *analysis.Report, filter string) error {
	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	// Round-trip through encoding/json so gojq sees plain maps and slices.
	raw, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode report: %w", err)
	}

	iter := code.Run(doc)
	enc := json.NewEncoder(os.Stdout)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return fmt.Errorf("jq filter error: %w", err)
		}
		if err := enc.Encode(v); err != nil {
			return err
		}
	}

	return nil
}
