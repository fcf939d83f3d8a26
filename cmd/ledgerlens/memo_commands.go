package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ledgerlens/ledgerlens/service/memo"
)

func publishMemoCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Build the memo payload for a report and attempt to publish it",
		ArgsUsage: "REPORT_PATH",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out-dir",
				Usage:   "Output directory for the memo payload",
				EnvVars: []string{"OUTPUT_DIR"},
				Value:   "output",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Only generate the memo payload",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("path to report.json is required")
			}
			reportPath := c.Args().Get(0)

			logger := setupLogger(c.String("log-level"))
			m := memo.New(logger)

			payload, err := m.Publish(reportPath, memo.PublishOptions{
				OutDir: c.String("out-dir"),
				DryRun: c.Bool("dry-run"),
			})
			if err != nil {
				return err
			}

			fmt.Printf("Memo payload: %s\n", payload)
			return nil
		},
	}
}

func agentWalletStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "agentwallet-status",
		Usage: "Check AgentWallet configuration status",
		Action: func(c *cli.Context) error {
			logger := setupLogger(c.String("log-level"))
			m := memo.New(logger)

			cfg := m.Config()
			if cfg == nil {
				return fmt.Errorf("AgentWallet not configured. Expected: %s", m.ConfigPath())
			}

			fmt.Printf("AgentWallet configured: %s\n", cfg.Username)
			if cfg.SolanaAddress != "" {
				fmt.Printf("Solana address: %s\n", cfg.SolanaAddress)
			}
			return nil
		},
	}
}
