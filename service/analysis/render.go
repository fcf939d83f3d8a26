package analysis

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders a report as a human-readable markdown document.
// Every report field appears at least once, in the order: summary,
// protocols, top tokens, top counterparties, hourly activity, flags,
// sample transactions.
func RenderMarkdown(r *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Wallet Activity Report\n\n")
	fmt.Fprintf(&b, "Address: %s\n", r.Metadata.Address)
	fmt.Fprintf(&b, "Window: %d days\n", r.Metadata.Days)
	fmt.Fprintf(&b, "Scanned tx: %d\n", r.Metadata.TxScanned)
	fmt.Fprintf(&b, "Start: %s\n", formatTime(r.Metadata.StartTime))
	fmt.Fprintf(&b, "End: %s\n", formatTime(r.Metadata.EndTime))
	fmt.Fprintf(&b, "Generated: %s\n", r.Metadata.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "RPC: %s\n\n", r.Metadata.RPCURL)

	fmt.Fprintf(&b, "## Summary\n")
	fmt.Fprintf(&b, "Total tx: %d\n", r.Summary.TotalTx)
	fmt.Fprintf(&b, "Total fees: %.4f SOL\n", r.Summary.TotalFeesSol)
	fmt.Fprintf(&b, "Actions:")
	for i, a := range AllActions {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, " %s %d", a, r.Summary.ActionCounts[a])
	}
	b.WriteString("\n\n")

	if len(r.ProtocolsUsed) > 0 {
		fmt.Fprintf(&b, "## Protocols (known list)\n")
		for i, p := range r.ProtocolsUsed {
			if i == maxTopTokens {
				break
			}
			fmt.Fprintf(&b, "- %s: %d\n", p.Name, p.Count)
		}
		b.WriteString("\n")
	}

	if len(r.TopTokens) > 0 {
		fmt.Fprintf(&b, "## Top tokens (by transfers)\n")
		for _, t := range r.TopTokens {
			fmt.Fprintf(&b, "- %s: %d transfers (raw amount %s)\n", t.Mint, t.Transfers, t.AmountAbs)
		}
		b.WriteString("\n")
	}

	if len(r.TopCounterparties) > 0 {
		fmt.Fprintf(&b, "## Top counterparties\n")
		for _, c := range r.TopCounterparties {
			fmt.Fprintf(&b, "- %s: %d transfers\n", c.Address, c.Transfers)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Activity by hour (UTC)\n")
	for _, h := range r.HourlyActivity {
		fmt.Fprintf(&b, "- %d: %d\n", h.Hour, h.Tx)
	}
	b.WriteString("\n")

	if len(r.Flags) > 0 {
		fmt.Fprintf(&b, "## Flags\n")
		for _, f := range r.Flags {
			fmt.Fprintf(&b, "- [%s] %s (%s)\n", f.Level, f.Message, f.ID)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Sample transactions\n")
	for _, s := range r.TxSamples {
		fmt.Fprintf(&b, "- %s | %s | %s | %s\n", s.Signature, formatTime(s.Time), s.Action, strings.Join(s.Programs, ", "))
	}
	b.WriteString("\n")

	b.WriteString("_Notes: swap/NFT classification is heuristic. For full accuracy, provide a known programs list or integrate protocol-specific decoders._\n")

	return b.String()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "n/a"
	}
	return t.UTC().Format(time.RFC3339)
}
