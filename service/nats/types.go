package nats

import (
	"time"

	"github.com/ledgerlens/ledgerlens/service/analysis"
)

// ReportEvent is the event published to NATS when a wallet activity report
// has been generated. It is published to the subject "reports.{address}"
// in JetStream. Consumers that need the full report body fetch it by hash
// from the store or the output directory.
type ReportEvent struct {
	// Wallet and report window
	Address   string     `json:"address"`
	Days      int        `json:"days"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Headline numbers
	TxScanned int      `json:"tx_scanned"`
	TotalTx   int      `json:"total_tx"`
	Flags     []string `json:"flags,omitempty"`

	// Content-addressed identity of the report body
	ReportHash string `json:"report_hash"`

	// Metadata
	GeneratedAt time.Time `json:"generated_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromReport converts a finished report into a ReportEvent for publishing.
func FromReport(report *analysis.Report, hash string) *ReportEvent {
	event := &ReportEvent{
		Address:     report.Metadata.Address,
		Days:        report.Metadata.Days,
		StartTime:   report.Metadata.StartTime,
		EndTime:     report.Metadata.EndTime,
		TxScanned:   report.Metadata.TxScanned,
		TotalTx:     report.Summary.TotalTx,
		ReportHash:  hash,
		GeneratedAt: report.Metadata.GeneratedAt,
		PublishedAt: time.Now().UTC(),
	}

	for _, flag := range report.Flags {
		event.Flags = append(event.Flags, flag.ID)
	}

	return event
}
