package solana

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/ledgerlens/ledgerlens/service/analysis"
	"github.com/ledgerlens/ledgerlens/service/metrics"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)
}

// Client fetches and decodes a wallet's transaction history. It is the
// external data source collaborator for the analysis engine: all pagination,
// pacing, retry and backoff concerns live here, never in the engine.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g., "mainnet", rpc host)
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet",
// "devnet", or RPC hostname). If m is nil, no metrics are recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

// SignatureInfo is one entry of a wallet's signature history.
type SignatureInfo struct {
	Signature solana.Signature
	BlockTime *time.Time
	Slot      uint64
}

const signaturePageLimit = 1000

// FetchSignatures walks a wallet's signature history newest-first until it
// reaches the since cutoff or maxTx signatures, whichever comes first.
// Signatures with no block time are kept; only a block time strictly before
// the cutoff stops the walk.
func (c *Client) FetchSignatures(
	ctx context.Context,
	wallet solana.PublicKey,
	since time.Time,
	maxTx int,
) ([]SignatureInfo, error) {
	var (
		results []SignatureInfo
		before  solana.Signature
	)

	for len(results) < maxTx {
		limit := min(signaturePageLimit, maxTx-len(results))
		opts := &rpc.GetSignaturesForAddressOpts{Limit: &limit}
		if !before.IsZero() {
			opts.Before = before
		}

		start := time.Now()
		page, err := c.rpc.GetSignaturesForAddress(ctx, wallet, opts)
		duration := time.Since(start).Seconds()

		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordRPCCall("GetSignaturesForAddress", status, c.endpoint, duration)

		if err != nil {
			c.logger.ErrorContext(ctx, "failed to get signatures",
				"wallet", wallet.String(),
				"error", err,
			)
			return nil, err
		}
		c.metrics.RecordRPCSignaturesPerCall(c.endpoint, float64(len(page)))

		if len(page) == 0 {
			break
		}

		done := false
		for _, sig := range page {
			info := SignatureInfo{Signature: sig.Signature, Slot: sig.Slot}
			if sig.BlockTime != nil {
				bt := sig.BlockTime.Time()
				info.BlockTime = &bt
				if bt.Before(since) {
					done = true
					break
				}
			}
			results = append(results, info)
		}
		if done {
			break
		}

		before = page[len(page)-1].Signature
	}

	c.logger.DebugContext(ctx, "fetched signature history",
		"wallet", wallet.String(),
		"count", len(results),
	)

	return results, nil
}

// FetchRecords resolves signatures to decoded transaction records with
// bounded parallelism and inter-batch pacing. The result always has one
// entry per input signature, in input order; entries that could not be
// fetched or decoded are nil so the engine can count them as unresolved.
func (c *Client) FetchRecords(
	ctx context.Context,
	wallet solana.PublicKey,
	sigs []SignatureInfo,
	concurrency int,
	delay time.Duration,
) ([]*analysis.TxRecord, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	records := make([]*analysis.TxRecord, len(sigs))

	for offset := 0; offset < len(sigs); offset += concurrency {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		end := min(offset+concurrency, len(sigs))

		var wg sync.WaitGroup
		for i := offset; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				records[i] = c.fetchRecord(ctx, wallet, sigs[i])
			}(i)
		}
		wg.Wait()

		if delay > 0 && end < len(sigs) {
			time.Sleep(delay)
		}
	}

	c.logger.InfoContext(ctx, "fetched transaction records",
		"wallet", wallet.String(),
		"requested", len(sigs),
		"resolved", countResolved(records),
	)

	return records, nil
}

// fetchRecord fetches and decodes one transaction, retrying transient RPC
// failures. It returns nil when the transaction stays unresolved; the
// analysis engine tolerates gaps.
func (c *Client) fetchRecord(ctx context.Context, wallet solana.PublicKey, sig SignatureInfo) *analysis.TxRecord {
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	var result *rpc.GetTransactionResult
	var err error

	const maxAttempts = 3
	for attempt := range maxAttempts {
		start := time.Now()
		result, err = c.rpc.GetTransaction(ctx, sig.Signature, opts)
		duration := time.Since(start).Seconds()

		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordRPCCall("GetTransaction", status, c.endpoint, duration)

		if err == nil || attempt == maxAttempts-1 {
			break
		}

		// Rate limiting gets a longer backoff than other transient errors.
		backoff := time.Duration(1<<uint(attempt)) * time.Second
		reason := "timeout_or_error"
		if strings.Contains(err.Error(), "429") {
			backoff = time.Duration(2<<uint(attempt)) * time.Second
			reason = "rate_limit"
			c.metrics.RecordRateLimitHit(c.endpoint)
		}
		c.metrics.RecordRPCRetry("GetTransaction", reason)

		c.logger.WarnContext(ctx, "failed to get transaction, backing off",
			"signature", sig.Signature.String(),
			"attempt", attempt+1,
			"backoff_seconds", backoff.Seconds(),
			"error", err,
		)
		time.Sleep(backoff)
	}

	if err != nil {
		c.logger.WarnContext(ctx, "transaction unresolved after retries",
			"signature", sig.Signature.String(),
			"error", err,
		)
		c.metrics.RecordRecordFetched(wallet.String(), "error")
		return nil
	}
	c.metrics.RecordRecordFetched(wallet.String(), "success")

	rec, err := decodeRecord(sig, result)
	if err != nil {
		// A record whose mandatory shape is unrecognizable is treated as if
		// absent rather than aborting the run.
		c.logger.WarnContext(ctx, "failed to decode transaction, skipping",
			"signature", sig.Signature.String(),
			"error", err,
		)
		c.metrics.RecordRecordDecoded(wallet.String(), "error")
		return nil
	}
	c.metrics.RecordRecordDecoded(wallet.String(), "success")

	return rec
}

func countResolved(records []*analysis.TxRecord) int {
	n := 0
	for _, r := range records {
		if r != nil {
			n++
		}
	}
	return n
}
