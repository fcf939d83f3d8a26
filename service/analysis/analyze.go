package analysis

import (
	"math/big"
	"sort"
	"time"
)

const (
	maxTopTokens          = 10
	maxTopCounterparties  = 10
	maxTxSamples          = 10
	maxSamplePrograms     = 5
	highActivityThreshold = 200
	lamportsPerSol        = 1_000_000_000
)

// BuildReportParams are the inputs to one analysis run.
type BuildReportParams struct {
	// Address is the subject wallet whose activity is analyzed.
	Address string
	// Days is the requested lookback window, recorded in metadata.
	Days int
	// RPCURL labels the data source used, recorded in metadata.
	RPCURL string
	// Records is the ordered-by-recency sequence of transactions. Nil
	// entries represent unresolved fetches and are skipped.
	Records []*TxRecord
	// KnownPrograms is the static program lookup table, may be empty.
	KnownPrograms []KnownProgram
	// Now stamps generatedAt; defaults to time.Now.
	Now func() time.Time
}

// aggregate is the mutable per-run state. It is owned by a single
// BuildReport call and consumed exactly once at finalization, so concurrent
// runs for different wallets never share anything.
type aggregate struct {
	actionCounts map[ActionType]int

	tokenOrder []string
	tokens     map[string]*tokenAgg

	counterpartyOrder []string
	counterparties    map[string]int

	protocolOrder []string
	protocols     map[string]int

	hourly   [24]int
	feeTotal uint64
	scanned  int

	minTime *time.Time
	maxTime *time.Time

	samples []TxSample
}

type tokenAgg struct {
	transfers int
	amountAbs *big.Int
}

// BuildReport runs the full sequence through extraction, classification and
// aggregation and finalizes the immutable report. It never fails: malformed
// or absent records degrade to skips, and an empty input yields a valid
// all-zero report.
func BuildReport(params BuildReportParams) *Report {
	now := params.Now
	if now == nil {
		now = time.Now
	}

	programs := NewProgramTable(params.KnownPrograms)

	agg := &aggregate{
		actionCounts:   make(map[ActionType]int, len(AllActions)),
		tokens:         make(map[string]*tokenAgg),
		counterparties: make(map[string]int),
		protocols:      make(map[string]int),
		samples:        make([]TxSample, 0, maxTxSamples),
	}
	for _, a := range AllActions {
		agg.actionCounts[a] = 0
	}

	for _, rec := range params.Records {
		if rec == nil {
			continue
		}
		agg.fold(rec, params.Address, programs)
	}

	return agg.finalize(params, now().UTC())
}

// fold processes one resolved transaction into the running aggregates.
func (agg *aggregate) fold(rec *TxRecord, address string, programs ProgramTable) {
	agg.scanned++
	agg.feeTotal += rec.Fee

	if rec.BlockTime != nil {
		t := rec.BlockTime.UTC()
		agg.hourly[t.Hour()]++
		if agg.minTime == nil || t.Before(*agg.minTime) {
			agg.minTime = &t
		}
		if agg.maxTime == nil || t.After(*agg.maxTime) {
			agg.maxTime = &t
		}
	}

	f := ExtractFeatures(rec, address, programs)

	// A transaction touching the same known program twice still counts once.
	for _, id := range f.ProgramIDOrder {
		known, ok := programs[id]
		if !ok {
			continue
		}
		if _, seen := agg.protocols[known.Name]; !seen {
			agg.protocolOrder = append(agg.protocolOrder, known.Name)
		}
		agg.protocols[known.Name]++
	}

	action := Classify(f)
	agg.actionCounts[action]++

	for _, t := range f.Transfers {
		if t.Mint == "" {
			continue
		}
		entry, ok := agg.tokens[t.Mint]
		if !ok {
			entry = &tokenAgg{amountAbs: new(big.Int)}
			agg.tokens[t.Mint] = entry
			agg.tokenOrder = append(agg.tokenOrder, t.Mint)
		}
		entry.transfers++
		entry.amountAbs.Add(entry.amountAbs, t.AmountAbs)

		if cp := tokenCounterparty(address, t); cp != "" {
			agg.bumpCounterparty(cp)
		}
	}

	for _, s := range f.NativeTransfers {
		var cp string
		switch {
		case s.Source == address:
			cp = s.Destination
		case s.Destination == address:
			cp = s.Source
		}
		if cp != "" {
			agg.bumpCounterparty(cp)
		}
	}

	if len(agg.samples) < maxTxSamples {
		sig := rec.Signature
		if sig == "" {
			sig = "unknown"
		}
		agg.samples = append(agg.samples, TxSample{
			Signature: sig,
			Time:      rec.BlockTime,
			Action:    action,
			Programs:  uniqueHead(f.Programs, maxSamplePrograms),
		})
	}
}

func (agg *aggregate) bumpCounterparty(addr string) {
	if _, seen := agg.counterparties[addr]; !seen {
		agg.counterpartyOrder = append(agg.counterpartyOrder, addr)
	}
	agg.counterparties[addr]++
}

// tokenCounterparty picks the non-subject side of a token transfer, or
// empty when the subject is on neither side.
func tokenCounterparty(address string, t TransferEvent) string {
	if t.Source == "" && t.Destination == "" {
		return ""
	}
	if t.Source == address && t.Destination != "" {
		return t.Destination
	}
	if t.Destination == address && t.Source != "" {
		return t.Source
	}
	return ""
}

// finalize consumes the aggregate state into the immutable report. Ranked
// lists sort by descending count with ties left in first-touch order.
func (agg *aggregate) finalize(params BuildReportParams, generatedAt time.Time) *Report {
	topTokens := make([]TokenUsage, 0, len(agg.tokenOrder))
	for _, mint := range agg.tokenOrder {
		entry := agg.tokens[mint]
		topTokens = append(topTokens, TokenUsage{
			Mint:      mint,
			Transfers: entry.transfers,
			AmountAbs: entry.amountAbs.String(),
		})
	}
	sort.SliceStable(topTokens, func(i, j int) bool {
		return topTokens[i].Transfers > topTokens[j].Transfers
	})
	if len(topTokens) > maxTopTokens {
		topTokens = topTokens[:maxTopTokens]
	}

	topCounterparties := make([]CounterpartyUsage, 0, len(agg.counterpartyOrder))
	for _, addr := range agg.counterpartyOrder {
		topCounterparties = append(topCounterparties, CounterpartyUsage{
			Address:   addr,
			Transfers: agg.counterparties[addr],
		})
	}
	sort.SliceStable(topCounterparties, func(i, j int) bool {
		return topCounterparties[i].Transfers > topCounterparties[j].Transfers
	})
	if len(topCounterparties) > maxTopCounterparties {
		topCounterparties = topCounterparties[:maxTopCounterparties]
	}

	protocolsUsed := make([]ProtocolUsage, 0, len(agg.protocolOrder))
	for _, name := range agg.protocolOrder {
		protocolsUsed = append(protocolsUsed, ProtocolUsage{Name: name, Count: agg.protocols[name]})
	}
	sort.SliceStable(protocolsUsed, func(i, j int) bool {
		return protocolsUsed[i].Count > protocolsUsed[j].Count
	})

	hourly := make([]HourBucket, 24)
	for h := range hourly {
		hourly[h] = HourBucket{Hour: h, Tx: agg.hourly[h]}
	}

	flags := make([]Flag, 0, 3)
	if agg.scanned > highActivityThreshold {
		flags = append(flags, Flag{ID: "high_activity", Level: "info", Message: "High activity in selected window."})
	}
	if len(topCounterparties) >= maxTopCounterparties {
		flags = append(flags, Flag{ID: "many_counterparties", Level: "info", Message: "Many counterparties observed."})
	}
	if len(topTokens) >= maxTopTokens {
		flags = append(flags, Flag{ID: "many_tokens", Level: "info", Message: "Many token mints observed."})
	}

	return &Report{
		Metadata: Metadata{
			Address:     params.Address,
			Days:        params.Days,
			StartTime:   agg.minTime,
			EndTime:     agg.maxTime,
			GeneratedAt: generatedAt,
			RPCURL:      params.RPCURL,
			TxScanned:   agg.scanned,
		},
		Summary: Summary{
			TotalTx:      agg.scanned,
			TotalFeesSol: float64(agg.feeTotal) / lamportsPerSol,
			ActionCounts: agg.actionCounts,
		},
		ProtocolsUsed:     protocolsUsed,
		TopTokens:         topTokens,
		TopCounterparties: topCounterparties,
		HourlyActivity:    hourly,
		Flags:             flags,
		TxSamples:         agg.samples,
	}
}

// uniqueHead returns the first n distinct values preserving order.
func uniqueHead(values []string, n int) []string {
	out := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) == n {
			break
		}
	}
	return out
}
