package analysis

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestBuildReport_EmptyInput(t *testing.T) {
	report := BuildReport(BuildReportParams{
		Address: testOwner,
		Days:    30,
		RPCURL:  "https://api.mainnet-beta.solana.com",
		Now:     fixedNow,
	})

	assert.Equal(t, 0, report.Summary.TotalTx)
	assert.Equal(t, 0, report.Metadata.TxScanned)
	assert.Zero(t, report.Summary.TotalFeesSol)
	assert.Nil(t, report.Metadata.StartTime)
	assert.Nil(t, report.Metadata.EndTime)
	assert.Empty(t, report.TopTokens)
	assert.Empty(t, report.TopCounterparties)
	assert.Empty(t, report.ProtocolsUsed)
	assert.Empty(t, report.Flags)
	assert.Empty(t, report.TxSamples)

	require.Len(t, report.HourlyActivity, 24)
	for h, bucket := range report.HourlyActivity {
		assert.Equal(t, h, bucket.Hour)
		assert.Equal(t, 0, bucket.Tx)
	}

	require.Len(t, report.Summary.ActionCounts, len(AllActions))
	for _, a := range AllActions {
		assert.Equal(t, 0, report.Summary.ActionCounts[a])
	}
}

func TestBuildReport_NilRecordsSkippedButNotScanned(t *testing.T) {
	bt := time.Date(2025, 5, 20, 9, 30, 0, 0, time.UTC)
	records := []*TxRecord{
		nil,
		{Signature: "sig1", BlockTime: &bt, Fee: 5000},
		nil,
		{Signature: "sig2", Fee: 5000},
	}

	report := BuildReport(BuildReportParams{Address: testOwner, Records: records, Now: fixedNow})

	assert.Equal(t, 2, report.Summary.TotalTx)
	assert.Equal(t, 2, report.Metadata.TxScanned)
	assert.Len(t, report.TxSamples, 2)

	sum := 0
	for _, c := range report.Summary.ActionCounts {
		sum += c
	}
	assert.Equal(t, report.Summary.TotalTx, sum, "action counts partition the scanned transactions")
}

func TestBuildReport_SingleTokenTransfer(t *testing.T) {
	// One transferChecked of 100 raw units of M1 from the subject to C1 at
	// 14:00 UTC.
	bt := time.Date(2025, 5, 18, 14, 45, 0, 0, time.UTC)
	rec := &TxRecord{
		Signature: "sigA",
		BlockTime: &bt,
		Fee:       5000,
		Instructions: []Instruction{
			tokenIx(TokenTransferChecked, "M1", 100, u8(6), testOwner, "C1"),
		},
	}

	report := BuildReport(BuildReportParams{
		Address: testOwner,
		Days:    30,
		Records: []*TxRecord{rec},
		Now:     fixedNow,
	})

	assert.Equal(t, 1, report.Summary.ActionCounts[ActionTransfer])

	require.Len(t, report.TopTokens, 1)
	assert.Equal(t, TokenUsage{Mint: "M1", Transfers: 1, AmountAbs: "100"}, report.TopTokens[0])

	require.Len(t, report.TopCounterparties, 1)
	assert.Equal(t, CounterpartyUsage{Address: "C1", Transfers: 1}, report.TopCounterparties[0])

	for _, bucket := range report.HourlyActivity {
		if bucket.Hour == 14 {
			assert.Equal(t, 1, bucket.Tx)
		} else {
			assert.Equal(t, 0, bucket.Tx, "hour %d", bucket.Hour)
		}
	}

	require.NotNil(t, report.Metadata.StartTime)
	require.NotNil(t, report.Metadata.EndTime)
	assert.Equal(t, bt, *report.Metadata.StartTime)
	assert.Equal(t, bt, *report.Metadata.EndTime)
	assert.InDelta(t, 0.000005, report.Summary.TotalFeesSol, 1e-12)
}

func TestBuildReport_CounterpartyFromNativeTransfer(t *testing.T) {
	recOut := &TxRecord{
		Signature:    "sigOut",
		Instructions: []Instruction{nativeIx(testOwner, "Receiver1", 1000)},
	}
	recIn := &TxRecord{
		Signature:    "sigIn",
		Instructions: []Instruction{nativeIx("Sender1", testOwner, 2000)},
	}
	recUnrelated := &TxRecord{
		Signature:    "sigOther",
		Instructions: []Instruction{nativeIx("A", "B", 3000)},
	}

	report := BuildReport(BuildReportParams{
		Address: testOwner,
		Records: []*TxRecord{recOut, recIn, recUnrelated},
		Now:     fixedNow,
	})

	require.Len(t, report.TopCounterparties, 2)
	assert.Equal(t, "Receiver1", report.TopCounterparties[0].Address)
	assert.Equal(t, "Sender1", report.TopCounterparties[1].Address)
}

func TestBuildReport_ProtocolCountedOncePerTransaction(t *testing.T) {
	known := []KnownProgram{
		{ID: "Prog1", Name: "Orca", Category: "amm"},
		{ID: "Prog2", Name: "Marinade", Category: "staking"},
	}
	rec := &TxRecord{
		Signature: "sig1",
		Instructions: []Instruction{
			{ProgramID: "Prog1"},
			{ProgramID: "Prog2"},
		},
		// Touching Prog1 again as an inner instruction must not double count.
		InnerInstructions: []Instruction{{ProgramID: "Prog1"}},
	}

	report := BuildReport(BuildReportParams{
		Address:       testOwner,
		Records:       []*TxRecord{rec, rec},
		KnownPrograms: known,
		Now:           fixedNow,
	})

	require.Len(t, report.ProtocolsUsed, 2)
	assert.Equal(t, ProtocolUsage{Name: "Orca", Count: 2}, report.ProtocolsUsed[0])
	assert.Equal(t, ProtocolUsage{Name: "Marinade", Count: 2}, report.ProtocolsUsed[1])
}

func TestBuildReport_TopListsTruncatedAndFlagged(t *testing.T) {
	records := make([]*TxRecord, 0, 12)
	for i := 0; i < 12; i++ {
		mint := fmt.Sprintf("Mint%02d", i)
		cp := fmt.Sprintf("Counterparty%02d", i)
		records = append(records, &TxRecord{
			Signature: fmt.Sprintf("sig%02d", i),
			Instructions: []Instruction{
				tokenIx(TokenTransferChecked, mint, 10, u8(6), testOwner, cp),
			},
		})
	}

	report := BuildReport(BuildReportParams{Address: testOwner, Records: records, Now: fixedNow})

	assert.Len(t, report.TopTokens, 10)
	assert.Len(t, report.TopCounterparties, 10)

	ids := make([]string, 0, len(report.Flags))
	for _, f := range report.Flags {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{"many_counterparties", "many_tokens"}, ids)
}

func TestBuildReport_HighActivityFlag(t *testing.T) {
	records := make([]*TxRecord, 0, 201)
	for i := 0; i < 201; i++ {
		records = append(records, &TxRecord{Signature: fmt.Sprintf("sig%d", i)})
	}

	report := BuildReport(BuildReportParams{Address: testOwner, Records: records, Now: fixedNow})

	require.Len(t, report.Flags, 1)
	assert.Equal(t, "high_activity", report.Flags[0].ID)
	assert.Equal(t, "info", report.Flags[0].Level)
}

func TestBuildReport_RankingDescendingWithStableTies(t *testing.T) {
	mk := func(sig, mint string) *TxRecord {
		return &TxRecord{
			Signature: sig,
			Instructions: []Instruction{
				tokenIx(TokenTransferChecked, mint, 1, u8(6), testOwner, "Cp"+mint),
			},
		}
	}
	records := []*TxRecord{
		mk("s1", "MintA"),
		mk("s2", "MintB"),
		mk("s3", "MintB"),
		mk("s4", "MintC"),
	}

	report := BuildReport(BuildReportParams{Address: testOwner, Records: records, Now: fixedNow})

	require.Len(t, report.TopTokens, 3)
	assert.Equal(t, "MintB", report.TopTokens[0].Mint)
	// MintA and MintC tie on one transfer each; first-touch order holds.
	assert.Equal(t, "MintA", report.TopTokens[1].Mint)
	assert.Equal(t, "MintC", report.TopTokens[2].Mint)
}

func TestBuildReport_SamplesCapped(t *testing.T) {
	records := make([]*TxRecord, 0, 15)
	for i := 0; i < 15; i++ {
		records = append(records, &TxRecord{
			Signature: fmt.Sprintf("sig%02d", i),
			Instructions: []Instruction{
				nativeIx(testOwner, "B", 1),
				{ProgramID: "P1", Program: "alpha"},
				{ProgramID: "P2", Program: "beta"},
				{ProgramID: "P3", Program: "gamma"},
				{ProgramID: "P4", Program: "delta"},
				{ProgramID: "P5", Program: "epsilon"},
				{ProgramID: "P6", Program: "zeta"},
			},
		})
	}

	report := BuildReport(BuildReportParams{Address: testOwner, Records: records, Now: fixedNow})

	require.Len(t, report.TxSamples, 10)
	assert.Equal(t, "sig00", report.TxSamples[0].Signature)
	assert.Equal(t, "sig09", report.TxSamples[9].Signature)
	assert.Equal(t, ActionTransfer, report.TxSamples[0].Action)
	// At most five distinct program names, discovery order.
	assert.Equal(t, []string{"system", "alpha", "beta", "gamma", "delta"}, report.TxSamples[0].Programs)
}

func TestBuildReport_Idempotent(t *testing.T) {
	bt := time.Date(2025, 5, 10, 3, 0, 0, 0, time.UTC)
	records := []*TxRecord{
		{
			Signature: "sig1",
			BlockTime: &bt,
			Fee:       5000,
			Instructions: []Instruction{
				tokenIx(TokenTransferChecked, "MintA", 42, u8(6), testOwner, "C1"),
				nativeIx(testOwner, "C2", 100),
			},
		},
		nil,
		{
			Signature:    "sig2",
			Instructions: []Instruction{{ProgramID: StakeProgramID, Program: "stake"}},
		},
	}
	known := []KnownProgram{{ID: StakeProgramID, Name: "Stake", Category: "staking"}}

	params := BuildReportParams{
		Address:       testOwner,
		Days:          7,
		RPCURL:        "https://example.test",
		Records:       records,
		KnownPrograms: known,
		Now:           fixedNow,
	}

	first, err := json.Marshal(BuildReport(params))
	require.NoError(t, err)
	second, err := json.Marshal(BuildReport(params))
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
}
