package analysis

import (
	"math/big"
	"strings"
	"time"
)

// ActionType is the single category assigned to a transaction by the
// classifier. Exactly one per transaction.
type ActionType string

const (
	ActionSwap     ActionType = "swap"
	ActionTransfer ActionType = "transfer"
	ActionNFT      ActionType = "nft"
	ActionMint     ActionType = "mint"
	ActionStake    ActionType = "stake"
	ActionUnknown  ActionType = "unknown"
)

// AllActions lists every action type in report order.
var AllActions = []ActionType{
	ActionSwap,
	ActionTransfer,
	ActionNFT,
	ActionMint,
	ActionStake,
	ActionUnknown,
}

// StakeProgramID is the native staking program. Any transaction touching it
// classifies as stake before any other rule is considered.
const StakeProgramID = "Stake11111111111111111111111111111111111111"

// TokenKind discriminates the token-program instruction variants we decode.
// Anything else the token program can do is ignored upstream.
type TokenKind uint8

const (
	TokenTransfer TokenKind = iota
	TokenTransferChecked
	TokenMintTo
	TokenBurn
)

// NativeTransfer is a decoded system-program SOL transfer.
type NativeTransfer struct {
	Source      string
	Destination string
	Lamports    uint64
}

// TokenInstruction is a decoded token-program instruction. Fields that the
// wire format does not carry for a given kind are left empty/nil: a plain
// transfer has no mint or decimals, a mintTo has no source, a burn has no
// destination.
type TokenInstruction struct {
	Kind        TokenKind
	Mint        string
	Amount      *big.Int
	Decimals    *uint8
	Source      string
	Destination string
}

// Instruction is one decoded instruction. The decoder validates the loosely
// typed wire payload once, at this boundary; downstream code only looks at
// the variant pointers, never at raw bytes.
type Instruction struct {
	ProgramID string
	// Program is the short program-family name ("system", "spl-token",
	// "stake") when the decoder recognizes the program, empty otherwise.
	Program string
	// Exactly one of the following may be set.
	Native *NativeTransfer
	Token  *TokenInstruction
}

// TokenBalanceSnapshot is one entry of a pre- or post-transaction token
// balance snapshot.
type TokenBalanceSnapshot struct {
	Owner  string
	Mint   string
	Amount *big.Int
}

// TxRecord is the normalized view of one on-chain transaction that the
// engine consumes. It is produced by the fetch collaborator; a nil *TxRecord
// in a sequence represents a transaction that could not be resolved.
type TxRecord struct {
	Signature         string
	BlockTime         *time.Time
	Fee               uint64
	AccountKeys       []string
	Instructions      []Instruction
	InnerInstructions []Instruction
	PreTokenBalances  []TokenBalanceSnapshot
	PostTokenBalances []TokenBalanceSnapshot
	PreBalances       []uint64
	PostBalances      []uint64
}

// KnownProgram is one entry of the externally supplied program lookup table.
type KnownProgram struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// swapCategories are the known-program categories that mark a program as a
// swap-capable venue.
var swapCategories = map[string]struct{}{
	"swap":      {},
	"amm":       {},
	"clmm":      {},
	"orderbook": {},
}

// ProgramTable indexes known programs by id.
type ProgramTable map[string]KnownProgram

// NewProgramTable builds a lookup table from a known-program list. Later
// duplicates win, matching a plain map build.
func NewProgramTable(programs []KnownProgram) ProgramTable {
	t := make(ProgramTable, len(programs))
	for _, p := range programs {
		t[p.ID] = p
	}
	return t
}

// IsSwapCapable reports whether the given program id is tagged with a
// swap-capable category. Unlisted programs are simply untracked.
func (t ProgramTable) IsSwapCapable(programID string) bool {
	p, ok := t[programID]
	if !ok {
		return false
	}
	_, ok = swapCategories[strings.ToLower(p.Category)]
	return ok
}

// TransferEvent is a token movement observed in a transaction, normalized
// for aggregation. Amounts are absolute values so later sums cannot cancel
// by sign.
type TransferEvent struct {
	Mint        string
	AmountAbs   *big.Int
	Decimals    *uint8
	Source      string
	Destination string
	// IsNFTApprox marks a zero-decimals unit-amount transfer, a proxy for a
	// non-fungible movement absent full metadata.
	IsNFTApprox bool
}

// Features is the normalized per-transaction feature set the classifier and
// aggregator operate on. It is derived once per record and discarded.
type Features struct {
	ProgramIDs map[string]struct{}
	// ProgramIDOrder holds the distinct program ids in discovery order so
	// downstream aggregation stays deterministic across runs.
	ProgramIDOrder  []string
	Programs        []string // short family names, discovery order, may repeat
	Transfers       []TransferEvent
	NativeTransfers []NativeTransfer
	TokenDeltas     map[string]*big.Int
	NativeDelta     *big.Int
	HasSwapProgram  bool
}

// Report is the immutable output of one analysis run.
type Report struct {
	Metadata          Metadata            `json:"metadata"`
	Summary           Summary             `json:"summary"`
	ProtocolsUsed     []ProtocolUsage     `json:"protocolsUsed"`
	TopTokens         []TokenUsage        `json:"topTokens"`
	TopCounterparties []CounterpartyUsage `json:"topCounterparties"`
	HourlyActivity    []HourBucket        `json:"hourlyActivity"`
	Flags             []Flag              `json:"flags"`
	TxSamples         []TxSample          `json:"txSamples"`
}

// Metadata describes the run that produced a report.
type Metadata struct {
	Address     string     `json:"address"`
	Days        int        `json:"days"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	GeneratedAt time.Time  `json:"generatedAt"`
	RPCURL      string     `json:"rpcUrl"`
	TxScanned   int        `json:"txScanned"`
}

// Summary holds the headline counters.
type Summary struct {
	TotalTx      int                `json:"totalTx"`
	TotalFeesSol float64            `json:"totalFeesSol"`
	ActionCounts map[ActionType]int `json:"actionCounts"`
}

// ProtocolUsage is one known program's occurrence count.
type ProtocolUsage struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TokenUsage is one mint's aggregate transfer activity. AmountAbs is the
// cumulative absolute raw amount, rendered as a decimal string since it can
// exceed 64 bits.
type TokenUsage struct {
	Mint      string `json:"mint"`
	Transfers int    `json:"transfers"`
	AmountAbs string `json:"amountAbs"`
}

// CounterpartyUsage is one counterparty's transfer count.
type CounterpartyUsage struct {
	Address   string `json:"address"`
	Transfers int    `json:"transfers"`
}

// HourBucket is one hour-of-day slot of the activity histogram.
type HourBucket struct {
	Hour int `json:"hour"`
	Tx   int `json:"tx"`
}

// Flag is an advisory note attached to a report.
type Flag struct {
	ID      string `json:"id"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// TxSample is one of the first few scanned transactions, kept for the
// report's sample section.
type TxSample struct {
	Signature string     `json:"signature"`
	Time      *time.Time `json:"time"`
	Action    ActionType `json:"action"`
	Programs  []string   `json:"programs"`
}
