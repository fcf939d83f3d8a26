package solana

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/ledgerlens/ledgerlens/service/analysis"
)

// Well-known Solana program IDs
var (
	// SystemProgramID is the native SOL transfer program
	SystemProgramID = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	// TokenProgramID is the SPL Token program
	TokenProgramID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// Token2022ProgramID is the Token Extensions program (Token-2022)
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

	// StakeProgramID is the native staking program
	StakeProgramID = solana.MustPublicKeyFromBase58(analysis.StakeProgramID)
)

// System Program instruction types
const (
	systemTransferInstruction = uint32(2)
)

// Token Program instruction types
const (
	tokenTransferInstruction        = uint8(3)
	tokenMintToInstruction          = uint8(7)
	tokenBurnInstruction            = uint8(8)
	tokenTransferCheckedInstruction = uint8(12)
)

// decodeRecord converts a raw RPC transaction result into the normalized
// record the analysis engine consumes. The loosely typed wire payload is
// validated here, once; instructions the decoder does not recognize come
// through with just their program id. Only a record whose mandatory shape
// is missing produces an error.
func decodeRecord(sig SignatureInfo, result *rpc.GetTransactionResult) (*analysis.TxRecord, error) {
	if result == nil {
		return nil, fmt.Errorf("empty transaction result")
	}
	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction envelope carried no transaction")
	}

	rec := &analysis.TxRecord{
		Signature: sig.Signature.String(),
		BlockTime: sig.BlockTime,
	}
	if result.BlockTime != nil {
		bt := result.BlockTime.Time()
		rec.BlockTime = &bt
	}

	accountKeys := tx.Message.AccountKeys
	rec.AccountKeys = make([]string, len(accountKeys))
	for i, key := range accountKeys {
		rec.AccountKeys[i] = key.String()
	}

	for _, ix := range tx.Message.Instructions {
		rec.Instructions = append(rec.Instructions, decodeInstruction(ix, accountKeys))
	}

	if meta := result.Meta; meta != nil {
		rec.Fee = meta.Fee
		rec.PreBalances = meta.PreBalances
		rec.PostBalances = meta.PostBalances
		rec.PreTokenBalances = decodeTokenBalances(meta.PreTokenBalances)
		rec.PostTokenBalances = decodeTokenBalances(meta.PostTokenBalances)

		for _, group := range meta.InnerInstructions {
			for _, ix := range group.Instructions {
				rec.InnerInstructions = append(rec.InnerInstructions, decodeInstruction(solana.CompiledInstruction{
					ProgramIDIndex: ix.ProgramIDIndex,
					Accounts:       ix.Accounts,
					Data:           ix.Data,
				}, accountKeys))
			}
		}
	}

	return rec, nil
}

// decodeInstruction classifies one compiled instruction into the tagged
// instruction model. Anything it cannot place keeps its program id and
// nothing else.
func decodeInstruction(ix solana.CompiledInstruction, accountKeys []solana.PublicKey) analysis.Instruction {
	out := analysis.Instruction{}

	if int(ix.ProgramIDIndex) >= len(accountKeys) {
		return out
	}
	programID := accountKeys[ix.ProgramIDIndex]
	out.ProgramID = programID.String()

	key := func(pos int) string {
		if pos >= len(ix.Accounts) {
			return ""
		}
		idx := ix.Accounts[pos]
		if int(idx) >= len(accountKeys) {
			return ""
		}
		return accountKeys[idx].String()
	}

	switch {
	case programID.Equals(SystemProgramID):
		out.Program = "system"
		if native, ok := decodeSystemTransfer(ix, key); ok {
			out.Native = native
		}

	case programID.Equals(TokenProgramID) || programID.Equals(Token2022ProgramID):
		out.Program = "spl-token"
		if tok, ok := decodeTokenInstruction(ix, key); ok {
			out.Token = tok
		}

	case programID.Equals(StakeProgramID):
		out.Program = "stake"
	}

	return out
}

// decodeSystemTransfer extracts a native transfer from a System Program
// instruction.
//
// System Transfer instruction format:
// [0..4]  = instruction type (u32, 2 for Transfer)
// [4..12] = lamports (u64)
// Accounts: [from, to]
func decodeSystemTransfer(ix solana.CompiledInstruction, key func(int) string) (*analysis.NativeTransfer, bool) {
	if len(ix.Data) < 12 {
		return nil, false
	}
	if binary.LittleEndian.Uint32(ix.Data[0:4]) != systemTransferInstruction {
		return nil, false
	}

	source, destination := key(0), key(1)
	if source == "" || destination == "" {
		return nil, false
	}

	return &analysis.NativeTransfer{
		Source:      source,
		Destination: destination,
		Lamports:    binary.LittleEndian.Uint64(ix.Data[4:12]),
	}, true
}

// decodeTokenInstruction extracts the closed set of token-program
// instruction kinds the engine understands: transfer, transferChecked,
// mintTo and burn. Other kinds are ignored, not errors.
//
// Shared layout: [0] = instruction type (u8), [1..9] = amount (u64 LE);
// transferChecked additionally carries decimals at [9]. The mint is only on
// the wire where the account layout includes it, so a plain transfer has no
// mint and no decimals.
func decodeTokenInstruction(ix solana.CompiledInstruction, key func(int) string) (*analysis.TokenInstruction, bool) {
	if len(ix.Data) < 9 {
		return nil, false
	}
	amount := new(big.Int).SetUint64(binary.LittleEndian.Uint64(ix.Data[1:9]))

	switch ix.Data[0] {
	case tokenTransferInstruction:
		// Accounts: [source, destination, authority]
		return &analysis.TokenInstruction{
			Kind:        analysis.TokenTransfer,
			Amount:      amount,
			Source:      key(0),
			Destination: key(1),
		}, true

	case tokenTransferCheckedInstruction:
		// Accounts: [source, mint, destination, authority]
		if len(ix.Data) < 10 {
			return nil, false
		}
		decimals := ix.Data[9]
		return &analysis.TokenInstruction{
			Kind:        analysis.TokenTransferChecked,
			Mint:        key(1),
			Amount:      amount,
			Decimals:    &decimals,
			Source:      key(0),
			Destination: key(2),
		}, true

	case tokenMintToInstruction:
		// Accounts: [mint, destination, authority]
		return &analysis.TokenInstruction{
			Kind:        analysis.TokenMintTo,
			Mint:        key(0),
			Amount:      amount,
			Destination: key(1),
		}, true

	case tokenBurnInstruction:
		// Accounts: [account, mint, owner]
		return &analysis.TokenInstruction{
			Kind:   analysis.TokenBurn,
			Mint:   key(1),
			Amount: amount,
			Source: key(0),
		}, true
	}

	return nil, false
}

// decodeTokenBalances maps pre/post token balance snapshots into the
// engine's form. Raw amounts arrive as decimal strings and can exceed 64
// bits, hence the big.Int parse; entries that fail to parse are dropped.
func decodeTokenBalances(balances []rpc.TokenBalance) []analysis.TokenBalanceSnapshot {
	out := make([]analysis.TokenBalanceSnapshot, 0, len(balances))
	for _, bal := range balances {
		if bal.Owner == nil || bal.UiTokenAmount == nil {
			continue
		}
		amount, ok := new(big.Int).SetString(bal.UiTokenAmount.Amount, 10)
		if !ok {
			continue
		}
		out = append(out, analysis.TokenBalanceSnapshot{
			Owner:  bal.Owner.String(),
			Mint:   bal.Mint.String(),
			Amount: amount,
		})
	}
	return out
}
