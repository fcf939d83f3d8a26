package solana

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/ledgerlens/service/analysis"
)

func systemTransferData(lamports uint64) solana.Base58 {
	data := make(solana.Base58, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemTransferInstruction)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	return data
}

func tokenData(tag uint8, amount uint64, decimals ...uint8) solana.Base58 {
	data := make(solana.Base58, 9, 10)
	data[0] = tag
	binary.LittleEndian.PutUint64(data[1:9], amount)
	if len(decimals) > 0 {
		data = append(data, decimals[0])
	}
	return data
}

func TestDecodeInstruction_SystemTransfer(t *testing.T) {
	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	keys := []solana.PublicKey{from, to, SystemProgramID}

	ix := solana.CompiledInstruction{
		ProgramIDIndex: 2,
		Accounts:       []uint16{0, 1},
		Data:           systemTransferData(123456),
	}

	out := decodeInstruction(ix, keys)

	assert.Equal(t, SystemProgramID.String(), out.ProgramID)
	assert.Equal(t, "system", out.Program)
	require.NotNil(t, out.Native)
	assert.Equal(t, from.String(), out.Native.Source)
	assert.Equal(t, to.String(), out.Native.Destination)
	assert.Equal(t, uint64(123456), out.Native.Lamports)
	assert.Nil(t, out.Token)
}

func TestDecodeInstruction_SystemNonTransfer(t *testing.T) {
	keys := []solana.PublicKey{SystemProgramID}

	// CreateAccount (type 0) must pass through with just the program id.
	ix := solana.CompiledInstruction{ProgramIDIndex: 0, Data: make(solana.Base58, 12)}

	out := decodeInstruction(ix, keys)
	assert.Equal(t, "system", out.Program)
	assert.Nil(t, out.Native)
}

func TestDecodeInstruction_TokenKinds(t *testing.T) {
	source := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	dest := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()
	keys := []solana.PublicKey{source, mint, dest, owner, TokenProgramID}

	tests := []struct {
		name     string
		accounts []uint16
		data     []byte
		want     analysis.TokenInstruction
	}{
		{
			name:     "transfer",
			accounts: []uint16{0, 2, 3},
			data:     tokenData(tokenTransferInstruction, 500),
			want: analysis.TokenInstruction{
				Kind:        analysis.TokenTransfer,
				Source:      source.String(),
				Destination: dest.String(),
			},
		},
		{
			name:     "transferChecked",
			accounts: []uint16{0, 1, 2, 3},
			data:     tokenData(tokenTransferCheckedInstruction, 500, 6),
			want: analysis.TokenInstruction{
				Kind:        analysis.TokenTransferChecked,
				Mint:        mint.String(),
				Source:      source.String(),
				Destination: dest.String(),
			},
		},
		{
			name:     "mintTo",
			accounts: []uint16{1, 2, 3},
			data:     tokenData(tokenMintToInstruction, 500),
			want: analysis.TokenInstruction{
				Kind:        analysis.TokenMintTo,
				Mint:        mint.String(),
				Destination: dest.String(),
			},
		},
		{
			name:     "burn",
			accounts: []uint16{0, 1, 3},
			data:     tokenData(tokenBurnInstruction, 500),
			want: analysis.TokenInstruction{
				Kind:   analysis.TokenBurn,
				Mint:   mint.String(),
				Source: source.String(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix := solana.CompiledInstruction{
				ProgramIDIndex: 4,
				Accounts:       tt.accounts,
				Data:           tt.data,
			}

			out := decodeInstruction(ix, keys)

			assert.Equal(t, "spl-token", out.Program)
			require.NotNil(t, out.Token)
			assert.Equal(t, tt.want.Kind, out.Token.Kind)
			assert.Equal(t, tt.want.Mint, out.Token.Mint)
			assert.Equal(t, tt.want.Source, out.Token.Source)
			assert.Equal(t, tt.want.Destination, out.Token.Destination)
			assert.Equal(t, "500", out.Token.Amount.String())

			if tt.want.Kind == analysis.TokenTransferChecked {
				require.NotNil(t, out.Token.Decimals)
				assert.Equal(t, uint8(6), *out.Token.Decimals)
			} else {
				assert.Nil(t, out.Token.Decimals)
			}
		})
	}
}

func TestDecodeInstruction_UnknownTokenKind(t *testing.T) {
	keys := []solana.PublicKey{TokenProgramID}

	// CloseAccount (type 9) is outside the closed set we decode.
	ix := solana.CompiledInstruction{
		ProgramIDIndex: 0,
		Data:           tokenData(9, 1),
	}

	out := decodeInstruction(ix, keys)
	assert.Equal(t, "spl-token", out.Program)
	assert.Nil(t, out.Token)
}

func TestDecodeInstruction_ShortData(t *testing.T) {
	keys := []solana.PublicKey{TokenProgramID, SystemProgramID}

	out := decodeInstruction(solana.CompiledInstruction{ProgramIDIndex: 0, Data: solana.Base58{3}}, keys)
	assert.Nil(t, out.Token)

	out = decodeInstruction(solana.CompiledInstruction{ProgramIDIndex: 1, Data: solana.Base58{2, 0}}, keys)
	assert.Nil(t, out.Native)
}

func TestDecodeInstruction_ProgramIndexOutOfRange(t *testing.T) {
	out := decodeInstruction(solana.CompiledInstruction{ProgramIDIndex: 7}, []solana.PublicKey{})
	assert.Empty(t, out.ProgramID)
	assert.Nil(t, out.Native)
	assert.Nil(t, out.Token)
}

func TestDecodeTokenBalances(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	// A raw amount wider than 64 bits must survive the parse.
	huge := "36893488147419103232" // 2^65

	balances := []rpc.TokenBalance{
		{
			Mint:          mint,
			Owner:         &owner,
			UiTokenAmount: &rpc.UiTokenAmount{Amount: huge, Decimals: 9},
		},
		{
			// No owner: dropped.
			Mint:          mint,
			UiTokenAmount: &rpc.UiTokenAmount{Amount: "5", Decimals: 0},
		},
		{
			// Unparseable amount: dropped.
			Mint:          mint,
			Owner:         &owner,
			UiTokenAmount: &rpc.UiTokenAmount{Amount: "not-a-number", Decimals: 0},
		},
	}

	out := decodeTokenBalances(balances)

	require.Len(t, out, 1)
	assert.Equal(t, owner.String(), out[0].Owner)
	assert.Equal(t, mint.String(), out[0].Mint)
	assert.Equal(t, huge, out[0].Amount.String())
}

func TestDecodeRecord_FullTransaction(t *testing.T) {
	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	keys := []solana.PublicKey{from, to, SystemProgramID}

	tx := &solana.Transaction{
		Signatures: []solana.Signature{testSig1},
		Message: solana.Message{
			Header: solana.MessageHeader{
				NumRequiredSignatures: 1,
			},
			AccountKeys: keys,
			Instructions: []solana.CompiledInstruction{
				{
					ProgramIDIndex: 2,
					Accounts:       []uint16{0, 1},
					Data:           systemTransferData(777),
				},
			},
		},
	}
	txBin, err := tx.MarshalBinary()
	require.NoError(t, err)

	blockTime := time.Date(2025, 5, 18, 14, 0, 0, 0, time.UTC)
	payload := fmt.Sprintf(`{
		"slot": 123,
		"blockTime": %d,
		"transaction": [%q, "base64"],
		"meta": {
			"err": null,
			"fee": 5000,
			"preBalances": [1000, 0, 1],
			"postBalances": [223, 777, 1],
			"preTokenBalances": [],
			"postTokenBalances": [],
			"innerInstructions": []
		}
	}`, blockTime.Unix(), base64.StdEncoding.EncodeToString(txBin))

	var result rpc.GetTransactionResult
	require.NoError(t, json.Unmarshal([]byte(payload), &result))

	rec, err := decodeRecord(SignatureInfo{Signature: testSig1}, &result)
	require.NoError(t, err)

	assert.Equal(t, testSig1.String(), rec.Signature)
	require.NotNil(t, rec.BlockTime)
	assert.Equal(t, blockTime.Unix(), rec.BlockTime.Unix())
	assert.Equal(t, uint64(5000), rec.Fee)
	assert.Equal(t, []uint64{1000, 0, 1}, rec.PreBalances)
	assert.Equal(t, []uint64{223, 777, 1}, rec.PostBalances)
	assert.Equal(t, []string{from.String(), to.String(), SystemProgramID.String()}, rec.AccountKeys)

	require.Len(t, rec.Instructions, 1)
	require.NotNil(t, rec.Instructions[0].Native)
	assert.Equal(t, uint64(777), rec.Instructions[0].Native.Lamports)
	assert.Empty(t, rec.InnerInstructions)
}

func TestDecodeRecord_NilResult(t *testing.T) {
	_, err := decodeRecord(SignatureInfo{Signature: testSig1}, nil)
	require.Error(t, err)
}
