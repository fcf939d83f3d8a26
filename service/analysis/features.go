package analysis

import "math/big"

// ExtractFeatures derives the normalized feature set for one transaction.
// It is a pure function of the record, the subject wallet address, and the
// static program table: no field access here can fail, absent data degrades
// to empty values.
func ExtractFeatures(rec *TxRecord, owner string, programs ProgramTable) *Features {
	f := &Features{
		ProgramIDs: make(map[string]struct{}),
	}

	// Top-level and inner instructions are folded into one sequence. The
	// flattening order is irrelevant: everything downstream is
	// order-insensitive within a single transaction.
	for _, ix := range flattenInstructions(rec) {
		if ix.ProgramID != "" {
			if _, seen := f.ProgramIDs[ix.ProgramID]; !seen {
				f.ProgramIDs[ix.ProgramID] = struct{}{}
				f.ProgramIDOrder = append(f.ProgramIDOrder, ix.ProgramID)
			}
		}
		if ix.Program != "" {
			f.Programs = append(f.Programs, ix.Program)
		}

		if ix.Native != nil {
			f.NativeTransfers = append(f.NativeTransfers, *ix.Native)
		}
		if ix.Token != nil {
			if ev, ok := transferEventFromToken(ix.Token); ok {
				f.Transfers = append(f.Transfers, ev)
			}
		}
	}

	f.TokenDeltas = ownerTokenDeltas(rec, owner)
	f.NativeDelta = ownerNativeDelta(rec, owner)

	for id := range f.ProgramIDs {
		if programs.IsSwapCapable(id) {
			f.HasSwapProgram = true
			break
		}
	}

	return f
}

func flattenInstructions(rec *TxRecord) []Instruction {
	out := make([]Instruction, 0, len(rec.Instructions)+len(rec.InnerInstructions))
	out = append(out, rec.Instructions...)
	out = append(out, rec.InnerInstructions...)
	return out
}

// transferEventFromToken maps a decoded token instruction to a transfer
// event. Amounts are absolute-valued so sign can never cancel in sums.
// Only transferChecked carries decimals on the wire, so only it (and a
// mintTo that happens to expose decimals) can be flagged NFT-approximate.
func transferEventFromToken(tok *TokenInstruction) (TransferEvent, bool) {
	amount := new(big.Int)
	if tok.Amount != nil {
		amount.Abs(tok.Amount)
	}

	ev := TransferEvent{
		Mint:        tok.Mint,
		AmountAbs:   amount,
		Decimals:    tok.Decimals,
		Source:      tok.Source,
		Destination: tok.Destination,
	}

	switch tok.Kind {
	case TokenTransfer, TokenBurn:
		// Decimals unknown for these kinds; never NFT-approximate.
	case TokenTransferChecked, TokenMintTo:
		ev.IsNFTApprox = tok.Decimals != nil && *tok.Decimals == 0 && amount.Cmp(big.NewInt(1)) == 0
	default:
		return TransferEvent{}, false
	}

	return ev, true
}

// ownerTokenDeltas computes the subject wallet's net token balance change
// per mint, from the pre/post snapshots. Mints whose net delta is zero are
// dropped so only mints where holdings actually changed remain.
func ownerTokenDeltas(rec *TxRecord, owner string) map[string]*big.Int {
	deltas := make(map[string]*big.Int)

	add := func(mint string, amount *big.Int, negate bool) {
		d, ok := deltas[mint]
		if !ok {
			d = new(big.Int)
			deltas[mint] = d
		}
		if negate {
			d.Sub(d, amount)
		} else {
			d.Add(d, amount)
		}
	}

	for _, bal := range rec.PreTokenBalances {
		if bal.Owner != owner || bal.Amount == nil {
			continue
		}
		add(bal.Mint, bal.Amount, true)
	}
	for _, bal := range rec.PostTokenBalances {
		if bal.Owner != owner || bal.Amount == nil {
			continue
		}
		add(bal.Mint, bal.Amount, false)
	}

	for mint, d := range deltas {
		if d.Sign() == 0 {
			delete(deltas, mint)
		}
	}

	return deltas
}

// ownerNativeDelta computes post minus pre lamport balance at the wallet's
// position in the account list, zero if the wallet is not among the
// accounts.
func ownerNativeDelta(rec *TxRecord, owner string) *big.Int {
	idx := -1
	for i, key := range rec.AccountKeys {
		if key == owner {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(rec.PreBalances) || idx >= len(rec.PostBalances) {
		return new(big.Int)
	}

	pre := new(big.Int).SetUint64(rec.PreBalances[idx])
	post := new(big.Int).SetUint64(rec.PostBalances[idx])
	return post.Sub(post, pre)
}
