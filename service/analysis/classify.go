package analysis

// Classify assigns exactly one action to a transaction from its feature
// set. The rules are evaluated in order and the first match wins. The rules
// overlap on purpose (a swap usually also looks like a transfer), so the
// order is load-bearing: reordering changes observable output. Precedence
// runs from the most specific signal (explicit swap-venue usage, multi-asset
// delta patterns) down to coarse single-asset movement.
func Classify(f *Features) ActionType {
	if _, ok := f.ProgramIDs[StakeProgramID]; ok {
		return ActionStake
	}

	var mintedTransfers, uniqueMints int
	seenMints := make(map[string]struct{})
	hasNFT := false
	for _, t := range f.Transfers {
		if t.IsNFTApprox {
			hasNFT = true
		}
		if t.Mint == "" {
			continue
		}
		mintedTransfers++
		if _, ok := seenMints[t.Mint]; !ok {
			seenMints[t.Mint] = struct{}{}
			uniqueMints++
		}
	}

	hasTokenIn, hasTokenOut := false, false
	for _, d := range f.TokenDeltas {
		switch d.Sign() {
		case 1:
			hasTokenIn = true
		case -1:
			hasTokenOut = true
		}
	}
	hasTokenDelta := len(f.TokenDeltas) > 0
	hasNativeDelta := f.NativeDelta != nil && f.NativeDelta.Sign() != 0

	if f.HasSwapProgram && (hasTokenDelta || hasNativeDelta) {
		return ActionSwap
	}
	if hasTokenIn && hasTokenOut && len(f.TokenDeltas) >= 2 {
		return ActionSwap
	}
	if hasTokenDelta && hasNativeDelta {
		return ActionSwap
	}
	if uniqueMints >= 2 {
		return ActionSwap
	}
	if len(f.NativeTransfers) > 0 && mintedTransfers > 0 {
		return ActionSwap
	}
	if hasNFT {
		return ActionNFT
	}
	if mintedTransfers > 0 || len(f.NativeTransfers) > 0 {
		return ActionTransfer
	}
	for _, t := range f.Transfers {
		if t.Source == "" && t.Destination != "" {
			return ActionMint
		}
	}
	return ActionUnknown
}
