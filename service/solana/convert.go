package solana

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/soltrace/soltrace/service/ledger"
)

// Well-known program IDs.
var (
	// MemoProgramIDSPL is the SPL Memo program (most common).
	MemoProgramIDSPL = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

	// MemoProgramIDLegacy is the legacy memo program (v1).
	MemoProgramIDLegacy = solana.MustPublicKeyFromBase58("Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo")
)

// signatureInfoFromRPC converts one signature listing entry.
func signatureInfoFromRPC(sig *rpc.TransactionSignature) SignatureInfo {
	info := SignatureInfo{
		Signature: sig.Signature.String(),
		Slot:      sig.Slot,
		Err:       sig.Err,
	}
	if sig.BlockTime != nil {
		t := sig.BlockTime.Time()
		info.BlockTime = &t
	}
	if sig.Memo != nil {
		info.Memo = stripMemoPrefix(*sig.Memo)
	}
	return info
}

// signatureToRaw builds a metadata-only snapshot from a signature entry.
// Used when the transaction body cannot be fetched or decoded; the snapshot
// carries no balances, so decomposition yields no legs.
func signatureToRaw(sig SignatureInfo) *ledger.RawTransaction {
	tx := &ledger.RawTransaction{
		Signature: sig.Signature,
		Slot:      sig.Slot,
		Err:       sig.Err,
		Memo:      sig.Memo,
	}
	if sig.BlockTime != nil {
		t := *sig.BlockTime
		tx.BlockTime = &t
	}
	return tx
}

// rawFromResult converts a full GetTransactionResult into a raw snapshot:
// account keys (including loaded lookup-table addresses), native and token
// balance snapshots, fee, error, touched program ids, and memo.
func rawFromResult(sig SignatureInfo, result *rpc.GetTransactionResult) (*ledger.RawTransaction, error) {
	tx := signatureToRaw(sig)
	if result == nil {
		return tx, nil
	}
	if result.Slot != 0 {
		tx.Slot = result.Slot
	}
	if result.BlockTime != nil {
		t := result.BlockTime.Time()
		tx.BlockTime = &t
	}

	decoded, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	keys := make([]string, 0, len(decoded.Message.AccountKeys))
	for _, k := range decoded.Message.AccountKeys {
		keys = append(keys, k.String())
	}

	meta := result.Meta
	if meta != nil {
		// Addresses resolved from lookup tables extend the static key list:
		// writable first, then read-only, matching balance array indexing.
		for _, k := range meta.LoadedAddresses.Writable {
			keys = append(keys, k.String())
		}
		for _, k := range meta.LoadedAddresses.ReadOnly {
			keys = append(keys, k.String())
		}

		tx.Fee = meta.Fee
		tx.Err = meta.Err
		tx.PreBalances = meta.PreBalances
		tx.PostBalances = meta.PostBalances
		tx.PreTokenBalances = tokenBalancesFromRPC(meta.PreTokenBalances)
		tx.PostTokenBalances = tokenBalancesFromRPC(meta.PostTokenBalances)
	}
	tx.AccountKeys = keys

	tx.ProgramIDs = collectProgramIDs(decoded, meta, keys)

	if memo := extractMemo(decoded, keys); memo != "" {
		tx.Memo = memo
	}
	return tx, nil
}

func tokenBalancesFromRPC(balances []rpc.TokenBalance) []ledger.TokenBalance {
	if len(balances) == 0 {
		return nil
	}
	out := make([]ledger.TokenBalance, 0, len(balances))
	for _, b := range balances {
		row := ledger.TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint.String(),
		}
		if b.Owner != nil {
			row.Owner = b.Owner.String()
		}
		if b.ProgramId != nil {
			row.ProgramID = b.ProgramId.String()
		}
		if b.UiTokenAmount != nil {
			row.UITokenAmount = ledger.UITokenAmount{
				Amount:         b.UiTokenAmount.Amount,
				Decimals:       b.UiTokenAmount.Decimals,
				UIAmountString: b.UiTokenAmount.UiAmountString,
			}
			if b.UiTokenAmount.UiAmount != nil {
				row.UITokenAmount.UIAmount = *b.UiTokenAmount.UiAmount
			}
		}
		out = append(out, row)
	}
	return out
}

// collectProgramIDs gathers every program touched by the transaction, outer
// and inner instructions both, deduplicated in first-seen order.
func collectProgramIDs(decoded *solana.Transaction, meta *rpc.TransactionMeta, keys []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(index uint16) {
		if int(index) >= len(keys) {
			return
		}
		id := keys[index]
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	for _, ins := range decoded.Message.Instructions {
		add(ins.ProgramIDIndex)
	}
	if meta != nil {
		for _, inner := range meta.InnerInstructions {
			for _, ins := range inner.Instructions {
				add(ins.ProgramIDIndex)
			}
		}
	}
	return out
}

// extractMemo pulls the memo text from memo program instructions.
func extractMemo(decoded *solana.Transaction, keys []string) string {
	for _, ins := range decoded.Message.Instructions {
		if int(ins.ProgramIDIndex) >= len(keys) {
			continue
		}
		id := keys[ins.ProgramIDIndex]
		if id != MemoProgramIDSPL.String() && id != MemoProgramIDLegacy.String() {
			continue
		}
		if memo := parseMemo(ins.Data); memo != "" {
			return memo
		}
	}
	return ""
}

// parseMemo renders memo instruction data as text. Memo payloads are raw
// UTF-8 bytes; anything else is dropped rather than stored as garbage.
func parseMemo(data []byte) string {
	if !utf8.Valid(data) {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// stripMemoPrefix removes the "[len] " length prefix the RPC node prepends
// to memos in signature listings.
func stripMemoPrefix(memo string) string {
	if strings.HasPrefix(memo, "[") {
		if i := strings.Index(memo, "] "); i >= 0 {
			return memo[i+2:]
		}
	}
	return memo
}
