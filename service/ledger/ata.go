package ledger

import "sort"

// DetectedATA records the first appearance of a token account for an owner.
// It is ephemeral: computed per transaction and consumed by the fetch
// controller to expand its watch set, never persisted.
type DetectedATA struct {
	Mint         string `json:"mint"`
	Owner        string `json:"owner"`
	AccountIndex uint16 `json:"account_index"`
	TokenAccount string `json:"token_account,omitempty"`
}

// DetectNewATAs finds token accounts created by this transaction: account
// indexes present in the post token balances but absent from the pre
// balances. Rows without an owner cannot be attributed and are skipped.
// The token account address is resolved from the account keys when the
// index is in range.
func DetectNewATAs(tx *RawTransaction) []DetectedATA {
	if tx == nil {
		return nil
	}

	preIdx := make(map[uint16]struct{}, len(tx.PreTokenBalances))
	for _, b := range tx.PreTokenBalances {
		preIdx[b.AccountIndex] = struct{}{}
	}

	var out []DetectedATA
	for _, b := range tx.PostTokenBalances {
		if _, existed := preIdx[b.AccountIndex]; existed {
			continue
		}
		if b.Owner == "" {
			continue
		}
		out = append(out, DetectedATA{
			Mint:         b.Mint,
			Owner:        b.Owner,
			AccountIndex: b.AccountIndex,
			TokenAccount: tx.AccountKey(int(b.AccountIndex)),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].AccountIndex < out[j].AccountIndex })
	return out
}

// GroupNewATAsByOwner runs ATA detection across a list of transactions and
// groups the results by owner. Owners with zero detections are omitted.
func GroupNewATAsByOwner(txs []*RawTransaction) map[string][]DetectedATA {
	grouped := make(map[string][]DetectedATA)
	for _, tx := range txs {
		for _, ata := range DetectNewATAs(tx) {
			grouped[ata.Owner] = append(grouped[ata.Owner], ata)
		}
	}
	return grouped
}
