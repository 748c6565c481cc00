package classify

import (
	"github.com/soltrace/soltrace/service/ledger"
)

// PriceLookup resolves a USD price for a mint. Implementations return
// ok=false when no price is known; the filter then treats the UI amount as
// a unit-priced value.
type PriceLookup interface {
	USDPrice(mint string) (float64, bool)
}

// SpamConfig holds the thresholds for the spam/dust filter.
type SpamConfig struct {
	// MinSolAmount is the native-asset dust floor in UI units. Amounts at
	// the threshold are kept; anything strictly below is dust.
	MinSolAmount float64

	// MinTokenAmountUSD is the dust floor for everything else, in USD.
	MinTokenAmountUSD float64

	// MinConfidence rejects classifications the chain was unsure about.
	MinConfidence float64

	// AllowFailed keeps failed transactions instead of filtering them.
	AllowFailed bool
}

// DefaultSpamConfig returns the production thresholds.
func DefaultSpamConfig() SpamConfig {
	return SpamConfig{
		MinSolAmount:      0.001,
		MinTokenAmountUSD: 0.01,
		MinConfidence:     0.5,
		AllowFailed:       false,
	}
}

// IsSpam is the post-classification gate. It is a pure predicate: no side
// effects, no network calls beyond the injected price lookup.
//
// A transaction is spam when it failed (unless allowed), when the
// classification is low-confidence or irrelevant to the wallet, when the
// primary amount is dust, or when the wallet's own legs are nothing but
// individually-dust receipts with nothing non-dust sent. That last pattern
// is a pushed spam airdrop, distinct from ordinary low-value activity.
func IsSpam(tx *ledger.RawTransaction, classification TransactionClassification, legs []ledger.TxLeg, walletAddress string, cfg SpamConfig, prices PriceLookup) bool {
	if tx != nil && tx.Failed() && !cfg.AllowFailed {
		return true
	}
	if classification.Confidence < cfg.MinConfidence {
		return true
	}
	if !classification.IsRelevant {
		return true
	}
	if classification.PrimaryAmount != nil && isDust(*classification.PrimaryAmount, cfg, prices) {
		return true
	}
	return isDustAirdrop(legs, walletAddress, cfg, prices)
}

// isDust reports whether an amount is below the configured floor. The
// boundary is inclusive: an amount exactly at the threshold is not dust.
func isDust(amount ledger.MoneyAmount, cfg SpamConfig, prices PriceLookup) bool {
	ui := amount.AmountUI
	if ui < 0 {
		ui = -ui
	}
	if amount.Token.IsNative() {
		return ui < cfg.MinSolAmount
	}
	if prices != nil {
		if price, ok := prices.USDPrice(amount.Token.Mint); ok {
			return ui*price < cfg.MinTokenAmountUSD
		}
	}
	// No price known: compare the UI amount as if unit-priced.
	return ui < cfg.MinTokenAmountUSD
}

// isDustAirdrop detects the received-only dust pattern. A wallet that sent
// anything non-dust, or received at least one non-dust amount, is never
// flagged here.
func isDustAirdrop(legs []ledger.TxLeg, walletAddress string, cfg SpamConfig, prices PriceLookup) bool {
	var received, sent []ledger.TxLeg
	for _, l := range ledger.WalletLegs(legs, walletAddress) {
		if l.IsFee() {
			continue
		}
		if l.Side == ledger.SideCredit {
			received = append(received, l)
		} else {
			sent = append(sent, l)
		}
	}
	if len(received) == 0 {
		return false
	}
	for _, l := range sent {
		if !isDust(l.Amount, cfg, prices) {
			return false
		}
	}
	for _, l := range received {
		if !isDust(l.Amount, cfg, prices) {
			return false
		}
	}
	// Only dust received, nothing non-dust sent.
	return true
}

// FilterSpam drops spam entries from a classified batch, preserving input
// order and every field of the surviving records.
func FilterSpam(txs []ClassifiedTransaction, walletAddress string, cfg SpamConfig, prices PriceLookup) []ClassifiedTransaction {
	out := make([]ClassifiedTransaction, 0, len(txs))
	for _, ct := range txs {
		if IsSpam(ct.Tx, ct.Classification, ct.Legs, walletAddress, cfg, prices) {
			continue
		}
		out = append(out, ct)
	}
	return out
}
