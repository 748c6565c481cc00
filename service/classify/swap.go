package classify

import (
	"github.com/soltrace/soltrace/service/ledger"
)

// SwapClassifier recognizes token-for-token exchanges: two distinct mints
// moving through the wallet in opposite directions. Wrap/unwrap of the
// native asset is a special case where both sides share the wrapped mint.
type SwapClassifier struct{}

func (c *SwapClassifier) Name() string { return "swap" }

func (c *SwapClassifier) Classify(in Input) *TransactionClassification {
	flows := walletFlows(in)
	if len(flows) == 0 {
		return nil
	}

	if result := c.classifyWrap(in, flows); result != nil {
		return result
	}

	var bought, sold *tokenFlow
	for _, f := range flows {
		switch {
		case f.net > 0:
			if bought == nil || f.net > bought.net {
				bought = f
			}
		case f.net < 0:
			if sold == nil || f.net < sold.net {
				sold = f
			}
		}
	}
	if bought == nil || sold == nil {
		return nil
	}

	confidence := 0.7
	if protocolCategory(in) == ledger.CategoryDEX {
		confidence = 0.9
	}

	primary := bought.netAmount()
	secondary := sold.netAmount()

	meta := protocolMetadata(in)
	if meta == nil {
		meta = map[string]string{}
	}
	meta["input_mint"] = sold.token.Mint
	meta["output_mint"] = bought.token.Mint

	return &TransactionClassification{
		PrimaryType:     TypeSwap,
		Direction:       DirectionNeutral,
		PrimaryAmount:   primary,
		SecondaryAmount: secondary,
		Counterparty:    protocolCounterparty(in),
		Confidence:      confidence,
		IsRelevant:      true,
		Metadata:        meta,
	}
}

// classifyWrap handles native <-> wrapped-SOL conversions. Native and
// wrapped legs share a mint, so the net flow is near zero while both sides
// moved; the wallet's wrapped token-account delta tells which way.
func (c *SwapClassifier) classifyWrap(in Input, flows map[string]*tokenFlow) *TransactionClassification {
	if len(flows) != 1 || in.Tx == nil {
		return nil
	}
	f, ok := flows[ledger.NativeMint]
	if !ok || f.debits < nativeNoiseThreshold || f.credits < nativeNoiseThreshold {
		return nil
	}

	delta := wrappedBalanceDelta(in.Tx, in.Wallet)
	if delta == 0 {
		return nil
	}

	result := &TransactionClassification{
		Direction:     DirectionSelf,
		PrimaryAmount: f.debitAmount(),
		Confidence:    0.8,
		IsRelevant:    true,
	}
	if delta > 0 {
		result.PrimaryType = TypeWrap
	} else {
		result.PrimaryType = TypeUnwrap
	}
	return result
}

// wrappedBalanceDelta returns the wallet's wrapped-SOL token-account
// balance change in base units (post minus pre).
func wrappedBalanceDelta(tx *ledger.RawTransaction, wallet string) int64 {
	var pre, post uint64
	for _, b := range tx.PreTokenBalances {
		if b.Owner == wallet && b.Mint == ledger.NativeMint {
			pre += b.UITokenAmount.BaseUnits()
		}
	}
	for _, b := range tx.PostTokenBalances {
		if b.Owner == wallet && b.Mint == ledger.NativeMint {
			post += b.UITokenAmount.BaseUnits()
		}
	}
	return int64(post) - int64(pre)
}
