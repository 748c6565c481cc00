package classify

import (
	"github.com/soltrace/soltrace/service/ledger"
)

// AirdropClassifier recognizes one-sided pushes into the wallet: either a
// claim through a known distributor, or tokens arriving while someone else
// paid the fee. The wallet must have received and sent nothing.
type AirdropClassifier struct{}

func (c *AirdropClassifier) Name() string { return "airdrop" }

func (c *AirdropClassifier) Classify(in Input) *TransactionClassification {
	legs := nonFeeWalletLegs(in)
	if len(legs) == 0 {
		return nil
	}
	for _, l := range legs {
		if l.Side == ledger.SideDebit {
			return nil
		}
	}

	confidence := 0.0
	switch {
	case protocolCategory(in) == ledger.CategoryDistributor:
		confidence = 0.9
	case in.Tx != nil && in.Tx.FeePayer() != "" && in.Tx.FeePayer() != in.Wallet && !hasCounterpartDebit(in, legs):
		confidence = 0.75
	default:
		return nil
	}

	return &TransactionClassification{
		PrimaryType:   TypeAirdrop,
		Direction:     DirectionIncoming,
		PrimaryAmount: pickPrimary(legs),
		Counterparty:  protocolCounterparty(in),
		Receiver:      in.Wallet,
		Confidence:    confidence,
		IsRelevant:    true,
		Metadata:      protocolMetadata(in),
	}
}

// hasCounterpartDebit reports whether another account gave up one of the
// mints the wallet received. Such a debit means an ordinary transfer from a
// sender who paid the fee, not tokens minted into the wallet.
func hasCounterpartDebit(in Input, credits []ledger.TxLeg) bool {
	mints := make(map[string]struct{}, len(credits))
	for _, l := range credits {
		mints[l.Amount.Token.Mint] = struct{}{}
	}
	for _, l := range in.Legs {
		if l.IsFee() || l.Address == in.Wallet || l.Side != ledger.SideDebit {
			continue
		}
		if _, ok := mints[l.Amount.Token.Mint]; ok {
			return true
		}
	}
	return false
}
