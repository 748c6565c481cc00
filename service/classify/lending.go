package classify

import (
	"github.com/soltrace/soltrace/service/ledger"
)

// LendingClassifier recognizes deposits into and withdrawals from lending
// protocols. When both a principal token and a receipt/derivative token
// move in opposite directions (deposit X, receive derivative Y), the
// primary amount is the non-receipt token: the asset the user actually
// parted with or received.
type LendingClassifier struct{}

func (c *LendingClassifier) Name() string { return "lending" }

func (c *LendingClassifier) Classify(in Input) *TransactionClassification {
	if protocolCategory(in) != ledger.CategoryLending {
		return nil
	}
	legs := nonFeeWalletLegs(in)
	if len(legs) == 0 {
		return nil
	}

	// The principal is the wallet leg whose mint also moved on the
	// protocol side of the transaction: deposited tokens land in a vault,
	// withdrawn tokens leave one. Receipt tokens (cUSDC, mSOL) are minted
	// or burned instead, so they never have a counterpart movement and
	// must not win primary selection on size alone.
	var principals []ledger.TxLeg
	for _, l := range legs {
		if hasCounterpartMovement(in, l) {
			principals = append(principals, l)
		}
	}
	primary := pickPrimaryLeg(principals)
	if primary == nil {
		primary = pickPrimaryLeg(legs)
	}
	if primary == nil {
		return nil
	}

	// The derivative counterpart, if one moved against the primary.
	var secondary *ledger.MoneyAmount
	for _, l := range legs {
		if l.Amount.Token.Mint == primary.Amount.Token.Mint {
			continue
		}
		if l.Side != primary.Side {
			amount := l.Amount
			secondary = &amount
			break
		}
	}

	result := &TransactionClassification{
		PrimaryAmount:   &primary.Amount,
		SecondaryAmount: secondary,
		Counterparty: &Counterparty{
			Type:    CounterpartyProtocol,
			Address: in.Tx.Protocol.ID,
			Name:    in.Tx.Protocol.Name,
		},
		Confidence: 0.9,
		IsRelevant: true,
		Metadata:   protocolMetadata(in),
	}

	if primary.Side == ledger.SideDebit {
		result.PrimaryType = TypeTokenDeposit
		result.Direction = DirectionOutgoing
		result.Sender = in.Wallet
	} else {
		result.PrimaryType = TypeTokenWithdraw
		result.Direction = DirectionIncoming
		result.Receiver = in.Wallet
	}
	return result
}

// hasCounterpartMovement reports whether some non-wallet account moved the
// same mint in the opposite direction within the transaction.
func hasCounterpartMovement(in Input, leg ledger.TxLeg) bool {
	for _, other := range in.Legs {
		if other.IsFee() || other.Address == in.Wallet {
			continue
		}
		if other.Amount.Token.Mint != leg.Amount.Token.Mint {
			continue
		}
		if other.Side != leg.Side {
			return true
		}
	}
	return false
}
