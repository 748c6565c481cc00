package classify

import (
	"github.com/soltrace/soltrace/service/ledger"
)

// StakingClassifier recognizes stake and unstake flows under staking
// protocols. Unlike lending, the native asset is the economically
// meaningful side here: staking parts with SOL and receives a liquid
// staking derivative, so the native leg is preferred as primary.
type StakingClassifier struct{}

func (c *StakingClassifier) Name() string { return "staking" }

func (c *StakingClassifier) Classify(in Input) *TransactionClassification {
	if protocolCategory(in) != ledger.CategoryStaking {
		return nil
	}
	legs := nonFeeWalletLegs(in)
	if len(legs) == 0 {
		return nil
	}

	primary := nativeLeg(legs)
	if primary == nil {
		primary = pickPrimaryLeg(legs)
	}
	if primary == nil {
		return nil
	}

	var secondary *ledger.MoneyAmount
	for _, l := range legs {
		if l.Amount.Token.Mint != primary.Amount.Token.Mint && l.Side != primary.Side {
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
		Confidence: 0.85,
		IsRelevant: true,
		Metadata:   protocolMetadata(in),
	}

	switch {
	case primary.Role == ledger.RoleReward:
		result.PrimaryType = TypeClaimRewards
		result.Direction = DirectionIncoming
		result.Receiver = in.Wallet
	case primary.Side == ledger.SideDebit:
		result.PrimaryType = TypeStake
		result.Direction = DirectionOutgoing
		result.Sender = in.Wallet
	default:
		result.PrimaryType = TypeUnstake
		result.Direction = DirectionIncoming
		result.Receiver = in.Wallet
	}
	return result
}

// nativeLeg returns the largest native-asset leg, or nil.
func nativeLeg(legs []ledger.TxLeg) *ledger.TxLeg {
	var best *ledger.TxLeg
	for i := range legs {
		if !legs[i].Amount.Token.IsNative() {
			continue
		}
		if best == nil || legs[i].Amount.AmountUI > best.Amount.AmountUI {
			best = &legs[i]
		}
	}
	return best
}
