package classify

import (
	"github.com/soltrace/soltrace/service/ledger"
)

// BridgeClassifier recognizes cross-chain bridge deposits and releases.
// Only the local side of the bridge is visible, so confidence is lower
// than for fully on-chain patterns.
type BridgeClassifier struct{}

func (c *BridgeClassifier) Name() string { return "bridge" }

func (c *BridgeClassifier) Classify(in Input) *TransactionClassification {
	if protocolCategory(in) != ledger.CategoryBridge {
		return nil
	}
	legs := nonFeeWalletLegs(in)
	primary := pickPrimaryLeg(legs)
	if primary == nil {
		return nil
	}

	result := &TransactionClassification{
		PrimaryAmount: &primary.Amount,
		Counterparty: &Counterparty{
			Type:    CounterpartyProtocol,
			Address: in.Tx.Protocol.ID,
			Name:    in.Tx.Protocol.Name,
		},
		Confidence: 0.8,
		IsRelevant: true,
		Metadata:   protocolMetadata(in),
	}

	if primary.Side == ledger.SideDebit {
		result.PrimaryType = TypeBridgeOut
		result.Direction = DirectionOutgoing
		result.Sender = in.Wallet
	} else {
		result.PrimaryType = TypeBridgeIn
		result.Direction = DirectionIncoming
		result.Receiver = in.Wallet
	}
	return result
}
