package classify

import (
	"github.com/soltrace/soltrace/service/ledger"
)

// PaymentMemoClassifier recognizes single-token transfers carrying a memo:
// invoices, tips, and payment-gateway flows annotate transfers this way.
type PaymentMemoClassifier struct{}

func (c *PaymentMemoClassifier) Name() string { return "payment_memo" }

func (c *PaymentMemoClassifier) Classify(in Input) *TransactionClassification {
	if in.Tx == nil || in.Tx.Memo == "" {
		return nil
	}
	flows := walletFlows(in)
	if len(flows) != 1 {
		return nil
	}
	var flow *tokenFlow
	for _, f := range flows {
		flow = f
	}
	if flow.net == 0 {
		return nil
	}

	direction := netDirection(flow.net)

	result := &TransactionClassification{
		PrimaryType:   TypePayment,
		Direction:     direction,
		PrimaryAmount: flow.netAmount(),
		Counterparty:  otherParty(in, flow.token.Mint, direction),
		Confidence:    0.8,
		IsRelevant:    true,
		Metadata:      map[string]string{"memo": in.Tx.Memo},
	}
	if direction == DirectionOutgoing {
		result.Sender = in.Wallet
	} else {
		result.Receiver = in.Wallet
	}
	return result
}

// otherParty finds the counterparty of a one-token transfer: the non-wallet
// account moving the same mint on the opposite side.
func otherParty(in Input, mint string, direction Direction) *Counterparty {
	wantSide := ledger.SideCredit
	if direction == DirectionIncoming {
		wantSide = ledger.SideDebit
	}
	for _, l := range in.Legs {
		if l.IsFee() || l.Address == in.Wallet {
			continue
		}
		if l.Amount.Token.Mint == mint && l.Side == wantSide {
			return &Counterparty{Type: CounterpartyPerson, Address: l.Address}
		}
	}
	return nil
}
