package classify

// TransferClassifier recognizes plain one-token transfers. It is the most
// generic shape classifier and must stay near the end of the chain so
// protocol-specific classifiers see the legs first.
type TransferClassifier struct{}

func (c *TransferClassifier) Name() string { return "transfer" }

func (c *TransferClassifier) Classify(in Input) *TransactionClassification {
	flows := walletFlows(in)
	if len(flows) != 1 {
		return nil
	}
	var flow *tokenFlow
	for _, f := range flows {
		flow = f
	}

	// Wallet moved funds between its own accounts.
	if flow.net == 0 && flow.debits > 0 {
		return &TransactionClassification{
			PrimaryType:   TypeTransfer,
			Direction:     DirectionSelf,
			PrimaryAmount: flow.debitAmount(),
			Counterparty:  &Counterparty{Type: CounterpartyOwnWallet, Address: in.Wallet},
			Confidence:    0.95,
			IsRelevant:    true,
		}
	}
	if flow.net == 0 {
		return nil
	}

	direction := netDirection(flow.net)

	counterparty := otherParty(in, flow.token.Mint, direction)
	if counterparty == nil {
		counterparty = &Counterparty{Type: CounterpartyUnknown}
	}

	result := &TransactionClassification{
		PrimaryType:   TypeTransfer,
		Direction:     direction,
		PrimaryAmount: flow.netAmount(),
		Counterparty:  counterparty,
		Confidence:    0.95,
		IsRelevant:    true,
	}
	if direction == DirectionOutgoing {
		result.Sender = in.Wallet
	} else {
		result.Receiver = in.Wallet
	}
	return result
}
