package nats

import (
	"time"

	"github.com/soltrace/soltrace/service/classify"
)

// ClassificationEvent is one classified transaction as published to
// JetStream on the subject "classified.{wallet_address}". Consumers get
// the verdict and the primary amount without refetching the transaction.
type ClassificationEvent struct {
	Signature     string `json:"signature"`
	Slot          uint64 `json:"slot"`
	WalletAddress string `json:"wallet_address"`

	TxType     string  `json:"tx_type"`
	Direction  string  `json:"direction,omitempty"`
	Confidence float64 `json:"confidence"`
	Protocol   string  `json:"protocol,omitempty"`

	Counterparty     string `json:"counterparty,omitempty"`
	CounterpartyType string `json:"counterparty_type,omitempty"`

	PrimaryMint     string  `json:"primary_mint,omitempty"`
	PrimarySymbol   string  `json:"primary_symbol,omitempty"`
	PrimaryAmountUI float64 `json:"primary_amount_ui,omitempty"`

	Failed bool `json:"failed"`

	BlockTime   *time.Time `json:"block_time,omitempty"`
	PublishedAt time.Time  `json:"published_at"`
}

// FromClassified converts a classified transaction to its published form.
func FromClassified(ct classify.ClassifiedTransaction, wallet string) *ClassificationEvent {
	event := &ClassificationEvent{
		WalletAddress: wallet,
		TxType:        string(ct.Classification.PrimaryType),
		Direction:     string(ct.Classification.Direction),
		Confidence:    ct.Classification.Confidence,
		Protocol:      ct.Classification.Metadata["protocol"],
		PublishedAt:   time.Now().UTC(),
	}
	if cp := ct.Classification.Counterparty; cp != nil {
		event.Counterparty = cp.Address
		event.CounterpartyType = string(cp.Type)
	}
	if primary := ct.Classification.PrimaryAmount; primary != nil {
		event.PrimaryMint = primary.Token.Mint
		event.PrimarySymbol = primary.Token.Symbol
		event.PrimaryAmountUI = primary.AmountUI
	}
	if ct.Tx != nil {
		event.Signature = ct.Tx.Signature
		event.Slot = ct.Tx.Slot
		event.Failed = ct.Tx.Failed()
		event.BlockTime = ct.Tx.BlockTime
	}
	return event
}
