package ledger

import (
	"math"
	"strconv"
	"time"
)

// ProtocolCategory groups protocols by the kind of activity they host.
// Classifiers key off the category, not individual protocol ids.
type ProtocolCategory string

const (
	CategoryDEX         ProtocolCategory = "dex"
	CategoryLending     ProtocolCategory = "lending"
	CategoryStaking     ProtocolCategory = "staking"
	CategoryBridge      ProtocolCategory = "bridge"
	CategoryNFT         ProtocolCategory = "nft"
	CategoryDistributor ProtocolCategory = "distributor"
	CategoryMisc        ProtocolCategory = "misc"
)

// ProtocolInfo is a static description of a known on-chain protocol.
// Several program ids can map to one protocol.
type ProtocolInfo struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Category   ProtocolCategory `json:"category"`
	ProgramIDs []string         `json:"program_ids,omitempty"`
	IconURL    string           `json:"icon_url,omitempty"`
	URL        string           `json:"url,omitempty"`

	// VaultOwners lists owner addresses of accounts the protocol controls.
	// Legs attributed to these owners get protocol_deposit/protocol_withdraw
	// roles during decomposition.
	VaultOwners []string `json:"vault_owners,omitempty"`
}

// OwnsVault reports whether the given owner address is a known vault of
// this protocol.
func (p *ProtocolInfo) OwnsVault(owner string) bool {
	if p == nil {
		return false
	}
	for _, v := range p.VaultOwners {
		if v == owner {
			return true
		}
	}
	return false
}

// UITokenAmount is the scaled token amount of a balance snapshot row.
// Amount (base units as a string) is authoritative; UIAmountString is what
// the RPC node rendered.
type UITokenAmount struct {
	Amount         string  `json:"amount"`
	Decimals       uint8   `json:"decimals"`
	UIAmountString string  `json:"ui_amount_string,omitempty"`
	UIAmount       float64 `json:"ui_amount,omitempty"`
}

// BaseUnits parses the raw base-unit amount. Malformed amounts read as zero;
// balance rows are node-produced and a row we cannot parse carries no
// attributable movement.
func (u UITokenAmount) BaseUnits() uint64 {
	v, err := strconv.ParseUint(u.Amount, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// UIValue returns the UI-scaled amount derived from the raw base units.
func (u UITokenAmount) UIValue() float64 {
	return float64(u.BaseUnits()) / math.Pow10(int(u.Decimals))
}

// TokenBalance is one pre- or post-execution token balance snapshot row.
type TokenBalance struct {
	AccountIndex  uint16        `json:"account_index"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner,omitempty"`
	ProgramID     string        `json:"program_id,omitempty"`
	UITokenAmount UITokenAmount `json:"ui_token_amount"`
}

// RawTransaction is an immutable snapshot of a confirmed transaction as
// seen by one fetch. It is created once by the fetch layer; the only field
// attached afterwards is Protocol, set by protocol detection before
// decomposition.
type RawTransaction struct {
	Signature string     `json:"signature"`
	Slot      uint64     `json:"slot"`
	BlockTime *time.Time `json:"block_time,omitempty"`
	Fee       uint64     `json:"fee,omitempty"`

	// Err is the opaque failure payload from the ledger; nil means the
	// transaction succeeded.
	Err any `json:"err,omitempty"`

	ProgramIDs []string      `json:"program_ids,omitempty"`
	Protocol   *ProtocolInfo `json:"protocol,omitempty"`

	PreTokenBalances  []TokenBalance `json:"pre_token_balances,omitempty"`
	PostTokenBalances []TokenBalance `json:"post_token_balances,omitempty"`

	// Native lamport balances by account index.
	PreBalances  []uint64 `json:"pre_balances,omitempty"`
	PostBalances []uint64 `json:"post_balances,omitempty"`

	AccountKeys []string `json:"account_keys,omitempty"`
	Memo        string   `json:"memo,omitempty"`
}

// Failed reports whether the transaction failed on-chain.
func (t *RawTransaction) Failed() bool {
	return t.Err != nil
}

// AccountKey returns the address at the given account index, or "" when the
// index is out of range.
func (t *RawTransaction) AccountKey(index int) string {
	if index < 0 || index >= len(t.AccountKeys) {
		return ""
	}
	return t.AccountKeys[index]
}

// FeePayer returns the fee payer address (account index 0), or "".
func (t *RawTransaction) FeePayer() string {
	return t.AccountKey(0)
}
