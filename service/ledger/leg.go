package ledger

import (
	"sort"
)

// Side is the direction of a leg from the holding account's perspective.
type Side string

const (
	SideDebit  Side = "debit"
	SideCredit Side = "credit"
)

// Role describes what a leg represents economically.
type Role string

const (
	RoleSent             Role = "sent"
	RoleReceived         Role = "received"
	RoleFee              Role = "fee"
	RoleReward           Role = "reward"
	RoleProtocolDeposit  Role = "protocol_deposit"
	RoleProtocolWithdraw Role = "protocol_withdraw"
	RolePrincipal        Role = "principal"
	RoleInterest         Role = "interest"
	RoleUnknown          Role = "unknown"
)

// TxLeg is one signed, single-token balance movement attributed to one
// account within a transaction. Legs are derived, not stored: the leg list
// is regenerated on every decomposition call.
type TxLeg struct {
	// AccountID is a synthetic key combining role and address.
	AccountID string      `json:"account_id"`
	Address   string      `json:"address"`
	Side      Side        `json:"side"`
	Role      Role        `json:"role"`
	Amount    MoneyAmount `json:"amount"`
}

// IsFee reports whether the leg is the transaction fee leg.
func (l TxLeg) IsFee() bool {
	return l.Role == RoleFee
}

func legID(role Role, address string) string {
	return string(role) + ":" + address
}

// legEntry carries ordering keys while legs are being collected.
type legEntry struct {
	index  int
	native bool
	leg    TxLeg
}

// Decompose converts a raw transaction into its ordered leg list, one leg
// per balance-affecting movement. Output ordering is stable: the fee leg
// comes first when present, then remaining legs in ascending account-index
// order, token legs before native legs at the same index. Downstream
// classifiers rely on leg 0 being the fee leg.
//
// Rows without owner information cannot be attributed and produce no legs.
// Absent or malformed balance arrays are treated as empty; decomposition
// never fails.
func Decompose(tx *RawTransaction) []TxLeg {
	if tx == nil {
		return nil
	}

	var entries []legEntry

	// Token balance deltas, keyed by account index.
	pre := make(map[uint16]TokenBalance, len(tx.PreTokenBalances))
	for _, b := range tx.PreTokenBalances {
		pre[b.AccountIndex] = b
	}
	post := make(map[uint16]TokenBalance, len(tx.PostTokenBalances))
	for _, b := range tx.PostTokenBalances {
		post[b.AccountIndex] = b
	}

	seen := make(map[uint16]struct{}, len(pre)+len(post))
	for idx := range pre {
		seen[idx] = struct{}{}
	}
	for idx := range post {
		seen[idx] = struct{}{}
	}

	for idx := range seen {
		preRow, hasPre := pre[idx]
		postRow, hasPost := post[idx]

		row := postRow
		if !hasPost {
			row = preRow
		}
		owner := row.Owner
		if owner == "" && hasPre {
			owner = preRow.Owner
		}
		if owner == "" {
			continue
		}

		var preUnits, postUnits uint64
		if hasPre {
			preUnits = preRow.UITokenAmount.BaseUnits()
		}
		if hasPost {
			postUnits = postRow.UITokenAmount.BaseUnits()
		}
		if preUnits == postUnits {
			continue
		}

		token := PlaceholderToken(row.Mint, row.UITokenAmount.Decimals)
		if row.Mint == NativeMint {
			token = NativeToken()
		}

		side := SideCredit
		delta := postUnits - preUnits
		if preUnits > postUnits {
			side = SideDebit
			delta = preUnits - postUnits
		}

		role := transferRole(side)
		if tx.Protocol.OwnsVault(owner) {
			role = vaultRole(side)
		}

		entries = append(entries, legEntry{
			index: int(idx),
			leg: TxLeg{
				AccountID: legID(role, owner),
				Address:   owner,
				Side:      side,
				Role:      role,
				Amount:    NewMoneyAmount(token, delta),
			},
		})
	}

	// Native lamport deltas. The fee is emitted as its own leg, so the fee
	// payer's delta is adjusted to exclude it.
	n := len(tx.PreBalances)
	if len(tx.PostBalances) < n {
		n = len(tx.PostBalances)
	}
	for i := 0; i < n; i++ {
		owner := tx.AccountKey(i)
		if owner == "" {
			continue
		}

		preBal := int64(tx.PreBalances[i])
		postBal := int64(tx.PostBalances[i])
		delta := postBal - preBal
		if i == 0 {
			delta += int64(tx.Fee)
		}
		if delta == 0 {
			continue
		}

		side := SideCredit
		if delta < 0 {
			side = SideDebit
			delta = -delta
		}

		role := transferRole(side)
		if tx.Protocol.OwnsVault(owner) {
			role = vaultRole(side)
		}

		entries = append(entries, legEntry{
			index:  i,
			native: true,
			leg: TxLeg{
				AccountID: legID(role, owner),
				Address:   owner,
				Side:      side,
				Role:      role,
				Amount:    NewMoneyAmount(NativeToken(), uint64(delta)),
			},
		})
	}

	// Staking programs credit rewards without a matching debit from the
	// claiming account. Relabel such credits so classifiers can tell a
	// claim apart from an ordinary transfer.
	if tx.Protocol != nil && tx.Protocol.Category == CategoryStaking {
		debited := make(map[string]struct{})
		for _, e := range entries {
			if e.leg.Side == SideDebit {
				debited[e.leg.Address] = struct{}{}
			}
		}
		for i, e := range entries {
			if e.leg.Role != RoleReceived {
				continue
			}
			if _, ok := debited[e.leg.Address]; ok {
				continue
			}
			entries[i].leg.Role = RoleReward
			entries[i].leg.AccountID = legID(RoleReward, e.leg.Address)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].index != entries[j].index {
			return entries[i].index < entries[j].index
		}
		if entries[i].native != entries[j].native {
			return !entries[i].native
		}
		return entries[i].leg.Amount.Token.Mint < entries[j].leg.Amount.Token.Mint
	})

	legs := make([]TxLeg, 0, len(entries)+1)
	if tx.Fee > 0 && tx.FeePayer() != "" {
		legs = append(legs, TxLeg{
			AccountID: legID(RoleFee, tx.FeePayer()),
			Address:   tx.FeePayer(),
			Side:      SideDebit,
			Role:      RoleFee,
			Amount:    NewMoneyAmount(NativeToken(), tx.Fee),
		})
	}
	for _, e := range entries {
		legs = append(legs, e.leg)
	}
	return legs
}

func transferRole(side Side) Role {
	if side == SideDebit {
		return RoleSent
	}
	return RoleReceived
}

func vaultRole(side Side) Role {
	if side == SideCredit {
		return RoleProtocolDeposit
	}
	return RoleProtocolWithdraw
}

// WalletLegs returns the subset of legs attributed to the given wallet
// address, preserving order.
func WalletLegs(legs []TxLeg, walletAddress string) []TxLeg {
	var out []TxLeg
	for _, l := range legs {
		if l.Address == walletAddress {
			out = append(out, l)
		}
	}
	return out
}
