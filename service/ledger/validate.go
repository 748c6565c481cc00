package ledger

import "math"

// BalanceTolerance is the per-token tolerance for the double-entry check,
// chosen to absorb float accumulation across UI-scaled amounts.
const BalanceTolerance = 1e-6

// TokenTotals holds the summed debits and credits for one token symbol.
type TokenTotals struct {
	Debits  float64 `json:"debits"`
	Credits float64 `json:"credits"`
	Diff    float64 `json:"diff"`
}

// BalanceReport is the diagnostic output of Validate. A failing report is
// surfaced, never used to block classification: a transaction touching
// accounts outside the decomposed set legitimately looks unbalanced from
// one wallet's perspective.
type BalanceReport struct {
	IsBalanced bool                   `json:"is_balanced"`
	ByToken    map[string]TokenTotals `json:"by_token"`
}

// Validate checks the double-entry property of a leg list: per token,
// summed credit UI-amounts equal summed debit UI-amounts within tolerance.
//
// Fee legs participate as debits with no offsetting credit in scope, so the
// native asset is structurally slightly imbalanced for fee payers. That
// asymmetry is intentional and reported as-is.
func Validate(legs []TxLeg) BalanceReport {
	byToken := make(map[string]TokenTotals)
	for _, leg := range legs {
		totals := byToken[leg.Amount.Token.Symbol]
		if leg.Side == SideDebit {
			totals.Debits += leg.Amount.AmountUI
		} else {
			totals.Credits += leg.Amount.AmountUI
		}
		byToken[leg.Amount.Token.Symbol] = totals
	}

	balanced := true
	for symbol, totals := range byToken {
		totals.Diff = math.Abs(totals.Debits - totals.Credits)
		byToken[symbol] = totals
		if totals.Diff > BalanceTolerance {
			balanced = false
		}
	}

	return BalanceReport{IsBalanced: balanced, ByToken: byToken}
}
