package ledger

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Well-known native asset constants.
const (
	// NativeMint is the wrapped SOL mint, used as the token identity for
	// native lamport movements so native and SPL legs share one model.
	NativeMint = "So11111111111111111111111111111111111111112"

	NativeSymbol   = "SOL"
	NativeDecimals = uint8(9)

	LamportsPerSol = 1_000_000_000
)

// TokenInfo identifies a token type. Immutable once resolved; unresolved
// mints get a synthesized placeholder via PlaceholderToken.
type TokenInfo struct {
	Mint     string `json:"mint"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Decimals uint8  `json:"decimals"`
	LogoURI  string `json:"logo_uri,omitempty"`
}

// IsNative reports whether the token represents the chain's native asset.
func (t TokenInfo) IsNative() bool {
	return t.Mint == NativeMint
}

// NativeToken returns the TokenInfo for the native asset.
func NativeToken() TokenInfo {
	return TokenInfo{
		Mint:     NativeMint,
		Symbol:   NativeSymbol,
		Name:     "Solana",
		Decimals: NativeDecimals,
	}
}

// PlaceholderToken synthesizes a TokenInfo for a mint we could not resolve.
// The symbol is the truncated mint and decimals default to 6, the most
// common SPL token scale.
func PlaceholderToken(mint string, decimals uint8) TokenInfo {
	symbol := mint
	if len(symbol) > 4 {
		symbol = symbol[:4] + "…"
	}
	return TokenInfo{
		Mint:     mint,
		Symbol:   symbol,
		Decimals: decimals,
	}
}

// MoneyAmount is a fungible amount of one token. AmountRaw (base units as a
// decimal string) is the source of truth; AmountUI is derived for display
// and comparison.
type MoneyAmount struct {
	Token     TokenInfo `json:"token"`
	AmountRaw string    `json:"amount_raw"`
	AmountUI  float64   `json:"amount_ui"`
}

// NewMoneyAmount builds a MoneyAmount from base units.
func NewMoneyAmount(token TokenInfo, raw uint64) MoneyAmount {
	return MoneyAmount{
		Token:     token,
		AmountRaw: strconv.FormatUint(raw, 10),
		AmountUI:  float64(raw) / math.Pow10(int(token.Decimals)),
	}
}

// ParseMoneyAmount builds a MoneyAmount from a raw base-unit string.
// Negative or malformed amounts are rejected at construction so the
// non-negativity invariant holds everywhere downstream.
func ParseMoneyAmount(token TokenInfo, raw string) (MoneyAmount, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "0"
	}
	if strings.HasPrefix(raw, "-") {
		return MoneyAmount{}, fmt.Errorf("negative raw amount %q for mint %s", raw, token.Mint)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return MoneyAmount{}, fmt.Errorf("malformed raw amount %q for mint %s: %w", raw, token.Mint, err)
	}
	return NewMoneyAmount(token, v), nil
}

// IsZero reports whether the amount is zero.
func (m MoneyAmount) IsZero() bool {
	return m.AmountRaw == "" || m.AmountRaw == "0"
}

// BaseUnits returns the raw amount as an integer. Constructors reject
// malformed raw strings, so a parse failure here reads as zero.
func (m MoneyAmount) BaseUnits() uint64 {
	v, _ := strconv.ParseUint(m.AmountRaw, 10, 64)
	return v
}
