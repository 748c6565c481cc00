package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoneyAmount(t *testing.T) {
	usdc := TokenInfo{Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Symbol: "USDC", Decimals: 6}

	tests := []struct {
		name    string
		raw     string
		wantUI  float64
		wantErr bool
	}{
		{name: "whole units", raw: "100000000", wantUI: 100},
		{name: "fractional", raw: "1500000", wantUI: 1.5},
		{name: "zero", raw: "0", wantUI: 0},
		{name: "empty treated as zero", raw: "", wantUI: 0},
		{name: "negative rejected", raw: "-5", wantErr: true},
		{name: "non numeric rejected", raw: "12abc", wantErr: true},
		{name: "decimal point rejected", raw: "1.5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseMoneyAmount(usdc, tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.wantUI, m.AmountUI, 1e-9)
		})
	}
}

func TestNewMoneyAmount_UIDerivation(t *testing.T) {
	m := NewMoneyAmount(NativeToken(), 1_500_000_000)
	assert.Equal(t, "1500000000", m.AmountRaw)
	assert.InDelta(t, 1.5, m.AmountUI, 1e-9)
}

func TestPlaceholderToken(t *testing.T) {
	tok := PlaceholderToken("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", 6)
	assert.Equal(t, "9WzD…", tok.Symbol)
	assert.Equal(t, uint8(6), tok.Decimals)

	short := PlaceholderToken("ab", 0)
	assert.Equal(t, "ab", short.Symbol)
}

func TestNativeToken(t *testing.T) {
	tok := NativeToken()
	assert.True(t, tok.IsNative())
	assert.Equal(t, "SOL", tok.Symbol)
	assert.Equal(t, uint8(9), tok.Decimals)
}
