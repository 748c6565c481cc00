package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectRandomEndpoint(t *testing.T) {
	t.Run("picks from the pool", func(t *testing.T) {
		endpoints := []string{
			"https://api.mainnet-beta.solana.com",
			"https://mainnet.helius-rpc.com",
			"https://rpc.ankr.com/solana",
		}
		selected, err := SelectRandomEndpoint(endpoints)
		require.NoError(t, err)
		assert.Contains(t, endpoints, selected)
	})

	t.Run("single endpoint", func(t *testing.T) {
		selected, err := SelectRandomEndpoint([]string{"https://api.mainnet-beta.solana.com"})
		require.NoError(t, err)
		assert.Equal(t, "https://api.mainnet-beta.solana.com", selected)
	})

	t.Run("empty pool errors", func(t *testing.T) {
		_, err := SelectRandomEndpoint(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no RPC endpoints configured")
	})

	t.Run("spreads across the pool", func(t *testing.T) {
		endpoints := []string{"https://a.example", "https://b.example", "https://c.example"}
		seen := make(map[string]bool)
		for range 30 {
			selected, err := SelectRandomEndpoint(endpoints)
			require.NoError(t, err)
			seen[selected] = true
		}
		assert.GreaterOrEqual(t, len(seen), 2)
	})
}
