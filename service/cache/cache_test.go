package cache

import (
	"context"
	"testing"
	"time"

	"github.com/soltrace/soltrace/service/classify"
	"github.com/soltrace/soltrace/service/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "7cVfgArCheMR6Cs4t6vz5rfnqd56vZq4ndaBrY5xkxXy"

func sampleEntry(wallet string) *Entry {
	return &Entry{
		Wallet: wallet,
		Transactions: []classify.ClassifiedTransaction{
			{
				Tx: &ledger.RawTransaction{Signature: "sigA", Slot: 100},
				Classification: classify.TransactionClassification{
					PrimaryType: classify.TypeTransfer,
					Confidence:  0.95,
					IsRelevant:  true,
				},
			},
		},
		LatestSignature: "sigA",
		OldestSignature: "sigA",
		HasMore:         true,
		CachedAt:        time.Now(),
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	_, err := store.Get(ctx, testWallet)
	require.ErrorIs(t, err, ErrNotFound)

	entry := sampleEntry(testWallet)
	require.NoError(t, store.Set(ctx, entry))

	got, err := store.Get(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, entry.LatestSignature, got.LatestSignature)
	assert.True(t, got.HasMore)
	require.Len(t, got.Transactions, 1)
	assert.Equal(t, "sigA", got.Transactions[0].Tx.Signature)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10 * time.Millisecond)

	entry := sampleEntry(testWallet)
	entry.CachedAt = time.Now().Add(-time.Second)
	require.NoError(t, store.Set(ctx, entry))

	_, err := store.Get(ctx, testWallet)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	require.NoError(t, store.Set(ctx, sampleEntry(testWallet)))
	require.NoError(t, store.Delete(ctx, testWallet))
	_, err := store.Get(ctx, testWallet)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent entry is fine.
	assert.NoError(t, store.Delete(ctx, testWallet))
}

func TestMemoryStore_IsolatesEntries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	a := sampleEntry("walletA")
	b := sampleEntry("walletB")
	b.LatestSignature = "sigB"
	require.NoError(t, store.Set(ctx, a))
	require.NoError(t, store.Set(ctx, b))

	gotA, err := store.Get(ctx, "walletA")
	require.NoError(t, err)
	gotB, err := store.Get(ctx, "walletB")
	require.NoError(t, err)
	assert.Equal(t, "sigA", gotA.LatestSignature)
	assert.Equal(t, "sigB", gotB.LatestSignature)
}

func TestWalletKey(t *testing.T) {
	assert.Equal(t, "wallet:txs:"+testWallet, walletKey(testWallet))
}
