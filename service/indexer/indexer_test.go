package indexer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soltrace/soltrace/service/cache"
	"github.com/soltrace/soltrace/service/classify"
	"github.com/soltrace/soltrace/service/ledger"
	"github.com/soltrace/soltrace/service/solana"
)

const (
	testWallet = "7cVfgArCheMR6Cs4t6vz5rfnqd56vZq4ndaBrY5xkxXy"
	testSender = "4Nd1mbTbhRTShvqaqB939T8SasqASTCYeBNW4Pg6mDkQ"
	airdropper = "mRewXP5oKyCCRGuxp3tRbLKEbCzXcawWchM6RVzMgJ6"

	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	dustMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

	senderUsdcAta  = "B7xanDXgzehMpZDrLyxnrnE6wW9VFcSGCRBjDHHtwmEk"
	walletUsdcAta  = "3emsAVdmGKERbHjmGfQ6oZ1e35dkf5iYcS6U4CPKFVaa"
	walletDustAta  = "5o4wm1GfgV2nNEAKDCLKDUTDwCRXSMGBZMgbtGDRbTmb"
	tokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

	sigA = "5sigAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	sigB = "5sigBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	sigC = "5sigCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
)

// mockReader replays canned signature listings and transaction bodies. It
// honors Before, Until, and Limit cursors the way the RPC endpoint does,
// and skips already-seen signatures the way the real fetcher does.
type mockReader struct {
	mu sync.Mutex

	signatures map[string][]solana.SignatureInfo // per address, newest first
	bodies     map[string]*ledger.RawTransaction

	atas     []string
	atasErr  error
	listErr  error
	fetchErr error

	listCalls    []solana.ListSignaturesParams
	fetchCalls   int
	lastExisting map[string]struct{}
}

func (m *mockReader) ListSignatures(_ context.Context, params solana.ListSignaturesParams) ([]solana.SignatureInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls = append(m.listCalls, params)
	if m.listErr != nil {
		return nil, m.listErr
	}
	sigs := m.signatures[params.Wallet]
	start := 0
	if params.Before != "" {
		for i, s := range sigs {
			if s.Signature == params.Before {
				start = i + 1
				break
			}
		}
	}
	var out []solana.SignatureInfo
	for _, s := range sigs[start:] {
		if params.Until != "" && s.Signature == params.Until {
			break
		}
		out = append(out, s)
		if params.Limit > 0 && len(out) >= params.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockReader) FetchTransactions(_ context.Context, _ string, sigs []solana.SignatureInfo, existing map[string]struct{}) ([]*ledger.RawTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++
	m.lastExisting = existing
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []*ledger.RawTransaction
	for _, s := range sigs {
		if _, ok := existing[s.Signature]; ok {
			continue
		}
		if tx, ok := m.bodies[s.Signature]; ok {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *mockReader) TokenAccounts(_ context.Context, _ string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.atas, m.atasErr
}

func (m *mockReader) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestIndexer(reader LedgerReader, store cache.Store, opts Options) *Indexer {
	return New(
		reader,
		store,
		classify.NewChain(testLogger()),
		nil,
		classify.DefaultSpamConfig(),
		opts,
		nil,
		testLogger(),
	)
}

func sigInfo(sig string, slot uint64) solana.SignatureInfo {
	t := time.Now().Add(-time.Hour)
	return solana.SignatureInfo{Signature: sig, Slot: slot, BlockTime: &t}
}

// incomingUsdcTx credits the wallet 25 USDC; the sender pays the fee. The
// wallet's token account is created by the transfer, so it has no pre row.
func incomingUsdcTx(sig string, slot uint64) *ledger.RawTransaction {
	return &ledger.RawTransaction{
		Signature:    sig,
		Slot:         slot,
		Fee:          5000,
		ProgramIDs:   []string{tokenProgramID},
		AccountKeys:  []string{testSender, senderUsdcAta, walletUsdcAta},
		PreBalances:  []uint64{1_000_000_000, 2_039_280, 2_039_280},
		PostBalances: []uint64{999_995_000, 2_039_280, 2_039_280},
		PreTokenBalances: []ledger.TokenBalance{
			{AccountIndex: 1, Mint: usdcMint, Owner: testSender, UITokenAmount: ledger.UITokenAmount{Amount: "25000000", Decimals: 6}},
		},
		PostTokenBalances: []ledger.TokenBalance{
			{AccountIndex: 1, Mint: usdcMint, Owner: testSender, UITokenAmount: ledger.UITokenAmount{Amount: "0", Decimals: 6}},
			{AccountIndex: 2, Mint: usdcMint, Owner: testWallet, UITokenAmount: ledger.UITokenAmount{Amount: "25000000", Decimals: 6}},
		},
	}
}

// dustAirdropTx pushes 0.005 units of an unsolicited token to the wallet.
// The distributor pays the fee and nothing debits the dust mint, so the
// airdrop classifier and then the dust filter both trigger.
func dustAirdropTx(sig string, slot uint64) *ledger.RawTransaction {
	return &ledger.RawTransaction{
		Signature:    sig,
		Slot:         slot,
		Fee:          5000,
		ProgramIDs:   []string{tokenProgramID},
		AccountKeys:  []string{airdropper, walletDustAta},
		PreBalances:  []uint64{1_000_000_000, 0},
		PostBalances: []uint64{999_995_000, 2_039_280},
		PostTokenBalances: []ledger.TokenBalance{
			{AccountIndex: 1, Mint: dustMint, Owner: testWallet, UITokenAmount: ledger.UITokenAmount{Amount: "5000", Decimals: 6}},
		},
	}
}

func TestColdFetch_ClassifiesAndCaches(t *testing.T) {
	reader := &mockReader{
		signatures: map[string][]solana.SignatureInfo{
			testWallet:    {sigInfo(sigB, 200), sigInfo(sigA, 100)},
			walletUsdcAta: {sigInfo(sigB, 200)}, // overlaps the wallet listing
		},
		bodies: map[string]*ledger.RawTransaction{
			sigA: incomingUsdcTx(sigA, 100),
			sigB: incomingUsdcTx(sigB, 200),
		},
		atas: []string{walletUsdcAta},
	}
	store := cache.NewMemoryStore(time.Minute)
	ix := newTestIndexer(reader, store, Options{})

	result, err := ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{})
	require.NoError(t, err)

	assert.False(t, result.FromCache)
	assert.False(t, result.HasMore)
	assert.Empty(t, result.NextCursor)
	require.Len(t, result.Transactions, 2, "overlapping ATA signature must be deduplicated")
	assert.Equal(t, sigB, result.Transactions[0].Tx.Signature, "newest first")
	assert.Equal(t, classify.TypeTransfer, result.Transactions[0].Classification.PrimaryType)
	assert.Equal(t, classify.DirectionIncoming, result.Transactions[0].Classification.Direction)

	entry, err := store.Get(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, sigB, entry.LatestSignature)
	assert.Equal(t, sigA, entry.OldestSignature)
	assert.ElementsMatch(t, []string{sigA, sigB}, entry.SeenSignatures)
	assert.Contains(t, entry.KnownATAs, walletUsdcAta)
}

func TestColdFetch_TokenAccountErrorPollsWalletOnly(t *testing.T) {
	reader := &mockReader{
		signatures: map[string][]solana.SignatureInfo{
			testWallet: {sigInfo(sigA, 100)},
		},
		bodies: map[string]*ledger.RawTransaction{
			sigA: incomingUsdcTx(sigA, 100),
		},
		atasErr: errors.New("rpc unavailable"),
	}
	store := cache.NewMemoryStore(time.Minute)
	ix := newTestIndexer(reader, store, Options{})

	result, err := ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{})
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
}

func TestColdFetch_FetchErrorWritesNothing(t *testing.T) {
	reader := &mockReader{
		signatures: map[string][]solana.SignatureInfo{
			testWallet: {sigInfo(sigA, 100)},
		},
		fetchErr: errors.New("rpc exploded"),
	}
	store := cache.NewMemoryStore(time.Minute)
	ix := newTestIndexer(reader, store, Options{})

	_, err := ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{})
	require.Error(t, err)

	_, err = store.Get(context.Background(), testWallet)
	assert.ErrorIs(t, err, cache.ErrNotFound, "a failed run must not leave a partial entry")
}

func TestColdFetch_WindowCutoff(t *testing.T) {
	old := time.Now().Add(-48 * time.Hour)
	stale := solana.SignatureInfo{Signature: sigA, Slot: 100, BlockTime: &old}
	reader := &mockReader{
		signatures: map[string][]solana.SignatureInfo{
			testWallet: {sigInfo(sigB, 200), stale},
		},
		bodies: map[string]*ledger.RawTransaction{
			sigA: incomingUsdcTx(sigA, 100),
			sigB: incomingUsdcTx(sigB, 200),
		},
	}
	store := cache.NewMemoryStore(time.Minute)
	ix := newTestIndexer(reader, store, Options{Window: 24 * time.Hour})

	result, err := ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{})
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, sigB, result.Transactions[0].Tx.Signature)
	assert.True(t, result.HasMore, "window cutoff means older history exists")
	assert.Equal(t, sigB, result.NextCursor)
}

func TestColdFetch_MaxPagesTruncates(t *testing.T) {
	reader := &mockReader{
		signatures: map[string][]solana.SignatureInfo{
			testWallet: {sigInfo(sigB, 200), sigInfo(sigA, 100)},
		},
		bodies: map[string]*ledger.RawTransaction{
			sigB: incomingUsdcTx(sigB, 200),
		},
	}
	store := cache.NewMemoryStore(time.Minute)
	ix := newTestIndexer(reader, store, Options{PageLimit: 1, MaxPages: 1})

	result, err := ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{})
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.True(t, result.HasMore)
	assert.Equal(t, sigB, result.NextCursor)
}

func TestCacheHit_NoNewActivity(t *testing.T) {
	reader := &mockReader{
		signatures: map[string][]solana.SignatureInfo{
			testWallet: {sigInfo(sigA, 100)},
		},
	}
	store := cache.NewMemoryStore(time.Minute)
	require.NoError(t, store.Set(context.Background(), &cache.Entry{
		Wallet:          testWallet,
		Transactions:    []classify.ClassifiedTransaction{{Tx: incomingUsdcTx(sigA, 100)}},
		LatestSignature: sigA,
		OldestSignature: sigA,
		SeenSignatures:  []string{sigA},
		CachedAt:        time.Now(),
	}))
	ix := newTestIndexer(reader, store, Options{})

	result, err := ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{})
	require.NoError(t, err)
	assert.True(t, result.FromCache)
	require.Len(t, result.Transactions, 1)
	assert.Zero(t, reader.fetchCount(), "no new signatures means no body fetches")

	require.NotEmpty(t, reader.listCalls)
	assert.Equal(t, sigA, reader.listCalls[0].Until, "gap check must stop at the cached latest signature")
}

func TestCacheHit_GapPrependsNewTransactions(t *testing.T) {
	reader := &mockReader{
		signatures: map[string][]solana.SignatureInfo{
			testWallet: {sigInfo(sigB, 200), sigInfo(sigA, 100)},
		},
		bodies: map[string]*ledger.RawTransaction{
			sigB: incomingUsdcTx(sigB, 200),
		},
	}
	store := cache.NewMemoryStore(time.Minute)
	require.NoError(t, store.Set(context.Background(), &cache.Entry{
		Wallet:          testWallet,
		Transactions:    []classify.ClassifiedTransaction{{Tx: incomingUsdcTx(sigA, 100)}},
		LatestSignature: sigA,
		OldestSignature: sigA,
		SeenSignatures:  []string{sigA},
		CachedAt:        time.Now(),
	}))
	ix := newTestIndexer(reader, store, Options{})

	result, err := ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	require.Len(t, result.Transactions, 2)
	assert.Equal(t, sigB, result.Transactions[0].Tx.Signature)
	assert.Equal(t, sigA, result.Transactions[1].Tx.Signature)

	entry, err := store.Get(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, sigB, entry.LatestSignature)
	assert.Equal(t, sigA, entry.OldestSignature, "backfill cursor survives gap refreshes")
	assert.ElementsMatch(t, []string{sigA, sigB}, entry.SeenSignatures)
}

func TestCacheHit_GapCheckFailureServesStale(t *testing.T) {
	reader := &mockReader{listErr: errors.New("rpc down")}
	store := cache.NewMemoryStore(time.Minute)
	require.NoError(t, store.Set(context.Background(), &cache.Entry{
		Wallet:          testWallet,
		Transactions:    []classify.ClassifiedTransaction{{Tx: incomingUsdcTx(sigA, 100)}},
		LatestSignature: sigA,
		SeenSignatures:  []string{sigA},
		CachedAt:        time.Now(),
	}))
	ix := newTestIndexer(reader, store, Options{})

	result, err := ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{})
	require.NoError(t, err, "stale data beats an error on the read path")
	assert.True(t, result.FromCache)
	require.Len(t, result.Transactions, 1)
}

func TestRefresh_DropsCacheAndRefetches(t *testing.T) {
	reader := &mockReader{
		signatures: map[string][]solana.SignatureInfo{
			testWallet: {sigInfo(sigB, 200)},
		},
		bodies: map[string]*ledger.RawTransaction{
			sigB: incomingUsdcTx(sigB, 200),
		},
	}
	store := cache.NewMemoryStore(time.Minute)
	require.NoError(t, store.Set(context.Background(), &cache.Entry{
		Wallet:          testWallet,
		Transactions:    []classify.ClassifiedTransaction{{Tx: incomingUsdcTx(sigA, 100)}},
		LatestSignature: sigA,
		SeenSignatures:  []string{sigA},
		CachedAt:        time.Now(),
	}))
	ix := newTestIndexer(reader, store, Options{})

	result, err := ix.Refresh(context.Background(), testWallet)
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, sigB, result.Transactions[0].Tx.Signature)
}

func TestColdFetch_RepeatedRunsAreIdentical(t *testing.T) {
	// Two full fetches against unchanged upstream state must produce the
	// same ordered, duplicate-free list.
	reader := &mockReader{
		signatures: map[string][]solana.SignatureInfo{
			testWallet:    {sigInfo(sigB, 200), sigInfo(sigA, 100)},
			walletUsdcAta: {sigInfo(sigB, 200), sigInfo(sigA, 100)},
		},
		bodies: map[string]*ledger.RawTransaction{
			sigA: incomingUsdcTx(sigA, 100),
			sigB: incomingUsdcTx(sigB, 200),
		},
		atas: []string{walletUsdcAta},
	}
	store := cache.NewMemoryStore(time.Minute)
	ix := newTestIndexer(reader, store, Options{})

	first, err := ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{})
	require.NoError(t, err)

	second, err := ix.Refresh(context.Background(), testWallet)
	require.NoError(t, err)

	require.Equal(t, first.Transactions, second.Transactions)
	assert.Equal(t, first.HasMore, second.HasMore)
	assert.Equal(t, first.NextCursor, second.NextCursor)

	seen := make(map[string]struct{})
	var lastSlot uint64 = ^uint64(0)
	for _, ct := range second.Transactions {
		_, dup := seen[ct.Tx.Signature]
		require.False(t, dup, "signature %s served twice", ct.Tx.Signature)
		seen[ct.Tx.Signature] = struct{}{}
		require.LessOrEqual(t, ct.Tx.Slot, lastSlot, "newest first ordering")
		lastSlot = ct.Tx.Slot
	}
}

func TestPage_LimitTrimsAndSetsCursor(t *testing.T) {
	reader := &mockReader{
		signatures: map[string][]solana.SignatureInfo{
			testWallet: {sigInfo(sigB, 200), sigInfo(sigA, 100)},
		},
		bodies: map[string]*ledger.RawTransaction{
			sigA: incomingUsdcTx(sigA, 100),
			sigB: incomingUsdcTx(sigB, 200),
		},
	}
	store := cache.NewMemoryStore(time.Minute)
	ix := newTestIndexer(reader, store, Options{})

	result, err := ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{Limit: 1})
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, sigB, result.Transactions[0].Tx.Signature)
	assert.True(t, result.HasMore)
	assert.Equal(t, sigB, result.NextCursor)

	// The cache keeps the full window regardless of the page limit.
	entry, err := store.Get(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Len(t, entry.Transactions, 2)
}

func TestPage_CursorContinuesPastCachedWindow(t *testing.T) {
	reader := &mockReader{
		signatures: map[string][]solana.SignatureInfo{
			testWallet: {sigInfo(sigC, 300), sigInfo(sigB, 200), sigInfo(sigA, 100)},
		},
		bodies: map[string]*ledger.RawTransaction{
			sigA: incomingUsdcTx(sigA, 100),
			sigB: incomingUsdcTx(sigB, 200),
			sigC: incomingUsdcTx(sigC, 300),
		},
	}
	store := cache.NewMemoryStore(time.Minute)
	ix := newTestIndexer(reader, store, Options{PageLimit: 1, MaxPages: 1})

	first, err := ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{})
	require.NoError(t, err)
	require.Len(t, first.Transactions, 1)
	assert.Equal(t, sigC, first.Transactions[0].Tx.Signature)
	require.True(t, first.HasMore)
	require.Equal(t, sigC, first.NextCursor)

	second, err := ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Transactions, 1)
	assert.Equal(t, sigB, second.Transactions[0].Tx.Signature)
	assert.False(t, second.FromCache)
	require.True(t, second.HasMore)
	require.Equal(t, sigB, second.NextCursor)

	third, err := ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{Cursor: second.NextCursor})
	require.NoError(t, err)
	require.Len(t, third.Transactions, 1)
	assert.Equal(t, sigA, third.Transactions[0].Tx.Signature)

	// Cursor reads never disturb the cached recent window.
	entry, err := store.Get(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, sigC, entry.LatestSignature)
	assert.Len(t, entry.Transactions, 1)
}

func TestGapRefresh_RetentionCap(t *testing.T) {
	reader := &mockReader{
		signatures: map[string][]solana.SignatureInfo{
			testWallet: {sigInfo(sigC, 300), sigInfo(sigB, 200), sigInfo(sigA, 100)},
		},
		bodies: map[string]*ledger.RawTransaction{
			sigC: incomingUsdcTx(sigC, 300),
		},
	}
	store := cache.NewMemoryStore(time.Minute)
	require.NoError(t, store.Set(context.Background(), &cache.Entry{
		Wallet: testWallet,
		Transactions: []classify.ClassifiedTransaction{
			{Tx: incomingUsdcTx(sigB, 200)},
			{Tx: incomingUsdcTx(sigA, 100)},
		},
		LatestSignature: sigB,
		OldestSignature: sigA,
		SeenSignatures:  []string{sigB, sigA},
		CachedAt:        time.Now(),
	}))
	ix := newTestIndexer(reader, store, Options{MaxRetained: 2})

	result, err := ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{})
	require.NoError(t, err)
	require.Len(t, result.Transactions, 2, "the retention cap bounds the entry")
	assert.Equal(t, sigC, result.Transactions[0].Tx.Signature)
	assert.Equal(t, sigB, result.Transactions[1].Tx.Signature)
	assert.True(t, result.HasMore, "trimmed history stays reachable through the cursor")
	assert.Equal(t, sigB, result.NextCursor)

	entry, err := store.Get(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Len(t, entry.Transactions, 2)
	assert.Equal(t, sigC, entry.LatestSignature)
	assert.Equal(t, sigB, entry.OldestSignature)
	assert.True(t, entry.HasMore)
}

func TestColdFetch_SpamFilteredButStillDeduplicated(t *testing.T) {
	reader := &mockReader{
		signatures: map[string][]solana.SignatureInfo{
			testWallet: {sigInfo(sigB, 200), sigInfo(sigA, 100)},
		},
		bodies: map[string]*ledger.RawTransaction{
			sigA: incomingUsdcTx(sigA, 100),
			sigB: dustAirdropTx(sigB, 200),
		},
	}
	store := cache.NewMemoryStore(time.Minute)
	ix := newTestIndexer(reader, store, Options{})

	result, err := ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{})
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1, "dust airdrop must be filtered")
	assert.Equal(t, sigA, result.Transactions[0].Tx.Signature)

	entry, err := store.Get(context.Background(), testWallet)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{sigA, sigB}, entry.SeenSignatures,
		"filtered transactions stay in the dedup set so they are never refetched")

	// A follow-up gap run must pass the full seen set to the fetcher.
	reader.signatures[testWallet] = append(
		[]solana.SignatureInfo{sigInfo(sigC, 300)}, reader.signatures[testWallet]...)
	reader.bodies[sigC] = incomingUsdcTx(sigC, 300)

	_, err = ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{})
	require.NoError(t, err)
	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Contains(t, reader.lastExisting, sigB)
}

func TestColdFetch_DiscoversWalletATAs(t *testing.T) {
	reader := &mockReader{
		signatures: map[string][]solana.SignatureInfo{
			testWallet: {sigInfo(sigA, 100)},
		},
		bodies: map[string]*ledger.RawTransaction{
			sigA: incomingUsdcTx(sigA, 100),
		},
	}
	store := cache.NewMemoryStore(time.Minute)
	ix := newTestIndexer(reader, store, Options{})

	_, err := ix.ClassifyTransactionsForWallet(context.Background(), testWallet, Page{})
	require.NoError(t, err)

	entry, err := store.Get(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Contains(t, entry.KnownATAs, walletUsdcAta,
		"token accounts created mid-history join the poll set")
}

func TestClassifyTransactionsForWallet_Canceled(t *testing.T) {
	reader := &mockReader{
		signatures: map[string][]solana.SignatureInfo{
			testWallet: {sigInfo(sigA, 100)},
		},
	}
	store := cache.NewMemoryStore(time.Minute)
	ix := newTestIndexer(reader, store, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reader.listErr = context.Canceled

	_, err := ix.ClassifyTransactionsForWallet(ctx, testWallet, Page{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.Get(context.Background(), testWallet)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}
