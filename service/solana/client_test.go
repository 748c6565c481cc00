package solana

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	signatures    []*rpc.TransactionSignature
	signaturesErr error

	transactions map[string]*rpc.GetTransactionResult
	txErr        error
	txErrCount   int // number of initial GetTransaction calls that fail
	txCalls      int

	tokenAccounts []*rpc.TokenAccount
}

func (m *mockRPCClient) GetSignaturesForAddress(
	ctx context.Context,
	address solana.PublicKey,
	opts *rpc.GetSignaturesForAddressOpts,
) ([]*rpc.TransactionSignature, error) {
	if m.signaturesErr != nil {
		return nil, m.signaturesErr
	}
	return m.signatures, nil
}

func (m *mockRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	m.txCalls++
	if m.txErr != nil && (m.txErrCount == 0 || m.txCalls <= m.txErrCount) {
		return nil, m.txErr
	}
	if m.transactions == nil {
		return nil, nil
	}
	return m.transactions[signature.String()], nil
}

func (m *mockRPCClient) GetTokenAccountsByOwner(
	ctx context.Context,
	owner solana.PublicKey,
	conf *rpc.GetTokenAccountsConfig,
	opts *rpc.GetTokenAccountsOpts,
) (*rpc.GetTokenAccountsResult, error) {
	return &rpc.GetTokenAccountsResult{Value: m.tokenAccounts}, nil
}

func newTestClient(mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewClient(mock, "test", nil, logger)
	client.SetRequestDelay(0)
	return client
}

const testWalletAddr = "7cVfgArCheMR6Cs4t6vz5rfnqd56vZq4ndaBrY5xkxXy"

var (
	testSig1 = solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	testSig2 = solana.MustSignatureFromBase58("2TgM4N8qCMqLvfR8dxqTQgKygPNzT5KQkN5b5sT7eZPEkdxyLTXGnNQB3j7KG4DPFg5Qez5yNJBQRQ5r7DDnFfjG")
	testSig3 = solana.MustSignatureFromBase58("3LzUfBWvh7uN5sNTVPkbDGq5SNrPBKDYTJqFmH8nHq6Z9VGJ7iCxB2rLFZsKrQNuJfTnKQ5D5YqGrNqvnKQZXMQE")
)

func TestListSignatures(t *testing.T) {
	ctx := context.Background()
	now := solana.UnixTimeSeconds(time.Now().Unix())
	memo := "[9] order-42"

	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{
			{Signature: testSig1, Slot: 100, BlockTime: &now, Memo: &memo},
			{Signature: testSig2, Slot: 99, BlockTime: &now},
			{Signature: testSig3, Slot: 98, Err: map[string]any{"InstructionError": nil}},
		},
	}
	client := newTestClient(mock)

	sigs, err := client.ListSignatures(ctx, ListSignaturesParams{Wallet: testWalletAddr, Limit: 10})
	require.NoError(t, err)
	require.Len(t, sigs, 3)

	// Newest first, as the node returns them.
	assert.Equal(t, testSig1.String(), sigs[0].Signature)
	assert.Equal(t, uint64(100), sigs[0].Slot)
	assert.Equal(t, "order-42", sigs[0].Memo)
	require.NotNil(t, sigs[0].BlockTime)

	assert.Equal(t, testSig2.String(), sigs[1].Signature)
	assert.Empty(t, sigs[1].Memo)

	assert.True(t, sigs[2].Failed())
}

func TestListSignatures_InvalidWallet(t *testing.T) {
	client := newTestClient(&mockRPCClient{})
	_, err := client.ListSignatures(context.Background(), ListSignaturesParams{Wallet: "not-an-address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid wallet address")
}

func TestListSignatures_InvalidCursor(t *testing.T) {
	client := newTestClient(&mockRPCClient{})
	_, err := client.ListSignatures(context.Background(), ListSignaturesParams{
		Wallet: testWalletAddr,
		Before: "garbage",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid before cursor")
}

func TestFetchTransactions_SkipsExisting(t *testing.T) {
	ctx := context.Background()
	mock := &mockRPCClient{}
	client := newTestClient(mock)

	sigs := []SignatureInfo{
		{Signature: testSig1.String(), Slot: 100},
		{Signature: testSig2.String(), Slot: 99},
	}
	existing := map[string]struct{}{testSig1.String(): {}}

	txs, err := client.FetchTransactions(ctx, testWalletAddr, sigs, existing)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, testSig2.String(), txs[0].Signature)
	assert.Equal(t, 1, mock.txCalls)
}

func TestFetchTransactions_NilResultFallsBackToMetadata(t *testing.T) {
	ctx := context.Background()
	bt := time.Unix(1_700_000_000, 0)
	mock := &mockRPCClient{}
	client := newTestClient(mock)

	sigs := []SignatureInfo{
		{Signature: testSig1.String(), Slot: 100, BlockTime: &bt, Memo: "hello"},
	}
	txs, err := client.FetchTransactions(ctx, testWalletAddr, sigs, nil)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	// Metadata survives; the snapshot simply has no balances.
	assert.Equal(t, testSig1.String(), txs[0].Signature)
	assert.Equal(t, uint64(100), txs[0].Slot)
	assert.Equal(t, "hello", txs[0].Memo)
	assert.Empty(t, txs[0].PreTokenBalances)
	assert.Empty(t, txs[0].AccountKeys)
}

type errRateLimited struct{}

func (errRateLimited) Error() string { return "server responded with 429 Too Many Requests" }

func TestFetchTransactions_RetriesRateLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("backoff sleep")
	}
	ctx := context.Background()
	// First call returns a 429-shaped error, second succeeds.
	mock := &mockRPCClient{
		txErr:      errRateLimited{},
		txErrCount: 1,
	}
	client := newTestClient(mock)

	sigs := []SignatureInfo{{Signature: testSig1.String(), Slot: 100}}
	txs, err := client.FetchTransactions(ctx, testWalletAddr, sigs, nil)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, 2, mock.txCalls)
}

func TestFetchTransactions_CancelAbortsBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(&mockRPCClient{})
	client.SetRequestDelay(time.Second)

	sigs := []SignatureInfo{{Signature: testSig1.String(), Slot: 100}}
	_, err := client.FetchTransactions(ctx, testWalletAddr, sigs, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTokenAccounts(t *testing.T) {
	ata1 := solana.MustPublicKeyFromBase58("3emsAVdmGKERbHjmGfQ6oZ1e35dkf5iYcS6U4CPKFVaa")
	ata2 := solana.MustPublicKeyFromBase58("GyUJhJ1gq3TbbYJS3CsKrm7tnBBtYe1fqVrbXLuzJhhX")
	mock := &mockRPCClient{
		tokenAccounts: []*rpc.TokenAccount{
			{Pubkey: ata1},
			{Pubkey: ata2},
		},
	}
	client := newTestClient(mock)

	accounts, err := client.TokenAccounts(context.Background(), testWalletAddr)
	require.NoError(t, err)
	assert.Equal(t, []string{ata1.String(), ata2.String()}, accounts)
}
