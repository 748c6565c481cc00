package classify

import (
	"testing"

	"github.com/soltrace/soltrace/service/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPrices map[string]float64

func (p staticPrices) USDPrice(mint string) (float64, bool) {
	v, ok := p[mint]
	return v, ok
}

func relevantClassification(amount *ledger.MoneyAmount) TransactionClassification {
	return TransactionClassification{
		PrimaryType:   TypeTransfer,
		Direction:     DirectionIncoming,
		PrimaryAmount: amount,
		Confidence:    0.95,
		IsRelevant:    true,
	}
}

func creditLeg(wallet string, token ledger.TokenInfo, raw uint64) ledger.TxLeg {
	return ledger.TxLeg{
		Address: wallet,
		Side:    ledger.SideCredit,
		Role:    ledger.RoleReceived,
		Amount:  ledger.NewMoneyAmount(token, raw),
	}
}

func TestIsSpam_FailedTransaction(t *testing.T) {
	tx := usdcTransferTx()
	tx.Err = map[string]any{"InstructionError": []any{0, "Custom"}}

	amount := ledger.NewMoneyAmount(ledger.PlaceholderToken(usdcMint, 6), 100_000_000)
	classification := relevantClassification(&amount)
	cfg := DefaultSpamConfig()

	assert.True(t, IsSpam(tx, classification, nil, testWallet, cfg, nil))

	cfg.AllowFailed = true
	assert.False(t, IsSpam(tx, classification, nil, testWallet, cfg, nil))
}

func TestIsSpam_LowConfidence(t *testing.T) {
	amount := ledger.NewMoneyAmount(ledger.PlaceholderToken(usdcMint, 6), 100_000_000)
	classification := relevantClassification(&amount)
	classification.Confidence = 0.3

	assert.True(t, IsSpam(usdcTransferTx(), classification, nil, testWallet, DefaultSpamConfig(), nil))
}

func TestIsSpam_Irrelevant(t *testing.T) {
	classification := TransactionClassification{
		PrimaryType: TypeOther,
		Confidence:  0.9,
		IsRelevant:  false,
	}
	assert.True(t, IsSpam(usdcTransferTx(), classification, nil, testWallet, DefaultSpamConfig(), nil))
}

func TestIsSpam_NativeDustBoundary(t *testing.T) {
	cfg := DefaultSpamConfig()
	tx := usdcTransferTx()

	// Exactly at the floor: 0.001 SOL is 1_000_000 lamports. Not spam.
	atFloor := ledger.NewMoneyAmount(ledger.NativeToken(), 1_000_000)
	assert.False(t, IsSpam(tx, relevantClassification(&atFloor), nil, testWallet, cfg, nil))

	// One lamport below the floor is spam.
	below := ledger.NewMoneyAmount(ledger.NativeToken(), 999_999)
	assert.True(t, IsSpam(tx, relevantClassification(&below), nil, testWallet, cfg, nil))
}

func TestIsSpam_TokenDustWithPrice(t *testing.T) {
	cfg := DefaultSpamConfig()
	tx := usdcTransferTx()
	token := ledger.PlaceholderToken(bonkMint, 5)
	prices := staticPrices{bonkMint: 0.0000001}

	// A large UI amount of a near-worthless token is still dust.
	big := ledger.NewMoneyAmount(token, 100_000_000) // 1000 UI, worth $0.0001
	assert.True(t, IsSpam(tx, relevantClassification(&big), nil, testWallet, cfg, prices))

	// The same amount of a priced token above the USD floor is not.
	pricier := staticPrices{bonkMint: 0.01}
	assert.False(t, IsSpam(tx, relevantClassification(&big), nil, testWallet, cfg, pricier))
}

func TestIsSpam_TokenDustWithoutPrice(t *testing.T) {
	cfg := DefaultSpamConfig()
	tx := usdcTransferTx()
	token := ledger.PlaceholderToken(bonkMint, 5)

	// Unknown price: the UI amount is compared against the USD floor
	// directly.
	small := ledger.NewMoneyAmount(token, 500) // 0.005 UI
	assert.True(t, IsSpam(tx, relevantClassification(&small), nil, testWallet, cfg, nil))

	large := ledger.NewMoneyAmount(token, 500_000) // 5 UI
	assert.False(t, IsSpam(tx, relevantClassification(&large), nil, testWallet, cfg, nil))
}

func TestIsSpam_DustAirdrop(t *testing.T) {
	cfg := DefaultSpamConfig()
	tx := pushedAirdropTx("100")
	tokenA := ledger.PlaceholderToken(bonkMint, 5)
	tokenB := ledger.PlaceholderToken(cUSDCMint, 6)

	classification := TransactionClassification{
		PrimaryType: TypeAirdrop,
		Direction:   DirectionIncoming,
		Confidence:  0.75,
		IsRelevant:  true,
	}

	// Every received amount individually below the floor, nothing sent.
	dustLegs := []ledger.TxLeg{
		creditLeg(testWallet, tokenA, 100), // 0.001 UI
		creditLeg(testWallet, tokenB, 500), // 0.0005 UI
	}
	assert.True(t, IsSpam(tx, classification, dustLegs, testWallet, cfg, nil))

	// One non-dust receipt rescues the transaction.
	mixed := append(dustLegs, creditLeg(testWallet, tokenB, 50_000_000))
	assert.False(t, IsSpam(tx, classification, mixed, testWallet, cfg, nil))
}

func TestIsSpam_DustAirdropIgnoresOutgoing(t *testing.T) {
	cfg := DefaultSpamConfig()
	token := ledger.PlaceholderToken(bonkMint, 5)

	// A non-dust debit means the wallet acted, so the received dust does
	// not mark the transaction as spam on its own.
	legs := []ledger.TxLeg{
		creditLeg(testWallet, token, 100),
		{
			Address: testWallet,
			Side:    ledger.SideDebit,
			Role:    ledger.RoleSent,
			Amount:  ledger.NewMoneyAmount(ledger.PlaceholderToken(usdcMint, 6), 25_000_000),
		},
	}
	classification := TransactionClassification{
		PrimaryType: TypeSwap,
		Confidence:  0.9,
		IsRelevant:  true,
	}
	assert.False(t, IsSpam(usdcTransferTx(), classification, legs, testWallet, cfg, nil))
}

func TestFilterSpam_PreservesOrderAndFields(t *testing.T) {
	cfg := DefaultSpamConfig()

	keepA := usdcTransferTx()
	keepB := jupiterSwapTx()
	failed := solendDepositTx()
	failed.Err = "AccountInUse"

	amount := ledger.NewMoneyAmount(ledger.PlaceholderToken(usdcMint, 6), 100_000_000)
	batch := []ClassifiedTransaction{
		{Tx: keepA, Classification: relevantClassification(&amount)},
		{Tx: failed, Classification: relevantClassification(&amount)},
		{Tx: keepB, Classification: relevantClassification(&amount)},
	}

	out := FilterSpam(batch, testWallet, cfg, nil)
	require.Len(t, out, 2)
	assert.Equal(t, keepA.Signature, out[0].Tx.Signature)
	assert.Equal(t, keepB.Signature, out[1].Tx.Signature)
	assert.Equal(t, batch[0].Classification, out[0].Classification)
}

func TestFilterSpam_Empty(t *testing.T) {
	out := FilterSpam(nil, testWallet, DefaultSpamConfig(), nil)
	assert.Empty(t, out)
}
