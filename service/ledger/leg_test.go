package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet    = "7cVfgArCheMR6Cs4t6vz5rfnqd56vZq4ndaBrY5xkxXy"
	testRecipient = "4Nd1mY5c6vzY8bcnHY1tSc4qzyyGXsgMsFMvP8F4iQrS"
	testVault     = "So1endVau1t111111111111111111111111111111111"
	usdcMint      = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// usdcTransferTx models a wallet sending 100 USDC to a recipient whose
// token account did not exist before the transaction.
func usdcTransferTx() *RawTransaction {
	return &RawTransaction{
		Signature:   "sigTransfer",
		Slot:        1000,
		Fee:         5000,
		AccountKeys: []string{testWallet, "walletAta", "recipientAta"},
		PreBalances: []uint64{10_000_000, 2_039_280, 2_039_280},
		PostBalances: []uint64{
			10_000_000 - 5000, 2_039_280, 2_039_280,
		},
		PreTokenBalances: []TokenBalance{
			{
				AccountIndex:  1,
				Mint:          usdcMint,
				Owner:         testWallet,
				UITokenAmount: UITokenAmount{Amount: "150000000", Decimals: 6},
			},
		},
		PostTokenBalances: []TokenBalance{
			{
				AccountIndex:  1,
				Mint:          usdcMint,
				Owner:         testWallet,
				UITokenAmount: UITokenAmount{Amount: "50000000", Decimals: 6},
			},
			{
				AccountIndex:  2,
				Mint:          usdcMint,
				Owner:         testRecipient,
				UITokenAmount: UITokenAmount{Amount: "100000000", Decimals: 6},
			},
		},
	}
}

func TestDecompose_TokenTransfer(t *testing.T) {
	legs := Decompose(usdcTransferTx())
	require.Len(t, legs, 3)

	// Fee leg always first.
	fee := legs[0]
	assert.Equal(t, RoleFee, fee.Role)
	assert.Equal(t, SideDebit, fee.Side)
	assert.Equal(t, testWallet, fee.Address)
	assert.InDelta(t, 0.000005, fee.Amount.AmountUI, 1e-12)
	assert.True(t, fee.Amount.Token.IsNative())

	// Sender debit.
	debit := legs[1]
	assert.Equal(t, SideDebit, debit.Side)
	assert.Equal(t, RoleSent, debit.Role)
	assert.Equal(t, testWallet, debit.Address)
	assert.InDelta(t, 100, debit.Amount.AmountUI, 1e-9)

	// Recipient credit.
	credit := legs[2]
	assert.Equal(t, SideCredit, credit.Side)
	assert.Equal(t, RoleReceived, credit.Role)
	assert.Equal(t, testRecipient, credit.Address)
	assert.InDelta(t, 100, credit.Amount.AmountUI, 1e-9)

	// Synthetic account ids combine role and address.
	assert.Equal(t, "sent:"+testWallet, debit.AccountID)
}

func TestDecompose_NativeTransfer(t *testing.T) {
	tx := &RawTransaction{
		Signature:    "sigNative",
		Fee:          5000,
		AccountKeys:  []string{testWallet, testRecipient},
		PreBalances:  []uint64{2_000_000_000, 0},
		PostBalances: []uint64{2_000_000_000 - 1_000_000_000 - 5000, 1_000_000_000},
	}

	legs := Decompose(tx)
	require.Len(t, legs, 3)
	assert.Equal(t, RoleFee, legs[0].Role)

	assert.Equal(t, SideDebit, legs[1].Side)
	assert.Equal(t, testWallet, legs[1].Address)
	assert.InDelta(t, 1.0, legs[1].Amount.AmountUI, 1e-9)

	assert.Equal(t, SideCredit, legs[2].Side)
	assert.Equal(t, testRecipient, legs[2].Address)
	assert.InDelta(t, 1.0, legs[2].Amount.AmountUI, 1e-9)
}

func TestDecompose_VaultRoles(t *testing.T) {
	tx := usdcTransferTx()
	tx.Protocol = &ProtocolInfo{
		ID:          "solend",
		Name:        "Solend",
		Category:    CategoryLending,
		VaultOwners: []string{testRecipient},
	}

	legs := Decompose(tx)
	require.Len(t, legs, 3)
	assert.Equal(t, RoleProtocolDeposit, legs[2].Role)
	assert.Equal(t, "protocol_deposit:"+testRecipient, legs[2].AccountID)
}

func TestDecompose_StakingRewardCredit(t *testing.T) {
	// A staking program crediting the wallet with nothing debited in
	// return is a reward claim, not a transfer.
	tx := &RawTransaction{
		Signature:    "sigReward",
		Fee:          5000,
		AccountKeys:  []string{testWallet},
		PreBalances:  []uint64{2_000_000_000},
		PostBalances: []uint64{2_000_000_000 - 5000 + 500_000_000},
		Protocol: &ProtocolInfo{
			ID: "marinade", Name: "Marinade", Category: CategoryStaking,
		},
	}

	legs := Decompose(tx)
	require.Len(t, legs, 2)
	assert.Equal(t, RoleFee, legs[0].Role)
	assert.Equal(t, RoleReward, legs[1].Role)
	assert.Equal(t, SideCredit, legs[1].Side)
	assert.Equal(t, "reward:"+testWallet, legs[1].AccountID)
	assert.InDelta(t, 0.5, legs[1].Amount.AmountUI, 1e-9)

	// The same shape outside a staking protocol is a plain receive.
	tx.Protocol = nil
	legs = Decompose(tx)
	require.Len(t, legs, 2)
	assert.Equal(t, RoleReceived, legs[1].Role)
}

func TestDecompose_StakingDebitSuppressesReward(t *testing.T) {
	// Staking deposits credit a derivative token back to the wallet; the
	// wallet also debited, so the credit is a receive, not a reward.
	tx := &RawTransaction{
		Signature:    "sigStake",
		Fee:          5000,
		AccountKeys:  []string{testWallet, "msolAta"},
		PreBalances:  []uint64{5_000_000_000, 2_039_280},
		PostBalances: []uint64{3_000_000_000 - 5000, 2_039_280},
		PostTokenBalances: []TokenBalance{
			{
				AccountIndex:  1,
				Mint:          "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So",
				Owner:         testWallet,
				UITokenAmount: UITokenAmount{Amount: "1900000000", Decimals: 9},
			},
		},
		Protocol: &ProtocolInfo{
			ID: "marinade", Name: "Marinade", Category: CategoryStaking,
		},
	}

	legs := Decompose(tx)
	require.Len(t, legs, 3)
	for _, l := range legs {
		assert.NotEqual(t, RoleReward, l.Role)
	}
}

func TestDecompose_SkipsOwnerlessRows(t *testing.T) {
	tx := usdcTransferTx()
	tx.PostTokenBalances[1].Owner = ""
	tx.PreTokenBalances[0].Owner = ""
	tx.PostTokenBalances[0].Owner = ""

	legs := Decompose(tx)
	// Only the fee leg survives; both token rows lack owners.
	require.Len(t, legs, 1)
	assert.Equal(t, RoleFee, legs[0].Role)
}

func TestDecompose_MalformedBalances(t *testing.T) {
	tests := []struct {
		name string
		tx   *RawTransaction
	}{
		{name: "nil transaction", tx: nil},
		{name: "empty transaction", tx: &RawTransaction{Signature: "x"}},
		{
			name: "mismatched native arrays",
			tx: &RawTransaction{
				Signature:    "y",
				AccountKeys:  []string{testWallet},
				PreBalances:  []uint64{100, 200, 300},
				PostBalances: []uint64{100},
			},
		},
		{
			name: "unparseable token amount",
			tx: &RawTransaction{
				Signature: "z",
				PostTokenBalances: []TokenBalance{
					{AccountIndex: 1, Mint: usdcMint, Owner: testWallet, UITokenAmount: UITokenAmount{Amount: "not-a-number", Decimals: 6}},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() { Decompose(tt.tx) })
		})
	}
}

func TestDecompose_DeterministicOrdering(t *testing.T) {
	tx := usdcTransferTx()
	first := Decompose(tx)
	for range 10 {
		assert.Equal(t, first, Decompose(tx))
	}
}

func TestWalletLegs(t *testing.T) {
	legs := Decompose(usdcTransferTx())
	mine := WalletLegs(legs, testWallet)
	require.Len(t, mine, 2)
	for _, l := range mine {
		assert.Equal(t, testWallet, l.Address)
	}
}
