package classify

import (
	"github.com/soltrace/soltrace/service/ledger"
)

// TxType is the canonical transaction type tag. Closed set; classifiers
// must only emit values declared here.
type TxType string

const (
	TypeTransfer        TxType = "transfer"
	TypeSwap            TxType = "swap"
	TypeWrap            TxType = "wrap"
	TypeUnwrap          TxType = "unwrap"
	TypeTokenDeposit    TxType = "token_deposit"
	TypeTokenWithdraw   TxType = "token_withdraw"
	TypeBorrow          TxType = "borrow"
	TypeRepay           TxType = "repay"
	TypeStake           TxType = "stake"
	TypeUnstake         TxType = "unstake"
	TypeStakeReward     TxType = "stake_reward"
	TypeClaimRewards    TxType = "claim_rewards"
	TypeAirdrop         TxType = "airdrop"
	TypeBridgeIn        TxType = "bridge_in"
	TypeBridgeOut       TxType = "bridge_out"
	TypeNFTMint         TxType = "nft_mint"
	TypeNFTSale         TxType = "nft_sale"
	TypeNFTPurchase     TxType = "nft_purchase"
	TypeNFTTransfer     TxType = "nft_transfer"
	TypeLiquidityAdd    TxType = "liquidity_add"
	TypeLiquidityRemove TxType = "liquidity_remove"
	TypePayment         TxType = "payment"
	TypeMint            TxType = "mint"
	TypeBurn            TxType = "burn"
	TypeCreateAccount   TxType = "create_account"
	TypeCloseAccount    TxType = "close_account"
	TypeApprove         TxType = "approve"
	TypeRevoke          TxType = "revoke"
	TypeVote            TxType = "vote"
	TypeFee             TxType = "fee"
	TypeMemo            TxType = "memo"
	TypeSpam            TxType = "spam"
	TypeFailed          TxType = "failed"
	TypeUnknown         TxType = "unknown"
	TypeOther           TxType = "other"
)

// Direction is the net movement relative to the wallet.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionSelf     Direction = "self"
	DirectionNeutral  Direction = "neutral"
)

// CounterpartyType categorizes the other side of a transaction.
type CounterpartyType string

const (
	CounterpartyPerson    CounterpartyType = "person"
	CounterpartyMerchant  CounterpartyType = "merchant"
	CounterpartyExchange  CounterpartyType = "exchange"
	CounterpartyProtocol  CounterpartyType = "protocol"
	CounterpartyOwnWallet CounterpartyType = "own_wallet"
	CounterpartyUnknown   CounterpartyType = "unknown"
)

// Counterparty is the resolved other side of a transaction. Classifiers
// set it when they can attribute one; it is frequently absent.
type Counterparty struct {
	Type      CounterpartyType `json:"type"`
	Address   string           `json:"address"`
	Name      string           `json:"name,omitempty"`
	AvatarURL string           `json:"avatar_url,omitempty"`
	RefCode   string           `json:"ref_code,omitempty"`
}

// TransactionClassification is the normalized interpretation of one
// transaction for one wallet. It is the output of a pure function: produced
// fresh per call and never mutated after construction.
type TransactionClassification struct {
	PrimaryType     TxType              `json:"primary_type"`
	Direction       Direction           `json:"direction"`
	PrimaryAmount   *ledger.MoneyAmount `json:"primary_amount,omitempty"`
	SecondaryAmount *ledger.MoneyAmount `json:"secondary_amount,omitempty"`
	Counterparty    *Counterparty       `json:"counterparty,omitempty"`

	// Sender/Receiver are set exclusively for the wallet side of protocol
	// interactions: a deposit sets Sender, a withdrawal sets Receiver.
	Sender   string `json:"sender,omitempty"`
	Receiver string `json:"receiver,omitempty"`

	// Confidence is a static per-classifier certainty in [0,1], not a
	// computed probability.
	Confidence float64 `json:"confidence"`

	IsRelevant bool              `json:"is_relevant"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Input is what every classifier receives: the raw transaction (with any
// detected protocol attached), its decomposed legs, and the wallet whose
// perspective is being classified.
type Input struct {
	Tx     *ledger.RawTransaction
	Legs   []ledger.TxLeg
	Wallet string
}

// ClassifiedTransaction bundles a transaction with its classification and
// legs. This is the sole shape the presentation layer consumes.
type ClassifiedTransaction struct {
	Tx             *ledger.RawTransaction    `json:"tx"`
	Classification TransactionClassification `json:"classification"`
	Legs           []ledger.TxLeg            `json:"legs"`
}
