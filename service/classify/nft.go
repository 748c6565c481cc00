package classify

import (
	"github.com/soltrace/soltrace/service/ledger"
)

// NFT marketplaces, as opposed to mint infrastructure.
var nftMarketplaces = map[string]bool{
	"magiceden": true,
	"tensor":    true,
}

// NFTClassifier recognizes NFT mints, sales, purchases, and transfers.
// An NFT-shaped leg is a zero-decimal token moving in quantity one.
type NFTClassifier struct{}

func (c *NFTClassifier) Name() string { return "nft" }

func (c *NFTClassifier) Classify(in Input) *TransactionClassification {
	legs := nonFeeWalletLegs(in)
	nft := nftLeg(legs)
	if nft == nil {
		return nil
	}
	if protocolCategory(in) != ledger.CategoryNFT && in.Tx != nil && in.Tx.Protocol != nil {
		// A known non-NFT protocol moved a one-of-one token; let the more
		// specific classifier handle it.
		return nil
	}

	native := nativeLeg(legs)
	nativeMoved := native != nil && native.Amount.AmountUI >= nativeNoiseThreshold
	marketplace := in.Tx != nil && in.Tx.Protocol != nil && nftMarketplaces[in.Tx.Protocol.ID]

	nftAmount := nft.Amount
	meta := protocolMetadata(in)
	if meta == nil {
		meta = map[string]string{}
	}
	meta["mint"] = nft.Amount.Token.Mint

	if nft.Side == ledger.SideCredit {
		switch {
		case marketplace && nativeMoved && native.Side == ledger.SideDebit:
			price := native.Amount
			return &TransactionClassification{
				PrimaryType:     TypeNFTPurchase,
				Direction:       DirectionOutgoing,
				PrimaryAmount:   &price,
				SecondaryAmount: &nftAmount,
				Counterparty:    protocolCounterparty(in),
				Sender:          in.Wallet,
				Confidence:      0.9,
				IsRelevant:      true,
				Metadata:        meta,
			}
		case nativeMoved && native.Side == ledger.SideDebit:
			price := native.Amount
			return &TransactionClassification{
				PrimaryType:     TypeNFTMint,
				Direction:       DirectionOutgoing,
				PrimaryAmount:   &price,
				SecondaryAmount: &nftAmount,
				Counterparty:    protocolCounterparty(in),
				Sender:          in.Wallet,
				Confidence:      0.85,
				IsRelevant:      true,
				Metadata:        meta,
			}
		case in.Tx != nil && in.Tx.FeePayer() != in.Wallet:
			// Pushed to the wallet with someone else paying the fee; the
			// airdrop classifier owns that pattern.
			return nil
		default:
			return &TransactionClassification{
				PrimaryType:   TypeNFTTransfer,
				Direction:     DirectionIncoming,
				PrimaryAmount: &nftAmount,
				Receiver:      in.Wallet,
				Confidence:    0.8,
				IsRelevant:    true,
				Metadata:      meta,
			}
		}
	}

	// Wallet gave up the NFT.
	if nativeMoved && native.Side == ledger.SideCredit {
		proceeds := native.Amount
		return &TransactionClassification{
			PrimaryType:     TypeNFTSale,
			Direction:       DirectionIncoming,
			PrimaryAmount:   &proceeds,
			SecondaryAmount: &nftAmount,
			Counterparty:    protocolCounterparty(in),
			Receiver:        in.Wallet,
			Confidence:      0.9,
			IsRelevant:      true,
			Metadata:        meta,
		}
	}
	return &TransactionClassification{
		PrimaryType:   TypeNFTTransfer,
		Direction:     DirectionOutgoing,
		PrimaryAmount: &nftAmount,
		Sender:        in.Wallet,
		Confidence:    0.8,
		IsRelevant:    true,
		Metadata:      meta,
	}
}

// nftLeg finds the wallet's one-of-one token movement, if any.
func nftLeg(legs []ledger.TxLeg) *ledger.TxLeg {
	for i := range legs {
		l := legs[i]
		if l.Amount.Token.Decimals == 0 && l.Amount.AmountRaw == "1" && !l.Amount.Token.IsNative() {
			return &legs[i]
		}
	}
	return nil
}

func protocolCounterparty(in Input) *Counterparty {
	if in.Tx == nil || in.Tx.Protocol == nil {
		return nil
	}
	return &Counterparty{
		Type:    CounterpartyProtocol,
		Address: in.Tx.Protocol.ID,
		Name:    in.Tx.Protocol.Name,
	}
}
