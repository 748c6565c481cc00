package classify

import (
	"log/slog"
	"sort"

	"github.com/soltrace/soltrace/service/ledger"
)

// Native-asset legs below this UI amount are assumed to be incidental rent
// or fee noise when a token also moved.
const nativeNoiseThreshold = 0.01

// Classifier is one rule module. It returns nil ("not applicable") when its
// preconditions are unmet; it never errors on malformed input.
type Classifier interface {
	Name() string
	Classify(in Input) *TransactionClassification
}

// Chain runs classifiers in a fixed, explicit priority order and returns
// the first non-nil result. More specific classifiers (lending, NFT) are
// listed before generic ones (transfer); reordering entries is a visible,
// reviewable change to classification behavior.
type Chain struct {
	ordered []Classifier
	logger  *slog.Logger
}

// NewChain builds the default classifier chain.
func NewChain(logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		logger: logger,
		ordered: []Classifier{
			&NFTClassifier{},
			&LendingClassifier{},
			&StakingClassifier{},
			&BridgeClassifier{},
			&AirdropClassifier{},
			&SwapClassifier{},
			&PaymentMemoClassifier{},
			&TransferClassifier{},
		},
	}
}

// Classify runs the chain. Classification is all-or-nothing: the result is
// always a fully constructed value, falling back to a low-confidence
// "other" when no classifier matches.
func (c *Chain) Classify(in Input) TransactionClassification {
	for _, cl := range c.ordered {
		if result := cl.Classify(in); result != nil {
			c.logger.Debug("transaction classified",
				"signature", signatureOf(in),
				"classifier", cl.Name(),
				"type", result.PrimaryType,
				"confidence", result.Confidence,
			)
			return *result
		}
	}

	c.logger.Debug("no classifier matched, using fallback",
		"signature", signatureOf(in),
	)
	return TransactionClassification{
		PrimaryType: TypeOther,
		Direction:   DirectionNeutral,
		Confidence:  0.3,
		IsRelevant:  false,
	}
}

func signatureOf(in Input) string {
	if in.Tx == nil {
		return ""
	}
	return in.Tx.Signature
}

// nonFeeWalletLegs returns the wallet's legs excluding the fee leg.
func nonFeeWalletLegs(in Input) []ledger.TxLeg {
	var out []ledger.TxLeg
	for _, l := range ledger.WalletLegs(in.Legs, in.Wallet) {
		if l.IsFee() {
			continue
		}
		out = append(out, l)
	}
	return out
}

// tokenFlow is the wallet's aggregate position in one token. Totals are
// carried in both UI scale (for comparisons and thresholds) and raw base
// units (for reconstructing exact amounts; float64 loses integer precision
// past 2^53).
type tokenFlow struct {
	token      ledger.TokenInfo
	net        float64 // credits minus debits, UI scale
	debits     float64
	credits    float64
	rawDebits  uint64
	rawCredits uint64
}

// netUnits returns the magnitude of the net movement in base units.
func (f *tokenFlow) netUnits() uint64 {
	if f.rawCredits >= f.rawDebits {
		return f.rawCredits - f.rawDebits
	}
	return f.rawDebits - f.rawCredits
}

// netAmount returns the net movement as an exact amount.
func (f *tokenFlow) netAmount() *ledger.MoneyAmount {
	amount := ledger.NewMoneyAmount(f.token, f.netUnits())
	return &amount
}

// debitAmount returns the total debited as an exact amount.
func (f *tokenFlow) debitAmount() *ledger.MoneyAmount {
	amount := ledger.NewMoneyAmount(f.token, f.rawDebits)
	return &amount
}

// walletFlows aggregates the wallet's non-fee legs per token mint.
func walletFlows(in Input) map[string]*tokenFlow {
	flows := make(map[string]*tokenFlow)
	for _, l := range nonFeeWalletLegs(in) {
		f, ok := flows[l.Amount.Token.Mint]
		if !ok {
			f = &tokenFlow{token: l.Amount.Token}
			flows[l.Amount.Token.Mint] = f
		}
		if l.Side == ledger.SideCredit {
			f.credits += l.Amount.AmountUI
			f.net += l.Amount.AmountUI
			f.rawCredits += l.Amount.BaseUnits()
		} else {
			f.debits += l.Amount.AmountUI
			f.net -= l.Amount.AmountUI
			f.rawDebits += l.Amount.BaseUnits()
		}
	}
	return flows
}

// pickPrimary selects the economically meaningful amount among candidate
// legs; see pickPrimaryLeg for the tie-break rules.
func pickPrimary(legs []ledger.TxLeg) *ledger.MoneyAmount {
	leg := pickPrimaryLeg(legs)
	if leg == nil {
		return nil
	}
	amount := leg.Amount
	return &amount
}

// pickPrimaryLeg selects the economically meaningful leg among candidates:
// non-native tokens win over the native asset (small native movements are
// rent/fee noise), then the larger UI amount wins. Ties resolve by mint so
// repeated calls are bit-identical.
func pickPrimaryLeg(legs []ledger.TxLeg) *ledger.TxLeg {
	if len(legs) == 0 {
		return nil
	}
	candidates := make([]ledger.TxLeg, 0, len(legs))
	hasToken := false
	for _, l := range legs {
		if !l.Amount.Token.IsNative() {
			hasToken = true
		}
	}
	for _, l := range legs {
		if hasToken && l.Amount.Token.IsNative() && l.Amount.AmountUI < nativeNoiseThreshold {
			continue
		}
		candidates = append(candidates, l)
	}
	if len(candidates) == 0 {
		candidates = legs
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ni, nj := candidates[i].Amount.Token.IsNative(), candidates[j].Amount.Token.IsNative()
		if ni != nj {
			return !ni
		}
		if candidates[i].Amount.AmountUI != candidates[j].Amount.AmountUI {
			return candidates[i].Amount.AmountUI > candidates[j].Amount.AmountUI
		}
		return candidates[i].Amount.Token.Mint < candidates[j].Amount.Token.Mint
	})
	leg := candidates[0]
	return &leg
}

// netDirection maps a net UI movement to a direction.
func netDirection(net float64) Direction {
	switch {
	case net > 0:
		return DirectionIncoming
	case net < 0:
		return DirectionOutgoing
	default:
		return DirectionNeutral
	}
}

// protocolCategory returns the detected protocol's category, or "".
func protocolCategory(in Input) ledger.ProtocolCategory {
	if in.Tx == nil || in.Tx.Protocol == nil {
		return ""
	}
	return in.Tx.Protocol.Category
}

func protocolMetadata(in Input) map[string]string {
	if in.Tx == nil || in.Tx.Protocol == nil {
		return nil
	}
	return map[string]string{"protocol": in.Tx.Protocol.ID}
}
