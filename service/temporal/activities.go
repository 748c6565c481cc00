// Package temporal schedules and runs the wallet polling pipeline. Each
// tracked wallet has a Temporal schedule that triggers PollWalletWorkflow:
// classify new activity, persist it, publish it.
package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soltrace/soltrace/service/classify"
	"github.com/soltrace/soltrace/service/db"
	"github.com/soltrace/soltrace/service/indexer"
	"github.com/soltrace/soltrace/service/metrics"
	natspkg "github.com/soltrace/soltrace/service/nats"
)

// PollWalletInput is the workflow input: the wallet to poll.
type PollWalletInput struct {
	WalletAddress string `json:"wallet_address"`
}

// PollWalletResult summarizes one poll.
type PollWalletResult struct {
	Address          string    `json:"address"`
	TransactionCount int       `json:"transaction_count"`
	Written          int       `json:"written"`
	Skipped          int       `json:"skipped"`
	FromCache        bool      `json:"from_cache"`
	PollTime         time.Time `json:"poll_time"`
	Error            *string   `json:"error,omitempty"`
}

// ClassifyWalletInput contains parameters for the ClassifyWallet activity.
type ClassifyWalletInput struct {
	WalletAddress string `json:"wallet_address"`
}

// ClassifyWalletResult carries the classified activity for the wallet.
type ClassifyWalletResult struct {
	Transactions []classify.ClassifiedTransaction `json:"transactions"`
	FromCache    bool                             `json:"from_cache"`
	HasMore      bool                             `json:"has_more"`
}

// PersistClassificationsInput contains parameters for the
// PersistClassifications activity.
type PersistClassificationsInput struct {
	WalletAddress string                           `json:"wallet_address"`
	Transactions  []classify.ClassifiedTransaction `json:"transactions"`

	// StartedAt is when the owning workflow run began; set, it lets the
	// activity record the end-to-end poll duration.
	StartedAt time.Time `json:"started_at"`
}

// PersistClassificationsResult reports what was written.
type PersistClassificationsResult struct {
	Written int `json:"written"`
	Skipped int `json:"skipped"`
}

// WalletIndexer is the classification pipeline the activities drive.
// *indexer.Indexer satisfies it.
type WalletIndexer interface {
	ClassifyTransactionsForWallet(ctx context.Context, wallet string, page indexer.Page) (*indexer.Result, error)
}

// StoreInterface defines the database operations needed by activities.
type StoreInterface interface {
	UpsertTransaction(ctx context.Context, tx *db.Transaction) error
	GetTransaction(ctx context.Context, walletAddress, signature string) (*db.Transaction, error)
	UpdateWalletPollTime(ctx context.Context, address string, pollTime time.Time) (*db.Wallet, error)
}

// PublisherInterface defines the NATS publishing operations needed by
// activities.
type PublisherInterface interface {
	PublishClassificationBatch(ctx context.Context, events []*natspkg.ClassificationEvent) error
}

// Activities holds the dependencies needed by Temporal activities. All
// dependencies are explicit; metrics may be nil.
type Activities struct {
	indexer   WalletIndexer
	store     StoreInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates an Activities instance with explicit dependencies.
func NewActivities(
	ix WalletIndexer,
	store StoreInterface,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		indexer:   ix,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// ClassifyWallet runs the fetch and classification pipeline for a wallet.
// A cache hit costs one gap check; a miss runs a full cold fetch.
func (a *Activities) ClassifyWallet(ctx context.Context, input ClassifyWalletInput) (*ClassifyWalletResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("ClassifyWallet", input.WalletAddress, time.Since(start).Seconds())
		}
	}()

	a.logger.DebugContext(ctx, "classifying wallet", "wallet", input.WalletAddress)

	result, err := a.indexer.ClassifyTransactionsForWallet(ctx, input.WalletAddress, indexer.Page{})
	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordWorkflowDuration(input.WalletAddress, "error", time.Since(start).Seconds())
		}
		a.logger.ErrorContext(ctx, "failed to classify wallet",
			"wallet", input.WalletAddress,
			"error", err,
		)
		return nil, fmt.Errorf("failed to classify wallet: %w", err)
	}

	a.logger.InfoContext(ctx, "classified wallet",
		"wallet", input.WalletAddress,
		"count", len(result.Transactions),
		"from_cache", result.FromCache,
	)
	return &ClassifyWalletResult{
		Transactions: result.Transactions,
		FromCache:    result.FromCache,
		HasMore:      result.HasMore,
	}, nil
}

// PersistClassifications upserts classified transactions and publishes the
// newly seen ones to NATS. Re-persisting known signatures updates the
// stored verdict without republishing, so consumers see each transaction
// once.
func (a *Activities) PersistClassifications(ctx context.Context, input PersistClassificationsInput) (*PersistClassificationsResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("PersistClassifications", input.WalletAddress, time.Since(start).Seconds())
		}
	}()

	a.logger.DebugContext(ctx, "persisting classifications",
		"wallet", input.WalletAddress,
		"count", len(input.Transactions),
	)

	written := 0
	skipped := 0
	var newEvents []*natspkg.ClassificationEvent

	for _, ct := range input.Transactions {
		if ct.Tx == nil {
			continue
		}

		_, err := a.store.GetTransaction(ctx, input.WalletAddress, ct.Tx.Signature)
		known := err == nil
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("failed to check transaction %s: %w", ct.Tx.Signature, err)
		}

		row, err := transactionRow(input.WalletAddress, ct)
		if err != nil {
			return nil, fmt.Errorf("failed to encode transaction %s: %w", ct.Tx.Signature, err)
		}
		if err := a.store.UpsertTransaction(ctx, row); err != nil {
			a.logger.ErrorContext(ctx, "failed to persist transaction",
				"signature", ct.Tx.Signature,
				"error", err,
			)
			return nil, fmt.Errorf("failed to persist transaction %s: %w", ct.Tx.Signature, err)
		}

		if known {
			skipped++
			continue
		}
		written++
		newEvents = append(newEvents, natspkg.FromClassified(ct, input.WalletAddress))
	}

	if _, err := a.store.UpdateWalletPollTime(ctx, input.WalletAddress, time.Now()); err != nil {
		// Transactions are persisted; a stale poll time only delays the
		// scheduler's staleness ordering.
		a.logger.WarnContext(ctx, "failed to update wallet poll time",
			"wallet", input.WalletAddress,
			"error", err,
		)
	}

	if a.metrics != nil {
		a.metrics.RecordTransactionsWritten(input.WalletAddress, written)
		a.metrics.RecordTransactionsSkipped(input.WalletAddress, "already_exists", skipped)
		if total := float64(len(input.Transactions)); total > 0 {
			a.metrics.RecordDeduplicationRatio(input.WalletAddress, float64(skipped)/total)
		}
		if !input.StartedAt.IsZero() {
			a.metrics.RecordWorkflowDuration(input.WalletAddress, "success", time.Since(input.StartedAt).Seconds())
		}
	}

	// NATS publish is best-effort: rows are durable, events are not.
	if len(newEvents) > 0 && a.publisher != nil {
		if err := a.publisher.PublishClassificationBatch(ctx, newEvents); err != nil {
			a.logger.ErrorContext(ctx, "failed to publish classifications",
				"wallet", input.WalletAddress,
				"count", len(newEvents),
				"error", err,
			)
		}
	}

	a.logger.InfoContext(ctx, "persisted classifications",
		"wallet", input.WalletAddress,
		"written", written,
		"skipped", skipped,
	)
	return &PersistClassificationsResult{Written: written, Skipped: skipped}, nil
}

// transactionRow flattens a classified transaction into its stored form.
func transactionRow(wallet string, ct classify.ClassifiedTransaction) (*db.Transaction, error) {
	legs, err := json.Marshal(ct.Legs)
	if err != nil {
		return nil, fmt.Errorf("marshal legs: %w", err)
	}
	metadata := json.RawMessage(`{}`)
	if len(ct.Classification.Metadata) > 0 {
		metadata, err = json.Marshal(ct.Classification.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}

	row := &db.Transaction{
		WalletAddress: wallet,
		Signature:     ct.Tx.Signature,
		Slot:          int64(ct.Tx.Slot),
		BlockTime:     ct.Tx.BlockTime,
		TxType:        string(ct.Classification.PrimaryType),
		Direction:     string(ct.Classification.Direction),
		Confidence:    ct.Classification.Confidence,
		Fee:           int64(ct.Tx.Fee),
		Failed:        ct.Tx.Failed(),
		Legs:          legs,
		Metadata:      metadata,
	}
	if proto := ct.Classification.Metadata["protocol"]; proto != "" {
		row.Protocol = &proto
	}
	if cp := ct.Classification.Counterparty; cp != nil {
		addr := cp.Address
		typ := string(cp.Type)
		row.Counterparty = &addr
		row.CounterpartyTyp = &typ
	}
	if primary := ct.Classification.PrimaryAmount; primary != nil {
		mint := primary.Token.Mint
		symbol := primary.Token.Symbol
		ui := primary.AmountUI
		row.PrimaryMint = &mint
		row.PrimarySymbol = &symbol
		row.PrimaryAmountUI = &ui
	}
	if ct.Tx.Memo != "" {
		memo := ct.Tx.Memo
		row.Memo = &memo
	}
	return row, nil
}
