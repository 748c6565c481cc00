package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// PollWalletWorkflow polls one wallet for new activity. It is triggered by
// a per-wallet Temporal schedule:
//  1. ClassifyWallet fetches, decomposes, and classifies new transactions.
//  2. PersistClassifications writes them to PostgreSQL and publishes the
//     newly seen ones to NATS.
func PollWalletWorkflow(ctx workflow.Context, input PollWalletInput) (*PollWalletResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("PollWalletWorkflow started", "wallet", input.WalletAddress)

	result := &PollWalletResult{
		Address:  input.WalletAddress,
		PollTime: workflow.Now(ctx),
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 300 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var classified *ClassifyWalletResult
	err := workflow.ExecuteActivity(ctx, a.ClassifyWallet, ClassifyWalletInput{
		WalletAddress: input.WalletAddress,
	}).Get(ctx, &classified)
	if err != nil {
		errMsg := fmt.Sprintf("failed to classify wallet: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to classify wallet: %w", err)
	}

	result.TransactionCount = len(classified.Transactions)
	result.FromCache = classified.FromCache

	if len(classified.Transactions) == 0 {
		logger.Info("no transactions to persist", "wallet", input.WalletAddress)
		return result, nil
	}

	var persisted *PersistClassificationsResult
	err = workflow.ExecuteActivity(ctx, a.PersistClassifications, PersistClassificationsInput{
		WalletAddress: input.WalletAddress,
		Transactions:  classified.Transactions,
		StartedAt:     result.PollTime,
	}).Get(ctx, &persisted)
	if err != nil {
		errMsg := fmt.Sprintf("failed to persist classifications: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to persist classifications: %w", err)
	}

	result.Written = persisted.Written
	result.Skipped = persisted.Skipped

	logger.Info("PollWalletWorkflow completed",
		"wallet", input.WalletAddress,
		"transaction_count", result.TransactionCount,
		"written", persisted.Written,
		"skipped", persisted.Skipped,
	)
	return result, nil
}
