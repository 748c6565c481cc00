package temporal

import (
	"context"
	"time"
)

// Scheduler manages Temporal schedules for wallet polling. Each wallet
// gets one schedule that triggers PollWalletWorkflow on its interval.
type Scheduler interface {
	// CreateWalletSchedule creates a new polling schedule for a wallet.
	CreateWalletSchedule(ctx context.Context, address string, interval time.Duration) error

	// UpsertWalletSchedule creates the schedule, or updates the interval
	// when it already exists.
	UpsertWalletSchedule(ctx context.Context, address string, interval time.Duration) error

	// DeleteWalletSchedule stops a wallet from being polled.
	DeleteWalletSchedule(ctx context.Context, address string) error
}

// scheduleID returns the Temporal schedule ID for a wallet address.
func scheduleID(address string) string {
	return "poll-wallet-" + address
}
