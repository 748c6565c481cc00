package solana

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/soltrace/soltrace/service/ledger"
	"github.com/soltrace/soltrace/service/metrics"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)

	GetTokenAccountsByOwner(
		ctx context.Context,
		owner solana.PublicKey,
		conf *rpc.GetTokenAccountsConfig,
		opts *rpc.GetTokenAccountsOpts,
	) (*rpc.GetTokenAccountsResult, error)
}

// Client fetches raw transaction snapshots for wallets.
// It wraps the RPC client with retry, backoff, and conversion into the
// domain model.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g., "mainnet", rpc host)

	// requestDelay spaces out GetTransaction calls so public endpoints do
	// not rate-limit us immediately.
	requestDelay time.Duration
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet", "devnet", or RPC hostname).
// If m is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc:          rpcClient,
		logger:       logger,
		metrics:      m,
		endpoint:     endpoint,
		requestDelay: 600 * time.Millisecond,
	}
}

// SetRequestDelay overrides the spacing between transaction body fetches.
// Premium endpoints tolerate 100-150ms; public mainnet needs ~600ms.
func (c *Client) SetRequestDelay(d time.Duration) {
	c.requestDelay = d
}

// ListSignaturesParams controls a signature listing call.
type ListSignaturesParams struct {
	Wallet string
	Limit  int

	// Before pages backward: only signatures older than this one are
	// returned. Empty starts from the most recent.
	Before string

	// Until bounds forward polling: only signatures newer than this one
	// are returned.
	Until string
}

// ListSignatures fetches one page of signatures for an address, newest
// first. It does not fetch transaction bodies.
func (c *Client) ListSignatures(ctx context.Context, params ListSignaturesParams) ([]SignatureInfo, error) {
	wallet, err := solana.PublicKeyFromBase58(params.Wallet)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet address %q: %w", params.Wallet, err)
	}

	opts := &rpc.GetSignaturesForAddressOpts{}
	if params.Limit > 0 {
		opts.Limit = &params.Limit
	}
	if params.Before != "" {
		before, err := solana.SignatureFromBase58(params.Before)
		if err != nil {
			return nil, fmt.Errorf("invalid before cursor %q: %w", params.Before, err)
		}
		opts.Before = before
	}
	if params.Until != "" {
		until, err := solana.SignatureFromBase58(params.Until)
		if err != nil {
			return nil, fmt.Errorf("invalid until cursor %q: %w", params.Until, err)
		}
		opts.Until = until
	}

	c.logger.DebugContext(ctx, "calling GetSignaturesForAddress",
		"wallet", params.Wallet,
		"limit", params.Limit,
		"before", params.Before,
		"until", params.Until,
	)

	start := time.Now()
	signatures, err := c.rpc.GetSignaturesForAddress(ctx, wallet, opts)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		c.logger.ErrorContext(ctx, "failed to get signatures",
			"wallet", params.Wallet,
			"error", err,
		)
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("GetSignaturesForAddress", status, c.endpoint, duration)
		if err == nil {
			c.metrics.RecordRPCSignaturesPerCall(c.endpoint, float64(len(signatures)))
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([]SignatureInfo, 0, len(signatures))
	for _, sig := range signatures {
		out = append(out, signatureInfoFromRPC(sig))
	}
	return out, nil
}

// FetchTransactions fetches and converts full transaction bodies for the
// given signatures, skipping any in the existing set. Bodies that cannot
// be fetched or converted degrade to metadata-only snapshots rather than
// failing the batch; context cancellation aborts immediately.
func (c *Client) FetchTransactions(
	ctx context.Context,
	wallet string,
	sigs []SignatureInfo,
	existing map[string]struct{},
) ([]*ledger.RawTransaction, error) {
	transactions := make([]*ledger.RawTransaction, 0, len(sigs))
	for _, sig := range sigs {
		if _, ok := existing[sig.Signature]; ok {
			c.logger.DebugContext(ctx, "skipping already processed transaction",
				"signature", sig.Signature,
			)
			if c.metrics != nil {
				c.metrics.RecordTransactionsSkipped(wallet, "already_fetched", 1)
			}
			continue
		}

		if err := sleepCtx(ctx, c.requestDelay); err != nil {
			return transactions, err
		}

		tx, err := c.fetchOne(ctx, sig)
		if err != nil {
			if ctx.Err() != nil {
				return transactions, ctx.Err()
			}
			c.logger.WarnContext(ctx, "failed to get transaction details after retries, using metadata only",
				"signature", sig.Signature,
				"error", err,
			)
			if c.metrics != nil {
				c.metrics.RecordTransactionParsed(wallet, "error")
			}
			transactions = append(transactions, signatureToRaw(sig))
			continue
		}

		if c.metrics != nil {
			c.metrics.RecordTransactionParsed(wallet, "success")
		}
		transactions = append(transactions, tx)
	}

	c.logger.InfoContext(ctx, "fetched transaction snapshots",
		"wallet", wallet,
		"count", len(transactions),
	)
	return transactions, nil
}

// fetchOne fetches a single transaction body with retry.
func (c *Client) fetchOne(ctx context.Context, sig SignatureInfo) (*ledger.RawTransaction, error) {
	signature, err := solana.SignatureFromBase58(sig.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", sig.Signature, err)
	}

	var result *rpc.GetTransactionResult

	// Retry logic with exponential backoff.
	// Public RPC: 3 attempts max to avoid long delays.
	const maxAttempts = 3
	for attempt := range maxAttempts {
		txnOpts := &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			MaxSupportedTransactionVersion: &[]uint64{0}[0],
		}
		txnStart := time.Now()
		result, err = c.rpc.GetTransaction(ctx, signature, txnOpts)
		txnDuration := time.Since(txnStart).Seconds()

		txnStatus := "success"
		if err != nil {
			txnStatus = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall("GetTransaction", txnStatus, c.endpoint, txnDuration)
		}

		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Rate limiting (429 Too Many Requests) backs off harder.
		if strings.Contains(err.Error(), "429") {
			backoff := time.Duration(2<<uint(attempt)) * time.Second // 2s, 4s, 8s
			c.logger.WarnContext(ctx, "rate limited, sleeping before retry",
				"signature", sig.Signature,
				"attempt", attempt+1,
				"backoff_seconds", backoff.Seconds(),
			)
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.endpoint)
				c.metrics.RecordRPCRetry("GetTransaction", "rate_limit")
			}
			if err := sleepCtx(ctx, backoff); err != nil {
				return nil, err
			}
			continue
		}

		// Some legacy transactions fail to decode with version support on.
		if strings.Contains(err.Error(), "expects '\"' or 'n', but found '{'") {
			c.logger.WarnContext(ctx, "could not parse as versioned tx, retrying as legacy",
				"signature", sig.Signature,
			)
			if c.metrics != nil {
				c.metrics.RecordRPCRetry("GetTransaction", "parse_error")
			}
			legacyOpts := &rpc.GetTransactionOpts{
				Encoding: solana.EncodingBase64,
			}
			legacyStart := time.Now()
			result, err = c.rpc.GetTransaction(ctx, signature, legacyOpts)
			legacyDuration := time.Since(legacyStart).Seconds()

			legacyStatus := "success"
			if err != nil {
				legacyStatus = "error"
			}
			if c.metrics != nil {
				c.metrics.RecordRPCCall("GetTransaction", legacyStatus, c.endpoint, legacyDuration)
			}
			if err == nil {
				break
			}
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second // 1s, 2s, 4s
		c.logger.WarnContext(ctx, "failed to get transaction on attempt",
			"signature", sig.Signature,
			"attempt", attempt+1,
			"error", err,
			"backoff_seconds", backoff.Seconds(),
		)
		if c.metrics != nil {
			c.metrics.RecordRPCRetry("GetTransaction", "timeout_or_error")
		}
		if err := sleepCtx(ctx, backoff); err != nil {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	return rawFromResult(sig, result)
}

// TokenAccounts lists the addresses of the owner's SPL token accounts.
// Account data is sliced away; only the pubkeys are needed for polling.
func (c *Client) TokenAccounts(ctx context.Context, ownerAddress string) ([]string, error) {
	owner, err := solana.PublicKeyFromBase58(ownerAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid owner address %q: %w", ownerAddress, err)
	}

	var zero uint64
	conf := &rpc.GetTokenAccountsConfig{
		ProgramId: solana.TokenProgramID.ToPointer(),
	}
	opts := &rpc.GetTokenAccountsOpts{
		Encoding: solana.EncodingBase64,
		DataSlice: &rpc.DataSlice{
			Offset: &zero,
			Length: &zero,
		},
	}

	start := time.Now()
	result, err := c.rpc.GetTokenAccountsByOwner(ctx, owner, conf, opts)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("GetTokenAccountsByOwner", status, c.endpoint, duration)
	}
	if err != nil {
		return nil, err
	}

	accounts := make([]string, 0, len(result.Value))
	for _, acct := range result.Value {
		accounts = append(accounts, acct.Pubkey.String())
	}
	c.logger.DebugContext(ctx, "listed token accounts",
		"owner", ownerAddress,
		"count", len(accounts),
	)
	return accounts, nil
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
