// Package db persists classified wallet activity in PostgreSQL. The cache
// serves hot reads; this store is the durable copy written by the poller.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soltrace/soltrace/service/metrics"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("db: not found")

	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("db: duplicate key")
)

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a Store on the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithMetrics attaches a metrics collector; queries then record their
// duration and outcome.
func (s *Store) WithMetrics(m *metrics.Metrics) *Store {
	s.metrics = m
	return s
}

// observe records one query's duration and outcome. Expected misses
// (ErrNotFound, ErrDuplicate) count as success: the query itself worked.
func (s *Store) observe(operation, table string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) {
		err = nil
	}
	s.metrics.RecordDBQuery(operation, table, time.Since(start).Seconds(), err)
}

// Wallet is a tracked wallet registration.
type Wallet struct {
	Address      string
	Label        string
	PollInterval time.Duration
	LastPollTime *time.Time
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateWalletParams registers a wallet for polling.
type CreateWalletParams struct {
	Address      string
	Label        string
	PollInterval time.Duration
	Status       string
}

// Transaction is one classified transaction as persisted. Legs and
// Metadata are stored as JSON so the full decomposition survives without
// a table per leg.
type Transaction struct {
	WalletAddress   string
	Signature       string
	Slot            int64
	BlockTime       *time.Time
	TxType          string
	Direction       string
	Confidence      float64
	Protocol        *string
	Counterparty    *string
	CounterpartyTyp *string
	PrimaryMint     *string
	PrimaryAmountUI *float64
	PrimarySymbol   *string
	Fee             int64
	Failed          bool
	Memo            *string
	Legs            json.RawMessage
	Metadata        json.RawMessage
	CreatedAt       time.Time
}

// ListTransactionsParams pages a wallet's activity newest first. Cursor is
// the (slot, signature) pair of the last row of the previous page.
type ListTransactionsParams struct {
	WalletAddress   string
	Limit           int32
	CursorSlot      int64
	CursorSignature string
	TxType          string
}

// CreateWallet registers a wallet. Registering an existing address returns
// ErrDuplicate.
func (s *Store) CreateWallet(ctx context.Context, params CreateWalletParams) (_ *Wallet, err error) {
	start := time.Now()
	defer func() { s.observe("create_wallet", "wallets", start, err) }()

	if params.Status == "" {
		params.Status = "active"
	}
	query := `
		INSERT INTO wallets (address, label, poll_interval, status)
		VALUES ($1, $2, $3, $4)
		RETURNING address, label, poll_interval, last_poll_time, status, created_at, updated_at
	`
	row := s.pool.QueryRow(ctx, query,
		params.Address,
		params.Label,
		pgIntervalFromDuration(params.PollInterval),
		params.Status,
	)
	w, err := scanWallet(row)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return w, nil
}

// GetWallet retrieves a wallet by address.
func (s *Store) GetWallet(ctx context.Context, address string) (_ *Wallet, err error) {
	start := time.Now()
	defer func() { s.observe("get_wallet", "wallets", start, err) }()

	query := `
		SELECT address, label, poll_interval, last_poll_time, status, created_at, updated_at
		FROM wallets
		WHERE address = $1
	`
	w, err := scanWallet(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// ListWallets retrieves all registered wallets ordered by address.
func (s *Store) ListWallets(ctx context.Context) (_ []*Wallet, err error) {
	start := time.Now()
	defer func() { s.observe("list_wallets", "wallets", start, err) }()

	query := `
		SELECT address, label, poll_interval, last_poll_time, status, created_at, updated_at
		FROM wallets
		ORDER BY address
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()
	return scanWallets(rows)
}

// ListActiveWallets retrieves active wallets, least recently polled first,
// so the scheduler services the stalest wallets before fresh ones.
func (s *Store) ListActiveWallets(ctx context.Context) (_ []*Wallet, err error) {
	start := time.Now()
	defer func() { s.observe("list_active_wallets", "wallets", start, err) }()

	query := `
		SELECT address, label, poll_interval, last_poll_time, status, created_at, updated_at
		FROM wallets
		WHERE status = 'active'
		ORDER BY last_poll_time ASC NULLS FIRST, address
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active wallets: %w", err)
	}
	defer rows.Close()
	return scanWallets(rows)
}

// UpdateWalletPollTime records a completed poll.
func (s *Store) UpdateWalletPollTime(ctx context.Context, address string, pollTime time.Time) (_ *Wallet, err error) {
	start := time.Now()
	defer func() { s.observe("update_poll_time", "wallets", start, err) }()

	query := `
		UPDATE wallets
		SET last_poll_time = $2, updated_at = now()
		WHERE address = $1
		RETURNING address, label, poll_interval, last_poll_time, status, created_at, updated_at
	`
	w, err := scanWallet(s.pool.QueryRow(ctx, query, address, pollTime))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update wallet poll time: %w", err)
	}
	return w, nil
}

// UpdateWalletStatus sets a wallet's status ("active" or "paused").
func (s *Store) UpdateWalletStatus(ctx context.Context, address, status string) (_ *Wallet, err error) {
	start := time.Now()
	defer func() { s.observe("update_status", "wallets", start, err) }()

	query := `
		UPDATE wallets
		SET status = $2, updated_at = now()
		WHERE address = $1
		RETURNING address, label, poll_interval, last_poll_time, status, created_at, updated_at
	`
	w, err := scanWallet(s.pool.QueryRow(ctx, query, address, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update wallet status: %w", err)
	}
	return w, nil
}

// DeleteWallet removes a wallet and, via the FK cascade, its transactions.
func (s *Store) DeleteWallet(ctx context.Context, address string) (err error) {
	start := time.Now()
	defer func() { s.observe("delete_wallet", "wallets", start, err) }()

	tag, err := s.pool.Exec(ctx, `DELETE FROM wallets WHERE address = $1`, address)
	if err != nil {
		return fmt.Errorf("delete wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// WalletExists reports whether the address is registered.
func (s *Store) WalletExists(ctx context.Context, address string) (_ bool, err error) {
	start := time.Now()
	defer func() { s.observe("wallet_exists", "wallets", start, err) }()

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM wallets WHERE address = $1)`, address,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("wallet exists: %w", err)
	}
	return exists, nil
}

const txColumns = `
	wallet_address, signature, slot, block_time, tx_type, direction,
	confidence, protocol, counterparty, counterparty_type, primary_mint,
	primary_amount_ui, primary_symbol, fee, failed, memo, legs, metadata,
	created_at`

// UpsertTransaction inserts or replaces a classified transaction. Upsert
// keeps the poller idempotent: re-polling the same signature rewrites the
// same row, and a classifier upgrade overwrites the old verdict.
func (s *Store) UpsertTransaction(ctx context.Context, tx *Transaction) (err error) {
	start := time.Now()
	defer func() { s.observe("upsert_transaction", "classified_transactions", start, err) }()

	query := `
		INSERT INTO classified_transactions (
			wallet_address, signature, slot, block_time, tx_type, direction,
			confidence, protocol, counterparty, counterparty_type, primary_mint,
			primary_amount_ui, primary_symbol, fee, failed, memo, legs, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (wallet_address, signature) DO UPDATE SET
			slot = EXCLUDED.slot,
			block_time = EXCLUDED.block_time,
			tx_type = EXCLUDED.tx_type,
			direction = EXCLUDED.direction,
			confidence = EXCLUDED.confidence,
			protocol = EXCLUDED.protocol,
			counterparty = EXCLUDED.counterparty,
			counterparty_type = EXCLUDED.counterparty_type,
			primary_mint = EXCLUDED.primary_mint,
			primary_amount_ui = EXCLUDED.primary_amount_ui,
			primary_symbol = EXCLUDED.primary_symbol,
			fee = EXCLUDED.fee,
			failed = EXCLUDED.failed,
			memo = EXCLUDED.memo,
			legs = EXCLUDED.legs,
			metadata = EXCLUDED.metadata
	`
	legs := tx.Legs
	if legs == nil {
		legs = json.RawMessage(`[]`)
	}
	metadata := tx.Metadata
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}
	_, err = s.pool.Exec(ctx, query,
		tx.WalletAddress,
		tx.Signature,
		tx.Slot,
		pgTimestamptzFromTimePtr(tx.BlockTime),
		tx.TxType,
		tx.Direction,
		tx.Confidence,
		tx.Protocol,
		tx.Counterparty,
		tx.CounterpartyTyp,
		tx.PrimaryMint,
		tx.PrimaryAmountUI,
		tx.PrimarySymbol,
		tx.Fee,
		tx.Failed,
		tx.Memo,
		legs,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("upsert transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves one classified transaction.
func (s *Store) GetTransaction(ctx context.Context, walletAddress, signature string) (_ *Transaction, err error) {
	start := time.Now()
	defer func() { s.observe("get_transaction", "classified_transactions", start, err) }()

	query := `SELECT` + txColumns + `
		FROM classified_transactions
		WHERE wallet_address = $1 AND signature = $2
	`
	tx, err := scanTransaction(s.pool.QueryRow(ctx, query, walletAddress, signature))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// ListTransactions pages a wallet's classified activity newest first. A
// zero cursor starts at the top; an optional TxType narrows the listing.
func (s *Store) ListTransactions(ctx context.Context, params ListTransactionsParams) (_ []*Transaction, err error) {
	start := time.Now()
	defer func() { s.observe("list_transactions", "classified_transactions", start, err) }()

	if params.Limit <= 0 {
		params.Limit = 50
	}
	query := `SELECT` + txColumns + `
		FROM classified_transactions
		WHERE wallet_address = $1
		  AND ($2::bigint = 0 OR (slot, signature) < ($2, $3))
		  AND ($4 = '' OR tx_type = $4)
		ORDER BY slot DESC, signature DESC
		LIMIT $5
	`
	rows, err := s.pool.Query(ctx, query,
		params.WalletAddress,
		params.CursorSlot,
		params.CursorSignature,
		params.TxType,
		params.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// CountTransactions counts a wallet's stored transactions.
func (s *Store) CountTransactions(ctx context.Context, walletAddress string) (_ int64, err error) {
	start := time.Now()
	defer func() { s.observe("count_transactions", "classified_transactions", start, err) }()

	var n int64
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM classified_transactions WHERE wallet_address = $1`,
		walletAddress,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// LatestSignature returns the newest stored signature for a wallet, or ""
// when none exist. The poller uses it as the incremental fetch floor.
func (s *Store) LatestSignature(ctx context.Context, walletAddress string) (_ string, err error) {
	start := time.Now()
	defer func() { s.observe("latest_signature", "classified_transactions", start, err) }()

	var sig string
	err = s.pool.QueryRow(ctx, `
		SELECT signature FROM classified_transactions
		WHERE wallet_address = $1
		ORDER BY slot DESC, signature DESC
		LIMIT 1
	`, walletAddress).Scan(&sig)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest signature: %w", err)
	}
	return sig, nil
}

// DeleteTransactionsOlderThan prunes transactions with a block time before
// the given instant. Rows without a block time are kept.
func (s *Store) DeleteTransactionsOlderThan(ctx context.Context, before time.Time) (_ int64, err error) {
	start := time.Now()
	defer func() { s.observe("delete_old_transactions", "classified_transactions", start, err) }()

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM classified_transactions WHERE block_time < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete old transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*Wallet, error) {
	var (
		w        Wallet
		interval pgtype.Interval
		lastPoll pgtype.Timestamptz
	)
	err := row.Scan(&w.Address, &w.Label, &interval, &lastPoll, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.PollInterval = durationFromPgInterval(interval)
	w.LastPollTime = timePtrFromPgTimestamptz(lastPoll)
	return &w, nil
}

func scanWallets(rows pgx.Rows) ([]*Wallet, error) {
	var out []*Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}
	return out, nil
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var (
		tx        Transaction
		blockTime pgtype.Timestamptz
	)
	err := row.Scan(
		&tx.WalletAddress,
		&tx.Signature,
		&tx.Slot,
		&blockTime,
		&tx.TxType,
		&tx.Direction,
		&tx.Confidence,
		&tx.Protocol,
		&tx.Counterparty,
		&tx.CounterpartyTyp,
		&tx.PrimaryMint,
		&tx.PrimaryAmountUI,
		&tx.PrimarySymbol,
		&tx.Fee,
		&tx.Failed,
		&tx.Memo,
		&tx.Legs,
		&tx.Metadata,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.BlockTime = timePtrFromPgTimestamptz(blockTime)
	return &tx, nil
}

func scanTransactions(rows pgx.Rows) ([]*Transaction, error) {
	var out []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func pgIntervalFromDuration(d time.Duration) pgtype.Interval {
	return pgtype.Interval{Microseconds: d.Microseconds(), Valid: true}
}

func durationFromPgInterval(i pgtype.Interval) time.Duration {
	if !i.Valid {
		return 0
	}
	return time.Duration(i.Microseconds) * time.Microsecond
}

func pgTimestamptzFromTimePtr(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func timePtrFromPgTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
