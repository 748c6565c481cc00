package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Transaction is a classified transaction as served by the API.
type Transaction struct {
	Signature        string          `json:"signature"`
	WalletAddress    string          `json:"wallet_address"`
	Slot             int64           `json:"slot"`
	BlockTime        *time.Time      `json:"block_time,omitempty"`
	TxType           string          `json:"tx_type"`
	Direction        string          `json:"direction,omitempty"`
	Confidence       float64         `json:"confidence"`
	Protocol         *string         `json:"protocol,omitempty"`
	Counterparty     *string         `json:"counterparty,omitempty"`
	CounterpartyType *string         `json:"counterparty_type,omitempty"`
	PrimaryMint      *string         `json:"primary_mint,omitempty"`
	PrimaryAmountUI  *float64        `json:"primary_amount_ui,omitempty"`
	PrimarySymbol    *string         `json:"primary_symbol,omitempty"`
	Fee              int64           `json:"fee"`
	Failed           bool            `json:"failed"`
	Memo             *string         `json:"memo,omitempty"`
	Legs             json.RawMessage `json:"legs"`
	Metadata         json.RawMessage `json:"metadata"`
}

// TransactionPage is one page of a wallet's classified history, newest
// first. Pass NextCursor back in ListTransactionsOptions to continue.
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Count        int           `json:"count"`
	NextCursor   string        `json:"next_cursor"`
}

// ListTransactionsOptions controls transaction listing. Zero values use
// server defaults.
type ListTransactionsOptions struct {
	Limit  int
	Cursor string
	TxType string
}

// Transactions retrieves one page of persisted classified transactions
// for a wallet.
func (c *Client) Transactions(ctx context.Context, address string, opts ListTransactionsOptions) (*TransactionPage, error) {
	path := "/api/v1/wallets/" + url.PathEscape(address) + "/transactions"

	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}
	if opts.TxType != "" {
		query.Set("type", opts.TxType)
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var page TransactionPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page, http.StatusOK); err != nil {
		return nil, err
	}

	c.logger.Debug("transactions listed", "address", address, "count", page.Count)
	return &page, nil
}

// Refresh asks the server to drop its cached view of a wallet and
// re-fetch the full history from the chain.
func (c *Client) Refresh(ctx context.Context, address string) error {
	path := "/api/v1/wallets/" + url.PathEscape(address) + "/refresh"
	if err := c.do(ctx, http.MethodPost, path, nil, nil, http.StatusOK); err != nil {
		return err
	}
	c.logger.Debug("wallet refreshed", "address", address)
	return nil
}
