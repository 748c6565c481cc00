package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/soltrace/soltrace/service/db"
	"github.com/soltrace/soltrace/service/indexer"
	"github.com/soltrace/soltrace/service/temporal"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for wallet registration
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
	minPollInterval    = 10 * time.Second
	maxPollInterval    = 24 * time.Hour

	defaultTransactionLimit = 50
	maxTransactionLimit     = 500
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// handleRegisterWallet returns a handler that registers a new wallet
// and creates a Temporal schedule for polling.
// POST /api/v1/wallets
func handleRegisterWallet(store *db.Store, scheduler temporal.Scheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Limit request body size to prevent memory exhaustion
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Address      string `json:"address"`
			Label        string `json:"label"`
			PollInterval string `json:"poll_interval"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode register request", "error", err)
			// Check if error is due to body size limit
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		// Validate address
		if err := validateAddress(req.Address); err != nil {
			logger.Debug("invalid address", "address", req.Address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Parse and validate poll interval
		if req.PollInterval == "" {
			writeError(w, "poll_interval is required", http.StatusBadRequest)
			return
		}
		pollInterval, err := time.ParseDuration(req.PollInterval)
		if err != nil {
			logger.Debug("invalid poll interval", "interval", req.PollInterval, "error", err)
			writeError(w, "invalid poll_interval: must be a valid duration (e.g. '30s', '1m')", http.StatusBadRequest)
			return
		}

		if err := validatePollInterval(pollInterval); err != nil {
			logger.Debug("invalid poll interval value", "interval", pollInterval, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		wallet, err := store.CreateWallet(r.Context(), db.CreateWalletParams{
			Address:      req.Address,
			Label:        req.Label,
			PollInterval: pollInterval,
			Status:       "active",
		})
		if err != nil {
			if errors.Is(err, db.ErrDuplicate) {
				writeError(w, "wallet already registered", http.StatusConflict)
				return
			}
			logger.Error("failed to create wallet", "address", req.Address, "error", err)
			writeError(w, "failed to register wallet", http.StatusInternalServerError)
			return
		}

		// Create Temporal schedule for the new wallet
		if err := scheduler.CreateWalletSchedule(r.Context(), req.Address, pollInterval); err != nil {
			logger.Error("failed to create schedule", "address", req.Address, "error", err)

			// Rollback: delete the wallet we just created
			if delErr := store.DeleteWallet(r.Context(), req.Address); delErr != nil {
				logger.Error("failed to rollback wallet creation", "address", req.Address, "error", delErr)
			}

			writeError(w, "failed to create schedule for wallet", http.StatusInternalServerError)
			return
		}

		logger.Info("wallet registered with schedule",
			"address", wallet.Address,
			"poll_interval", wallet.PollInterval,
		)

		writeJSON(w, walletToResponse(wallet), http.StatusCreated)
	})
}

// handleUnregisterWallet returns a handler that unregisters a wallet
// and deletes its Temporal schedule.
// DELETE /api/v1/wallets/{address}
func handleUnregisterWallet(store *db.Store, scheduler temporal.Scheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")

		// Validate address format
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Check if wallet exists
		exists, err := store.WalletExists(r.Context(), address)
		if err != nil {
			logger.Error("failed to check wallet existence", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if !exists {
			writeError(w, "wallet not found", http.StatusNotFound)
			return
		}

		// Delete Temporal schedule first (before DB)
		// If this fails, we don't want to delete the wallet from DB
		if err := scheduler.DeleteWalletSchedule(r.Context(), address); err != nil {
			logger.Error("failed to delete schedule", "address", address, "error", err)
			writeError(w, "failed to delete schedule for wallet", http.StatusInternalServerError)
			return
		}

		// Delete wallet from database (transactions cascade)
		if err := store.DeleteWallet(r.Context(), address); err != nil {
			logger.Error("failed to delete wallet", "address", address, "error", err)
			// Schedule is already deleted but DB deletion failed.
			// Schedule can be cleaned up by reconciliation.
			writeError(w, "failed to unregister wallet", http.StatusInternalServerError)
			return
		}

		logger.Info("wallet unregistered with schedule", "address", address)
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleGetWallet returns a handler that retrieves a registered wallet.
// GET /api/v1/wallets/{address}
func handleGetWallet(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")

		// Validate address format
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		wallet, err := store.GetWallet(r.Context(), address)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "wallet not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get wallet", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("wallet retrieved", "address", address)
		writeJSON(w, walletToResponse(wallet), http.StatusOK)
	})
}

// handleListWallets returns a handler that lists all registered wallets.
// GET /api/v1/wallets
func handleListWallets(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallets, err := store.ListWallets(r.Context())
		if err != nil {
			logger.Error("failed to list wallets", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("wallets listed", "count", len(wallets))

		// Convert to response format
		resp := make([]walletResponse, len(wallets))
		for i, wallet := range wallets {
			resp[i] = walletToResponse(wallet)
		}

		writeJSON(w, map[string]interface{}{
			"wallets": resp,
		}, http.StatusOK)
	})
}

// handleListTransactions returns a handler that lists persisted classified
// transactions for a wallet, newest first.
// GET /api/v1/wallets/{address}/transactions?limit=N&cursor=SLOT:SIGNATURE&type=TYPE
func handleListTransactions(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")

		// Validate address format
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		query := r.URL.Query()

		// Parse limit (default 50, max 500)
		limit := int32(defaultTransactionLimit)
		if limitStr := query.Get("limit"); limitStr != "" {
			parsedLimit, err := strconv.Atoi(limitStr)
			if err != nil {
				writeError(w, "invalid limit parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if parsedLimit < 1 {
				writeError(w, "limit must be at least 1", http.StatusBadRequest)
				return
			}
			if parsedLimit > maxTransactionLimit {
				writeError(w, fmt.Sprintf("limit cannot exceed %d", maxTransactionLimit), http.StatusBadRequest)
				return
			}
			limit = int32(parsedLimit)
		}

		// Parse keyset cursor, the slot:signature pair of the last row of
		// the previous page.
		var cursorSlot int64
		var cursorSignature string
		if cursor := query.Get("cursor"); cursor != "" {
			slotStr, sig, ok := strings.Cut(cursor, ":")
			if !ok || sig == "" {
				writeError(w, "invalid cursor: expected <slot>:<signature>", http.StatusBadRequest)
				return
			}
			slot, err := strconv.ParseInt(slotStr, 10, 64)
			if err != nil || slot <= 0 {
				writeError(w, "invalid cursor: slot must be a positive integer", http.StatusBadRequest)
				return
			}
			cursorSlot = slot
			cursorSignature = sig
		}

		txType := query.Get("type")

		transactions, err := store.ListTransactions(r.Context(), db.ListTransactionsParams{
			WalletAddress:   address,
			Limit:           limit,
			CursorSlot:      cursorSlot,
			CursorSignature: cursorSignature,
			TxType:          txType,
		})
		if err != nil {
			logger.Error("failed to list transactions", "wallet", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("transactions listed", "wallet", address, "count", len(transactions))

		// Convert to response format
		resp := make([]transactionResponse, len(transactions))
		for i := range transactions {
			resp[i] = transactionToResponse(transactions[i])
		}

		// Only a full page can have more rows behind it.
		nextCursor := ""
		if int32(len(transactions)) == limit {
			last := transactions[len(transactions)-1]
			nextCursor = fmt.Sprintf("%d:%s", last.Slot, last.Signature)
		}

		writeJSON(w, map[string]interface{}{
			"transactions": resp,
			"count":        len(resp),
			"next_cursor":  nextCursor,
		}, http.StatusOK)
	})
}

// handleWalletActivity returns a handler that serves live classified activity
// for a wallet straight from the indexer (cache plus gap fill). A limit
// trims the page; a cursor resumes past a previous response's next_cursor.
// GET /api/v1/wallets/{address}/activity?limit=N&cursor=SIG
func handleWalletActivity(classifier WalletClassifier, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")

		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		query := r.URL.Query()
		var page indexer.Page
		if limitStr := query.Get("limit"); limitStr != "" {
			parsedLimit, err := strconv.Atoi(limitStr)
			if err != nil {
				writeError(w, "invalid limit parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if parsedLimit < 1 {
				writeError(w, "limit must be at least 1", http.StatusBadRequest)
				return
			}
			if parsedLimit > maxTransactionLimit {
				writeError(w, fmt.Sprintf("limit cannot exceed %d", maxTransactionLimit), http.StatusBadRequest)
				return
			}
			page.Limit = parsedLimit
		}
		page.Cursor = query.Get("cursor")

		result, err := classifier.ClassifyTransactionsForWallet(r.Context(), address, page)
		if err != nil {
			logger.Error("failed to classify wallet activity", "wallet", address, "error", err)
			writeError(w, "failed to classify wallet activity", http.StatusBadGateway)
			return
		}

		logger.Debug("wallet activity served",
			"wallet", address,
			"count", len(result.Transactions),
			"from_cache", result.FromCache,
		)
		writeJSON(w, result, http.StatusOK)
	})
}

// handleRefreshWallet returns a handler that drops the wallet's cache entry
// and re-fetches its full history.
// POST /api/v1/wallets/{address}/refresh
func handleRefreshWallet(classifier WalletClassifier, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")

		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		result, err := classifier.Refresh(r.Context(), address)
		if err != nil {
			logger.Error("failed to refresh wallet", "wallet", address, "error", err)
			writeError(w, "failed to refresh wallet", http.StatusBadGateway)
			return
		}

		logger.Info("wallet refreshed", "wallet", address, "count", len(result.Transactions))
		writeJSON(w, result, http.StatusOK)
	})
}

// walletResponse is the JSON response format for a registered wallet.
type walletResponse struct {
	Address      string     `json:"address"`
	Label        string     `json:"label,omitempty"`
	PollInterval string     `json:"poll_interval"`
	LastPollTime *time.Time `json:"last_poll_time,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// walletToResponse converts a domain Wallet to a response format.
func walletToResponse(w *db.Wallet) walletResponse {
	return walletResponse{
		Address:      w.Address,
		Label:        w.Label,
		PollInterval: w.PollInterval.String(),
		LastPollTime: w.LastPollTime,
		Status:       w.Status,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
}

// transactionResponse is the JSON response format for a classified transaction.
type transactionResponse struct {
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
	CreatedAt        time.Time       `json:"created_at"`
}

// transactionToResponse converts a domain Transaction to a response format.
func transactionToResponse(t *db.Transaction) transactionResponse {
	return transactionResponse{
		Signature:        t.Signature,
		WalletAddress:    t.WalletAddress,
		Slot:             t.Slot,
		BlockTime:        t.BlockTime,
		TxType:           t.TxType,
		Direction:        t.Direction,
		Confidence:       t.Confidence,
		Protocol:         t.Protocol,
		Counterparty:     t.Counterparty,
		CounterpartyType: t.CounterpartyTyp,
		PrimaryMint:      t.PrimaryMint,
		PrimaryAmountUI:  t.PrimaryAmountUI,
		PrimarySymbol:    t.PrimarySymbol,
		Fee:              t.Fee,
		Failed:           t.Failed,
		Memo:             t.Memo,
		Legs:             t.Legs,
		Metadata:         t.Metadata,
		CreatedAt:        t.CreatedAt,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	// Check for null bytes and control characters
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	// Check for common SQL injection patterns
	lowerAddr := strings.ToLower(address)
	sqlPatterns := []string{"drop ", "delete ", "insert ", "update ", "select ", "--", "/*", "*/", ";"}
	for _, pattern := range sqlPatterns {
		if strings.Contains(lowerAddr, pattern) {
			return errorf("invalid characters in address: suspicious pattern detected")
		}
	}

	// Validate against Solana base58 format
	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

// validatePollInterval validates a poll interval for reasonable bounds.
func validatePollInterval(interval time.Duration) error {
	if interval <= 0 {
		return errorf("poll_interval must be positive")
	}

	if interval < minPollInterval {
		return errorf("poll_interval must be at least %v", minPollInterval)
	}

	if interval > maxPollInterval {
		return errorf("poll_interval cannot exceed %v", maxPollInterval)
	}

	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
