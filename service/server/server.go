package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soltrace/soltrace/service/db"
	"github.com/soltrace/soltrace/service/indexer"
	"github.com/soltrace/soltrace/service/metrics"
	"github.com/soltrace/soltrace/service/temporal"
)

// WalletClassifier is the slice of the indexer the HTTP layer needs:
// serving classified activity and forcing a full re-fetch.
type WalletClassifier interface {
	ClassifyTransactionsForWallet(ctx context.Context, wallet string, page indexer.Page) (*indexer.Result, error)
	Refresh(ctx context.Context, wallet string) (*indexer.Result, error)
}

// Server represents the HTTP server for the wallet classification service.
type Server struct {
	addr       string
	store      *db.Store
	scheduler  temporal.Scheduler
	classifier WalletClassifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The scheduler is used to create/delete Temporal schedules for wallet polling.
// The classifier serves live classified activity and on-demand refreshes; if
// nil, the activity and refresh endpoints won't be available.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, store *db.Store, scheduler temporal.Scheduler, classifier WalletClassifier, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:       addr,
		store:      store,
		scheduler:  scheduler,
		classifier: classifier,
		metrics:    m,
		logger:     logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Wallet registration routes
	mux.Handle("POST /api/v1/wallets", handleRegisterWallet(s.store, s.scheduler, s.logger))
	mux.Handle("DELETE /api/v1/wallets/{address}", handleUnregisterWallet(s.store, s.scheduler, s.logger))
	mux.Handle("GET /api/v1/wallets/{address}", handleGetWallet(s.store, s.logger))
	mux.Handle("GET /api/v1/wallets", handleListWallets(s.store, s.logger))

	// Classified transaction routes
	mux.Handle("GET /api/v1/wallets/{address}/transactions", handleListTransactions(s.store, s.logger))

	// On-demand classification (if classifier is configured)
	if s.classifier != nil {
		mux.Handle("GET /api/v1/wallets/{address}/activity", handleWalletActivity(s.classifier, s.logger))
		mux.Handle("POST /api/v1/wallets/{address}/refresh", handleRefreshWallet(s.classifier, s.logger))
	} else {
		s.logger.Warn("classifier not configured, activity endpoints disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	// Wrap mux with CORS middleware
	var handler http.Handler = corsMiddleware(mux)
	if s.metrics != nil {
		handler = metrics.HTTPMetricsMiddleware(s.metrics, "api")(handler)
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers for all requests
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Pass through to next handler
		next.ServeHTTP(w, r)
	})
}
