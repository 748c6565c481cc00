// Package indexer drives the fetch, decompose, classify, filter, cache
// pipeline for a wallet. It is the only component that talks to both the
// ledger and the cache; everything downstream consumes its output.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soltrace/soltrace/service/cache"
	"github.com/soltrace/soltrace/service/classify"
	"github.com/soltrace/soltrace/service/ledger"
	"github.com/soltrace/soltrace/service/metrics"
	"github.com/soltrace/soltrace/service/solana"
)

// LedgerReader is the chain access the indexer needs. *solana.Client
// satisfies it.
type LedgerReader interface {
	ListSignatures(ctx context.Context, params solana.ListSignaturesParams) ([]solana.SignatureInfo, error)
	FetchTransactions(ctx context.Context, wallet string, sigs []solana.SignatureInfo, existing map[string]struct{}) ([]*ledger.RawTransaction, error)
	TokenAccounts(ctx context.Context, owner string) ([]string, error)
}

// Options bound how much history one run ingests.
type Options struct {
	// PageLimit is the signature page size per address.
	PageLimit int

	// MaxPages caps backward pagination per address. History past the cap
	// is reported via HasMore, never silently dropped.
	MaxPages int

	// Window cuts off signatures older than now minus Window. Zero means
	// no time cutoff.
	Window time.Duration

	// ListConcurrency bounds parallel signature listings across the
	// wallet and its token accounts.
	ListConcurrency int

	// MaxRetained caps how many classified transactions a cache entry
	// holds. Gap refreshes prepend new activity; once the cap is hit the
	// oldest entries fall off and stay reachable through cursor paging.
	MaxRetained int
}

// DefaultOptions match public RPC limits: one page of 100 per address,
// up to 10 pages, 90 days of history.
func DefaultOptions() Options {
	return Options{
		PageLimit:       100,
		MaxPages:        10,
		Window:          90 * 24 * time.Hour,
		ListConcurrency: 4,
		MaxRetained:     1000,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PageLimit <= 0 {
		o.PageLimit = d.PageLimit
	}
	if o.MaxPages <= 0 {
		o.MaxPages = d.MaxPages
	}
	if o.ListConcurrency <= 0 {
		o.ListConcurrency = d.ListConcurrency
	}
	if o.MaxRetained <= 0 {
		o.MaxRetained = d.MaxRetained
	}
	return o
}

// Page scopes one call to a slice of a wallet's history. The zero value
// serves the full cached view.
type Page struct {
	// Limit caps how many transactions the call returns. Zero means no
	// cap beyond what the entry holds.
	Limit int

	// Cursor resumes past a previous response's NextCursor: only activity
	// strictly older than the cursor signature is returned, fetched from
	// the chain without touching the cache.
	Cursor string
}

// Result is one wallet's classified activity as served to callers.
type Result struct {
	Wallet       string                           `json:"wallet"`
	Transactions []classify.ClassifiedTransaction `json:"transactions"`

	// HasMore is true when older history exists past NextCursor.
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`

	// FromCache is true when no chain access happened beyond a gap check.
	FromCache bool   `json:"from_cache"`
	FetchedAt string `json:"fetched_at,omitempty"`
}

// Indexer owns the per-wallet pipeline. Every run is idempotent: the same
// chain state yields the same cache entry.
type Indexer struct {
	reader  LedgerReader
	store   cache.Store
	chain   *classify.Chain
	prices  classify.PriceLookup
	spamCfg classify.SpamConfig
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New wires the pipeline. prices may be nil (dust checks fall back to
// UI-amount comparison) and m may be nil (no metrics recorded).
func New(
	reader LedgerReader,
	store cache.Store,
	chain *classify.Chain,
	prices classify.PriceLookup,
	spamCfg classify.SpamConfig,
	opts Options,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		reader:  reader,
		store:   store,
		chain:   chain,
		prices:  prices,
		spamCfg: spamCfg,
		opts:    opts.withDefaults(),
		logger:  logger,
		metrics: m,
	}
}

// ClassifyTransactionsForWallet returns the wallet's classified, filtered
// activity. A cache hit triggers only a gap check for new signatures; a
// miss runs a full cold fetch. The cache is written all-or-nothing: an
// aborted run leaves the previous entry untouched.
//
// A page with a cursor reads older history directly from the chain and
// leaves the cache alone; a page limit trims the response and reports the
// continuation through NextCursor.
func (ix *Indexer) ClassifyTransactionsForWallet(ctx context.Context, wallet string, page Page) (*Result, error) {
	if page.Cursor != "" {
		return ix.fetchBefore(ctx, wallet, page)
	}

	entry, err := ix.store.Get(ctx, wallet)
	switch {
	case err == nil:
		if ix.metrics != nil {
			ix.metrics.RecordCacheLookup(true)
		}
		res, err := ix.refreshGap(ctx, wallet, entry)
		return pageResult(res, page.Limit), err
	case errors.Is(err, cache.ErrNotFound):
		if ix.metrics != nil {
			ix.metrics.RecordCacheLookup(false)
		}
		res, err := ix.coldFetch(ctx, wallet)
		return pageResult(res, page.Limit), err
	default:
		return nil, fmt.Errorf("cache read for %s: %w", wallet, err)
	}
}

// Refresh drops the wallet's cache entry and refetches from scratch.
func (ix *Indexer) Refresh(ctx context.Context, wallet string) (*Result, error) {
	if err := ix.store.Delete(ctx, wallet); err != nil {
		return nil, fmt.Errorf("cache delete for %s: %w", wallet, err)
	}
	return ix.coldFetch(ctx, wallet)
}

// fetchBefore serves history older than a cursor signature straight from
// the chain. Paged reads never write the cache: the cached window stays
// anchored to recent activity.
func (ix *Indexer) fetchBefore(ctx context.Context, wallet string, page Page) (*Result, error) {
	start := time.Now()

	addresses := []string{wallet}
	if entry, err := ix.store.Get(ctx, wallet); err == nil {
		addresses = append(addresses, entry.KnownATAs...)
	}

	sigs, truncated, err := ix.collectSignatures(ctx, addresses, "", page.Cursor)
	if err != nil {
		return nil, fmt.Errorf("signature collection for %s: %w", wallet, err)
	}

	raws, err := ix.reader.FetchTransactions(ctx, wallet, sigs, nil)
	if err != nil {
		return nil, fmt.Errorf("transaction fetch for %s: %w", wallet, err)
	}

	classified, _ := ix.process(ctx, wallet, raws)
	kept := classify.FilterSpam(classified, wallet, ix.spamCfg, ix.prices)
	if ix.metrics != nil {
		ix.metrics.RecordTransactionsFetched(wallet, "page", len(raws))
		ix.metrics.RecordSpamFiltered(wallet, len(classified)-len(kept))
		ix.metrics.RecordWalletFetch("page", time.Since(start).Seconds())
	}

	res := &Result{
		Wallet:       wallet,
		Transactions: kept,
		HasMore:      truncated,
		FetchedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if truncated && len(sigs) > 0 {
		res.NextCursor = sigs[len(sigs)-1].Signature
	}
	return pageResult(res, page.Limit), nil
}

// coldFetch builds a wallet's entry from nothing: discover token accounts,
// page signatures backward, fetch bodies, classify, filter, cache.
func (ix *Indexer) coldFetch(ctx context.Context, wallet string) (*Result, error) {
	start := time.Now()

	atas, err := ix.reader.TokenAccounts(ctx, wallet)
	if err != nil {
		// Token account discovery is best-effort: the wallet address alone
		// still covers native activity and ATAs appear in transactions.
		ix.logger.WarnContext(ctx, "token account discovery failed, polling wallet only",
			"wallet", wallet,
			"error", err,
		)
		atas = nil
	}

	sigs, truncated, err := ix.collectSignatures(ctx, append([]string{wallet}, atas...), "", "")
	if err != nil {
		return nil, fmt.Errorf("signature collection for %s: %w", wallet, err)
	}

	raws, err := ix.reader.FetchTransactions(ctx, wallet, sigs, nil)
	if err != nil {
		return nil, fmt.Errorf("transaction fetch for %s: %w", wallet, err)
	}

	classified, seen := ix.process(ctx, wallet, raws)
	kept := classify.FilterSpam(classified, wallet, ix.spamCfg, ix.prices)
	if ix.metrics != nil {
		ix.metrics.RecordTransactionsFetched(wallet, "cold", len(raws))
		ix.metrics.RecordSpamFiltered(wallet, len(classified)-len(kept))
		ix.metrics.RecordWalletFetch("cold", time.Since(start).Seconds())
	}

	entry := &cache.Entry{
		Wallet:         wallet,
		Transactions:   kept,
		HasMore:        truncated,
		KnownATAs:      ix.mergeATAs(wallet, atas, kept),
		SeenSignatures: seen,
		CachedAt:       time.Now(),
	}
	if len(sigs) > 0 {
		entry.LatestSignature = sigs[0].Signature
		entry.OldestSignature = sigs[len(sigs)-1].Signature
	}

	if err := ix.store.Set(ctx, entry); err != nil {
		return nil, fmt.Errorf("cache write for %s: %w", wallet, err)
	}

	ix.logger.InfoContext(ctx, "cold fetch complete",
		"wallet", wallet,
		"fetched", len(raws),
		"kept", len(kept),
		"has_more", truncated,
	)
	return resultFromEntry(entry, false), nil
}

// refreshGap extends a cached entry with activity newer than its latest
// signature. A failing gap check serves the cached entry rather than
// erroring: stale data beats no data for a read path.
func (ix *Indexer) refreshGap(ctx context.Context, wallet string, entry *cache.Entry) (*Result, error) {
	start := time.Now()

	addresses := append([]string{wallet}, entry.KnownATAs...)
	sigs, _, err := ix.collectSignatures(ctx, addresses, entry.LatestSignature, "")
	if err != nil {
		ix.logger.WarnContext(ctx, "gap check failed, serving cached entry",
			"wallet", wallet,
			"error", err,
		)
		return resultFromEntry(entry, true), nil
	}
	if len(sigs) == 0 {
		return resultFromEntry(entry, true), nil
	}

	raws, err := ix.reader.FetchTransactions(ctx, wallet, sigs, entry.SeenSet())
	if err != nil {
		ix.logger.WarnContext(ctx, "gap fetch failed, serving cached entry",
			"wallet", wallet,
			"error", err,
		)
		return resultFromEntry(entry, true), nil
	}

	classified, seen := ix.process(ctx, wallet, raws)
	kept := classify.FilterSpam(classified, wallet, ix.spamCfg, ix.prices)
	if ix.metrics != nil {
		ix.metrics.RecordTransactionsFetched(wallet, "gap", len(raws))
		ix.metrics.RecordSpamFiltered(wallet, len(classified)-len(kept))
		ix.metrics.RecordWalletFetch("gap", time.Since(start).Seconds())
	}

	updated := &cache.Entry{
		Wallet:          wallet,
		Transactions:    append(kept, entry.Transactions...),
		LatestSignature: sigs[0].Signature,
		OldestSignature: entry.OldestSignature,
		HasMore:         entry.HasMore,
		KnownATAs:       ix.mergeATAs(wallet, entry.KnownATAs, kept),
		SeenSignatures:  append(seen, entry.SeenSignatures...),
		CachedAt:        time.Now(),
	}
	if updated.OldestSignature == "" && len(sigs) > 0 {
		updated.OldestSignature = sigs[len(sigs)-1].Signature
	}

	// Entries cannot grow without bound across refreshes. Trimmed history
	// remains reachable through cursor paging.
	if retain := ix.opts.MaxRetained; len(updated.Transactions) > retain {
		updated.Transactions = updated.Transactions[:retain]
		updated.OldestSignature = updated.Transactions[retain-1].Tx.Signature
		updated.HasMore = true
	}
	// Seen signatures track a deeper tail so spam filtered near the cap
	// is not refetched on the next gap check.
	if keep := 4 * ix.opts.MaxRetained; len(updated.SeenSignatures) > keep {
		updated.SeenSignatures = updated.SeenSignatures[:keep]
	}

	if err := ix.store.Set(ctx, updated); err != nil {
		return nil, fmt.Errorf("cache write for %s: %w", wallet, err)
	}

	ix.logger.InfoContext(ctx, "gap refresh complete",
		"wallet", wallet,
		"new", len(kept),
	)
	return resultFromEntry(updated, false), nil
}

// collectSignatures pages backward over every address concurrently, merges
// by signature, and orders newest first. truncated is true when any
// address hit the page cap or the time window before history ran out.
// A non-empty before starts paging strictly older than that signature;
// cursor reads ignore the time window since they deliberately go deep.
func (ix *Indexer) collectSignatures(ctx context.Context, addresses []string, until, before string) ([]solana.SignatureInfo, bool, error) {
	var cutoff time.Time
	if ix.opts.Window > 0 && until == "" && before == "" {
		cutoff = time.Now().Add(-ix.opts.Window)
	}

	var (
		mu        sync.Mutex
		merged    = make(map[string]solana.SignatureInfo)
		truncated bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.ListConcurrency)
	for _, address := range addresses {
		g.Go(func() error {
			sigs, hitCap, err := ix.pageAddress(gctx, address, until, before, cutoff)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, sig := range sigs {
				merged[sig.Signature] = sig
			}
			if hitCap {
				truncated = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	out := make([]solana.SignatureInfo, 0, len(merged))
	for _, sig := range merged {
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Slot != out[j].Slot {
			return out[i].Slot > out[j].Slot
		}
		return out[i].Signature < out[j].Signature
	})
	return out, truncated, nil
}

// pageAddress walks one address's history backward until the page cap, the
// time cutoff, or the end of history, starting below before when set.
func (ix *Indexer) pageAddress(ctx context.Context, address, until, before string, cutoff time.Time) ([]solana.SignatureInfo, bool, error) {
	var out []solana.SignatureInfo
	for page := 0; page < ix.opts.MaxPages; page++ {
		sigs, err := ix.reader.ListSignatures(ctx, solana.ListSignaturesParams{
			Wallet: address,
			Limit:  ix.opts.PageLimit,
			Before: before,
			Until:  until,
		})
		if err != nil {
			return nil, false, err
		}
		for _, sig := range sigs {
			if !cutoff.IsZero() && sig.BlockTime != nil && sig.BlockTime.Before(cutoff) {
				// Everything past this point is older than the window.
				return out, true, nil
			}
			out = append(out, sig)
		}
		if len(sigs) < ix.opts.PageLimit {
			return out, false, nil
		}
		before = sigs[len(sigs)-1].Signature
	}
	return out, true, nil
}

// process runs detection, decomposition, and classification over a batch.
// It returns all classified transactions and the full signature list,
// ordered newest first.
func (ix *Indexer) process(ctx context.Context, wallet string, raws []*ledger.RawTransaction) ([]classify.ClassifiedTransaction, []string) {
	classified := make([]classify.ClassifiedTransaction, 0, len(raws))
	seen := make([]string, 0, len(raws))
	for _, tx := range raws {
		tx.Protocol = classify.DetectProtocol(tx.ProgramIDs)
		legs := ledger.Decompose(tx)

		if report := ledger.Validate(legs); !report.IsBalanced {
			ix.logger.DebugContext(ctx, "legs do not balance",
				"signature", tx.Signature,
				"tokens", len(report.ByToken),
			)
		}

		result := ix.chain.Classify(classify.Input{Tx: tx, Legs: legs, Wallet: wallet})
		if ix.metrics != nil {
			ix.metrics.RecordClassification(string(result.PrimaryType))
		}
		classified = append(classified, classify.ClassifiedTransaction{
			Tx:             tx,
			Classification: result,
			Legs:           legs,
		})
		seen = append(seen, tx.Signature)
	}
	return classified, seen
}

// mergeATAs unions known token accounts with wallet-owned accounts that
// first appeared in this batch, so later gap checks poll them too.
func (ix *Indexer) mergeATAs(wallet string, known []string, txs []classify.ClassifiedTransaction) []string {
	set := make(map[string]struct{}, len(known))
	out := make([]string, 0, len(known))
	for _, a := range known {
		if _, ok := set[a]; ok {
			continue
		}
		set[a] = struct{}{}
		out = append(out, a)
	}
	for _, ct := range txs {
		for _, detected := range ledger.DetectNewATAs(ct.Tx) {
			if detected.Owner != wallet || detected.TokenAccount == "" {
				continue
			}
			if _, ok := set[detected.TokenAccount]; ok {
				continue
			}
			set[detected.TokenAccount] = struct{}{}
			out = append(out, detected.TokenAccount)
		}
	}
	sort.Strings(out)
	return out
}

func resultFromEntry(entry *cache.Entry, fromCache bool) *Result {
	return &Result{
		Wallet:       entry.Wallet,
		Transactions: entry.Transactions,
		HasMore:      entry.HasMore,
		NextCursor:   cursorFor(entry),
		FromCache:    fromCache,
		FetchedAt:    entry.CachedAt.UTC().Format(time.RFC3339),
	}
}

func cursorFor(entry *cache.Entry) string {
	if !entry.HasMore {
		return ""
	}
	return entry.OldestSignature
}

// pageResult trims a result to the page limit, pointing NextCursor at the
// last transaction served so the caller can continue from there.
func pageResult(res *Result, limit int) *Result {
	if res == nil || limit <= 0 || len(res.Transactions) <= limit {
		return res
	}
	res.Transactions = res.Transactions[:limit]
	res.HasMore = true
	res.NextCursor = res.Transactions[limit-1].Tx.Signature
	return res
}
