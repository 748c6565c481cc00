// Package cache stores classified transaction batches per wallet so repeat
// statement requests do not refetch the chain.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/soltrace/soltrace/service/classify"
)

// ErrNotFound is returned when a wallet has no cached entry.
var ErrNotFound = errors.New("cache: entry not found")

// DefaultTTL is how long a wallet's classified batch stays valid. Gap
// checks refresh entries well before expiry in normal operation.
const DefaultTTL = 30 * time.Minute

// Entry is one wallet's cached classification state. Writes are
// all-or-nothing: an entry either reflects a completed fetch or is absent.
type Entry struct {
	Wallet       string                           `json:"wallet"`
	Transactions []classify.ClassifiedTransaction `json:"transactions"`

	// LatestSignature and OldestSignature bound the contiguous window the
	// entry covers. Latest anchors gap checks; Oldest is the cursor for
	// paging further back.
	LatestSignature string `json:"latest_signature,omitempty"`
	OldestSignature string `json:"oldest_signature,omitempty"`

	// HasMore is true when history continues past OldestSignature.
	HasMore bool `json:"has_more"`

	// KnownATAs are the wallet's token accounts discovered so far; polls
	// cover them alongside the wallet address itself.
	KnownATAs []string `json:"known_atas,omitempty"`

	// SeenSignatures records every signature already processed, including
	// ones the spam filter dropped, so refetches stay idempotent.
	SeenSignatures []string `json:"seen_signatures,omitempty"`

	CachedAt time.Time `json:"cached_at"`
}

// SeenSet returns the processed-signature set.
func (e *Entry) SeenSet() map[string]struct{} {
	out := make(map[string]struct{}, len(e.SeenSignatures))
	for _, sig := range e.SeenSignatures {
		out[sig] = struct{}{}
	}
	return out
}

// Store is the wallet cache surface.
type Store interface {
	Get(ctx context.Context, wallet string) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, wallet string) error
}
