package solana

import (
	"time"
)

// SignatureInfo is one entry from the signature listing for an address.
// Listings are cheap; full transaction bodies are fetched separately.
type SignatureInfo struct {
	Signature string
	Slot      uint64
	BlockTime *time.Time
	Err       any
	Memo      string
}

// Failed reports whether the signature entry records an on-chain failure.
func (s SignatureInfo) Failed() bool {
	return s.Err != nil
}
