// Package vault implements the in-memory vault balance ledger (C3): a
// map from (owner, token, vault-id) to a signed FixedFloat balance.
package vault

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rainorder/obcore/pkg/fixedfloat"
)

// Key identifies a single vault slot.
type Key struct {
	Owner   common.Address
	Token   common.Address
	VaultID [32]byte
}

// Delta is one signed adjustment to a vault slot's balance.
type Delta struct {
	Key    Key
	Amount fixedfloat.Value
}

// Ledger is the thread-safe balance map. Creation is lazy on first
// non-zero delta; a slot reaching zero is left in place (not deleted)
// unless the caller calls Compact, matching the design's "deletion is
// lazy when balance reaches zero" combined with an opt-in compaction
// step for callers who want to reclaim memory.
type Ledger struct {
	mu       sync.RWMutex
	balances map[Key]fixedfloat.Value
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[Key]fixedfloat.Value)}
}

// BalanceOf returns the balance for a slot, or canonical zero if the
// slot has never been touched.
func (l *Ledger) BalanceOf(key Key) fixedfloat.Value {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.balances[key]; ok {
		return v
	}
	return fixedfloat.Zero()
}

// ApplyDeltas applies a batch of signed deltas atomically: either all
// entries succeed, or none are observed (the ledger is left
// unchanged). The ledger tolerates negative balances; it is the
// caller's responsibility to enforce any onchain-equivalent sign
// policy when simulating.
func (l *Ledger) ApplyDeltas(deltas []Delta) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Compute all updated balances into a staging map first so a
	// failure partway through never mutates l.balances.
	staged := make(map[Key]fixedfloat.Value, len(deltas))
	for _, d := range deltas {
		if d.Amount.IsZero() {
			continue
		}
		current, ok := staged[d.Key]
		if !ok {
			current = l.balanceOfLocked(d.Key)
		}
		next, err := current.Add(d.Amount)
		if err != nil {
			return err
		}
		staged[d.Key] = next
	}

	for k, v := range staged {
		l.balances[k] = v
	}
	return nil
}

func (l *Ledger) balanceOfLocked(key Key) fixedfloat.Value {
	if v, ok := l.balances[key]; ok {
		return v
	}
	return fixedfloat.Zero()
}

// IterNonZero enumerates every slot whose balance is not canonical
// zero and for which filter (if non-nil) returns true. Ordering is
// unspecified.
func (l *Ledger) IterNonZero(filter func(Key, fixedfloat.Value) bool) []Delta {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Delta
	for k, v := range l.balances {
		if v.IsZero() {
			continue
		}
		if filter != nil && !filter(k, v) {
			continue
		}
		out = append(out, Delta{Key: k, Amount: v})
	}
	return out
}

// Compact removes slots whose balance has returned to canonical zero,
// an opt-in step callers take to reclaim memory (the design makes
// compaction explicit rather than automatic, since a zero-balance slot
// being destroyed mid-read would break a held Snapshot's invariants).
func (l *Ledger) Compact() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range l.balances {
		if v.IsZero() {
			delete(l.balances, k)
		}
	}
}

// Clone returns a defensive copy, suitable for backing a read-only
// Snapshot (copy-on-write at the engine layer).
func (l *Ledger) Clone() *Ledger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	clone := NewLedger()
	for k, v := range l.balances {
		clone.balances[k] = v
	}
	return clone
}

// Len reports the number of tracked slots, including zero-balance
// ones not yet compacted.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.balances)
}
