package orders

import (
	"sync"

	"github.com/rainorder/obcore/pkg/obcoreerr"
)

// Registry is the in-memory map from order-hash to OrderRecord (C4).
// It is the sole authority for order identity and lifecycle within a
// single VirtualEngine generation; VirtualEngine is the only caller
// that should mutate it directly.
type Registry struct {
	mu      sync.RWMutex
	records map[[32]byte]Record
}

// NewRegistry creates an empty order registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[[32]byte]Record)}
}

// Upsert inserts or updates a record by hash. If a record already
// exists under this hash with a different body, Upsert fails with
// KindIntegrityViolation (HashCollision) rather than silently
// overwriting it — hashes are derived, so two different bodies
// sharing a hash indicates data corruption upstream.
func (r *Registry) Upsert(rec Record) error {
	if err := Validate(rec); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.records[rec.Hash]
	if exists && !sameBody(existing, rec) {
		return obcoreerr.New(obcoreerr.KindIntegrityViolation, "order hash collision with differing body")
	}

	// active is terminal: once a hash is marked inactive, no later
	// upsert (even one carrying Active=true from a later SetOrders
	// batch) can revive it.
	if exists && !existing.Active {
		rec.Active = false
	}

	r.records[rec.Hash] = rec
	return nil
}

func sameBody(a, b Record) bool {
	if a.Owner != b.Owner || a.Nonce != b.Nonce {
		return false
	}
	if a.Evaluable.Interpreter != b.Evaluable.Interpreter || a.Evaluable.Store != b.Evaluable.Store {
		return false
	}
	if string(a.Evaluable.Bytecode) != string(b.Evaluable.Bytecode) {
		return false
	}
	if len(a.Inputs) != len(b.Inputs) || len(a.Outputs) != len(b.Outputs) {
		return false
	}
	for i := range a.Inputs {
		if a.Inputs[i] != b.Inputs[i] {
			return false
		}
	}
	for i := range a.Outputs {
		if a.Outputs[i] != b.Outputs[i] {
			return false
		}
	}
	return true
}

// MarkInactive transitions the matching records' Active flag to
// false. Unknown hashes are silently ignored, per the design.
// Transitions are terminal: a record already inactive stays inactive.
func (r *Registry) MarkInactive(hashes [][32]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, h := range hashes {
		rec, ok := r.records[h]
		if !ok {
			continue
		}
		rec.Active = false
		r.records[h] = rec
	}
}

// Get returns the record for a hash, or false if unknown.
func (r *Registry) Get(hash [32]byte) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[hash]
	return rec, ok
}

// Filter selects records for which pred returns true. Iteration order
// is unspecified.
func (r *Registry) Filter(pred func(Record) bool) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Record
	for _, rec := range r.records {
		if pred == nil || pred(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Clone returns a defensive copy of the registry's contents, suitable
// for backing a read-only Snapshot.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clone := NewRegistry()
	for h, rec := range r.records {
		clone.records[h] = rec
	}
	return clone
}

// Len reports the number of records, active or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
