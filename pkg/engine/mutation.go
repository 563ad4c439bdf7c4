package engine

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/rainorder/obcore/pkg/fixedfloat"
	"github.com/rainorder/obcore/pkg/orders"
)

// MutationKind discriminates the three write shapes the engine accepts.
// A Mutation is a sum type in spirit (Rust's RaindexMutation enum); Go
// expresses it as a tagged struct with one populated payload field.
type MutationKind int

const (
	MutationSetOrders MutationKind = iota
	MutationRemoveOrders
	MutationVaultDeltas
)

// VaultDelta is one signed adjustment to a single vault slot, the
// payload shape for a MutationVaultDeltas mutation.
type VaultDelta struct {
	Owner   common.Address
	Token   common.Address
	VaultID [32]byte
	Amount  fixedfloat.Value
}

// Mutation is the engine's entire write vocabulary. EventDecoder (C2)
// produces these; VirtualEngine (C5) is the only consumer that applies
// them against the order registry and vault ledger.
type Mutation struct {
	Kind         MutationKind
	SetOrders    []orders.Record
	RemoveHashes [][32]byte
	VaultDeltas  []VaultDelta
}

// SetOrders builds a MutationSetOrders mutation.
func SetOrders(records ...orders.Record) Mutation {
	return Mutation{Kind: MutationSetOrders, SetOrders: records}
}

// RemoveOrders builds a MutationRemoveOrders mutation.
func RemoveOrders(hashes ...[32]byte) Mutation {
	return Mutation{Kind: MutationRemoveOrders, RemoveHashes: hashes}
}

// VaultDeltasMutation builds a MutationVaultDeltas mutation.
func VaultDeltasMutation(deltas ...VaultDelta) Mutation {
	return Mutation{Kind: MutationVaultDeltas, VaultDeltas: deltas}
}
