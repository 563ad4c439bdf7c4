package engine

import "github.com/ethereum/go-ethereum/common"

// Checkpoint identifies the onchain position a Snapshot's state
// corresponds to. Monotone per (ChainID, OrderbookAddress); required
// before any query is meaningful, since reads without a checkpoint
// can't be tied to a defined onchain state.
type Checkpoint struct {
	ChainID          uint32
	OrderbookAddress common.Address
	LastBlock        uint64
	LastBlockHash    *[32]byte
}

// IsZero reports whether the checkpoint has never been advanced.
func (c Checkpoint) IsZero() bool {
	return c.ChainID == 0 && c.OrderbookAddress == (common.Address{}) && c.LastBlock == 0
}
