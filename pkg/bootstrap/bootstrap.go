// Package bootstrap implements the bootstrap/watermark state machine
// (C10): it decides between a no-op, an incremental catch-up left to
// the caller, or a full reset-and-redump, based on schema version and
// how far the target has drifted from the chain tip.
package bootstrap

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rainorder/obcore/pkg/localstore"
)

// BlockThreshold is the inclusive gap, in blocks, beyond which Run
// treats the target as too far behind to catch up incrementally and
// forces a full reset instead.
const BlockThreshold = 10_000

// TargetKey identifies the (chain, orderbook) pair a watermark tracks.
type TargetKey struct {
	ChainID          uint32
	OrderbookAddress common.Address
}

// Config is Run's input: the target being bootstrapped, an optional
// dump statement to apply on a fresh or reset database, and the chain
// tip as of this call.
type Config struct {
	TargetKey   TargetKey
	DumpStmt    *localstore.Statement
	LatestBlock uint64
	// Threshold overrides BlockThreshold when nonzero, letting callers
	// (params.Config, tests) exercise the boundary without waiting on
	// real block ranges.
	Threshold uint64
}

func (c Config) threshold() uint64 {
	if c.Threshold != 0 {
		return c.Threshold
	}
	return BlockThreshold
}

// State is what InspectState observes before Run decides what to do.
type State struct {
	HasRequiredTables bool
	LastSyncedBlock   *uint64
}

// Bootstrapper drives the state machine against a single LocalStore.
type Bootstrapper struct {
	store  *localstore.Store
	logger *zap.Logger
}

// New creates a Bootstrapper over store.
func New(store *localstore.Store, logger *zap.Logger) *Bootstrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrapper{store: store, logger: logger}
}

// InspectState reports whether the schema's required tables exist and,
// if so, the last synced block for the target (nil if the target has
// never been watermarked).
func (b *Bootstrapper) InspectState(ctx context.Context, key TargetKey) (State, error) {
	present, err := b.store.RequiredTablesPresent(ctx)
	if err != nil {
		return State{}, err
	}
	if !present {
		return State{HasRequiredTables: false}, nil
	}

	wm, err := b.store.ReadWatermark(ctx, key.ChainID, key.OrderbookAddress)
	if err != nil {
		return State{}, err
	}
	state := State{HasRequiredTables: true}
	if wm != nil {
		lastBlock := wm.LastBlock
		state.LastSyncedBlock = &lastBlock
	}
	return state, nil
}

// EnsureSchema verifies the db_metadata singleton row exists and
// matches expectedVersion. Both failure modes return an error
// distinguishable via IsMissingMetadataRow/IsSchemaVersionMismatch.
func (b *Bootstrapper) EnsureSchema(ctx context.Context, expectedVersion int) error {
	meta, err := b.store.ReadMetadata(ctx)
	if err != nil {
		return err
	}
	if meta == nil {
		return errMissingMetadataRow()
	}
	if meta.SchemaVersion != expectedVersion {
		return errSchemaVersionMismatch()
	}
	return nil
}

// Reset drops and recreates every table the schema owns, then inserts
// a fresh db_metadata row at schemaVersion, all in one transaction.
func (b *Bootstrapper) Reset(ctx context.Context, schemaVersion int) error {
	batch := localstore.NewBatch(localstore.DropAllStatements()...).
		Append(localstore.Schema()...).
		Append(localstore.MetadataStatement(schemaVersion, time.Now()))

	if err := b.store.ExecuteBatch(ctx, batch); err != nil {
		return err
	}
	b.logger.Info("bootstrap reset applied", zap.Int("schema_version", schemaVersion))
	return nil
}

// Run composes InspectState/EnsureSchema/Reset into the design's
// decision sequence:
//  1. Missing required tables → Reset.
//  2. EnsureSchema failure (missing row or version mismatch) → Reset.
//  3. A supplied dump against a target with no watermark row → apply
//     the dump and write the watermark in one transaction, then return.
//  4. Otherwise, if latest_block - last_synced_block exceeds
//     BlockThreshold → Reset, then apply the dump the same way.
//  5. Under threshold → no-op; the caller performs incremental sync.
func (b *Bootstrapper) Run(ctx context.Context, schemaVersion int, cfg Config) error {
	state, err := b.InspectState(ctx, cfg.TargetKey)
	if err != nil {
		return err
	}

	if !state.HasRequiredTables {
		if err := b.Reset(ctx, schemaVersion); err != nil {
			return err
		}
	}

	if err := b.EnsureSchema(ctx, schemaVersion); err != nil {
		if !IsMissingMetadataRow(err) && !IsSchemaVersionMismatch(err) {
			return err
		}
		if err := b.Reset(ctx, schemaVersion); err != nil {
			return err
		}
	}

	if cfg.DumpStmt == nil {
		return nil
	}

	fresh, err := b.isFreshDB(ctx, cfg.TargetKey)
	if err != nil {
		return err
	}
	if fresh {
		return b.applyDump(ctx, *cfg.DumpStmt, cfg.TargetKey, cfg.LatestBlock)
	}

	if exceedsThreshold(cfg.LatestBlock, state.LastSyncedBlock, cfg.threshold()) {
		if err := b.Reset(ctx, schemaVersion); err != nil {
			return err
		}
		return b.applyDump(ctx, *cfg.DumpStmt, cfg.TargetKey, cfg.LatestBlock)
	}

	return nil
}

func exceedsThreshold(latest uint64, lastSynced *uint64, threshold uint64) bool {
	if lastSynced == nil {
		return false
	}
	var gap uint64
	if latest > *lastSynced {
		gap = latest - *lastSynced
	}
	return gap > threshold
}

func (b *Bootstrapper) isFreshDB(ctx context.Context, key TargetKey) (bool, error) {
	wm, err := b.store.ReadWatermark(ctx, key.ChainID, key.OrderbookAddress)
	if err != nil {
		return false, err
	}
	return wm == nil, nil
}

// applyDump applies dump and advances the target's watermark to
// latestBlock in the same transaction, per the design's supplemented
// dump-restore semantics: a dump without a matching watermark advance
// would leave the target looking unsynced forever.
func (b *Bootstrapper) applyDump(ctx context.Context, dump localstore.Statement, key TargetKey, latestBlock uint64) error {
	watermark := localstore.Watermark{
		ChainID:          key.ChainID,
		OrderbookAddress: key.OrderbookAddress,
		LastBlock:        latestBlock,
		UpdatedAt:        time.Now(),
	}
	batch := localstore.NewBatch(dump, localstore.WatermarkStatement(watermark))
	if err := b.store.ExecuteBatch(ctx, batch); err != nil {
		return err
	}
	b.logger.Info("bootstrap dump applied", zap.Uint64("latest_block", latestBlock))
	return nil
}
