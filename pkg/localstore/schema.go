package localstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rainorder/obcore/pkg/obcoreerr"
)

// SchemaVersion is the current db_metadata.db_schema_version this
// build of the store expects. Bootstrap compares it against whatever
// is on disk and resets on mismatch.
const SchemaVersion = 1

// Schema returns the full set of CREATE TABLE IF NOT EXISTS statements
// for a fresh database, matching the design's semantic layout exactly:
// orders, order_ios, vaults, events, target_watermark, db_metadata.
func Schema() []Statement {
	return []Statement{
		{SQL: `CREATE TABLE IF NOT EXISTS orders (
			order_hash       BLOB PRIMARY KEY,
			owner            BLOB NOT NULL,
			evaluable_blob   BLOB NOT NULL,
			inputs_blob      BLOB NOT NULL,
			outputs_blob     BLOB NOT NULL,
			nonce            BLOB NOT NULL,
			active           INTEGER NOT NULL,
			first_seen_block INTEGER NOT NULL,
			last_seen_block  INTEGER NOT NULL
		)`},
		{SQL: `CREATE TABLE IF NOT EXISTS order_ios (
			order_hash BLOB NOT NULL,
			side       TEXT NOT NULL CHECK (side IN ('in','out')),
			io_index   INTEGER NOT NULL,
			token      BLOB NOT NULL,
			vault_id   BLOB NOT NULL,
			PRIMARY KEY (order_hash, side, io_index),
			FOREIGN KEY (order_hash) REFERENCES orders(order_hash)
		)`},
		{SQL: `CREATE INDEX IF NOT EXISTS idx_order_ios_token_vault ON order_ios(token, vault_id)`},
		{SQL: `CREATE TABLE IF NOT EXISTS vaults (
			owner          BLOB NOT NULL,
			token          BLOB NOT NULL,
			vault_id       BLOB NOT NULL,
			balance_fixed18 TEXT NOT NULL,
			PRIMARY KEY (owner, token, vault_id)
		)`},
		{SQL: `CREATE TABLE IF NOT EXISTS events (
			tx_hash         BLOB NOT NULL,
			log_index       INTEGER NOT NULL,
			kind            INTEGER NOT NULL,
			payload_blob    BLOB NOT NULL,
			block_number    INTEGER NOT NULL,
			block_timestamp INTEGER NOT NULL,
			PRIMARY KEY (tx_hash, log_index)
		)`},
		{SQL: `CREATE TABLE IF NOT EXISTS target_watermark (
			chain_id          INTEGER NOT NULL,
			orderbook_address BLOB NOT NULL,
			last_block        INTEGER NOT NULL,
			last_hash         BLOB,
			updated_at        INTEGER NOT NULL,
			PRIMARY KEY (chain_id, orderbook_address)
		)`},
		{SQL: `CREATE TABLE IF NOT EXISTS db_metadata (
			id                 INTEGER PRIMARY KEY CHECK (id = 1),
			db_schema_version  INTEGER NOT NULL,
			created_at         INTEGER NOT NULL,
			updated_at         INTEGER NOT NULL
		)`},
	}
}

// requiredTables lists every table bootstrap checks for before
// deciding a fresh database needs a reset.
var requiredTables = []string{"orders", "order_ios", "vaults", "events", "target_watermark", "db_metadata"}

// TableExists reports whether name appears in sqlite_master.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, obcoreerr.Wrap(obcoreerr.KindStorage, "check table existence", err)
	}
	return true, nil
}

// RequiredTablesPresent reports whether every table the schema names
// already exists.
func (s *Store) RequiredTablesPresent(ctx context.Context) (bool, error) {
	for _, t := range requiredTables {
		ok, err := s.TableExists(ctx, t)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Metadata is the singleton db_metadata row.
type Metadata struct {
	SchemaVersion int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ReadMetadata returns the db_metadata row, or nil if absent.
func (s *Store) ReadMetadata(ctx context.Context) (*Metadata, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT db_schema_version, created_at, updated_at FROM db_metadata WHERE id = 1`)
	var version int
	var created, updated int64
	if err := row.Scan(&version, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, obcoreerr.Wrap(obcoreerr.KindStorage, "read db_metadata", err)
	}
	return &Metadata{
		SchemaVersion: version,
		CreatedAt:     time.Unix(created, 0).UTC(),
		UpdatedAt:     time.Unix(updated, 0).UTC(),
	}, nil
}

// MetadataStatement builds an upsert of the singleton db_metadata row
// at the given version, for inclusion in a caller-assembled batch.
func MetadataStatement(version int, now time.Time) Statement {
	return Statement{
		SQL: `INSERT INTO db_metadata (id, db_schema_version, created_at, updated_at)
			VALUES (1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET db_schema_version = excluded.db_schema_version, updated_at = excluded.updated_at`,
		Args: []any{version, now.Unix(), now.Unix()},
	}
}

// Watermark is one target_watermark row.
type Watermark struct {
	ChainID          uint32
	OrderbookAddress common.Address
	LastBlock        uint64
	LastHash         *[32]byte
	UpdatedAt        time.Time
}

// ReadWatermark returns the watermark row for (chainID, orderbook), or
// nil if no row exists yet.
func (s *Store) ReadWatermark(ctx context.Context, chainID uint32, orderbook common.Address) (*Watermark, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT last_block, last_hash, updated_at FROM target_watermark WHERE chain_id = ? AND orderbook_address = ?`,
		chainID, orderbook.Bytes())

	var lastBlock uint64
	var lastHash []byte
	var updated int64
	if err := row.Scan(&lastBlock, &lastHash, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, obcoreerr.Wrap(obcoreerr.KindStorage, "read target_watermark", err)
	}

	w := &Watermark{
		ChainID:          chainID,
		OrderbookAddress: orderbook,
		LastBlock:        lastBlock,
		UpdatedAt:        time.Unix(updated, 0).UTC(),
	}
	if len(lastHash) == 32 {
		var h [32]byte
		copy(h[:], lastHash)
		w.LastHash = &h
	}
	return w, nil
}

// WatermarkStatement builds an upsert of a single target_watermark
// row, for inclusion in a caller-assembled batch. Partial advance is
// forbidden by construction: callers must include this statement in
// the same Batch as the data rows it corresponds to.
func WatermarkStatement(w Watermark) Statement {
	var lastHash []byte
	if w.LastHash != nil {
		lastHash = w.LastHash[:]
	}
	return Statement{
		// last_block is monotone non-decreasing per key: the WHERE guard
		// makes an upsert carrying a lower block a no-op instead of a
		// regression.
		SQL: `INSERT INTO target_watermark (chain_id, orderbook_address, last_block, last_hash, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(chain_id, orderbook_address) DO UPDATE SET
				last_block = excluded.last_block,
				last_hash = excluded.last_hash,
				updated_at = excluded.updated_at
			WHERE excluded.last_block >= target_watermark.last_block`,
		Args: []any{w.ChainID, w.OrderbookAddress.Bytes(), w.LastBlock, lastHash, w.UpdatedAt.Unix()},
	}
}

// DropAllStatements returns statements that drop every table the
// schema owns, used by bootstrap's reset path before recreating them.
func DropAllStatements() []Statement {
	stmts := make([]Statement, 0, len(requiredTables))
	for _, t := range requiredTables {
		stmts = append(stmts, Statement{SQL: "DROP TABLE IF EXISTS " + t})
	}
	return stmts
}
