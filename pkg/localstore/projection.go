package localstore

import (
	"encoding/json"
	"time"

	"github.com/rainorder/obcore/pkg/events"
	"github.com/rainorder/obcore/pkg/fixedfloat"
	"github.com/rainorder/obcore/pkg/obcoreerr"
	"github.com/rainorder/obcore/pkg/orders"
	"github.com/rainorder/obcore/pkg/vault"
)

// EventRecord is one row bound for the events table: the raw decoded
// event plus the chain coordinates it was observed at. Payload is an
// opaque encoding of the originating events.Event, carried verbatim
// for later replay/audit, never reinterpreted by this package.
type EventRecord struct {
	TxHash         [32]byte
	LogIndex       uint32
	Kind           events.Kind
	Payload        []byte
	BlockNumber    uint64
	BlockTimestamp time.Time
}

// EventStatement builds the insert for one EventRecord. Events are
// append-only: a duplicate (tx_hash, log_index) is a caller bug, so we
// do not swallow the resulting constraint violation.
func EventStatement(e EventRecord) Statement {
	return Statement{
		SQL: `INSERT INTO events (tx_hash, log_index, kind, payload_blob, block_number, block_timestamp)
			VALUES (?, ?, ?, ?, ?, ?)`,
		Args: []any{e.TxHash[:], e.LogIndex, int(e.Kind), e.Payload, e.BlockNumber, e.BlockTimestamp.Unix()},
	}
}

type orderBlobs struct {
	Evaluable []byte
	Inputs    []byte
	Outputs   []byte
}

func encodeOrderBlobs(rec orders.Record) (orderBlobs, error) {
	evaluable, err := json.Marshal(rec.Evaluable)
	if err != nil {
		return orderBlobs{}, obcoreerr.Wrap(obcoreerr.KindStorage, "encode evaluable blob", err)
	}
	inputs, err := json.Marshal(rec.Inputs)
	if err != nil {
		return orderBlobs{}, obcoreerr.Wrap(obcoreerr.KindStorage, "encode inputs blob", err)
	}
	outputs, err := json.Marshal(rec.Outputs)
	if err != nil {
		return orderBlobs{}, obcoreerr.Wrap(obcoreerr.KindStorage, "encode outputs blob", err)
	}
	return orderBlobs{Evaluable: evaluable, Inputs: inputs, Outputs: outputs}, nil
}

// OrderUpsertStatements projects one order record into the orders and
// order_ios tables. first_seen_block is only honored on first insert:
// the upsert's ON CONFLICT clause deliberately omits it, preserving
// whatever value the row already carries.
func OrderUpsertStatements(rec orders.Record, blockNumber uint64) ([]Statement, error) {
	blobs, err := encodeOrderBlobs(rec)
	if err != nil {
		return nil, err
	}

	active := 0
	if rec.Active {
		active = 1
	}

	stmts := []Statement{
		{
			SQL: `INSERT INTO orders (order_hash, owner, evaluable_blob, inputs_blob, outputs_blob, nonce, active, first_seen_block, last_seen_block)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(order_hash) DO UPDATE SET
					active = excluded.active,
					last_seen_block = excluded.last_seen_block`,
			Args: []any{rec.Hash[:], rec.Owner.Bytes(), blobs.Evaluable, blobs.Inputs, blobs.Outputs, rec.Nonce[:], active, blockNumber, blockNumber},
		},
		{SQL: `DELETE FROM order_ios WHERE order_hash = ?`, Args: []any{rec.Hash[:]}},
	}
	for i, io := range rec.Inputs {
		stmts = append(stmts, ioStatement(rec.Hash, "in", i, io))
	}
	for i, io := range rec.Outputs {
		stmts = append(stmts, ioStatement(rec.Hash, "out", i, io))
	}
	return stmts, nil
}

func ioStatement(orderHash [32]byte, side string, index int, io orders.IOSlot) Statement {
	return Statement{
		SQL:  `INSERT INTO order_ios (order_hash, side, io_index, token, vault_id) VALUES (?, ?, ?, ?, ?)`,
		Args: []any{orderHash[:], side, index, io.Token.Bytes(), io.VaultID[:]},
	}
}

// RemoveOrderStatements marks the given hashes inactive. Unknown
// hashes affect zero rows, matching the registry's silent-no-op rule.
func RemoveOrderStatements(hashes [][32]byte) []Statement {
	stmts := make([]Statement, 0, len(hashes))
	for _, h := range hashes {
		stmts = append(stmts, Statement{
			SQL:  `UPDATE orders SET active = 0 WHERE order_hash = ?`,
			Args: []any{h[:]},
		})
	}
	return stmts
}

// VaultBalanceStatement upserts a vault slot's absolute balance. The
// caller is responsible for resolving deltas into the post-apply
// balance (via vault.Ledger.BalanceOf) before calling this: localstore
// projects state, it never performs arithmetic.
func VaultBalanceStatement(key vault.Key, balance fixedfloat.Value) Statement {
	return Statement{
		SQL: `INSERT INTO vaults (owner, token, vault_id, balance_fixed18)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(owner, token, vault_id) DO UPDATE SET balance_fixed18 = excluded.balance_fixed18`,
		Args: []any{key.Owner.Bytes(), key.Token.Bytes(), key.VaultID[:], balance.Format()},
	}
}
