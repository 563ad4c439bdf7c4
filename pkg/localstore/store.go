// Package localstore implements the event-sourced SQL persistence
// layer (C6): a single-writer, many-reader projection of the engine's
// mutation stream into a relational schema, reachable only through
// transactional statement batches.
package localstore

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/rainorder/obcore/pkg/obcoreerr"
)

// Row is one result row from QueryJSON: column name to its decoded
// Go value (string, int64, float64, []byte, or nil).
type Row map[string]any

// Executor is the store's external write/read contract; every caller
// outside this package talks to a Store through this interface rather
// than touching *sql.DB directly, so no ad-hoc SQL string building
// happens at call sites.
type Executor interface {
	ExecuteBatch(ctx context.Context, batch Batch) error
	QueryText(ctx context.Context, stmt Statement) (string, error)
	QueryJSON(ctx context.Context, stmt Statement) ([]Row, error)
	RegisterScalarFunction(name string, fn any) error
}

// Store is the sole owner of the underlying SQLite handle. Writes are
// serialized through a connection pool capped at one open connection;
// reads use a separate, unbounded pool so concurrent readers never
// block behind an in-flight write transaction.
type Store struct {
	writeDB *sql.DB
	readDB  *sql.DB
	logger  *zap.Logger
}

// NewStore opens (and creates, if absent) the SQLite database at dsn.
// It calls RegisterDefaultFunctions before opening any connection, so
// the schema's scalar functions are registered before any query runs;
// that registration happens only once per process.
func NewStore(dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := RegisterDefaultFunctions(); err != nil {
		return nil, obcoreerr.Wrap(obcoreerr.KindStorage, "register default scalar functions", err)
	}

	writeDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, obcoreerr.Wrap(obcoreerr.KindStorage, "open write connection", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		writeDB.Close()
		return nil, obcoreerr.Wrap(obcoreerr.KindStorage, "open read connection", err)
	}

	return &Store{writeDB: writeDB, readDB: readDB, logger: logger}, nil
}

// Close releases both connection pools.
func (s *Store) Close() error {
	readErr := s.readDB.Close()
	writeErr := s.writeDB.Close()
	if writeErr != nil {
		return obcoreerr.Wrap(obcoreerr.KindStorage, "close write connection", writeErr)
	}
	if readErr != nil {
		return obcoreerr.Wrap(obcoreerr.KindStorage, "close read connection", readErr)
	}
	return nil
}

// ExecuteBatch applies every statement in batch inside a single
// transaction. A non-transactional batch is rejected before any
// statement runs; a failure partway through rolls the whole batch
// back, leaving no partial rows behind.
func (s *Store) ExecuteBatch(ctx context.Context, batch Batch) error {
	if !batch.Transactional {
		return obcoreerr.New(obcoreerr.KindInvalidInput, "batch must be transactional (BatchNotTransactional)")
	}

	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return obcoreerr.Wrap(obcoreerr.KindStorage, "begin transaction", err)
	}

	for _, stmt := range batch.Statements {
		if _, err := tx.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("rollback failed after statement error", zap.Error(rbErr))
			}
			return obcoreerr.Wrap(obcoreerr.KindStorage, "execute batch statement", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return obcoreerr.Wrap(obcoreerr.KindStorage, "commit batch", err)
	}
	return nil
}

// QueryText runs a query expected to yield exactly one row and one
// column, returning it as opaque text (the aggregate/void query shape
// the design reserves for WASM-boundary callers).
func (s *Store) QueryText(ctx context.Context, stmt Statement) (string, error) {
	row := s.readDB.QueryRowContext(ctx, stmt.SQL, stmt.Args...)
	var text sql.NullString
	if err := row.Scan(&text); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", obcoreerr.Wrap(obcoreerr.KindStorage, "query text", err)
	}
	if !text.Valid {
		return "", nil
	}
	return text.String, nil
}

// QueryJSON runs a rowwise query and decodes every row into a Row map
// keyed by column name.
func (s *Store) QueryJSON(ctx context.Context, stmt Statement) ([]Row, error) {
	rows, err := s.readDB.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, obcoreerr.Wrap(obcoreerr.KindStorage, "query json", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, obcoreerr.Wrap(obcoreerr.KindStorage, "read columns", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, obcoreerr.Wrap(obcoreerr.KindStorage, "scan row", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, obcoreerr.Wrap(obcoreerr.KindStorage, "iterate rows", err)
	}
	return out, nil
}

var _ Executor = (*Store)(nil)
