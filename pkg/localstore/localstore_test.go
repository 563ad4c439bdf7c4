package localstore

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rainorder/obcore/pkg/fixedfloat"
	"github.com/rainorder/obcore/pkg/obcoreerr"
	"github.com/rainorder/obcore/pkg/orders"
	"github.com/rainorder/obcore/pkg/vault"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	store, err := NewStore(dsn, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.ExecuteBatch(context.Background(), NewBatch(Schema()...)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return store
}

func TestExecuteBatchRejectsNonTransactional(t *testing.T) {
	store := newTestStore(t)
	batch := Batch{Transactional: false, Statements: []Statement{{SQL: "SELECT 1"}}}

	err := store.ExecuteBatch(context.Background(), batch)
	if err == nil {
		t.Fatal("expected BatchNotTransactional error")
	}
	oerr, ok := err.(*obcoreerr.Error)
	if !ok || oerr.Kind != obcoreerr.KindInvalidInput {
		t.Fatalf("expected KindInvalidInput, got %v", err)
	}
}

func TestExecuteBatchRollsBackOnFailure(t *testing.T) {
	store := newTestStore(t)
	rec := sampleRecord()

	stmts, err := OrderUpsertStatements(rec, 100)
	if err != nil {
		t.Fatalf("OrderUpsertStatements: %v", err)
	}
	batch := NewBatch(stmts...).Append(Statement{SQL: "INSERT INTO nonexistent_table VALUES (1)"})

	if err := store.ExecuteBatch(context.Background(), batch); err == nil {
		t.Fatal("expected batch to fail")
	}

	rows, err := store.QueryJSON(context.Background(), Statement{SQL: "SELECT order_hash FROM orders"})
	if err != nil {
		t.Fatalf("QueryJSON: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows after rollback, got %d", len(rows))
	}
}

func sampleRecord() orders.Record {
	return orders.Record{
		Hash:  [32]byte{1},
		Owner: common.BytesToAddress([]byte{0x11}),
		Evaluable: orders.Evaluable{
			Interpreter: common.BytesToAddress([]byte{0x22}),
			Store:       common.BytesToAddress([]byte{0x33}),
			Bytecode:    []byte{0xde, 0xad},
		},
		Inputs:  []orders.IOSlot{{Token: common.BytesToAddress([]byte{0x44}), VaultID: [32]byte{1}}},
		Outputs: []orders.IOSlot{{Token: common.BytesToAddress([]byte{0x55}), VaultID: [32]byte{2}}},
		Nonce:   [32]byte{9},
		Active:  true,
	}
}

func TestOrderUpsertPreservesFirstSeenBlock(t *testing.T) {
	store := newTestStore(t)
	rec := sampleRecord()

	stmts, err := OrderUpsertStatements(rec, 100)
	if err != nil {
		t.Fatalf("OrderUpsertStatements: %v", err)
	}
	if err := store.ExecuteBatch(context.Background(), NewBatch(stmts...)); err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}

	rec.Active = false
	stmts2, err := OrderUpsertStatements(rec, 200)
	if err != nil {
		t.Fatalf("OrderUpsertStatements: %v", err)
	}
	if err := store.ExecuteBatch(context.Background(), NewBatch(stmts2...)); err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}

	rows, err := store.QueryJSON(context.Background(), Statement{SQL: "SELECT first_seen_block, last_seen_block, active FROM orders WHERE order_hash = ?", Args: []any{rec.Hash[:]}})
	if err != nil {
		t.Fatalf("QueryJSON: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(rows))
	}
	if fmtInt(rows[0]["first_seen_block"]) != 100 {
		t.Fatalf("expected first_seen_block preserved at 100, got %v", rows[0]["first_seen_block"])
	}
	if fmtInt(rows[0]["last_seen_block"]) != 200 {
		t.Fatalf("expected last_seen_block advanced to 200, got %v", rows[0]["last_seen_block"])
	}
}

func fmtInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return -1
	}
}

func TestWatermarkRoundTrip(t *testing.T) {
	store := newTestStore(t)
	orderbook := common.BytesToAddress([]byte{0x77})
	w := Watermark{ChainID: 1, OrderbookAddress: orderbook, LastBlock: 42, UpdatedAt: time.Unix(1000, 0)}

	if err := store.ExecuteBatch(context.Background(), NewBatch(WatermarkStatement(w))); err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}

	got, err := store.ReadWatermark(context.Background(), 1, orderbook)
	if err != nil {
		t.Fatalf("ReadWatermark: %v", err)
	}
	if got == nil || got.LastBlock != 42 {
		t.Fatalf("expected last_block 42, got %+v", got)
	}
}

func TestWatermarkStatementRejectsRegression(t *testing.T) {
	store := newTestStore(t)
	orderbook := common.BytesToAddress([]byte{0x77})
	ctx := context.Background()

	advanced := Watermark{ChainID: 1, OrderbookAddress: orderbook, LastBlock: 100, UpdatedAt: time.Unix(2000, 0)}
	if err := store.ExecuteBatch(ctx, NewBatch(WatermarkStatement(advanced))); err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}

	regressed := Watermark{ChainID: 1, OrderbookAddress: orderbook, LastBlock: 50, UpdatedAt: time.Unix(1000, 0)}
	if err := store.ExecuteBatch(ctx, NewBatch(WatermarkStatement(regressed))); err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}

	got, err := store.ReadWatermark(ctx, 1, orderbook)
	if err != nil {
		t.Fatalf("ReadWatermark: %v", err)
	}
	if got == nil || got.LastBlock != 100 {
		t.Fatalf("expected last_block to stay at 100 after a lower upsert, got %+v", got)
	}
}

func TestReadWatermarkMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	got, err := store.ReadWatermark(context.Background(), 1, common.BytesToAddress([]byte{0x99}))
	if err != nil {
		t.Fatalf("ReadWatermark: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil watermark for unknown key")
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	store := newTestStore(t)
	now := time.Unix(5000, 0)

	if err := store.ExecuteBatch(context.Background(), NewBatch(MetadataStatement(SchemaVersion, now))); err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}

	meta, err := store.ReadMetadata(context.Background())
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta == nil || meta.SchemaVersion != SchemaVersion {
		t.Fatalf("expected schema version %d, got %+v", SchemaVersion, meta)
	}
}

func TestVaultBalanceUpsert(t *testing.T) {
	store := newTestStore(t)
	key := vault.Key{Owner: common.BytesToAddress([]byte{1}), Token: common.BytesToAddress([]byte{2}), VaultID: [32]byte{3}}

	if err := store.ExecuteBatch(context.Background(), NewBatch(VaultBalanceStatement(key, fixedfloat.MustParse("12.5")))); err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}

	rows, err := store.QueryJSON(context.Background(), Statement{SQL: "SELECT balance_fixed18 FROM vaults WHERE owner = ? AND token = ? AND vault_id = ?", Args: []any{key.Owner.Bytes(), key.Token.Bytes(), key.VaultID[:]}})
	if err != nil {
		t.Fatalf("QueryJSON: %v", err)
	}
	if len(rows) != 1 || rows[0]["balance_fixed18"] != "12.5" {
		t.Fatalf("expected balance 12.5, got %+v", rows)
	}
}

func TestRequiredTablesPresent(t *testing.T) {
	store := newTestStore(t)
	ok, err := store.RequiredTablesPresent(context.Background())
	if err != nil {
		t.Fatalf("RequiredTablesPresent: %v", err)
	}
	if !ok {
		t.Fatal("expected all required tables present after schema apply")
	}
}

func TestQueryTextReturnsEmptyStringForNoRows(t *testing.T) {
	store := newTestStore(t)
	text, err := store.QueryText(context.Background(), Statement{SQL: "SELECT balance_fixed18 FROM vaults WHERE owner = ?", Args: []any{[]byte{0xFF}}})
	if err != nil {
		t.Fatalf("QueryText: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty string, got %q", text)
	}
}
