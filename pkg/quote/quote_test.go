package quote

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rainorder/obcore/pkg/engine"
	"github.com/rainorder/obcore/pkg/fixedfloat"
	"github.com/rainorder/obcore/pkg/obcoreerr"
	"github.com/rainorder/obcore/pkg/orders"
)

type countingEvaluator struct {
	calls  atomic.Int64
	result Result
	err    error
}

func (c *countingEvaluator) Evaluate(ctx context.Context, order orders.Record, in, out int, sc []SignedContext) (Result, error) {
	c.calls.Add(1)
	if c.err != nil {
		return Result{}, c.err
	}
	return c.result, nil
}

func sampleOrder() orders.Record {
	return orders.Record{
		Hash:  [32]byte{1},
		Owner: common.BytesToAddress([]byte{0x42}),
		Evaluable: orders.Evaluable{
			Interpreter: common.BytesToAddress([]byte{0xAA}),
			Store:       common.BytesToAddress([]byte{0xBB}),
			Bytecode:    []byte{0x01},
		},
		Inputs:  []orders.IOSlot{{Token: common.BytesToAddress([]byte{0x10}), VaultID: [32]byte{1}}},
		Outputs: []orders.IOSlot{{Token: common.BytesToAddress([]byte{0x20}), VaultID: [32]byte{2}}},
		Nonce:   [32]byte{9},
		Active:  true,
	}
}

func TestQuoteCachesByKey(t *testing.T) {
	ev := &countingEvaluator{result: Result{MaxOutput: fixedfloat.MustParse("10"), IORatio: fixedfloat.MustParse("2")}}
	q := New(ev)
	order := sampleOrder()
	cp := engine.Checkpoint{ChainID: 1, LastBlock: 1}

	for i := 0; i < 3; i++ {
		res, err := q.Quote(context.Background(), cp, order, 0, 0, nil)
		if err != nil {
			t.Fatalf("Quote: %v", err)
		}
		if res.MaxOutput.Format() != "10" {
			t.Fatalf("unexpected result: %+v", res)
		}
	}
	if ev.calls.Load() != 1 {
		t.Fatalf("expected evaluator called once, got %d", ev.calls.Load())
	}
}

func TestQuoteCacheInvalidatedOnCheckpointChange(t *testing.T) {
	ev := &countingEvaluator{result: Result{MaxOutput: fixedfloat.MustParse("10"), IORatio: fixedfloat.MustParse("2")}}
	q := New(ev)
	order := sampleOrder()

	cp1 := engine.Checkpoint{ChainID: 1, LastBlock: 1}
	cp2 := engine.Checkpoint{ChainID: 1, LastBlock: 2}

	if _, err := q.Quote(context.Background(), cp1, order, 0, 0, nil); err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if _, err := q.Quote(context.Background(), cp2, order, 0, 0, nil); err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if ev.calls.Load() != 2 {
		t.Fatalf("expected checkpoint change to bypass cache, got %d calls", ev.calls.Load())
	}
}

func TestQuoteRejectsOutOfBoundsIOIndex(t *testing.T) {
	ev := &countingEvaluator{}
	q := New(ev)
	order := sampleOrder()
	cp := engine.Checkpoint{}

	_, err := q.Quote(context.Background(), cp, order, 5, 0, nil)
	if err == nil {
		t.Fatal("expected error for out of bounds input index")
	}
	if ev.calls.Load() != 0 {
		t.Fatal("evaluator should not be invoked for invalid input")
	}
}

func TestQuoteWrapsEvaluatorFailure(t *testing.T) {
	ev := &countingEvaluator{err: errors.New("boom")}
	q := New(ev)
	order := sampleOrder()
	cp := engine.Checkpoint{}

	_, err := q.Quote(context.Background(), cp, order, 0, 0, nil)
	if err == nil {
		t.Fatal("expected evaluator failure to propagate")
	}
	oerr, ok := err.(*obcoreerr.Error)
	if !ok || oerr.Kind != obcoreerr.KindEvaluatorFailure {
		t.Fatalf("expected EvaluatorFailure, got %v", err)
	}
}
