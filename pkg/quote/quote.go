// Package quote implements the quote evaluator (C7): a cache in front
// of a pluggable evaluator capability, keyed on the inputs that
// determine a quote's result and invalidated wholesale when the
// engine's checkpoint advances.
package quote

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/singleflight"

	"github.com/rainorder/obcore/pkg/engine"
	"github.com/rainorder/obcore/pkg/fixedfloat"
	"github.com/rainorder/obcore/pkg/obcoreerr"
	"github.com/rainorder/obcore/pkg/orders"
)

// SignedContext is one caller-supplied signed context vector, the
// opaque per-call input an order's evaluator may consult in addition
// to the order's own bytecode.
type SignedContext struct {
	Signer  common.Address
	Context []*big.Int
}

// Result is the pair an evaluator returns for a single (order, input
// slot, output slot) quote.
type Result struct {
	MaxOutput fixedfloat.Value
	IORatio   fixedfloat.Value
}

// Evaluator is the pluggable capability QuoteEvaluator delegates to.
// Implementations must be idempotent and safe for concurrent use; the
// cache assumes identical inputs always produce identical outputs
// within a single checkpoint.
type Evaluator interface {
	Evaluate(ctx context.Context, order orders.Record, inputIOIndex, outputIOIndex int, signedContexts []SignedContext) (Result, error)
}

type cacheKey struct {
	orderHash     [32]byte
	inputIOIndex  int
	outputIOIndex int
	contextDigest [32]byte
}

// contextDigest hashes the signed contexts into a single 32-byte
// value so the cache key stays fixed-size regardless of how many
// context words a call carries.
func contextDigest(signedContexts []SignedContext) [32]byte {
	var buf []byte
	for _, sc := range signedContexts {
		buf = append(buf, sc.Signer.Bytes()...)
		for _, word := range sc.Context {
			var wordBytes [32]byte
			word.FillBytes(wordBytes[:])
			buf = append(buf, wordBytes[:]...)
		}
	}
	return crypto.Keccak256Hash(buf)
}

// QuoteEvaluator caches Evaluator results and de-duplicates concurrent
// identical calls via single-flight, matching the design's "quote
// cache elides concurrent duplicate calls via single-flight keyed on
// the cache key."
type QuoteEvaluator struct {
	evaluator Evaluator

	mu         sync.Mutex
	checkpoint engine.Checkpoint
	cache      map[cacheKey]Result
	group      singleflight.Group
}

// New creates a QuoteEvaluator delegating to evaluator.
func New(evaluator Evaluator) *QuoteEvaluator {
	return &QuoteEvaluator{
		evaluator: evaluator,
		cache:     make(map[cacheKey]Result),
	}
}

// Quote returns the cached or freshly evaluated (max_output, io_ratio)
// pair for the given order and IO indices under checkpoint cp. A
// checkpoint change relative to the last call wholesale-invalidates
// the cache: stale quotes from a superseded onchain position must
// never be served.
func (q *QuoteEvaluator) Quote(ctx context.Context, cp engine.Checkpoint, order orders.Record, inputIOIndex, outputIOIndex int, signedContexts []SignedContext) (Result, error) {
	if _, err := order.InputAt(inputIOIndex); err != nil {
		return Result{}, err
	}
	if _, err := order.OutputAt(outputIOIndex); err != nil {
		return Result{}, err
	}

	key := cacheKey{
		orderHash:     order.Hash,
		inputIOIndex:  inputIOIndex,
		outputIOIndex: outputIOIndex,
		contextDigest: contextDigest(signedContexts),
	}

	q.mu.Lock()
	if q.checkpoint != cp {
		q.checkpoint = cp
		q.cache = make(map[cacheKey]Result)
	}
	if cached, ok := q.cache[key]; ok {
		q.mu.Unlock()
		return cached, nil
	}
	q.mu.Unlock()

	groupKey := groupKeyFor(key)
	v, err, _ := q.group.Do(groupKey, func() (interface{}, error) {
		result, err := q.evaluator.Evaluate(ctx, order, inputIOIndex, outputIOIndex, signedContexts)
		if err != nil {
			if _, ok := err.(*obcoreerr.Error); ok {
				return Result{}, err
			}
			return Result{}, obcoreerr.Wrap(obcoreerr.KindEvaluatorFailure, "evaluator call failed", err)
		}

		q.mu.Lock()
		if q.checkpoint == cp {
			q.cache[key] = result
		}
		q.mu.Unlock()
		return result, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func groupKeyFor(key cacheKey) string {
	return string(key.orderHash[:]) + string(rune(key.inputIOIndex)) + string(rune(key.outputIOIndex)) + string(key.contextDigest[:])
}
