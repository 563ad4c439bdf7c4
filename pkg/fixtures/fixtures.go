// Package fixtures builds deterministic test data for the rest of the
// module (C12). It plays the role the original implementation gives
// its test_fixtures crate and fuzz module: a single place that knows
// how to mint a well-formed order, vault key, or event without every
// package's tests hand-rolling byte literals. Unlike the original,
// which spins up a local Anvil chain to get real onchain state,
// everything here is constructed in-process and deterministically from
// a small integer seed, since the engine under test never talks to a
// chain directly.
package fixtures

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rainorder/obcore/pkg/calldata"
	"github.com/rainorder/obcore/pkg/engine"
	"github.com/rainorder/obcore/pkg/events"
	"github.com/rainorder/obcore/pkg/fixedfloat"
	"github.com/rainorder/obcore/pkg/orders"
	"github.com/rainorder/obcore/pkg/planner"
	"github.com/rainorder/obcore/pkg/vault"
)

// Address derives a deterministic address from a small seed, distinct
// across seeds, stable across runs.
func Address(seed byte) common.Address {
	var a common.Address
	a[19] = seed
	return a
}

// Hash32 derives a deterministic 32-byte value from a small seed.
func Hash32(seed byte) [32]byte {
	var h [32]byte
	h[31] = seed
	return h
}

// OrderOpts customizes Order beyond its seed-derived defaults.
type OrderOpts struct {
	InputToken, OutputToken common.Address
	InputVault, OutputVault [32]byte
	Active                  bool
}

// Order builds a single-input, single-output order record keyed off
// seed. Owner, interpreter, store, and nonce are all distinct
// deterministic addresses/hashes derived from seed so that two orders
// built from different seeds never collide on hash or identity.
func Order(seed byte) orders.Record {
	return OrderWith(seed, OrderOpts{
		InputToken:  Address(seed + 100),
		OutputToken: Address(seed + 101),
		InputVault:  Hash32(seed + 1),
		OutputVault: Hash32(seed + 2),
		Active:      true,
	})
}

// OrderWith builds a seeded order record with explicit IO tokens and
// vault ids, for tests that need two orders to share a vault or token.
func OrderWith(seed byte, opts OrderOpts) orders.Record {
	rec := orders.Record{
		Owner: Address(seed),
		Evaluable: orders.Evaluable{
			Interpreter: Address(seed + 50),
			Store:       Address(seed + 51),
			Bytecode:    []byte{0x00, seed},
		},
		Inputs:  []orders.IOSlot{{Token: opts.InputToken, VaultID: opts.InputVault}},
		Outputs: []orders.IOSlot{{Token: opts.OutputToken, VaultID: opts.OutputVault}},
		Nonce:   Hash32(seed + 3),
		Active:  opts.Active,
	}
	hash, err := orders.ComputeHash(rec)
	if err != nil {
		panic(err)
	}
	rec.Hash = hash
	return rec
}

// VaultKey builds a deterministic vault.Key from a seed.
func VaultKey(seed byte) vault.Key {
	return vault.Key{Owner: Address(seed), Token: Address(seed + 100), VaultID: Hash32(seed + 1)}
}

// Delta builds a vault delta of amount applied to the seeded key.
func Delta(seed byte, amount string) engine.VaultDelta {
	key := VaultKey(seed)
	return engine.VaultDelta{Owner: key.Owner, Token: key.Token, VaultID: key.VaultID, Amount: fixedfloat.MustParse(amount)}
}

// DepositEvent builds a DepositEvent crediting the seeded owner/token
// pair with a raw token-integer amount at the given decimals.
func DepositEvent(seed byte, rawAmount int64, decimals uint8) events.Event {
	d := decimals
	return events.Event{
		Kind: events.KindDeposit,
		Deposit: &events.DepositEvent{
			Sender:   Address(seed),
			Token:    Address(seed + 100),
			VaultID:  Hash32(seed + 1),
			Amount:   big.NewInt(rawAmount),
			Decimals: &d,
		},
	}
}

// AddOrderEvent wraps a seeded Order into an AddOrder event.
func AddOrderEvent(seed byte) events.Event {
	return events.Event{Kind: events.KindAddOrder, AddOrder: &events.AddOrderEvent{Order: Order(seed)}}
}

// Candidate builds a planner.Candidate for a single-leg order on the
// given orderbook, with the order's sole input/output IO slots.
func Candidate(orderbook common.Address, seed byte, maxOutput, ratio string) planner.Candidate {
	rec := Order(seed)
	return planner.Candidate{
		Orderbook:     orderbook,
		Order:         calldata.OrderFromRecord(rec),
		InputIOIndex:  0,
		OutputIOIndex: 0,
		MaxOutput:     fixedfloat.MustParse(maxOutput),
		Ratio:         fixedfloat.MustParse(ratio),
	}
}
