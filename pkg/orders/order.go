// Package orders implements the in-memory order registry (C4): a map
// from order-hash to order record, keyed and addressed exactly as
// described by the design's OrderRecord data model.
package orders

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rainorder/obcore/pkg/obcoreerr"
)

// IOSlot is a (token, vault-id) pair referenced by an order's inputs
// or outputs. IO slots carry no decimals; those live in a side lookup
// used only at the ledger's ingress/egress boundary.
type IOSlot struct {
	Token   common.Address
	VaultID [32]byte
}

// Evaluable identifies the interpreter/store pair and opaque bytecode
// an order evaluates against. The bytecode itself is never interpreted
// by this module; it is carried verbatim for hashing and calldata.
type Evaluable struct {
	Interpreter common.Address
	Store       common.Address
	Bytecode    []byte
}

// Record is a single onchain-registered order, uniquely keyed by Hash.
type Record struct {
	Hash      [32]byte
	Owner     common.Address
	Evaluable Evaluable
	Inputs    []IOSlot
	Outputs   []IOSlot
	Nonce     [32]byte
	Active    bool
}

var ioSlotTupleArgs = abi.Arguments{
	{Type: mustType("address")},
	{Type: mustType("bytes32")},
}

var orderTupleArgs = abi.Arguments{
	{Type: mustType("address")},   // owner
	{Type: mustType("address")},   // evaluable.interpreter
	{Type: mustType("address")},   // evaluable.store
	{Type: mustType("bytes")},     // evaluable.bytecode
	{Type: mustType("bytes")},     // inputs, abi-packed IO tuples
	{Type: mustType("bytes")},     // outputs, abi-packed IO tuples
	{Type: mustType("bytes32")},   // nonce
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

func encodeIOSlots(slots []IOSlot) ([]byte, error) {
	var out []byte
	for _, s := range slots {
		packed, err := ioSlotTupleArgs.Pack(s.Token, s.VaultID)
		if err != nil {
			return nil, err
		}
		out = append(out, packed...)
	}
	return out, nil
}

// ComputeHash derives the order's canonical order_hash: keccak256 of
// the ABI encoding of its fields, in owner/evaluable/inputs/outputs/nonce
// order. The hash is always derived, never stored ambiguously.
func ComputeHash(r Record) ([32]byte, error) {
	inputsBlob, err := encodeIOSlots(r.Inputs)
	if err != nil {
		return [32]byte{}, obcoreerr.Wrap(obcoreerr.KindInvalidInput, "encode order inputs", err)
	}
	outputsBlob, err := encodeIOSlots(r.Outputs)
	if err != nil {
		return [32]byte{}, obcoreerr.Wrap(obcoreerr.KindInvalidInput, "encode order outputs", err)
	}

	packed, err := orderTupleArgs.Pack(
		r.Owner,
		r.Evaluable.Interpreter,
		r.Evaluable.Store,
		r.Evaluable.Bytecode,
		inputsBlob,
		outputsBlob,
		r.Nonce,
	)
	if err != nil {
		return [32]byte{}, obcoreerr.Wrap(obcoreerr.KindInvalidInput, "encode order for hashing", err)
	}

	return crypto.Keccak256Hash(packed), nil
}

// Validate checks the static arity invariant the design implies but
// doesn't spell out in full (resolved from original_source's add_order
// validation, see DESIGN.md): inputs and outputs must each have length
// in [1, 256). It does not check IO slots for duplicates.
func Validate(r Record) error {
	if len(r.Inputs) == 0 || len(r.Inputs) >= 256 {
		return obcoreerr.New(obcoreerr.KindInvalidInput, "order inputs length must be in [1, 256)")
	}
	if len(r.Outputs) == 0 || len(r.Outputs) >= 256 {
		return obcoreerr.New(obcoreerr.KindInvalidInput, "order outputs length must be in [1, 256)")
	}
	return nil
}

// InputAt and OutputAt give bounds-checked access to an order's IO
// slots by small index, the addressing mode the design requires.
func (r Record) InputAt(i int) (IOSlot, error) {
	if i < 0 || i >= len(r.Inputs) {
		return IOSlot{}, obcoreerr.New(obcoreerr.KindInvalidInput, "input IO index out of bounds")
	}
	return r.Inputs[i], nil
}

func (r Record) OutputAt(i int) (IOSlot, error) {
	if i < 0 || i >= len(r.Outputs) {
		return IOSlot{}, obcoreerr.New(obcoreerr.KindInvalidInput, "output IO index out of bounds")
	}
	return r.Outputs[i], nil
}
