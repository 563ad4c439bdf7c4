// Package calldata implements the calldata codec (C9): byte-exact ABI
// encoding of the onchain takeOrders request and the ERC-20 approve
// call, using a canonical field ordering so identical inputs always
// produce identical bytes.
package calldata

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/rainorder/obcore/pkg/obcoreerr"
	"github.com/rainorder/obcore/pkg/orders"
)

// IO mirrors orders.IOSlot in the ABI's (token, vaultId) tuple shape.
type IO struct {
	Token   common.Address
	VaultID [32]byte
}

// Evaluable mirrors orders.Evaluable in ABI tuple shape.
type Evaluable struct {
	Interpreter common.Address
	Store       common.Address
	Bytecode    []byte
}

// Order is the ABI tuple shape of a registered order, field-for-field
// identical to orders.Record minus the derived hash and active flag
// (neither is part of the onchain struct).
type Order struct {
	Owner        common.Address
	Evaluable    Evaluable
	ValidInputs  []IO
	ValidOutputs []IO
	Nonce        [32]byte
}

// OrderFromRecord projects an orders.Record into its onchain ABI shape.
func OrderFromRecord(r orders.Record) Order {
	return Order{
		Owner: r.Owner,
		Evaluable: Evaluable{
			Interpreter: r.Evaluable.Interpreter,
			Store:       r.Evaluable.Store,
			Bytecode:    r.Evaluable.Bytecode,
		},
		ValidInputs:  ioSlotsFrom(r.Inputs),
		ValidOutputs: ioSlotsFrom(r.Outputs),
		Nonce:        r.Nonce,
	}
}

func ioSlotsFrom(slots []orders.IOSlot) []IO {
	out := make([]IO, len(slots))
	for i, s := range slots {
		out[i] = IO{Token: s.Token, VaultID: s.VaultID}
	}
	return out
}

// TakeOrderConfig is one order leg inside a TakeOrdersConfig, with no
// signed context (the core never interprets strategy bytecode or
// attaches caller-supplied context, so every emitted leg carries an
// empty signed-context vector).
type TakeOrderConfig struct {
	Order         Order
	InputIOIndex  *big.Int
	OutputIOIndex *big.Int
}

// TakeOrdersConfig is the full onchain request, field order fixed to
// match the contract ABI exactly: reordering these fields would change
// the encoded bytes and is a correctness bug, not a style choice.
type TakeOrdersConfig struct {
	MinimumIO      *uint256.Int
	MaximumIO      *uint256.Int
	MaximumIORatio *uint256.Int
	IOIsInput      bool
	Orders         []TakeOrderConfig
	Data           []byte
}

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

var ioComponents = []abi.ArgumentMarshaling{
	{Name: "token", Type: "address"},
	{Name: "vaultId", Type: "bytes32"},
}

var evaluableComponents = []abi.ArgumentMarshaling{
	{Name: "interpreter", Type: "address"},
	{Name: "store", Type: "address"},
	{Name: "bytecode", Type: "bytes"},
}

var orderComponents = []abi.ArgumentMarshaling{
	{Name: "owner", Type: "address"},
	{Name: "evaluable", Type: "tuple", Components: evaluableComponents},
	{Name: "validInputs", Type: "tuple[]", Components: ioComponents},
	{Name: "validOutputs", Type: "tuple[]", Components: ioComponents},
	{Name: "nonce", Type: "bytes32"},
}

var signedContextComponents = []abi.ArgumentMarshaling{
	{Name: "signer", Type: "address"},
	{Name: "context", Type: "uint256[]"},
	{Name: "signature", Type: "bytes"},
}

var takeOrderConfigComponents = []abi.ArgumentMarshaling{
	{Name: "order", Type: "tuple", Components: orderComponents},
	{Name: "inputIOIndex", Type: "uint256"},
	{Name: "outputIOIndex", Type: "uint256"},
	{Name: "signedContext", Type: "tuple[]", Components: signedContextComponents},
}

var takeOrdersConfigComponents = []abi.ArgumentMarshaling{
	{Name: "minimumIO", Type: "uint256"},
	{Name: "maximumIO", Type: "uint256"},
	{Name: "maximumIORatio", Type: "uint256"},
	{Name: "IOIsInput", Type: "bool"},
	{Name: "orders", Type: "tuple[]", Components: takeOrderConfigComponents},
	{Name: "data", Type: "bytes"},
}

var takeOrdersMethod = mustMethod("takeOrders3", abi.Arguments{
	{Name: "config", Type: mustType("tuple", takeOrdersConfigComponents)},
})

var approveMethod = mustMethod("approve", abi.Arguments{
	{Name: "spender", Type: mustType("address", nil)},
	{Name: "amount", Type: mustType("uint256", nil)},
})

func mustMethod(name string, inputs abi.Arguments) abi.Method {
	return abi.NewMethod(name, name, abi.Function, "nonpayable", false, false, inputs, nil)
}

type signedContextWire struct {
	Signer    common.Address
	Context   []*big.Int
	Signature []byte
}

type ioWire struct {
	Token   common.Address
	VaultId [32]byte
}

type evaluableWire struct {
	Interpreter common.Address
	Store       common.Address
	Bytecode    []byte
}

type orderWire struct {
	Owner        common.Address
	Evaluable    evaluableWire
	ValidInputs  []ioWire
	ValidOutputs []ioWire
	Nonce        [32]byte
}

type takeOrderConfigWire struct {
	Order         orderWire
	InputIOIndex  *big.Int
	OutputIOIndex *big.Int
	SignedContext []signedContextWire
}

type takeOrdersConfigWire struct {
	MinimumIO      *big.Int
	MaximumIO      *big.Int
	MaximumIORatio *big.Int
	IOIsInput      bool
	Orders         []takeOrderConfigWire
	Data           []byte
}

func toOrderWire(o Order) orderWire {
	return orderWire{
		Owner: o.Owner,
		Evaluable: evaluableWire{
			Interpreter: o.Evaluable.Interpreter,
			Store:       o.Evaluable.Store,
			Bytecode:    o.Evaluable.Bytecode,
		},
		ValidInputs:  toIOWires(o.ValidInputs),
		ValidOutputs: toIOWires(o.ValidOutputs),
		Nonce:        o.Nonce,
	}
}

func toIOWires(ios []IO) []ioWire {
	out := make([]ioWire, len(ios))
	for i, s := range ios {
		out[i] = ioWire{Token: s.Token, VaultId: s.VaultID}
	}
	return out
}

func nilToUint256(v *uint256.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v.ToBig()
}

// EncodeTakeOrders ABI-encodes a takeOrders(TakeOrdersConfig) call,
// selector included. data is empty per the design (the core never
// carries opaque calldata payloads).
func EncodeTakeOrders(cfg TakeOrdersConfig) ([]byte, error) {
	wireOrders := make([]takeOrderConfigWire, len(cfg.Orders))
	for i, leg := range cfg.Orders {
		wireOrders[i] = takeOrderConfigWire{
			Order:         toOrderWire(leg.Order),
			InputIOIndex:  leg.InputIOIndex,
			OutputIOIndex: leg.OutputIOIndex,
			SignedContext: nil,
		}
	}

	wire := takeOrdersConfigWire{
		MinimumIO:      nilToUint256(cfg.MinimumIO),
		MaximumIO:      nilToUint256(cfg.MaximumIO),
		MaximumIORatio: nilToUint256(cfg.MaximumIORatio),
		IOIsInput:      cfg.IOIsInput,
		Orders:         wireOrders,
		Data:           cfg.Data,
	}

	packed, err := takeOrdersMethod.Inputs.Pack(wire)
	if err != nil {
		return nil, obcoreerr.Wrap(obcoreerr.KindInvalidInput, "encode takeOrders calldata", err)
	}
	return append(append([]byte{}, takeOrdersMethod.ID...), packed...), nil
}

// EncodeApprove ABI-encodes an ERC-20 approve(spender, amount) call,
// selector included.
func EncodeApprove(spender common.Address, amount *uint256.Int) ([]byte, error) {
	packed, err := approveMethod.Inputs.Pack(spender, nilToUint256(amount))
	if err != nil {
		return nil, obcoreerr.Wrap(obcoreerr.KindInvalidInput, "encode approve calldata", err)
	}
	return append(append([]byte{}, approveMethod.ID...), packed...), nil
}
