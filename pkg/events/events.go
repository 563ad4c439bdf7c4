// Package events implements the event decoder (C2): it maps the six
// onchain OrderBook event variants into the engine's Mutation
// vocabulary, with no knowledge of how those mutations are eventually
// applied or persisted.
package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rainorder/obcore/pkg/engine"
	"github.com/rainorder/obcore/pkg/fixedfloat"
	"github.com/rainorder/obcore/pkg/obcoreerr"
	"github.com/rainorder/obcore/pkg/orders"
)

// Kind discriminates the six supported onchain event variants.
type Kind int

const (
	KindAddOrder Kind = iota
	KindRemoveOrder
	KindDeposit
	KindWithdraw
	KindTakeOrder
	KindClear
)

// AddOrderEvent carries the order record as it was registered onchain.
type AddOrderEvent struct {
	Order orders.Record
}

// RemoveOrderEvent carries the hash of the order being deactivated.
type RemoveOrderEvent struct {
	OrderHash [32]byte
}

// DepositEvent carries a raw token-integer deposit amount. Decimals is
// a pointer so a missing sidecar lookup can be represented explicitly,
// matching the design's "fails with TokenDecimalsMissing if decimals
// is absent".
type DepositEvent struct {
	Sender   common.Address
	Token    common.Address
	VaultID  [32]byte
	Amount   *big.Int
	Decimals *uint8
}

// WithdrawEvent carries an amount already expressed in FixedFloat
// terms, matching the onchain log's own 18-decimal float encoding.
type WithdrawEvent struct {
	Sender  common.Address
	Token   common.Address
	VaultID [32]byte
	Amount  fixedfloat.Value
}

// TakeOrderEvent describes a taker filling a single counterparty
// order. InputIOIndex/OutputIOIndex select which of the order's IO
// slots were used.
type TakeOrderEvent struct {
	Order         orders.Record
	InputIOIndex  int
	OutputIOIndex int
	TakerInput    fixedfloat.Value
	TakerOutput   fixedfloat.Value
}

// ClearEvent describes a two-order clear plus its resolved state
// change and the bounty vault ids the clearing sender collects into.
type ClearEvent struct {
	Sender   common.Address
	Alice    orders.Record
	Bob      orders.Record
	AliceIn  int
	AliceOut int
	BobIn    int
	BobOut   int

	AliceBountyVaultID [32]byte
	BobBountyVaultID   [32]byte

	AliceInput  fixedfloat.Value
	AliceOutput fixedfloat.Value
	BobInput    fixedfloat.Value
	BobOutput   fixedfloat.Value
}

// Event is a tagged union over the six supported variants; exactly one
// of the payload fields matching Kind is populated.
type Event struct {
	Kind Kind

	AddOrder    *AddOrderEvent
	RemoveOrder *RemoveOrderEvent
	Deposit     *DepositEvent
	Withdraw    *WithdrawEvent
	TakeOrder   *TakeOrderEvent
	Clear       *ClearEvent
}

func pushDelta(deltas []engine.VaultDelta, owner, token common.Address, vaultID [32]byte, amount fixedfloat.Value) []engine.VaultDelta {
	if amount.IsZero() {
		return deltas
	}
	return append(deltas, engine.VaultDelta{Owner: owner, Token: token, VaultID: vaultID, Amount: amount})
}

// Decode converts a single Event into the ordered mutations the engine
// should apply. Every variant emits at most one Mutation.
// Zero-magnitude vault deltas are elided before emission, so a
// Deposit, Withdraw, TakeOrder or Clear whose deltas are all zero
// emits no mutation at all.
func Decode(ev Event) ([]engine.Mutation, error) {
	switch ev.Kind {
	case KindAddOrder:
		return decodeAddOrder(ev.AddOrder)
	case KindRemoveOrder:
		return decodeRemoveOrder(ev.RemoveOrder)
	case KindDeposit:
		return decodeDeposit(ev.Deposit)
	case KindWithdraw:
		return decodeWithdraw(ev.Withdraw)
	case KindTakeOrder:
		return decodeTakeOrder(ev.TakeOrder)
	case KindClear:
		return decodeClear(ev.Clear)
	default:
		return nil, obcoreerr.New(obcoreerr.KindInvalidInput, "unknown event kind")
	}
}

func decodeAddOrder(e *AddOrderEvent) ([]engine.Mutation, error) {
	if e == nil {
		return nil, obcoreerr.New(obcoreerr.KindInvalidInput, "add order event payload missing")
	}
	return []engine.Mutation{engine.SetOrders(e.Order)}, nil
}

func decodeRemoveOrder(e *RemoveOrderEvent) ([]engine.Mutation, error) {
	if e == nil {
		return nil, obcoreerr.New(obcoreerr.KindInvalidInput, "remove order event payload missing")
	}
	return []engine.Mutation{engine.RemoveOrders(e.OrderHash)}, nil
}

func decodeDeposit(e *DepositEvent) ([]engine.Mutation, error) {
	if e == nil {
		return nil, obcoreerr.New(obcoreerr.KindInvalidInput, "deposit event payload missing")
	}
	if e.Decimals == nil {
		return nil, obcoreerr.New(obcoreerr.KindInvalidInput, "token decimals missing for deposit")
	}

	amount, err := fixedfloat.FromTokenInteger(e.Amount, *e.Decimals, false)
	if err != nil {
		return nil, err
	}

	deltas := pushDelta(nil, e.Sender, e.Token, e.VaultID, amount)
	if len(deltas) == 0 {
		return nil, nil
	}
	return []engine.Mutation{engine.VaultDeltasMutation(deltas...)}, nil
}

func decodeWithdraw(e *WithdrawEvent) ([]engine.Mutation, error) {
	if e == nil {
		return nil, obcoreerr.New(obcoreerr.KindInvalidInput, "withdraw event payload missing")
	}

	deltas := pushDelta(nil, e.Sender, e.Token, e.VaultID, e.Amount.Neg())
	if len(deltas) == 0 {
		return nil, nil
	}
	return []engine.Mutation{engine.VaultDeltasMutation(deltas...)}, nil
}

func decodeTakeOrder(e *TakeOrderEvent) ([]engine.Mutation, error) {
	if e == nil {
		return nil, obcoreerr.New(obcoreerr.KindInvalidInput, "take order event payload missing")
	}

	inputIO, err := e.Order.InputAt(e.InputIOIndex)
	if err != nil {
		return nil, obcoreerr.Wrap(obcoreerr.KindInvalidInput, "take order input index out of bounds", err)
	}
	outputIO, err := e.Order.OutputAt(e.OutputIOIndex)
	if err != nil {
		return nil, obcoreerr.Wrap(obcoreerr.KindInvalidInput, "take order output index out of bounds", err)
	}

	var deltas []engine.VaultDelta
	deltas = pushDelta(deltas, e.Order.Owner, inputIO.Token, inputIO.VaultID, e.TakerOutput)
	deltas = pushDelta(deltas, e.Order.Owner, outputIO.Token, outputIO.VaultID, e.TakerInput.Neg())

	if len(deltas) == 0 {
		return nil, nil
	}
	return []engine.Mutation{engine.VaultDeltasMutation(deltas...)}, nil
}

func decodeClear(e *ClearEvent) ([]engine.Mutation, error) {
	if e == nil {
		return nil, obcoreerr.New(obcoreerr.KindInvalidInput, "clear event payload missing")
	}

	aliceInputIO, err := e.Alice.InputAt(e.AliceIn)
	if err != nil {
		return nil, obcoreerr.Wrap(obcoreerr.KindInvalidInput, "clear alice input index out of bounds", err)
	}
	aliceOutputIO, err := e.Alice.OutputAt(e.AliceOut)
	if err != nil {
		return nil, obcoreerr.Wrap(obcoreerr.KindInvalidInput, "clear alice output index out of bounds", err)
	}
	bobInputIO, err := e.Bob.InputAt(e.BobIn)
	if err != nil {
		return nil, obcoreerr.Wrap(obcoreerr.KindInvalidInput, "clear bob input index out of bounds", err)
	}
	bobOutputIO, err := e.Bob.OutputAt(e.BobOut)
	if err != nil {
		return nil, obcoreerr.Wrap(obcoreerr.KindInvalidInput, "clear bob output index out of bounds", err)
	}

	var deltas []engine.VaultDelta
	deltas = pushDelta(deltas, e.Alice.Owner, aliceInputIO.Token, aliceInputIO.VaultID, e.AliceInput)
	deltas = pushDelta(deltas, e.Alice.Owner, aliceOutputIO.Token, aliceOutputIO.VaultID, e.AliceOutput.Neg())
	deltas = pushDelta(deltas, e.Bob.Owner, bobInputIO.Token, bobInputIO.VaultID, e.BobInput)
	deltas = pushDelta(deltas, e.Bob.Owner, bobOutputIO.Token, bobOutputIO.VaultID, e.BobOutput.Neg())

	aliceBounty, err := e.AliceOutput.Sub(e.BobInput)
	if err != nil {
		return nil, obcoreerr.Wrap(obcoreerr.KindArithmeticOverflow, "computing alice bounty", err)
	}
	bobBounty, err := e.BobOutput.Sub(e.AliceInput)
	if err != nil {
		return nil, obcoreerr.Wrap(obcoreerr.KindArithmeticOverflow, "computing bob bounty", err)
	}

	deltas = pushDelta(deltas, e.Sender, aliceOutputIO.Token, e.AliceBountyVaultID, aliceBounty)
	deltas = pushDelta(deltas, e.Sender, bobOutputIO.Token, e.BobBountyVaultID, bobBounty)

	if len(deltas) == 0 {
		return nil, nil
	}
	return []engine.Mutation{engine.VaultDeltasMutation(deltas...)}, nil
}
