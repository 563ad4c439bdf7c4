// Package planner implements the take-order planner (C8): it turns a
// set of already-quoted candidates into calldata ready to submit, or a
// NeedsApproval result when the taker's allowance is insufficient.
// Planning never performs I/O; allowance and token-decimals are
// supplied by the caller rather than fetched.
package planner

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/rainorder/obcore/pkg/calldata"
	"github.com/rainorder/obcore/pkg/fixedfloat"
	"github.com/rainorder/obcore/pkg/obcoreerr"
)

// Mode selects the planner's fill objective.
type Mode int

const (
	BuyExact Mode = iota
	BuyUpTo
	SpendExact
	SpendUpTo
)

func (m Mode) isBuy() bool { return m == BuyExact || m == BuyUpTo }
func (m Mode) isExact() bool { return m == BuyExact || m == SpendExact }

// Config is the planner's entire configuration surface: no other
// input influences planning besides the candidates, token decimals
// and allowance passed explicitly to Plan.
type Config struct {
	Mode     Mode
	Amount   fixedfloat.Value
	PriceCap fixedfloat.Value
	Taker    common.Address
}

// Candidate is one already-quoted fill opportunity: an order's IO pair
// on a given orderbook, together with its evaluated max_output and
// io_ratio.
type Candidate struct {
	Orderbook     common.Address
	Order         calldata.Order
	InputIOIndex  int
	OutputIOIndex int
	MaxOutput     fixedfloat.Value
	Ratio         fixedfloat.Value
}

// Leg is one candidate actually taken, with the amounts the walk
// assigned it.
type Leg struct {
	Candidate Candidate
	LegIn     fixedfloat.Value // what the taker pays (order's input token)
	LegOut    fixedfloat.Value // what the taker receives (order's output token)
}

// Plan is the selected orderbook's filled legs and the aggregate
// request fields ready for calldata emission.
type Plan struct {
	Orderbook      common.Address
	Legs           []Leg
	TotalInput     fixedfloat.Value
	TotalOutput    fixedfloat.Value
	MinimumIO      fixedfloat.Value
	MaximumIO      fixedfloat.Value
	MaximumIORatio fixedfloat.Value
	IOIsInput      bool
}

// NeedsApproval is returned when the taker's current allowance for the
// selected orderbook is below what the plan would spend.
type NeedsApproval struct {
	Token    common.Address
	Spender  common.Address
	Amount   *big.Int
	Calldata []byte
}

// Ready is returned when the plan can be submitted as-is.
type Ready struct {
	Orderbook      common.Address
	Calldata       []byte
	EffectivePrice fixedfloat.Value
	LegRatios      []fixedfloat.Value
	ExpectedSell   fixedfloat.Value
	MaxSellCap     fixedfloat.Value
}

// OutcomeKind discriminates the three terminal shapes a planning call
// can produce (an empty *UpTo plan is not an error).
type OutcomeKind int

const (
	OutcomeEmpty OutcomeKind = iota
	OutcomeNeedsApproval
	OutcomeReady
)

// Outcome is the planner's terminal result.
type Outcome struct {
	Kind          OutcomeKind
	Plan          *Plan
	NeedsApproval *NeedsApproval
	Ready         *Ready
	RunID         string
}

// CheckAllowance is the pure allowance-sufficiency check the design
// keeps separate from fetching: callers supply an allowance they
// obtained out-of-band, never fetched by the planner itself.
func CheckAllowance(currentAllowance, requiredAmount *big.Int) bool {
	if currentAllowance == nil {
		return requiredAmount == nil || requiredAmount.Sign() <= 0
	}
	if requiredAmount == nil {
		return true
	}
	return currentAllowance.Cmp(requiredAmount) >= 0
}

func filterByPriceCap(candidates []Candidate, priceCap fixedfloat.Value) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Ratio.Lte(priceCap) {
			out = append(out, c)
		}
	}
	return out
}

func sortByRatioStable(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Ratio.Lt(candidates[j].Ratio)
	})
}

func takeBuyLeg(c Candidate, remainingTarget fixedfloat.Value) (Leg, bool, error) {
	zero := fixedfloat.Zero()
	legOut := c.MaxOutput
	if remainingTarget.Lt(legOut) {
		legOut = remainingTarget
	}
	if legOut.Lte(zero) {
		return Leg{}, false, nil
	}
	legIn, err := legOut.Mul(c.Ratio)
	if err != nil {
		return Leg{}, false, err
	}
	return Leg{Candidate: c, LegIn: legIn, LegOut: legOut}, true, nil
}

func takeSpendLeg(c Candidate, remainingTarget fixedfloat.Value) (Leg, bool, error) {
	zero := fixedfloat.Zero()
	if c.Ratio.IsZero() {
		if c.MaxOutput.Lte(zero) {
			return Leg{}, false, nil
		}
		return Leg{Candidate: c, LegIn: zero, LegOut: c.MaxOutput}, true, nil
	}

	capIn, err := c.MaxOutput.Mul(c.Ratio)
	if err != nil {
		return Leg{}, false, err
	}
	legIn := capIn
	if remainingTarget.Lt(legIn) {
		legIn = remainingTarget
	}
	if legIn.Lte(zero) {
		return Leg{}, false, nil
	}
	legOut, err := legIn.Div(c.Ratio)
	if err != nil {
		return Leg{}, false, err
	}
	if legOut.Lte(zero) {
		return Leg{}, false, nil
	}
	return Leg{Candidate: c, LegIn: legIn, LegOut: legOut}, true, nil
}

// walk performs steps 2-3 of the design's algorithm for a single
// orderbook's already-filtered candidate set, returning the legs taken
// and the running totals.
func walk(mode Mode, candidates []Candidate, target fixedfloat.Value) ([]Leg, fixedfloat.Value, fixedfloat.Value, error) {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sortByRatioStable(sorted)

	zero := fixedfloat.Zero()
	remaining := target
	totalIn := zero
	totalOut := zero
	var legs []Leg

	for _, c := range sorted {
		if remaining.Lte(zero) {
			break
		}

		var leg Leg
		var ok bool
		var err error
		if mode.isBuy() {
			leg, ok, err = takeBuyLeg(c, remaining)
		} else {
			leg, ok, err = takeSpendLeg(c, remaining)
		}
		if err != nil {
			return nil, zero, zero, err
		}
		if !ok {
			continue
		}

		legs = append(legs, leg)
		totalIn, err = totalIn.Add(leg.LegIn)
		if err != nil {
			return nil, zero, zero, err
		}
		totalOut, err = totalOut.Add(leg.LegOut)
		if err != nil {
			return nil, zero, zero, err
		}

		if mode.isBuy() {
			remaining, err = remaining.Sub(leg.LegOut)
		} else {
			remaining, err = remaining.Sub(leg.LegIn)
		}
		if err != nil {
			return nil, zero, zero, err
		}
	}

	return legs, totalIn, totalOut, nil
}

type orderbookResult struct {
	orderbook common.Address
	legs      []Leg
	totalIn   fixedfloat.Value
	totalOut  fixedfloat.Value
}

// objectiveBetter reports whether candidate beats incumbent under the
// design's multi-orderbook selection rule.
func objectiveBetter(mode Mode, candidate, incumbent orderbookResult) bool {
	if mode.isBuy() {
		if !candidate.totalOut.Eq(incumbent.totalOut) {
			return candidate.totalOut.Gt(incumbent.totalOut)
		}
		return candidate.totalIn.Lt(incumbent.totalIn)
	}

	candidateRate, candidateOK := perUnitSpent(candidate)
	incumbentRate, incumbentOK := perUnitSpent(incumbent)
	if candidateOK != incumbentOK {
		return candidateOK
	}
	if candidateOK && !candidateRate.Eq(incumbentRate) {
		return candidateRate.Gt(incumbentRate)
	}
	return worstRatio(candidate.legs).Lt(worstRatio(incumbent.legs))
}

func perUnitSpent(r orderbookResult) (fixedfloat.Value, bool) {
	if r.totalIn.IsZero() {
		return fixedfloat.Zero(), false
	}
	rate, err := r.totalOut.Div(r.totalIn)
	if err != nil {
		return fixedfloat.Zero(), false
	}
	return rate, true
}

func worstRatio(legs []Leg) fixedfloat.Value {
	if len(legs) == 0 {
		return fixedfloat.Zero()
	}
	worst := legs[0].Candidate.Ratio
	for _, l := range legs[1:] {
		if l.Candidate.Ratio.Gt(worst) {
			worst = l.Candidate.Ratio
		}
	}
	return worst
}

// Plan runs the full seven-step algorithm and returns a terminal
// Outcome. tokenDecimals supplies the native decimals for any token
// the plan needs to convert to onchain integer form (the spend-side
// token of the selected orderbook); currentAllowance is the taker's
// already-fetched allowance for that token/orderbook pair, in
// token-native integer units.
func Plan(cfg Config, candidates []Candidate, tokenDecimals map[common.Address]uint8, currentAllowance *big.Int) (Outcome, error) {
	if cfg.Amount.IsZero() || cfg.Amount.IsNegative() {
		return Outcome{}, obcoreerr.New(obcoreerr.KindNonPositiveAmount, "amount must be positive")
	}
	if cfg.PriceCap.IsZero() || cfg.PriceCap.IsNegative() {
		return Outcome{}, obcoreerr.New(obcoreerr.KindNonPositiveAmount, "price cap must be positive")
	}

	byOrderbook := make(map[common.Address][]Candidate)
	var order []common.Address
	for _, c := range candidates {
		if _, seen := byOrderbook[c.Orderbook]; !seen {
			order = append(order, c.Orderbook)
		}
		byOrderbook[c.Orderbook] = append(byOrderbook[c.Orderbook], c)
	}

	var best *orderbookResult
	for _, ob := range order {
		filtered := filterByPriceCap(byOrderbook[ob], cfg.PriceCap)
		legs, totalIn, totalOut, err := walk(cfg.Mode, filtered, cfg.Amount)
		if err != nil {
			return Outcome{}, err
		}
		if len(legs) == 0 {
			continue
		}
		candidate := orderbookResult{orderbook: ob, legs: legs, totalIn: totalIn, totalOut: totalOut}
		if best == nil || objectiveBetter(cfg.Mode, candidate, *best) {
			best = &candidate
		}
	}

	runID := uuid.NewString()

	if best == nil {
		if cfg.Mode.isExact() {
			return Outcome{}, liquidityError(cfg)
		}
		return Outcome{Kind: OutcomeEmpty, RunID: runID}, nil
	}

	if cfg.Mode.isExact() {
		target := cfg.Amount
		fillAmount := best.totalOut
		if !cfg.Mode.isBuy() {
			fillAmount = best.totalIn
		}
		if fillAmount.Lt(target) {
			return Outcome{}, liquidityError(cfg)
		}
	}

	minimumIO := fixedfloat.Zero()
	if cfg.Mode.isExact() {
		minimumIO = cfg.Amount
	}

	plan := &Plan{
		Orderbook:      best.orderbook,
		Legs:           best.legs,
		TotalInput:     best.totalIn,
		TotalOutput:    best.totalOut,
		MinimumIO:      minimumIO,
		MaximumIO:      cfg.Amount,
		MaximumIORatio: cfg.PriceCap,
		IOIsInput:      cfg.Mode.isBuy(),
	}

	outcome, err := preflight(plan, cfg, tokenDecimals, currentAllowance, runID)
	if err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

func liquidityError(cfg Config) error {
	return obcoreerr.New(obcoreerr.KindLiquidity,
		"requested "+cfg.Amount.Format()+" but insufficient candidate liquidity available")
}

func spendToken(plan *Plan) common.Address {
	return plan.Legs[0].Candidate.Order.ValidInputs[plan.Legs[0].Candidate.InputIOIndex].Token
}

func preflight(plan *Plan, cfg Config, tokenDecimals map[common.Address]uint8, currentAllowance *big.Int, runID string) (Outcome, error) {
	token := spendToken(plan)
	decimals, ok := tokenDecimals[token]
	if !ok {
		return Outcome{}, obcoreerr.New(obcoreerr.KindInvalidInput, "missing token decimals for spend-side token")
	}

	requiredBig, err := plan.TotalInput.ToTokenInteger(decimals)
	if err != nil {
		return Outcome{}, err
	}

	takeOrdersCalldata, err := encodePlanCalldata(plan)
	if err != nil {
		return Outcome{}, err
	}

	if !CheckAllowance(currentAllowance, requiredBig) {
		required256, overflow := uint256.FromBig(requiredBig)
		if overflow {
			return Outcome{}, obcoreerr.New(obcoreerr.KindArithmeticOverflow, "required allowance exceeds 256 bits")
		}
		approveCalldata, err := calldata.EncodeApprove(plan.Orderbook, required256)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Kind: OutcomeNeedsApproval,
			Plan: plan,
			NeedsApproval: &NeedsApproval{
				Token:    token,
				Spender:  plan.Orderbook,
				Amount:   requiredBig,
				Calldata: approveCalldata,
			},
			RunID: runID,
		}, nil
	}

	effectivePrice := fixedfloat.Zero()
	if !plan.TotalOutput.IsZero() {
		effectivePrice, err = plan.TotalInput.Div(plan.TotalOutput)
		if err != nil {
			return Outcome{}, err
		}
	}

	legRatios := make([]fixedfloat.Value, len(plan.Legs))
	for i, l := range plan.Legs {
		legRatios[i] = l.Candidate.Ratio
	}

	maxSellCap := cfg.Amount
	if cfg.Mode.isBuy() {
		var err error
		maxSellCap, err = cfg.Amount.Mul(cfg.PriceCap)
		if err != nil {
			return Outcome{}, err
		}
	}

	return Outcome{
		Kind: OutcomeReady,
		Plan: plan,
		Ready: &Ready{
			Orderbook:      plan.Orderbook,
			Calldata:       takeOrdersCalldata,
			EffectivePrice: effectivePrice,
			LegRatios:      legRatios,
			ExpectedSell:   plan.TotalInput,
			MaxSellCap:     maxSellCap,
		},
		RunID: runID,
	}, nil
}

func encodePlanCalldata(plan *Plan) ([]byte, error) {
	minimumIO, err := ffToUint256(plan.MinimumIO)
	if err != nil {
		return nil, err
	}
	maximumIO, err := ffToUint256(plan.MaximumIO)
	if err != nil {
		return nil, err
	}
	maximumIORatio, err := ffToUint256(plan.MaximumIORatio)
	if err != nil {
		return nil, err
	}

	legs := make([]calldata.TakeOrderConfig, len(plan.Legs))
	for i, l := range plan.Legs {
		legs[i] = calldata.TakeOrderConfig{
			Order:         l.Candidate.Order,
			InputIOIndex:  big.NewInt(int64(l.Candidate.InputIOIndex)),
			OutputIOIndex: big.NewInt(int64(l.Candidate.OutputIOIndex)),
		}
	}

	return calldata.EncodeTakeOrders(calldata.TakeOrdersConfig{
		MinimumIO:      minimumIO,
		MaximumIO:      maximumIO,
		MaximumIORatio: maximumIORatio,
		IOIsInput:      plan.IOIsInput,
		Orders:         legs,
		Data:           nil,
	})
}

func ffToUint256(v fixedfloat.Value) (*uint256.Int, error) {
	raw, err := v.ToTokenInteger(18)
	if err != nil {
		return nil, err
	}
	u, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, obcoreerr.New(obcoreerr.KindArithmeticOverflow, "value exceeds 256 bits")
	}
	return u, nil
}
