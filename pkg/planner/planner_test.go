package planner

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rainorder/obcore/pkg/calldata"
	"github.com/rainorder/obcore/pkg/fixedfloat"
	"github.com/rainorder/obcore/pkg/obcoreerr"
)

func sampleOrderBody(owner byte) calldata.Order {
	return calldata.Order{
		Owner: common.BytesToAddress([]byte{owner}),
		Evaluable: calldata.Evaluable{
			Interpreter: common.BytesToAddress([]byte{0xAA}),
			Store:       common.BytesToAddress([]byte{0xBB}),
			Bytecode:    []byte{0x01},
		},
		ValidInputs:  []calldata.IO{{Token: tokenIn, VaultID: [32]byte{1}}},
		ValidOutputs: []calldata.IO{{Token: tokenOut, VaultID: [32]byte{2}}},
		Nonce:        [32]byte{owner},
	}
}

var (
	tokenIn  = common.BytesToAddress([]byte{0x10})
	tokenOut = common.BytesToAddress([]byte{0x20})
	ob1      = common.BytesToAddress([]byte{0x30})
	ob2      = common.BytesToAddress([]byte{0x31})
	taker    = common.BytesToAddress([]byte{0x40})
)

func candidate(orderbook common.Address, owner byte, maxOutput, ratio string) Candidate {
	return Candidate{
		Orderbook:     orderbook,
		Order:         sampleOrderBody(owner),
		InputIOIndex:  0,
		OutputIOIndex: 0,
		MaxOutput:     fixedfloat.MustParse(maxOutput),
		Ratio:         fixedfloat.MustParse(ratio),
	}
}

func decimalsFor(t common.Address, d uint8) map[common.Address]uint8 {
	return map[common.Address]uint8{t: d}
}

func TestPlanSingleLegBuyUnderCapFullFill(t *testing.T) {
	cfg := Config{
		Mode:     BuyExact,
		Amount:   fixedfloat.MustParse("10"),
		PriceCap: fixedfloat.MustParse("2"),
		Taker:    taker,
	}
	candidates := []Candidate{candidate(ob1, 1, "10", "1.5")}

	outcome, err := Plan(cfg, candidates, decimalsFor(tokenIn, 18), big.NewInt(0))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if outcome.Kind != OutcomeNeedsApproval {
		t.Fatalf("expected NeedsApproval with zero allowance, got %v", outcome.Kind)
	}
	if outcome.Plan.TotalOutput.Format() != "10" {
		t.Fatalf("expected full fill of 10, got %s", outcome.Plan.TotalOutput.Format())
	}
	if outcome.Plan.TotalInput.Format() != "15" {
		t.Fatalf("expected total input 15, got %s", outcome.Plan.TotalInput.Format())
	}
}

func TestPlanTwoCandidatePriceCapFiltersOne(t *testing.T) {
	cfg := Config{
		Mode:     BuyUpTo,
		Amount:   fixedfloat.MustParse("100"),
		PriceCap: fixedfloat.MustParse("1.2"),
		Taker:    taker,
	}
	candidates := []Candidate{
		candidate(ob1, 1, "10", "1.0"),
		candidate(ob1, 2, "10", "3.0"), // above price cap, must be excluded
	}

	outcome, err := Plan(cfg, candidates, decimalsFor(tokenIn, 18), big.NewInt(1_000_000_000_000_000_000))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(outcome.Plan.Legs) != 1 {
		t.Fatalf("expected exactly one leg after price-cap filter, got %d", len(outcome.Plan.Legs))
	}
	if outcome.Plan.TotalOutput.Format() != "10" {
		t.Fatalf("expected total output 10, got %s", outcome.Plan.TotalOutput.Format())
	}
}

func TestPlanBuyExactShortOfLiquidityReturnsLiquidityError(t *testing.T) {
	cfg := Config{
		Mode:     BuyExact,
		Amount:   fixedfloat.MustParse("100"),
		PriceCap: fixedfloat.MustParse("2"),
		Taker:    taker,
	}
	candidates := []Candidate{candidate(ob1, 1, "50", "1.0")}

	_, err := Plan(cfg, candidates, decimalsFor(tokenIn, 18), big.NewInt(0))
	if err == nil {
		t.Fatal("expected a liquidity error")
	}
	oerr, ok := err.(*obcoreerr.Error)
	if !ok || oerr.Kind != obcoreerr.KindLiquidity {
		t.Fatalf("expected KindLiquidity, got %v", err)
	}
}

func TestPlanSpendUpToConsumesHalfOfSingleCandidate(t *testing.T) {
	cfg := Config{
		Mode:     SpendUpTo,
		Amount:   fixedfloat.MustParse("5"),
		PriceCap: fixedfloat.MustParse("2"),
		Taker:    taker,
	}
	candidates := []Candidate{candidate(ob1, 1, "20", "0.5")}

	outcome, err := Plan(cfg, candidates, decimalsFor(tokenIn, 18), big.NewInt(1_000_000_000_000_000_000))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if outcome.Plan.TotalInput.Format() != "5" {
		t.Fatalf("expected to spend exactly 5, got %s", outcome.Plan.TotalInput.Format())
	}
	if outcome.Plan.TotalOutput.Format() != "10" {
		t.Fatalf("expected to receive 10 at ratio 0.5, got %s", outcome.Plan.TotalOutput.Format())
	}
}

func TestPlanMultiOrderbookBuyPicksHighestOutputWithinBudget(t *testing.T) {
	cfg := Config{
		Mode:     BuyUpTo,
		Amount:   fixedfloat.MustParse("10"),
		PriceCap: fixedfloat.MustParse("5"),
		Taker:    taker,
	}
	candidates := []Candidate{
		candidate(ob1, 1, "5", "1.0"),
		candidate(ob2, 2, "10", "1.0"),
	}

	outcome, err := Plan(cfg, candidates, decimalsFor(tokenIn, 18), big.NewInt(1_000_000_000_000_000_000))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if outcome.Plan.Orderbook != ob2 {
		t.Fatalf("expected orderbook 2 selected for higher output, got %v", outcome.Plan.Orderbook)
	}
}

func TestPlanNeedsApprovalWhenAllowanceInsufficient(t *testing.T) {
	cfg := Config{
		Mode:     BuyExact,
		Amount:   fixedfloat.MustParse("1"),
		PriceCap: fixedfloat.MustParse("2"),
		Taker:    taker,
	}
	candidates := []Candidate{candidate(ob1, 1, "1", "1.0")}

	outcome, err := Plan(cfg, candidates, decimalsFor(tokenIn, 18), big.NewInt(0))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if outcome.Kind != OutcomeNeedsApproval {
		t.Fatalf("expected NeedsApproval, got %v", outcome.Kind)
	}
	if outcome.NeedsApproval.Token != tokenIn {
		t.Fatalf("expected approval for spend-side token, got %v", outcome.NeedsApproval.Token)
	}
	if len(outcome.NeedsApproval.Calldata) < 4 {
		t.Fatal("expected approve calldata to include a selector")
	}
}

func TestPlanReadyWhenAllowanceSufficient(t *testing.T) {
	cfg := Config{
		Mode:     BuyExact,
		Amount:   fixedfloat.MustParse("1"),
		PriceCap: fixedfloat.MustParse("2"),
		Taker:    taker,
	}
	candidates := []Candidate{candidate(ob1, 1, "1", "1.0")}

	outcome, err := Plan(cfg, candidates, decimalsFor(tokenIn, 18), big.NewInt(1_000_000_000_000_000_000))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if outcome.Kind != OutcomeReady {
		t.Fatalf("expected Ready, got %v", outcome.Kind)
	}
	if len(outcome.Ready.Calldata) < 4 {
		t.Fatal("expected takeOrders calldata to include a selector")
	}
	if outcome.Ready.EffectivePrice.Format() != "1" {
		t.Fatalf("expected effective price 1, got %s", outcome.Ready.EffectivePrice.Format())
	}
}

func TestPlanEmptyOutcomeForUpToModeWithNoLiquidity(t *testing.T) {
	cfg := Config{
		Mode:     BuyUpTo,
		Amount:   fixedfloat.MustParse("10"),
		PriceCap: fixedfloat.MustParse("0.5"),
		Taker:    taker,
	}
	candidates := []Candidate{candidate(ob1, 1, "10", "2.0")} // above cap

	outcome, err := Plan(cfg, candidates, decimalsFor(tokenIn, 18), big.NewInt(0))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if outcome.Kind != OutcomeEmpty {
		t.Fatalf("expected Empty outcome, got %v", outcome.Kind)
	}
}

func TestCheckAllowance(t *testing.T) {
	if !CheckAllowance(big.NewInt(10), big.NewInt(10)) {
		t.Fatal("equal allowance/required should be sufficient")
	}
	if CheckAllowance(big.NewInt(9), big.NewInt(10)) {
		t.Fatal("insufficient allowance should fail")
	}
	if !CheckAllowance(nil, nil) {
		t.Fatal("nil/nil should be treated as sufficient")
	}
}
