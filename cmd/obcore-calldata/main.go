// Command obcore-calldata prints the takeOrders/approve calldata for a
// single hand-specified candidate order, without touching a chain or a
// store. It mirrors the teacher's cmd/sign-order: a focused,
// single-purpose tool over one package's pure functions.
package main

import (
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rainorder/obcore/pkg/fixedfloat"
	"github.com/rainorder/obcore/pkg/fixtures"
	"github.com/rainorder/obcore/pkg/planner"
)

func parseMode(s string) (planner.Mode, error) {
	switch s {
	case "buy_exact":
		return planner.BuyExact, nil
	case "buy_up_to":
		return planner.BuyUpTo, nil
	case "spend_exact":
		return planner.SpendExact, nil
	case "spend_up_to":
		return planner.SpendUpTo, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want buy_exact|buy_up_to|spend_exact|spend_up_to)", s)
	}
}

func main() {
	seed := flag.Int("seed", 1, "order seed")
	maxOutput := flag.String("max-output", "10", "candidate order's max output")
	ratio := flag.String("ratio", "1", "candidate order's io ratio (input/output)")
	modeFlag := flag.String("mode", "buy_up_to", "buy_exact|buy_up_to|spend_exact|spend_up_to")
	amount := flag.String("amount", "1", "target amount")
	priceCap := flag.String("price-cap", "1000", "inclusive price cap")
	allowance := flag.String("allowance", "0", "current allowance on the spend token, raw integer")
	flag.Parse()

	mode, err := parseMode(*modeFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	candidate := fixtures.Candidate(common.Address{}, byte(*seed), *maxOutput, *ratio)
	decimals := map[common.Address]uint8{}
	for _, io := range candidate.Order.ValidInputs {
		decimals[io.Token] = 18
	}

	currentAllowance, ok := new(big.Int).SetString(*allowance, 10)
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid -allowance %q\n", *allowance)
		os.Exit(2)
	}

	outcome, err := planner.Plan(planner.Config{
		Mode:     mode,
		Amount:   fixedfloat.MustParse(*amount),
		PriceCap: fixedfloat.MustParse(*priceCap),
		Taker:    common.Address{},
	}, []planner.Candidate{candidate}, decimals, currentAllowance)
	if err != nil {
		fmt.Fprintf(os.Stderr, "plan: %v\n", err)
		os.Exit(1)
	}

	switch outcome.Kind {
	case planner.OutcomeEmpty:
		fmt.Println("no liquidity within constraints")
	case planner.OutcomeNeedsApproval:
		fmt.Printf("needs_approval token=%s spender=%s amount=%s\n",
			outcome.NeedsApproval.Token, outcome.NeedsApproval.Spender, outcome.NeedsApproval.Amount)
		fmt.Printf("approve_calldata=0x%x\n", outcome.NeedsApproval.Calldata)
	case planner.OutcomeReady:
		fmt.Printf("effective_price=%s\n", outcome.Ready.EffectivePrice.Format())
		fmt.Printf("take_orders_calldata=0x%x\n", outcome.Ready.Calldata)
	}
}
