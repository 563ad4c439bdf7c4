// Command obcore-replay loads a small JSON event fixture, replays it
// through the virtual engine, persists the resulting state via
// LocalStore, and runs one take-order planning call against the order
// it just registered. It is the Go-native analogue of the teacher's
// cmd/node/main.go wiring: a single binary exercising the full
// ingest-to-plan pipeline end to end, without a live chain connection.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rainorder/obcore/pkg/bootstrap"
	"github.com/rainorder/obcore/pkg/engine"
	"github.com/rainorder/obcore/pkg/events"
	"github.com/rainorder/obcore/pkg/fixedfloat"
	"github.com/rainorder/obcore/pkg/fixtures"
	"github.com/rainorder/obcore/pkg/localstore"
	"github.com/rainorder/obcore/pkg/orders"
	"github.com/rainorder/obcore/params"
	"github.com/rainorder/obcore/pkg/planner"
	"github.com/rainorder/obcore/pkg/util"
	"github.com/rainorder/obcore/pkg/vault"
)

// fixtureEvent is the on-disk shape of one line in the event fixture:
// a small seed-driven description, not the full onchain log encoding,
// since that encoding lives upstream of this binary's scope.
type fixtureEvent struct {
	Kind      string `json:"kind"`
	Seed      byte   `json:"seed"`
	Amount    int64  `json:"amount,omitempty"`
	Decimals  uint8  `json:"decimals,omitempty"`
	MaxOutput string `json:"max_output,omitempty"`
	Ratio     string `json:"ratio,omitempty"`
}

func loadFixture(path string) ([]fixtureEvent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var fixture []fixtureEvent
	if err := json.Unmarshal(raw, &fixture); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return fixture, nil
}

func toEvent(fe fixtureEvent) (events.Event, error) {
	switch fe.Kind {
	case "add_order":
		return fixtures.AddOrderEvent(fe.Seed), nil
	case "deposit":
		return fixtures.DepositEvent(fe.Seed, fe.Amount, fe.Decimals), nil
	default:
		return events.Event{}, fmt.Errorf("unknown fixture event kind %q", fe.Kind)
	}
}

func main() {
	fixturePath := flag.String("fixture", "", "path to a JSON event fixture")
	dsn := flag.String("dsn", "", "sqlite DSN override (defaults to params.Default())")
	logFile := flag.String("log-file", "", "also write structured logs to this file")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: obcore-replay -fixture <path.json>")
		os.Exit(2)
	}

	var logger *zap.Logger
	var err error
	if *logFile != "" {
		logger, err = util.NewLoggerWithFile(*logFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := params.Default()
	if *dsn != "" {
		cfg.Store.DSN = *dsn
	}

	if err := run(*fixturePath, cfg, logger); err != nil {
		logger.Error("replay failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(fixturePath string, cfg params.Config, logger *zap.Logger) error {
	ctx := context.Background()

	fixtureEvents, err := loadFixture(fixturePath)
	if err != nil {
		return err
	}

	store, err := localstore.NewStore(cfg.Store.DSN, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	bs := bootstrap.New(store, logger)
	target := bootstrap.TargetKey{ChainID: 1, OrderbookAddress: common.Address{}}
	if err := bs.Run(ctx, localstore.SchemaVersion, bootstrap.Config{
		TargetKey:   target,
		LatestBlock: 0,
		Threshold:   cfg.Bootstrap.BlockThreshold,
	}); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	eng := engine.NewVirtualEngine(logger)
	var candidates []planner.Candidate

	for _, fe := range fixtureEvents {
		ev, err := toEvent(fe)
		if err != nil {
			return err
		}
		mutations, err := events.Decode(ev)
		if err != nil {
			return fmt.Errorf("decode event %q: %w", fe.Kind, err)
		}
		if err := eng.Apply(mutations, nil); err != nil {
			return fmt.Errorf("apply event %q: %w", fe.Kind, err)
		}

		if fe.Kind == "add_order" && fe.MaxOutput != "" {
			candidates = append(candidates, fixtures.Candidate(common.Address{}, fe.Seed, fe.MaxOutput, fe.Ratio))
		}

		if err := persist(ctx, store, eng.Snapshot()); err != nil {
			return fmt.Errorf("persist after event %q: %w", fe.Kind, err)
		}
	}

	if len(candidates) == 0 {
		fmt.Println("no orders with candidate liquidity in fixture; nothing to plan")
		return nil
	}

	decimalsByToken := map[common.Address]uint8{}
	for _, c := range candidates {
		for _, io := range c.Order.ValidInputs {
			decimalsByToken[io.Token] = 18
		}
	}

	outcome, err := planner.Plan(planner.Config{
		Mode:     planner.BuyUpTo,
		Amount:   fixedfloat.MustParse("1"),
		PriceCap: fixedfloat.MustParse("1000"),
		Taker:    common.Address{},
	}, candidates, decimalsByToken, big.NewInt(0))
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	fmt.Printf("plan outcome: %v (run %s)\n", outcome.Kind, outcome.RunID)
	if outcome.Plan != nil {
		fmt.Printf("  total_input=%s total_output=%s legs=%d\n",
			outcome.Plan.TotalInput.Format(), outcome.Plan.TotalOutput.Format(), len(outcome.Plan.Legs))
	}
	return nil
}

// persist projects the engine's current snapshot into LocalStore. It
// walks every order and every nonzero vault balance on each call,
// trading some redundant writes for a pipeline simple enough to fit a
// demo binary; a real ingest loop would diff against the previous
// snapshot instead.
func persist(ctx context.Context, store *localstore.Store, snap *engine.Snapshot) error {
	var stmts []localstore.Statement

	for _, rec := range snap.Orders().Filter(func(orders.Record) bool { return true }) {
		upserts, err := localstore.OrderUpsertStatements(rec, snap.Checkpoint().LastBlock)
		if err != nil {
			return err
		}
		stmts = append(stmts, upserts...)
	}

	for _, delta := range snap.Vaults().IterNonZero(func(vault.Key, fixedfloat.Value) bool { return true }) {
		stmts = append(stmts, localstore.VaultBalanceStatement(delta.Key, snap.Vaults().BalanceOf(delta.Key)))
	}

	if len(stmts) == 0 {
		return nil
	}
	return store.ExecuteBatch(ctx, localstore.NewBatch(stmts...))
}
