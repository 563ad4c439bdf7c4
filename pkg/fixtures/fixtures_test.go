package fixtures

import (
	"testing"

	"github.com/rainorder/obcore/pkg/events"
)

func TestOrderIsDeterministicAndValid(t *testing.T) {
	a := Order(1)
	b := Order(1)
	if a.Hash != b.Hash {
		t.Fatal("expected Order(1) to be deterministic")
	}
	if Order(1).Hash == Order(2).Hash {
		t.Fatal("expected distinct seeds to produce distinct hashes")
	}
}

func TestOrderWithSharesVaultAcrossSeeds(t *testing.T) {
	sharedToken := Address(200)
	sharedVault := Hash32(9)

	a := OrderWith(1, OrderOpts{InputToken: sharedToken, OutputToken: Address(201), InputVault: sharedVault, OutputVault: Hash32(2), Active: true})
	b := OrderWith(2, OrderOpts{InputToken: sharedToken, OutputToken: Address(202), InputVault: sharedVault, OutputVault: Hash32(3), Active: true})

	if a.Inputs[0].Token != b.Inputs[0].Token || a.Inputs[0].VaultID != b.Inputs[0].VaultID {
		t.Fatal("expected both orders to share the configured input vault")
	}
	if a.Hash == b.Hash {
		t.Fatal("expected distinct owners to still produce distinct hashes")
	}
}

func TestCandidateBuildsUsableLeg(t *testing.T) {
	ob := Address(9)
	c := Candidate(ob, 1, "10", "1.5")
	if c.Orderbook != ob {
		t.Fatal("expected candidate orderbook to match")
	}
	if c.MaxOutput.Format() != "10" || c.Ratio.Format() != "1.5" {
		t.Fatalf("unexpected candidate fields: %+v", c)
	}
}

func TestDepositEventCarriesSeededFields(t *testing.T) {
	ev := DepositEvent(5, 1000, 6)
	if ev.Kind != events.KindDeposit {
		t.Fatalf("expected KindDeposit, got %v", ev.Kind)
	}
	if ev.Deposit.Sender != Address(5) {
		t.Fatal("expected deposit sender to match seed")
	}
}
