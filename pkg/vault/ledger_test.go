package vault

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rainorder/obcore/pkg/fixedfloat"
)

func testKey() Key {
	return Key{
		Owner:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Token:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
		VaultID: [32]byte{1},
	}
}

func TestBalanceOfMissingIsZero(t *testing.T) {
	l := NewLedger()
	if !l.BalanceOf(testKey()).IsZero() {
		t.Fatal("expected canonical zero for untouched slot")
	}
}

func TestApplyDeltasAtomic(t *testing.T) {
	l := NewLedger()
	k := testKey()

	err := l.ApplyDeltas([]Delta{
		{Key: k, Amount: fixedfloat.MustParse("5")},
		{Key: k, Amount: fixedfloat.MustParse("-2")},
	})
	if err != nil {
		t.Fatalf("ApplyDeltas: %v", err)
	}
	if got := l.BalanceOf(k).Format(); got != "3" {
		t.Fatalf("balance = %s, want 3", got)
	}
}

func TestApplyDeltasAllOrNothing(t *testing.T) {
	l := NewLedger()
	k := testKey()
	_ = l.ApplyDeltas([]Delta{{Key: k, Amount: fixedfloat.MustParse("10")}})

	before := l.BalanceOf(k)
	if err := l.ApplyDeltas([]Delta{{Key: k, Amount: fixedfloat.MustParse("1")}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after := l.BalanceOf(k); after.Eq(before) {
		t.Fatal("expected balance to change after successful batch")
	}

	// A batch whose second delta overflows must leave every slot as it was.
	other := testKey()
	other.VaultID = [32]byte{2}
	huge := fixedfloat.FromRaw(new(big.Int).Lsh(big.NewInt(1), 255), false)
	if err := l.ApplyDeltas([]Delta{{Key: other, Amount: huge}}); err != nil {
		t.Fatalf("seed large balance: %v", err)
	}
	mid := l.BalanceOf(k)
	err := l.ApplyDeltas([]Delta{
		{Key: k, Amount: fixedfloat.MustParse("1")},
		{Key: other, Amount: huge},
	})
	if err == nil {
		t.Fatal("expected overflowing delta to fail the batch")
	}
	if got := l.BalanceOf(k); !got.Eq(mid) {
		t.Fatalf("balance = %s after failed batch, want %s", got.Format(), mid.Format())
	}
}

func TestIterNonZeroSkipsZero(t *testing.T) {
	l := NewLedger()
	k1 := testKey()
	k2 := testKey()
	k2.VaultID = [32]byte{2}

	_ = l.ApplyDeltas([]Delta{
		{Key: k1, Amount: fixedfloat.MustParse("5")},
		{Key: k2, Amount: fixedfloat.MustParse("5")},
		{Key: k2, Amount: fixedfloat.MustParse("-5")},
	})

	nonZero := l.IterNonZero(nil)
	if len(nonZero) != 1 || nonZero[0].Key != k1 {
		t.Fatalf("expected exactly k1 to remain non-zero, got %+v", nonZero)
	}
}

func TestCompactRemovesZeroSlots(t *testing.T) {
	l := NewLedger()
	k := testKey()
	_ = l.ApplyDeltas([]Delta{{Key: k, Amount: fixedfloat.MustParse("5")}})
	_ = l.ApplyDeltas([]Delta{{Key: k, Amount: fixedfloat.MustParse("-5")}})

	if l.Len() != 1 {
		t.Fatalf("expected zero-balance slot to still be present before compaction, len=%d", l.Len())
	}
	l.Compact()
	if l.Len() != 0 {
		t.Fatalf("expected compaction to remove zero-balance slot, len=%d", l.Len())
	}
}
