package market_test

import (
	"errors"
	"testing"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/market"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/testutil"
)

// ============================================================================
// Test: in-memory collateral token
// ============================================================================

func TestMemoryToken_TransferFrom(t *testing.T) {
	token := market.NewMemoryToken()
	from, to := testutil.Addr(1), testutil.Addr(2)

	token.Mint(from, testutil.WAD(100))
	if err := token.TransferFrom(from, to, testutil.WAD(60)); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}

	if got := token.BalanceOf(from); got.Cmp(testutil.WAD(40)) != 0 {
		t.Errorf("from balance = %s, want %s", got, testutil.WAD(40))
	}
	if got := token.BalanceOf(to); got.Cmp(testutil.WAD(60)) != 0 {
		t.Errorf("to balance = %s, want %s", got, testutil.WAD(60))
	}
}

func TestMemoryToken_TransferFromShortfall(t *testing.T) {
	token := market.NewMemoryToken()
	from, to := testutil.Addr(1), testutil.Addr(2)

	token.Mint(from, testutil.WAD(10))
	err := token.TransferFrom(from, to, testutil.WAD(11))
	if !errors.Is(err, market.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	// A failed transfer must not move anything.
	if got := token.BalanceOf(from); got.Cmp(testutil.WAD(10)) != 0 {
		t.Errorf("from balance = %s, want %s", got, testutil.WAD(10))
	}
	if got := token.BalanceOf(to); got.Sign() != 0 {
		t.Errorf("to balance = %s, want 0", got)
	}
}

func TestMemoryToken_UnknownAccount(t *testing.T) {
	token := market.NewMemoryToken()
	err := token.TransferFrom(testutil.Addr(7), testutil.Addr(8), testutil.WAD(1))
	if !errors.Is(err, market.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := token.BalanceOf(testutil.Addr(7)); got.Sign() != 0 {
		t.Errorf("balance = %s, want 0", got)
	}
}
