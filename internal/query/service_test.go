package query_test

import (
	"math/big"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/market"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/oracle"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/query"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/testutil"
)

const start = int64(3600 * 100)

func newService(t *testing.T) (*query.Service, *market.Market, *market.MemoryToken) {
	t.Helper()

	token := market.NewMemoryToken()
	m, err := market.New(market.Config{
		Address:     testutil.Addr(0xAA),
		Owner:       testutil.Addr(0xFF),
		Token:       token,
		IndexOracle: oracle.NewAdjustable(testutil.WAD(1000)),
		GasOracle:   oracle.NewAdjustable(new(big.Int)),
		Params:      market.DefaultParams(),
		StartTime:   start,
		Logger:      zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("market.New: %v", err)
	}
	return query.NewService(m), m, token
}

// ============================================================================
// Test: account view
// ============================================================================

func TestAccount_RendersCommittedState(t *testing.T) {
	svc, m, token := newService(t)
	trader := testutil.Addr(1)

	token.Mint(trader, testutil.WAD(1000))
	if err := m.Deposit(trader, testutil.WAD(1000), start+5); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	view, err := svc.Account(trader.Hex())
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if view.Quote != testutil.WAD(1000).String() {
		t.Errorf("quote = %s, want %s", view.Quote, testutil.WAD(1000))
	}
	if view.Base != "0" {
		t.Errorf("base = %s, want 0", view.Base)
	}
	if view.Address != trader.Hex() {
		t.Errorf("address = %s, want %s", view.Address, trader.Hex())
	}
}

func TestAccount_RejectsMalformedAddress(t *testing.T) {
	svc, _, _ := newService(t)
	if _, err := svc.Account("not-an-address"); err == nil {
		t.Error("expected error for malformed address")
	}
}

func TestAccount_UnknownIsZero(t *testing.T) {
	svc, _, _ := newService(t)
	view, err := svc.Account(testutil.Addr(9).Hex())
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if view.Quote != "0" || view.Base != "0" {
		t.Errorf("unknown account = %s/%s, want zeroes", view.Quote, view.Base)
	}
}

// ============================================================================
// Test: pool and market views
// ============================================================================

func TestPool_RendersHoldings(t *testing.T) {
	svc, _, _ := newService(t)
	view := svc.Pool()
	if view.Holdings != "0" {
		t.Errorf("holdings = %s, want 0", view.Holdings)
	}
	if view.PoolTokenSupply != "0" {
		t.Errorf("token supply = %s, want 0", view.PoolTokenSupply)
	}
}

func TestMarket_RendersFairPrice(t *testing.T) {
	svc, _, _ := newService(t)
	view, err := svc.Market(start + 10)
	if err != nil {
		t.Fatalf("Market: %v", err)
	}
	if view.FairPrice != testutil.WAD(1000).String() {
		t.Errorf("fair price = %s, want %s", view.FairPrice, testutil.WAD(1000))
	}
	if view.TotalLeveragedValue != "0" {
		t.Errorf("leveraged value = %s, want 0", view.TotalLeveragedValue)
	}
}

func TestReceipts_EmptyMarket(t *testing.T) {
	svc, _, _ := newService(t)
	if got := svc.Receipts(); len(got) != 0 {
		t.Errorf("receipts = %d, want 0", len(got))
	}
}
