package insurance_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/insurance"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/testutil"
)

// ============================================================================
// Test: deposits and withdrawals
// ============================================================================

func TestPool_DepositWithdrawRoundTrip(t *testing.T) {
	p := insurance.NewPool(testutil.WAD(1))
	staker := testutil.Addr(1)

	if err := p.Deposit(staker, testutil.WAD(100)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if got := p.TokenBalance(staker); got.Cmp(testutil.WAD(100)) != 0 {
		t.Errorf("token balance got %s, want %s", got, testutil.WAD(100))
	}
	if got := p.Holdings(); got.Cmp(testutil.WAD(100)) != 0 {
		t.Errorf("holdings got %s, want %s", got, testutil.WAD(100))
	}

	if err := p.Withdraw(staker, testutil.WAD(100)); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if p.Holdings().Sign() != 0 || p.PoolTokenSupply().Sign() != 0 {
		t.Error("round trip should leave the pool empty")
	}
}

func TestPool_WithdrawBeyondBalance(t *testing.T) {
	p := insurance.NewPool(testutil.WAD(1))
	staker := testutil.Addr(1)
	p.Deposit(staker, testutil.WAD(10))

	err := p.Withdraw(staker, testutil.WAD(11))
	if !errors.Is(err, insurance.ErrInsufficientPoolTokens) {
		t.Errorf("got %v, want ErrInsufficientPoolTokens", err)
	}
}

func TestPool_PullCollateral(t *testing.T) {
	p := insurance.NewPool(testutil.WAD(1))

	pulled := p.PullCollateral(testutil.WAD(50))
	if pulled.Cmp(testutil.WAD(50)) != 0 {
		t.Errorf("pulled got %s, want %s", pulled, testutil.WAD(50))
	}
	if p.BufferCollateral().Cmp(testutil.WAD(50)) != 0 {
		t.Errorf("buffer got %s, want %s", p.BufferCollateral(), testutil.WAD(50))
	}

	if got := p.PullCollateral(new(big.Int)); got.Sign() != 0 {
		t.Errorf("zero pull got %s, want 0", got)
	}
}

// ============================================================================
// Test: target and funding rate
// ============================================================================

func TestPool_TargetIsOnePercent(t *testing.T) {
	p := insurance.NewPool(testutil.WAD(1))
	got := p.Target(testutil.WAD(100_000))
	if got.Cmp(testutil.WAD(1000)) != 0 {
		t.Errorf("got %s, want %s", got, testutil.WAD(1000))
	}
}

func TestPool_FundingRateQuadratic(t *testing.T) {
	factor := testutil.WAD(1)
	p := insurance.NewPool(factor)

	// Empty pool: ratio 1, rate = factor.
	rate, err := p.FundingRate(testutil.WAD(100_000))
	if err != nil {
		t.Fatalf("FundingRate: %v", err)
	}
	if rate.Cmp(factor) != 0 {
		t.Errorf("empty pool rate got %s, want %s", rate, factor)
	}

	// Half-full pool: ratio 1/2, rate = factor/4.
	p.Deposit(testutil.Addr(1), testutil.WAD(500))
	rate, err = p.FundingRate(testutil.WAD(100_000))
	if err != nil {
		t.Fatalf("FundingRate: %v", err)
	}
	want := new(big.Int).Quo(factor, big.NewInt(4))
	if rate.Cmp(want) != 0 {
		t.Errorf("half-full pool rate got %s, want %s", rate, want)
	}
}

func TestPool_FundingRateOverfundedIsZero(t *testing.T) {
	p := insurance.NewPool(testutil.WAD(1))
	p.Deposit(testutil.Addr(1), testutil.WAD(5000))

	rate, err := p.FundingRate(testutil.WAD(100_000))
	if err != nil {
		t.Fatalf("FundingRate: %v", err)
	}
	if rate.Sign() != 0 {
		t.Errorf("overfunded pool rate got %s, want 0", rate)
	}
}

func TestPool_FundingRateZeroTarget(t *testing.T) {
	p := insurance.NewPool(testutil.WAD(1))
	rate, err := p.FundingRate(new(big.Int))
	if err != nil {
		t.Fatalf("FundingRate: %v", err)
	}
	if rate.Sign() != 0 {
		t.Errorf("zero target rate got %s, want 0", rate)
	}
}

// ============================================================================
// Test: Drain
// ============================================================================

func TestPool_DrainKeepsOneTokenFloor(t *testing.T) {
	p := insurance.NewPool(testutil.WAD(1))
	p.Deposit(testutil.Addr(1), testutil.WAD(10))

	drained := p.Drain(testutil.WAD(100))
	want := new(big.Int).Sub(testutil.WAD(10), fixed.WAD)
	if drained.Cmp(want) != 0 {
		t.Errorf("drained got %s, want %s", drained, want)
	}
	if p.Holdings().Cmp(fixed.WAD) != 0 {
		t.Errorf("holdings after drain got %s, want %s", p.Holdings(), fixed.WAD)
	}
}

func TestPool_DrainBufferBeforePublic(t *testing.T) {
	p := insurance.NewPool(testutil.WAD(1))
	p.PullCollateral(testutil.WAD(30))
	p.Deposit(testutil.Addr(1), testutil.WAD(30))

	p.Drain(testutil.WAD(20))
	if p.BufferCollateral().Cmp(testutil.WAD(10)) != 0 {
		t.Errorf("buffer got %s, want %s", p.BufferCollateral(), testutil.WAD(10))
	}
	if p.PublicCollateral().Cmp(testutil.WAD(30)) != 0 {
		t.Errorf("public got %s, want %s", p.PublicCollateral(), testutil.WAD(30))
	}
}

func TestPool_DrainEmptyPool(t *testing.T) {
	p := insurance.NewPool(testutil.WAD(1))
	if got := p.Drain(testutil.WAD(5)); got.Sign() != 0 {
		t.Errorf("empty pool drain got %s, want 0", got)
	}
}

// ============================================================================
// Test: TrueMaxLeverage
// ============================================================================

func TestTrueMaxLeverage_EmptyPool(t *testing.T) {
	got, err := insurance.TrueMaxLeverage(
		new(big.Int), testutil.WAD(1000),
		testutil.WADFrac(125, 10), testutil.WAD(2),
		testutil.WAD(20), testutil.WAD(1),
	)
	if err != nil {
		t.Fatalf("TrueMaxLeverage: %v", err)
	}
	if got.Cmp(testutil.WAD(2)) != 0 {
		t.Errorf("got %s, want lowest leverage %s", got, testutil.WAD(2))
	}
}

func TestTrueMaxLeverage_AtCliff(t *testing.T) {
	// 20% funded: at the cliff, the default ceiling applies.
	got, err := insurance.TrueMaxLeverage(
		testutil.WAD(200), testutil.WAD(1000),
		testutil.WADFrac(125, 10), testutil.WAD(2),
		testutil.WAD(20), testutil.WAD(1),
	)
	if err != nil {
		t.Fatalf("TrueMaxLeverage: %v", err)
	}
	if got.Cmp(testutil.WADFrac(125, 10)) != 0 {
		t.Errorf("got %s, want default leverage", got)
	}
}

func TestTrueMaxLeverage_LinearRamp(t *testing.T) {
	// 11% funded between switch (1%) and cliff (21%): the ramp fraction is
	// (10-2)/(21-1) = 0.4, so the ceiling is 0.4*11 + 2 - 0.4*1 = 6.
	got, err := insurance.TrueMaxLeverage(
		testutil.WADFrac(11, 100), testutil.WAD(1),
		testutil.WAD(10), testutil.WAD(2),
		testutil.WAD(21), testutil.WAD(1),
	)
	if err != nil {
		t.Fatalf("TrueMaxLeverage: %v", err)
	}
	if got.Cmp(testutil.WAD(6)) != 0 {
		t.Errorf("got %s, want %s", got, testutil.WAD(6))
	}
}

func TestTrueMaxLeverage_MonotonicInFunding(t *testing.T) {
	prev := new(big.Int)
	for pctTenths := int64(0); pctTenths <= 250; pctTenths += 5 {
		collateral := testutil.WADFrac(pctTenths, 1000) // target is 1 WAD
		got, err := insurance.TrueMaxLeverage(
			collateral, testutil.WAD(1),
			testutil.WADFrac(125, 10), testutil.WAD(2),
			testutil.WAD(20), testutil.WAD(1),
		)
		if err != nil {
			t.Fatalf("TrueMaxLeverage at %d/10 pct: %v", pctTenths, err)
		}
		if got.Cmp(prev) < 0 {
			t.Fatalf("leverage decreased at %d/10 pct funded: %s < %s", pctTenths, got, prev)
		}
		prev = got
	}
}

func TestTrueMaxLeverage_ZeroTarget(t *testing.T) {
	got, err := insurance.TrueMaxLeverage(
		new(big.Int), new(big.Int),
		testutil.WADFrac(125, 10), testutil.WAD(2),
		testutil.WAD(20), testutil.WAD(1),
	)
	if err != nil {
		t.Fatalf("TrueMaxLeverage: %v", err)
	}
	if got.Cmp(testutil.WADFrac(125, 10)) != 0 {
		t.Errorf("zero target should allow default leverage, got %s", got)
	}
}

func TestTrueMaxLeverage_InvalidParams(t *testing.T) {
	_, err := insurance.TrueMaxLeverage(
		testutil.WAD(100), testutil.WAD(1000),
		testutil.WADFrac(125, 10), testutil.WAD(2),
		testutil.WAD(1), testutil.WAD(20), // cliff below switch stage
	)
	if !errors.Is(err, insurance.ErrInvalidLeverageParams) {
		t.Errorf("got %v, want ErrInvalidLeverageParams", err)
	}
}
