package pricing_test

import (
	"math/big"
	"testing"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/pricing"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/testutil"
)

func emptyBuckets() [24]pricing.PriceInstant {
	var b [24]pricing.PriceInstant
	for i := range b {
		b[i] = pricing.NewPriceInstant()
	}
	return b
}

// ============================================================================
// Test: PriceInstant
// ============================================================================

func TestPriceInstant_AverageNoTrades(t *testing.T) {
	p := pricing.NewPriceInstant()
	if p.Average().Cmp(pricing.PriceUndefined) != 0 {
		t.Error("empty bucket should average to the undefined sentinel")
	}
}

func TestPriceInstant_Average(t *testing.T) {
	p := pricing.NewPriceInstant()
	p.Record(testutil.WAD(900))
	p.Record(testutil.WAD(1100))
	if got := p.Average(); got.Cmp(testutil.WAD(1000)) != 0 {
		t.Errorf("got %s, want %s", got, testutil.WAD(1000))
	}
}

// ============================================================================
// Test: CalculateTWAP
// ============================================================================

func TestCalculateTWAP_AllEmpty(t *testing.T) {
	derivative := emptyBuckets()
	index := emptyBuckets()
	twap := pricing.CalculateTWAP(5, &derivative, &index)
	if twap.Derivative.Cmp(pricing.PriceUndefined) != 0 {
		t.Error("all-empty window should be undefined")
	}
}

func TestCalculateTWAP_LinearWeights(t *testing.T) {
	// Current hour (weight 8) at 1000, previous hour (weight 7) at 850:
	// (8*1000 + 7*850) / 15 = 930.
	derivative := emptyBuckets()
	index := emptyBuckets()
	derivative[5].Record(testutil.WAD(1000))
	derivative[4].Record(testutil.WAD(850))

	twap := pricing.CalculateTWAP(5, &derivative, &index)
	if twap.Derivative.Cmp(testutil.WAD(930)) != 0 {
		t.Errorf("got %s, want %s", twap.Derivative, testutil.WAD(930))
	}
}

func TestCalculateTWAP_SkipsEmptyBuckets(t *testing.T) {
	// Only the bucket 3 hours back has trades; its weight (5) cancels out.
	derivative := emptyBuckets()
	index := emptyBuckets()
	derivative[2].Record(testutil.WAD(777))

	twap := pricing.CalculateTWAP(5, &derivative, &index)
	if twap.Derivative.Cmp(testutil.WAD(777)) != 0 {
		t.Errorf("got %s, want %s", twap.Derivative, testutil.WAD(777))
	}
}

func TestCalculateTWAP_WrapsThroughMidnight(t *testing.T) {
	// Current hour 1 reaches back through hour 0 into hours 23, 22, ...
	derivative := emptyBuckets()
	index := emptyBuckets()
	derivative[23].Record(testutil.WAD(500))

	twap := pricing.CalculateTWAP(1, &derivative, &index)
	if twap.Derivative.Cmp(testutil.WAD(500)) != 0 {
		t.Errorf("got %s, want %s", twap.Derivative, testutil.WAD(500))
	}
}

func TestCalculateTWAP_IgnoresBucketsOutsideWindow(t *testing.T) {
	derivative := emptyBuckets()
	index := emptyBuckets()
	derivative[5].Record(testutil.WAD(1000))
	derivative[20].Record(testutil.WAD(999_999)) // 9 hours back, outside the window

	twap := pricing.CalculateTWAP(5, &derivative, &index)
	if twap.Derivative.Cmp(testutil.WAD(1000)) != 0 {
		t.Errorf("got %s, want %s", twap.Derivative, testutil.WAD(1000))
	}
}

// ============================================================================
// Test: TimeValue / FairPrice
// ============================================================================

func TestTimeValue(t *testing.T) {
	tv, err := pricing.TimeValue(testutil.WAD(1090), testutil.WAD(1000))
	if err != nil {
		t.Fatalf("TimeValue: %v", err)
	}
	if tv.Cmp(testutil.WAD(1)) != 0 {
		t.Errorf("got %s, want %s", tv, testutil.WAD(1))
	}
}

func TestTimeValue_NegativeBasis(t *testing.T) {
	tv, err := pricing.TimeValue(testutil.WAD(910), testutil.WAD(1000))
	if err != nil {
		t.Fatalf("TimeValue: %v", err)
	}
	if tv.Cmp(testutil.WAD(-1)) != 0 {
		t.Errorf("got %s, want %s", tv, testutil.WAD(-1))
	}
}

func TestFairPrice_FlooredAtZero(t *testing.T) {
	fp, err := pricing.FairPrice(testutil.WAD(10), testutil.WAD(50))
	if err != nil {
		t.Fatalf("FairPrice: %v", err)
	}
	if fp.Sign() != 0 {
		t.Errorf("got %s, want 0", fp)
	}
}

func TestFairPrice_NegativeTimeValueRaises(t *testing.T) {
	fp, err := pricing.FairPrice(testutil.WAD(1000), testutil.WAD(-10))
	if err != nil {
		t.Fatalf("FairPrice: %v", err)
	}
	if fp.Cmp(testutil.WAD(1010)) != 0 {
		t.Errorf("got %s, want %s", fp, testutil.WAD(1010))
	}
}

// ============================================================================
// Test: Engine funding accrual
// ============================================================================

func TestEngine_CatchUpAppendsPerBoundary(t *testing.T) {
	start := int64(3600 * 100)
	e := pricing.NewEngine(testutil.WAD(1), start)

	if e.LastFundingIndex() != 0 {
		t.Fatalf("genesis index got %d, want 0", e.LastFundingIndex())
	}

	// Three hours later: three entries per history.
	if err := e.CatchUp(start+3*3600, testutil.WAD(1000), new(big.Int)); err != nil {
		t.Fatalf("CatchUp: %v", err)
	}
	if e.LastFundingIndex() != 3 {
		t.Errorf("funding index got %d, want 3", e.LastFundingIndex())
	}
	if e.LastInsuranceIndex() != 3 {
		t.Errorf("insurance index got %d, want 3", e.LastInsuranceIndex())
	}
}

func TestEngine_SameHourNoAppend(t *testing.T) {
	start := int64(3600 * 100)
	e := pricing.NewEngine(testutil.WAD(1), start)

	if err := e.CatchUp(start+1800, testutil.WAD(1000), new(big.Int)); err != nil {
		t.Fatalf("CatchUp: %v", err)
	}
	if e.LastFundingIndex() != 0 {
		t.Errorf("mid-hour catch-up should not append, got index %d", e.LastFundingIndex())
	}
}

func TestEngine_InstantRateFromFairIndexGap(t *testing.T) {
	start := int64(3600 * 100)
	e := pricing.NewEngine(testutil.WAD(1), start)

	// Derivative trades at a premium all hour. With identical derivative and
	// index TWAPs of 1090 vs 1000, timeValue = 1, fair = 999, gap = -1, and
	// the hourly rate is -1/8766 WAD.
	e.RecordTrade(testutil.WAD(1090), testutil.WAD(1000), start+60)
	if err := e.CatchUp(start+3600, testutil.WAD(1000), new(big.Int)); err != nil {
		t.Fatalf("CatchUp: %v", err)
	}

	entry := e.FundingEntry(1)
	want := new(big.Int).Quo(testutil.WAD(-1), big.NewInt(8766))
	if entry.InstantaneousRate.Cmp(want) != 0 {
		t.Errorf("rate got %s, want %s", entry.InstantaneousRate, want)
	}
	if entry.CumulativeRate.Cmp(want) != 0 {
		t.Errorf("cumulative got %s, want %s", entry.CumulativeRate, want)
	}
}

func TestEngine_InsuranceHistoryCarriesPoolRate(t *testing.T) {
	start := int64(3600 * 100)
	e := pricing.NewEngine(testutil.WAD(1), start)

	poolRate := big.NewInt(12345)
	if err := e.CatchUp(start+2*3600, testutil.WAD(1000), poolRate); err != nil {
		t.Fatalf("CatchUp: %v", err)
	}

	entry := e.InsuranceEntry(2)
	if entry.InstantaneousRate.Cmp(poolRate) != 0 {
		t.Errorf("insurance rate got %s, want %s", entry.InstantaneousRate, poolRate)
	}
	wantCum := new(big.Int).Mul(poolRate, big.NewInt(2))
	if entry.CumulativeRate.Cmp(wantCum) != 0 {
		t.Errorf("insurance cumulative got %s, want %s", entry.CumulativeRate, wantCum)
	}
}

func TestAccruedFunding_WatermarkDelta(t *testing.T) {
	start := int64(3600 * 100)
	e := pricing.NewEngine(testutil.WAD(1), start)
	poolRate := big.NewInt(1000)
	if err := e.CatchUp(start+3*3600, testutil.WAD(1000), poolRate); err != nil {
		t.Fatalf("CatchUp: %v", err)
	}

	accrued := pricing.AccruedFunding(e.InsuranceEntry, 1, 3)
	want := new(big.Int).Mul(poolRate, big.NewInt(2))
	if accrued.Cmp(want) != 0 {
		t.Errorf("accrued got %s, want %s", accrued, want)
	}

	if got := pricing.AccruedFunding(e.InsuranceEntry, 3, 3); got.Sign() != 0 {
		t.Errorf("same watermark should accrue 0, got %s", got)
	}
}
