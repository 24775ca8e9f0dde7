package market

import (
	"fmt"
	"math/big"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/insurance"
)

// Params are the governance-supplied protocol parameters. The core treats
// them as opaque configuration with one cross-field invariant: the insurance
// pool switch stage must sit strictly below the deleveraging cliff.
type Params struct {
	// MaxLeverage is the default leverage ceiling, WAD (12.5x = 12.5e18).
	MaxLeverage *big.Int
	// LowestMaxLeverage is the ceiling applied when the insurance pool is
	// nearly empty, WAD.
	LowestMaxLeverage *big.Int
	// DeleveragingCliff is the pool funding percentage (WAD percent) at and
	// above which the default ceiling applies.
	DeleveragingCliff *big.Int
	// InsurancePoolSwitchStage is the pool funding percentage (WAD percent)
	// at and below which the lowest ceiling applies.
	InsurancePoolSwitchStage *big.Int
	// MaxSlippage caps liquidation slippage as a WAD fraction of the
	// receipt-priced notional.
	MaxSlippage *big.Int
	// FeeRate is charged on each side's fill notional, WAD fraction.
	FeeRate *big.Int
	// FundingRateSensitivity is the annualized funding factor, WAD.
	FundingRateSensitivity *big.Int
	// InsuranceFundingRateFactor is the quadratic pool-rate coefficient, WAD.
	InsuranceFundingRateFactor *big.Int
	// LiquidationGasUnits converts the gas oracle's per-unit cost into the
	// margin currency cost of one liquidation call. Unscaled.
	LiquidationGasUnits *big.Int
	// ReceiptClaimWindow is how long, in seconds, a liquidator has to sell
	// the acquired position and claim its receipt.
	ReceiptClaimWindow int64
}

// DefaultParams are protocol-tuned values; the factors are named
// configuration, not derived quantities.
func DefaultParams() Params {
	return Params{
		MaxLeverage:                new(big.Int).Quo(new(big.Int).Mul(big.NewInt(125), fixed.WAD), big.NewInt(10)),
		LowestMaxLeverage:          fixed.FromInt64(2),
		DeleveragingCliff:          fixed.FromInt64(20),
		InsurancePoolSwitchStage:   fixed.FromInt64(1),
		MaxSlippage:                new(big.Int).Quo(fixed.WAD, big.NewInt(2)),
		FeeRate:                    new(big.Int),
		FundingRateSensitivity:     fixed.Clone(fixed.WAD),
		InsuranceFundingRateFactor: big.NewInt(36_523_000_000_000),
		LiquidationGasUnits:        big.NewInt(63_516),
		ReceiptClaimWindow:         15 * 60,
	}
}

// Validate rejects cross-field violations before any state mutation.
func (p Params) Validate() error {
	if p.InsurancePoolSwitchStage.Cmp(p.DeleveragingCliff) >= 0 {
		return fmt.Errorf("%w: switch stage %s >= deleveraging cliff %s",
			insurance.ErrInvalidLeverageParams, p.InsurancePoolSwitchStage, p.DeleveragingCliff)
	}
	if p.MaxLeverage.Sign() <= 0 || p.LowestMaxLeverage.Sign() <= 0 {
		return fmt.Errorf("%w: leverage bounds must be positive", ErrInvalidConfiguration)
	}
	if p.LowestMaxLeverage.Cmp(p.MaxLeverage) > 0 {
		return fmt.Errorf("%w: lowest max leverage above default", ErrInvalidConfiguration)
	}
	if p.MaxSlippage.Sign() < 0 || p.FeeRate.Sign() < 0 {
		return fmt.Errorf("%w: negative rate", ErrInvalidConfiguration)
	}
	if p.ReceiptClaimWindow <= 0 {
		return fmt.Errorf("%w: claim window must be positive", ErrInvalidConfiguration)
	}
	return nil
}

// clone returns an independent copy so governance updates cannot alias
// big.Int state held by the market.
func (p Params) clone() Params {
	q := p
	q.MaxLeverage = fixed.Clone(p.MaxLeverage)
	q.LowestMaxLeverage = fixed.Clone(p.LowestMaxLeverage)
	q.DeleveragingCliff = fixed.Clone(p.DeleveragingCliff)
	q.InsurancePoolSwitchStage = fixed.Clone(p.InsurancePoolSwitchStage)
	q.MaxSlippage = fixed.Clone(p.MaxSlippage)
	q.FeeRate = fixed.Clone(p.FeeRate)
	q.FundingRateSensitivity = fixed.Clone(p.FundingRateSensitivity)
	q.InsuranceFundingRateFactor = fixed.Clone(p.InsuranceFundingRateFactor)
	q.LiquidationGasUnits = fixed.Clone(p.LiquidationGasUnits)
	return q
}
