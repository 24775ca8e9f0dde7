package insurance

import (
	"errors"
	"math/big"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
)

// ErrInvalidLeverageParams rejects a configuration whose switch stage is not
// strictly below the deleveraging cliff. This is a configuration invariant,
// checked before any state mutation.
var ErrInvalidLeverageParams = errors.New("insurance: switch stage must be below deleveraging cliff")

var hundred = fixed.FromInt64(100)

// TrueMaxLeverage throttles new leverage as the backstop thins. With the
// pool's percent-of-target funding level pct = collateral/target * 100:
//
//	pct <= switchStage        -> lowestMaxLeverage
//	pct >= deleveragingCliff  -> defaultMaxLeverage
//	otherwise                 -> linear ramp between the two
//
// All arguments are WAD-scaled; the cliff and switch stage are WAD percents.
func TrueMaxLeverage(
	collateral, target *big.Int,
	defaultMaxLeverage, lowestMaxLeverage *big.Int,
	deleveragingCliff, insurancePoolSwitchStage *big.Int,
) (*big.Int, error) {
	if insurancePoolSwitchStage.Cmp(deleveragingCliff) >= 0 {
		return nil, ErrInvalidLeverageParams
	}

	// A zero target needs no backstop, so the pool counts as fully funded.
	if target.Sign() <= 0 {
		return fixed.Clone(defaultMaxLeverage), nil
	}
	ratio, err := fixed.UDiv(collateral, target)
	if err != nil {
		return nil, err
	}
	pct, err := fixed.UMul(ratio, hundred)
	if err != nil {
		return nil, err
	}

	if pct.Cmp(insurancePoolSwitchStage) <= 0 {
		return fixed.Clone(lowestMaxLeverage), nil
	}
	if pct.Cmp(deleveragingCliff) >= 0 {
		return fixed.Clone(defaultMaxLeverage), nil
	}

	// fraction = (default - lowest) / (cliff - switchStage)
	span, err := fixed.Sub(defaultMaxLeverage, lowestMaxLeverage)
	if err != nil {
		return nil, err
	}
	width, err := fixed.Sub(deleveragingCliff, insurancePoolSwitchStage)
	if err != nil {
		return nil, err
	}
	fraction, err := fixed.Div(span, width)
	if err != nil {
		return nil, err
	}

	// result = fraction*pct + (lowest - fraction*switchStage)
	ramp, err := fixed.Mul(fraction, pct)
	if err != nil {
		return nil, err
	}
	offset, err := fixed.Mul(fraction, insurancePoolSwitchStage)
	if err != nil {
		return nil, err
	}
	intercept, err := fixed.Sub(lowestMaxLeverage, offset)
	if err != nil {
		return nil, err
	}
	return fixed.Add(ramp, intercept)
}
