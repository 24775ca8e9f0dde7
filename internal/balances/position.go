// Package balances holds the position and margin model: the pure functions
// that compute net value, margin, and leveraged notional value from a
// (quote, base) position and a price. Nothing in this package touches shared
// state, so every function is independently unit-testable.
package balances

import (
	"math/big"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
)

// Position is one account's holdings in a market. Quote is margin currency,
// base is derivative units (positive = long, negative = short). Both WAD.
type Position struct {
	Quote *big.Int
	Base  *big.Int
}

// NewPosition returns a flat position.
func NewPosition() Position {
	return Position{Quote: new(big.Int), Base: new(big.Int)}
}

// Clone returns an independent copy.
func (p Position) Clone() Position {
	return Position{Quote: fixed.Clone(p.Quote), Base: fixed.Clone(p.Base)}
}

// NetValue is the mark-to-market value of the derivative leg: base * price.
// A price of exactly zero yields zero regardless of base.
func NetValue(p Position, price *big.Int) (*big.Int, error) {
	if fixed.IsZero(price) {
		return new(big.Int), nil
	}
	return fixed.Mul(p.Base, price)
}

// Margin is total account equity: quote + netValue.
func Margin(p Position, price *big.Int) (*big.Int, error) {
	nv, err := NetValue(p, price)
	if err != nil {
		return nil, err
	}
	return fixed.Add(p.Quote, nv)
}

// NotionalValue is |base| * price.
func NotionalValue(p Position, price *big.Int) (*big.Int, error) {
	if fixed.IsZero(price) {
		return new(big.Int), nil
	}
	return fixed.UMul(fixed.Abs(p.Base), price)
}

// LeveragedNotionalValue is the notional exposure not already covered by
// margin: max(0, notional - margin). This, not raw notional, is what the
// insurance pool sizes itself against.
func LeveragedNotionalValue(p Position, price *big.Int) (*big.Int, error) {
	notional, err := NotionalValue(p, price)
	if err != nil {
		return nil, err
	}
	margin, err := Margin(p, price)
	if err != nil {
		return nil, err
	}
	if margin.Cmp(notional) >= 0 {
		return new(big.Int), nil
	}
	return new(big.Int).Sub(notional, margin), nil
}

// MinimumMargin is the margin floor an open position must hold:
// notional / maxLeverage + liquidationGasCost. A flat position has no floor.
// maxLeverage is WAD-scaled (12.5x = 12.5e18).
func MinimumMargin(p Position, price, liquidationGasCost, maxLeverage *big.Int) (*big.Int, error) {
	if p.Base.Sign() == 0 {
		return new(big.Int), nil
	}
	notional, err := NotionalValue(p, price)
	if err != nil {
		return nil, err
	}
	base, err := fixed.UDiv(notional, maxLeverage)
	if err != nil {
		return nil, err
	}
	return fixed.Add(base, liquidationGasCost)
}

// MarginIsValid reports whether the position's margin meets its minimum at
// the given price. A flat position is valid whenever its quote is
// non-negative.
func MarginIsValid(p Position, price, liquidationGasCost, maxLeverage *big.Int) (bool, error) {
	if p.Base.Sign() == 0 {
		return p.Quote.Sign() >= 0, nil
	}
	minMargin, err := MinimumMargin(p, price, liquidationGasCost, maxLeverage)
	if err != nil {
		return false, err
	}
	margin, err := Margin(p, price)
	if err != nil {
		return false, err
	}
	return margin.Cmp(minMargin) >= 0, nil
}
