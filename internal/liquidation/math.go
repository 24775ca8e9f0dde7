// Package liquidation implements the liquidation engine's pure math and the
// append-only receipt ledger. The orchestration (escrowing collateral,
// matching against the market, drawing on the insurance pool) lives in the
// market package; everything here is state-free or append-only.
package liquidation

import (
	"math/big"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/order"
)

// EscrowLiquidationAmount computes the collateral escrowed against a
// liquidated position. At or above the minimum margin the whole margin is
// escrowed; below it the escrow shrinks twice as fast as the shortfall,
// floored at zero:
//
//	margin >= minMargin -> margin
//	otherwise           -> max(0, margin - (minMargin - margin))
func EscrowLiquidationAmount(minMargin, margin *big.Int) *big.Int {
	if margin.Cmp(minMargin) >= 0 {
		return fixed.Clone(margin)
	}
	shortfall := new(big.Int).Sub(minMargin, margin)
	escrow := new(big.Int).Sub(margin, shortfall)
	return fixed.Max(escrow, new(big.Int))
}

// BalanceChanges are the deltas applied to both parties of a liquidation.
// Liquidator and liquidatee changes are exact sign-mirrors.
type BalanceChanges struct {
	LiquidatorQuote *big.Int
	LiquidatorBase  *big.Int
	LiquidateeQuote *big.Int
	LiquidateeBase  *big.Int
}

// LiquidationBalanceChanges pro-rates the liquidatee's whole position by
// amount/liquidatedBase: the liquidatee loses that fraction of both legs and
// the liquidator receives its mirror image. A zero amount yields all-zero
// changes.
func LiquidationBalanceChanges(liquidatedBase, liquidatedQuote, amount *big.Int) (BalanceChanges, error) {
	zero := func() BalanceChanges {
		return BalanceChanges{
			LiquidatorQuote: new(big.Int),
			LiquidatorBase:  new(big.Int),
			LiquidateeQuote: new(big.Int),
			LiquidateeBase:  new(big.Int),
		}
	}
	if amount.Sign() == 0 {
		return zero(), nil
	}

	portion, err := fixed.Div(amount, liquidatedBase)
	if err != nil {
		return BalanceChanges{}, err
	}
	quoteShare, err := fixed.Mul(liquidatedQuote, portion)
	if err != nil {
		return BalanceChanges{}, err
	}

	return BalanceChanges{
		LiquidatorQuote: fixed.Clone(quoteShare),
		LiquidatorBase:  fixed.Clone(amount),
		LiquidateeQuote: new(big.Int).Neg(quoteShare),
		LiquidateeBase:  new(big.Int).Neg(amount),
	}, nil
}

// CalculateSlippage is the value the liquidator lost selling the acquired
// position against the receipt's reference price. For a liquidated long the
// liquidator sells, so slippage is (receiptPrice - avgSalePrice) * units;
// for a short it is mirrored. Favorable movement yields zero, and the result
// is capped at maxSlippagePercent of the receipt-priced notional.
func CalculateSlippage(
	unitsSold, maxSlippagePercent, avgSalePrice, receiptPrice *big.Int,
	liquidationSide order.Side,
) (*big.Int, error) {
	var diff *big.Int
	var err error
	if liquidationSide == order.Long {
		diff, err = fixed.Sub(receiptPrice, avgSalePrice)
	} else {
		diff, err = fixed.Sub(avgSalePrice, receiptPrice)
	}
	if err != nil {
		return nil, err
	}
	if diff.Sign() <= 0 {
		return new(big.Int), nil
	}

	slippage, err := fixed.UMul(diff, unitsSold)
	if err != nil {
		return nil, err
	}

	notional, err := fixed.UMul(receiptPrice, unitsSold)
	if err != nil {
		return nil, err
	}
	cap, err := fixed.UMul(maxSlippagePercent, notional)
	if err != nil {
		return nil, err
	}
	return fixed.Min(slippage, cap), nil
}
