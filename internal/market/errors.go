package market

import (
	"errors"
	"fmt"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/order"
)

var (
	// ErrInvalidConfiguration covers cross-field parameter violations,
	// rejected before any state mutation.
	ErrInvalidConfiguration = errors.New("market: invalid configuration")

	// ErrNotOwner rejects parameter updates from anyone but the admin.
	ErrNotOwner = errors.New("market: caller is not the owner")

	// ErrInsufficientMargin rejects an operation that would leave an
	// account under its minimum margin.
	ErrInsufficientMargin = errors.New("market: insufficient margin")

	// ErrAccountNotLiquidatable rejects liquidating an account whose
	// margin still meets its minimum.
	ErrAccountNotLiquidatable = errors.New("market: account margin above minimum")

	// ErrInvalidLiquidationAmount rejects a liquidation amount that is
	// zero, negative, or above the liquidatee's base position.
	ErrInvalidLiquidationAmount = errors.New("market: invalid liquidation amount")

	// ErrInsufficientFunds propagates collateral-token transfer shortfalls.
	ErrInsufficientFunds = errors.New("market: insufficient funds")

	// ErrInvalidFill rejects a fill amount beyond either order's remainder.
	ErrInvalidFill = errors.New("market: fill exceeds order remainder")

	// ErrInvalidClaimOrder rejects a claim order that does not belong to
	// the liquidator, targets another market, predates the receipt, or
	// sells the wrong side.
	ErrInvalidClaimOrder = errors.New("market: order not usable for receipt claim")
)

// MatchError wraps a non-valid matching outcome so callers can retrieve the
// validator's verdict.
type MatchError struct {
	Result order.MatchResult
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("market: orders cannot match: %s", e.Result)
}
