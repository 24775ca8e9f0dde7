package balances

import (
	"math/big"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
)

// AccountBalance is one trading account's state in one market. Funding is
// applied lazily: LastUpdatedFundingIndex is a watermark into the global
// funding-rate history and balances catch up on next touch.
type AccountBalance struct {
	Position Position

	// TotalLeveragedValue is the account's leveraged notional at last
	// update. Invariant: never negative.
	TotalLeveragedValue *big.Int

	LastUpdatedFundingIndex uint64
	LastUpdatedGasPrice     *big.Int
}

// NewAccountBalance returns an empty account at funding index zero.
func NewAccountBalance() *AccountBalance {
	return &AccountBalance{
		Position:            NewPosition(),
		TotalLeveragedValue: new(big.Int),
		LastUpdatedGasPrice: new(big.Int),
	}
}

// UpdateLeveragedValue recomputes TotalLeveragedValue at the given price and
// returns the signed delta against the previous value, so the caller can
// maintain the market-wide aggregate incrementally.
func (a *AccountBalance) UpdateLeveragedValue(price *big.Int) (*big.Int, error) {
	lv, err := LeveragedNotionalValue(a.Position, price)
	if err != nil {
		return nil, err
	}
	delta := new(big.Int).Sub(lv, a.TotalLeveragedValue)
	a.TotalLeveragedValue = lv
	return delta, nil
}

// ApplyTrade mutates the position for a fill of amount units at price.
// Long side gains base and pays quote; short side is the mirror.
func (a *AccountBalance) ApplyTrade(amount, price *big.Int, long bool) error {
	cost, err := fixed.UMul(amount, price)
	if err != nil {
		return err
	}
	if long {
		a.Position.Base = new(big.Int).Add(a.Position.Base, amount)
		a.Position.Quote = new(big.Int).Sub(a.Position.Quote, cost)
	} else {
		a.Position.Base = new(big.Int).Sub(a.Position.Base, amount)
		a.Position.Quote = new(big.Int).Add(a.Position.Quote, cost)
	}
	if err := fixed.CheckSigned(a.Position.Base); err != nil {
		return err
	}
	return fixed.CheckSigned(a.Position.Quote)
}
