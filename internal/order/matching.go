package order

import (
	"math/big"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
)

// MatchResult is the closed outcome set of the matching validator.
type MatchResult uint8

const (
	Valid MatchResult = iota
	MarketMismatch
	SelfMatch
	SideMismatch
	PriceMismatch
	InvalidTime
	Expired
	Filled
)

func (r MatchResult) String() string {
	switch r {
	case Valid:
		return "valid"
	case MarketMismatch:
		return "market_mismatch"
	case SelfMatch:
		return "self_match"
	case SideMismatch:
		return "side_mismatch"
	case PriceMismatch:
		return "price_mismatch"
	case InvalidTime:
		return "invalid_time"
	case Expired:
		return "expired"
	case Filled:
		return "filled"
	default:
		return "unknown"
	}
}

// CanMatch decides whether two orders may be matched at time now. Outcomes
// are evaluated in a fixed precedence: market, self-match, side, price
// crossing, creation time, expiry, fill state. The first violation wins, so
// a same-side pair reports SideMismatch even when its prices would never
// cross.
func CanMatch(a *Order, filledA *big.Int, b *Order, filledB *big.Int, now int64) MatchResult {
	if a.Market != b.Market {
		return MarketMismatch
	}
	if a.Maker == b.Maker {
		return SelfMatch
	}
	if a.Side == b.Side {
		return SideMismatch
	}

	long, short := a, b
	if a.Side == Short {
		long, short = b, a
	}
	if long.Price.Cmp(short.Price) < 0 {
		return PriceMismatch
	}

	if a.Created > now || b.Created > now {
		return InvalidTime
	}
	if now > a.Expires || now > b.Expires {
		return Expired
	}
	if filledA.Cmp(a.Amount) >= 0 || filledB.Cmp(b.Amount) >= 0 {
		return Filled
	}
	return Valid
}

// AverageExecutionPrice folds a new fill into a running fill-weighted
// average: (oldFilled*oldAverage + fillChange*newFillPrice) / total fill.
// A zero-priced fill never contributes, and a fully-zero-amount fill has no
// average; both return zero.
func AverageExecutionPrice(oldFilled, oldAverage, fillChange, newFillPrice *big.Int) (*big.Int, error) {
	if fixed.IsZero(newFillPrice) {
		return new(big.Int), nil
	}
	total := new(big.Int).Add(oldFilled, fillChange)
	if total.Sign() == 0 {
		return new(big.Int), nil
	}

	prev, err := fixed.UMul(oldFilled, oldAverage)
	if err != nil {
		return nil, err
	}
	next, err := fixed.UMul(fillChange, newFillPrice)
	if err != nil {
		return nil, err
	}
	sum, err := fixed.Add(prev, next)
	if err != nil {
		return nil, err
	}
	return fixed.UDiv(sum, total)
}
