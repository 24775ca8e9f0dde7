// Package pricing maintains the hourly time-weighted average prices for the
// index and the derivative, derives the time value and fair price, and
// accumulates the global funding-rate indices. All time-based transitions
// are caught up lazily when an operation next touches pricing; there are no
// background timers.
package pricing

import (
	"math/big"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
)

// PriceUndefined is the sentinel average for an hourly bucket that saw no
// trades. A bucket carrying this value contributes neither value nor weight
// to a TWAP.
var PriceUndefined = fixed.Clone(fixed.MaxUint256)

// PriceInstant is one hourly bucket: the sum of trade prices and the trade
// count. The average is CumulativePrice / Trades.
type PriceInstant struct {
	CumulativePrice *big.Int
	Trades          *big.Int
}

// NewPriceInstant returns an empty bucket.
func NewPriceInstant() PriceInstant {
	return PriceInstant{CumulativePrice: new(big.Int), Trades: new(big.Int)}
}

// Record folds one trade price into the bucket.
func (p *PriceInstant) Record(price *big.Int) {
	p.CumulativePrice = new(big.Int).Add(p.CumulativePrice, price)
	p.Trades = new(big.Int).Add(p.Trades, big.NewInt(1))
}

// Average returns the bucket's mean price, or PriceUndefined when the bucket
// saw no trades.
func (p PriceInstant) Average() *big.Int {
	if fixed.IsZero(p.Trades) {
		return fixed.Clone(PriceUndefined)
	}
	return new(big.Int).Quo(p.CumulativePrice, p.Trades)
}

// reset clears the bucket for a new daily cycle.
func (p *PriceInstant) reset() {
	p.CumulativePrice = new(big.Int)
	p.Trades = new(big.Int)
}

// isUndefined reports whether v is the no-trades sentinel.
func isUndefined(v *big.Int) bool {
	return v.Cmp(PriceUndefined) == 0
}
