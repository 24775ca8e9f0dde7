package pricing

import (
	"math/big"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
)

// twapWindow is the number of hourly buckets a TWAP looks back over.
const twapWindow = 8

// timeValueDivisor smooths the derivative/index basis over a fixed window.
const timeValueDivisor = 90

// TWAP holds the weighted averages for both sides of the market; either may
// be PriceUndefined when every contributing bucket was empty.
type TWAP struct {
	Derivative *big.Int
	Index      *big.Int
}

// CalculateTWAP walks the 8 most recent hourly buckets ending at
// currentHour (wrapping through hour 0) with a linearly decaying weight:
// the current hour weighs 8, the hour before 7, down to 1. Buckets with no
// trades are skipped, not zero-filled.
func CalculateTWAP(currentHour int, derivative, index *[24]PriceInstant) TWAP {
	return TWAP{
		Derivative: weightedAverage(currentHour, derivative),
		Index:      weightedAverage(currentHour, index),
	}
}

func weightedAverage(currentHour int, buckets *[24]PriceInstant) *big.Int {
	sum := new(big.Int)
	totalWeight := new(big.Int)

	for distance := 0; distance < twapWindow; distance++ {
		hour := (currentHour - distance + 24) % 24
		avg := buckets[hour].Average()
		if isUndefined(avg) {
			continue
		}
		weight := big.NewInt(int64(twapWindow - distance))
		sum.Add(sum, new(big.Int).Mul(avg, weight))
		totalWeight.Add(totalWeight, weight)
	}

	if totalWeight.Sign() == 0 {
		return fixed.Clone(PriceUndefined)
	}
	return sum.Quo(sum, totalWeight)
}

// TimeValue is the basis between the derivative and index TWAPs, smoothed by
// a fixed 90-day-style divisor: (avgDerivative - avgIndex) / 90.
func TimeValue(avgDerivative, avgIndex *big.Int) (*big.Int, error) {
	diff, err := fixed.Sub(avgDerivative, avgIndex)
	if err != nil {
		return nil, err
	}
	return diff.Quo(diff, big.NewInt(timeValueDivisor)), nil
}

// FairPrice adjusts the index price by the time value, floored at zero: a
// sufficiently large positive time value cannot produce a negative price.
func FairPrice(indexPrice, timeValue *big.Int) (*big.Int, error) {
	adjusted, err := fixed.Sub(indexPrice, timeValue)
	if err != nil {
		return nil, err
	}
	return fixed.Max(adjusted, new(big.Int)), nil
}
