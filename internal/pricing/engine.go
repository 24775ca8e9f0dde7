package pricing

import (
	"math/big"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
)

// hoursPerYear converts the annualized funding-rate sensitivity into an
// hourly rate slice.
const hoursPerYear = 8766

// FundingRateEntry is one hour's funding observation. Entries are
// append-only, one per hour boundary crossed, indexed by position in the
// history.
type FundingRateEntry struct {
	Timestamp         int64
	InstantaneousRate *big.Int // signed WAD
	CumulativeRate    *big.Int // signed WAD running sum
}

// Engine owns the hourly price buffers and the funding-rate histories. It is
// mutated only by the single operation in flight; callers must invoke
// CatchUp at the start of any state-mutating call before reading rates.
type Engine struct {
	derivative [24]PriceInstant
	index      [24]PriceInstant

	// lastHourID is the absolute hour (unix / 3600) the buffers are
	// current for.
	lastHourID int64

	funding   []FundingRateEntry
	insurance []FundingRateEntry

	// fundingRateSensitivity is the protocol-tuned annualized factor, WAD.
	fundingRateSensitivity *big.Int
}

// NewEngine seeds both histories with a zero genesis entry so every account
// watermark has a valid target.
func NewEngine(fundingRateSensitivity *big.Int, startTime int64) *Engine {
	e := &Engine{
		lastHourID:             startTime / 3600,
		fundingRateSensitivity: fixed.Clone(fundingRateSensitivity),
	}
	for i := range e.derivative {
		e.derivative[i] = NewPriceInstant()
		e.index[i] = NewPriceInstant()
	}
	genesis := FundingRateEntry{
		Timestamp:         startTime,
		InstantaneousRate: new(big.Int),
		CumulativeRate:    new(big.Int),
	}
	e.funding = []FundingRateEntry{genesis}
	e.insurance = []FundingRateEntry{genesis}
	return e
}

// RecordTrade folds an executed trade price and the index price observed at
// execution into the current hour's buckets.
func (e *Engine) RecordTrade(executionPrice, indexPrice *big.Int, now int64) {
	hour := hourOfDay(now)
	e.derivative[hour].Record(executionPrice)
	e.index[hour].Record(indexPrice)
}

// CatchUp advances the engine across any hour boundaries between its last
// update and now, appending one funding entry (and one insurance funding
// entry at poolFundingRate) per boundary crossed. Buckets entering the new
// hour are reset, overwriting the previous daily cycle.
func (e *Engine) CatchUp(now int64, indexPrice, poolFundingRate *big.Int) error {
	nowHourID := now / 3600

	for e.lastHourID < nowHourID {
		closedHour := hourOfDay(e.lastHourID * 3600)
		boundary := (e.lastHourID + 1) * 3600

		instant, err := e.instantRate(closedHour, indexPrice)
		if err != nil {
			return err
		}
		if err := e.append(&e.funding, boundary, instant); err != nil {
			return err
		}
		if err := e.append(&e.insurance, boundary, fixed.Clone(poolFundingRate)); err != nil {
			return err
		}

		e.lastHourID++
		e.derivative[hourOfDay(e.lastHourID*3600)].reset()
		e.index[hourOfDay(e.lastHourID*3600)].reset()
	}
	return nil
}

// instantRate derives the hourly funding rate from the gap between fair
// price and index price over the closed hour.
func (e *Engine) instantRate(closedHour int, indexPrice *big.Int) (*big.Int, error) {
	fair, err := e.fairPriceAt(closedHour, indexPrice)
	if err != nil {
		return nil, err
	}
	gap, err := fixed.Sub(fair, indexPrice)
	if err != nil {
		return nil, err
	}
	rate, err := fixed.Mul(gap, e.fundingRateSensitivity)
	if err != nil {
		return nil, err
	}
	return rate.Quo(rate, big.NewInt(hoursPerYear)), nil
}

func (e *Engine) append(history *[]FundingRateEntry, timestamp int64, instant *big.Int) error {
	prev := (*history)[len(*history)-1]
	cumulative, err := fixed.Add(prev.CumulativeRate, instant)
	if err != nil {
		return err
	}
	*history = append(*history, FundingRateEntry{
		Timestamp:         timestamp,
		InstantaneousRate: instant,
		CumulativeRate:    cumulative,
	})
	return nil
}

// FairPrice computes the current fair price: the index price adjusted by the
// TWAP basis. When either TWAP is undefined the basis is treated as zero and
// the raw index price stands.
func (e *Engine) FairPrice(indexPrice *big.Int, now int64) (*big.Int, error) {
	return e.fairPriceAt(hourOfDay(now), indexPrice)
}

func (e *Engine) fairPriceAt(hour int, indexPrice *big.Int) (*big.Int, error) {
	twap := CalculateTWAP(hour, &e.derivative, &e.index)
	if isUndefined(twap.Derivative) || isUndefined(twap.Index) {
		return fixed.Clone(indexPrice), nil
	}
	tv, err := TimeValue(twap.Derivative, twap.Index)
	if err != nil {
		return nil, err
	}
	return FairPrice(indexPrice, tv)
}

// CurrentTWAP returns the TWAPs as of now.
func (e *Engine) CurrentTWAP(now int64) TWAP {
	return CalculateTWAP(hourOfDay(now), &e.derivative, &e.index)
}

// LastFundingIndex is the index of the newest funding entry.
func (e *Engine) LastFundingIndex() uint64 {
	return uint64(len(e.funding) - 1)
}

// FundingEntry returns the funding entry at index i.
func (e *Engine) FundingEntry(i uint64) FundingRateEntry {
	return e.funding[i]
}

// LastInsuranceIndex is the index of the newest insurance funding entry.
func (e *Engine) LastInsuranceIndex() uint64 {
	return uint64(len(e.insurance) - 1)
}

// InsuranceEntry returns the insurance funding entry at index i.
func (e *Engine) InsuranceEntry(i uint64) FundingRateEntry {
	return e.insurance[i]
}

// AccruedFunding is the cumulative-rate delta between two watermarks in a
// history: what one WAD of leveraged value owes across that span.
func AccruedFunding(history func(uint64) FundingRateEntry, from, to uint64) *big.Int {
	if to <= from {
		return new(big.Int)
	}
	return new(big.Int).Sub(history(to).CumulativeRate, history(from).CumulativeRate)
}

func hourOfDay(now int64) int {
	return int((now / 3600) % 24)
}
