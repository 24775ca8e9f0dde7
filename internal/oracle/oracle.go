// Package oracle defines the single capability interface the core depends
// on for every external price source: the index feed, the gas-cost feed, and
// any custom adapter all answer the same question.
package oracle

import (
	"math/big"
	"sync"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
)

// Oracle answers with a WAD-scaled price. Adapters that normalize raw feed
// formats live outside the core; the core never parses feeds.
type Oracle interface {
	LatestAnswer() (*big.Int, error)
}

// Static is a fixed-answer oracle, mostly for wiring and tests.
type Static struct {
	answer *big.Int
}

// NewStatic returns an oracle that always answers v.
func NewStatic(v *big.Int) *Static {
	return &Static{answer: fixed.Clone(v)}
}

func (s *Static) LatestAnswer() (*big.Int, error) {
	return fixed.Clone(s.answer), nil
}

// Adjustable is a mutable oracle for simulation and tests. It is the only
// oracle in this package that may be written from outside the serial
// operation stream, so it carries its own lock.
type Adjustable struct {
	mu     sync.Mutex
	answer *big.Int
}

// NewAdjustable returns an adjustable oracle starting at v.
func NewAdjustable(v *big.Int) *Adjustable {
	return &Adjustable{answer: fixed.Clone(v)}
}

func (a *Adjustable) LatestAnswer() (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fixed.Clone(a.answer), nil
}

// SetAnswer replaces the oracle's answer.
func (a *Adjustable) SetAnswer(v *big.Int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answer = fixed.Clone(v)
}
