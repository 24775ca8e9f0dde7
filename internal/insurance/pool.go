// Package insurance implements the market's liquidation backstop: a pool of
// buffer collateral (pulled from the market's own held balance) and public
// collateral (staked by outside participants against pool tokens), sized
// against the market's leveraged value.
package insurance

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
)

// ErrInsufficientPoolTokens rejects a withdrawal larger than the staker's
// pool-token balance.
var ErrInsufficientPoolTokens = errors.New("insurance: insufficient pool tokens")

// targetPercent sizes the pool at 1% of the market's leveraged value.
var targetPercent = big.NewInt(100) // divisor form of 1%

// Pool is created exactly once per market, at first market initialization,
// and never destroyed. Pool tokens mint and burn 1:1 against raw public
// deposits; post-dilution pricing is out of scope.
type Pool struct {
	bufferCollateral *big.Int
	publicCollateral *big.Int
	poolTokenSupply  *big.Int

	tokenHolders map[common.Address]*big.Int

	// fundingRateFactor is the protocol-tuned quadratic coefficient, WAD.
	fundingRateFactor *big.Int
}

// NewPool returns an empty pool with the given funding-rate factor.
func NewPool(fundingRateFactor *big.Int) *Pool {
	return &Pool{
		bufferCollateral:  new(big.Int),
		publicCollateral:  new(big.Int),
		poolTokenSupply:   new(big.Int),
		tokenHolders:      make(map[common.Address]*big.Int),
		fundingRateFactor: fixed.Clone(fundingRateFactor),
	}
}

// SetFundingRateFactor replaces the quadratic coefficient, for governance
// parameter updates.
func (p *Pool) SetFundingRateFactor(factor *big.Int) {
	p.fundingRateFactor = fixed.Clone(factor)
}

// Holdings is buffer + public collateral.
func (p *Pool) Holdings() *big.Int {
	return new(big.Int).Add(p.bufferCollateral, p.publicCollateral)
}

// BufferCollateral returns the market-seeded share of the pool.
func (p *Pool) BufferCollateral() *big.Int {
	return fixed.Clone(p.bufferCollateral)
}

// PublicCollateral returns the staked share of the pool.
func (p *Pool) PublicCollateral() *big.Int {
	return fixed.Clone(p.publicCollateral)
}

// PoolTokenSupply returns the outstanding pool tokens.
func (p *Pool) PoolTokenSupply() *big.Int {
	return fixed.Clone(p.poolTokenSupply)
}

// TokenBalance returns holder's pool-token balance.
func (p *Pool) TokenBalance(holder common.Address) *big.Int {
	if bal, ok := p.tokenHolders[holder]; ok {
		return fixed.Clone(bal)
	}
	return new(big.Int)
}

// Target is 1% of the market's current leveraged value.
func (p *Pool) Target(marketLeveragedValue *big.Int) *big.Int {
	return new(big.Int).Quo(marketLeveragedValue, targetPercent)
}

// FundingRate charges leveraged accounts in proportion to the pool's own
// under-collateralization: factor * ((target - holdings) / target)^2. The
// quadratic makes a nearly-empty pool's charge rise steeply while a
// half-full pool pays a quarter of the factor. An over-funded pool
// contributes no rate, never a rebate.
func (p *Pool) FundingRate(marketLeveragedValue *big.Int) (*big.Int, error) {
	target := p.Target(marketLeveragedValue)
	if target.Sign() <= 0 {
		return new(big.Int), nil
	}

	shortfall := new(big.Int).Sub(target, p.Holdings())
	if shortfall.Sign() <= 0 {
		return new(big.Int), nil
	}

	ratio, err := fixed.UDiv(shortfall, target)
	if err != nil {
		return nil, err
	}
	squared, err := fixed.UMul(ratio, ratio)
	if err != nil {
		return nil, err
	}
	return fixed.UMul(p.fundingRateFactor, squared)
}

// Deposit stakes amount of public collateral and mints pool tokens 1:1.
func (p *Pool) Deposit(staker common.Address, amount *big.Int) error {
	if err := fixed.CheckUnsigned(amount); err != nil {
		return err
	}
	p.publicCollateral = new(big.Int).Add(p.publicCollateral, amount)
	p.poolTokenSupply = new(big.Int).Add(p.poolTokenSupply, amount)

	bal := p.TokenBalance(staker)
	p.tokenHolders[staker] = bal.Add(bal, amount)
	return nil
}

// Withdraw burns amount of the staker's pool tokens and releases the same
// amount of public collateral. Fails when the staker holds fewer tokens.
func (p *Pool) Withdraw(staker common.Address, amount *big.Int) error {
	if err := fixed.CheckUnsigned(amount); err != nil {
		return err
	}
	bal := p.TokenBalance(staker)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientPoolTokens, bal, amount)
	}

	p.publicCollateral = new(big.Int).Sub(p.publicCollateral, amount)
	p.poolTokenSupply = new(big.Int).Sub(p.poolTokenSupply, amount)

	bal.Sub(bal, amount)
	if bal.Sign() == 0 {
		delete(p.tokenHolders, staker)
	} else {
		p.tokenHolders[staker] = bal
	}
	return nil
}

// PullCollateral moves collateral the market has already credited to the
// pool's own balance into buffer collateral, returning the amount pulled.
// Idempotent: pulling a zero balance is a no-op.
func (p *Pool) PullCollateral(marketHeld *big.Int) *big.Int {
	if fixed.IsZero(marketHeld) || marketHeld.Sign() < 0 {
		return new(big.Int)
	}
	pulled := fixed.Clone(marketHeld)
	p.bufferCollateral = new(big.Int).Add(p.bufferCollateral, pulled)
	return pulled
}

// Drain removes up to amount from the pool for a liquidation shortfall,
// capped at holdings minus a one-token floor so subsequent ratio math never
// divides by zero. Buffer collateral is consumed before public collateral.
// Returns the amount actually drained.
func (p *Pool) Drain(amount *big.Int) *big.Int {
	if amount.Sign() <= 0 {
		return new(big.Int)
	}

	available := new(big.Int).Sub(p.Holdings(), fixed.WAD)
	if available.Sign() <= 0 {
		return new(big.Int)
	}
	drained := fixed.Min(amount, available)

	fromBuffer := fixed.Min(drained, p.bufferCollateral)
	p.bufferCollateral = new(big.Int).Sub(p.bufferCollateral, fromBuffer)

	fromPublic := new(big.Int).Sub(drained, fromBuffer)
	if fromPublic.Sign() > 0 {
		p.publicCollateral = new(big.Int).Sub(p.publicCollateral, fromPublic)
	}
	return drained
}
