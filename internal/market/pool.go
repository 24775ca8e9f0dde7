package market

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
)

// PoolDeposit stakes amount of the staker's collateral into the insurance
// pool and mints pool tokens 1:1.
func (m *Market) PoolDeposit(staker common.Address, amount *big.Int, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.observe("pool_deposit", time.Now())

	if err := fixed.CheckUnsigned(amount); err != nil {
		return err
	}
	if _, _, err := m.catchUp(now); err != nil {
		return err
	}
	if err := m.token.TransferFrom(staker, m.addr, amount); err != nil {
		return err
	}
	if err := m.pool.Deposit(staker, amount); err != nil {
		return err
	}

	if m.metrics != nil {
		m.metrics.PoolDeposits.WithLabelValues(m.addr.Hex()).Inc()
	}
	m.updatePoolGauges()
	m.log.Info().Str("staker", staker.Hex()).Str("amount", amount.String()).Msg("pool deposit")
	m.emit(EventPoolDeposit, now, TransferPayload{Account: staker.Hex(), Amount: amount})
	return nil
}

// PoolWithdraw burns amount of the staker's pool tokens and returns the
// same amount of public collateral.
func (m *Market) PoolWithdraw(staker common.Address, amount *big.Int, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.observe("pool_withdraw", time.Now())

	if _, _, err := m.catchUp(now); err != nil {
		return err
	}
	if err := m.pool.Withdraw(staker, amount); err != nil {
		return err
	}
	if err := m.token.TransferFrom(m.addr, staker, amount); err != nil {
		return err
	}

	if m.metrics != nil {
		m.metrics.PoolWithdrawals.WithLabelValues(m.addr.Hex()).Inc()
	}
	m.updatePoolGauges()
	m.log.Info().Str("staker", staker.Hex()).Str("amount", amount.String()).Msg("pool withdrawal")
	m.emit(EventPoolWithdrawal, now, TransferPayload{Account: staker.Hex(), Amount: amount})
	return nil
}

// UpdatePoolAmount pulls any collateral the market has credited to the pool
// into its buffer collateral. Idempotent.
func (m *Market) UpdatePoolAmount(now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, _, err := m.catchUp(now); err != nil {
		return err
	}
	m.pullPoolCollateral()
	return nil
}

// SetParams replaces the governance parameters. Owner only; the new set is
// validated before anything is mutated.
func (m *Market) SetParams(caller common.Address, p Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}
	if err := p.Validate(); err != nil {
		return err
	}
	m.params = p.clone()
	m.pool.SetFundingRateFactor(m.params.InsuranceFundingRateFactor)
	m.log.Info().Msg("parameters updated")
	return nil
}

// AccountState is a read-only snapshot of one account.
type AccountState struct {
	Quote                   *big.Int
	Base                    *big.Int
	TotalLeveragedValue     *big.Int
	LastUpdatedFundingIndex uint64
}

// Account returns a snapshot of the account's balances as last committed;
// pending funding is not applied.
func (m *Market) Account(addr common.Address) AccountState {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[addr]
	if !ok {
		return AccountState{Quote: new(big.Int), Base: new(big.Int), TotalLeveragedValue: new(big.Int)}
	}
	return AccountState{
		Quote:                   fixed.Clone(acct.Position.Quote),
		Base:                    fixed.Clone(acct.Position.Base),
		TotalLeveragedValue:     fixed.Clone(acct.TotalLeveragedValue),
		LastUpdatedFundingIndex: acct.LastUpdatedFundingIndex,
	}
}

// PoolState is a read-only snapshot of the insurance pool.
type PoolState struct {
	BufferCollateral *big.Int
	PublicCollateral *big.Int
	Holdings         *big.Int
	Target           *big.Int
	PoolTokenSupply  *big.Int
}

// Pool returns a snapshot of the insurance pool against the current
// leveraged value.
func (m *Market) Pool() PoolState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return PoolState{
		BufferCollateral: m.pool.BufferCollateral(),
		PublicCollateral: m.pool.PublicCollateral(),
		Holdings:         m.pool.Holdings(),
		Target:           m.pool.Target(m.totalLeveragedValue),
		PoolTokenSupply:  m.pool.PoolTokenSupply(),
	}
}

// PoolTokenBalance returns the staker's pool-token balance.
func (m *Market) PoolTokenBalance(staker common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.TokenBalance(staker)
}

// FairPrice returns the current fair price without mutating any state.
func (m *Market) FairPrice(now int64) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	indexPrice, err := m.indexOracle.LatestAnswer()
	if err != nil {
		return nil, err
	}
	return m.pricing.FairPrice(indexPrice, now)
}

// TotalLeveragedValue returns the market-wide leveraged notional aggregate.
func (m *Market) TotalLeveragedValue() *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fixed.Clone(m.totalLeveragedValue)
}

// FeesCollected returns the protocol fees accrued so far.
func (m *Market) FeesCollected() *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fixed.Clone(m.feesCollected)
}

// Params returns a copy of the current governance parameters.
func (m *Market) Params() Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params.clone()
}

// Filled returns how many units of the order hash have been filled.
func (m *Market) Filled(hash common.Hash) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filledOf(hash)
}

// ReceiptState is a read-only copy of a liquidation receipt.
type ReceiptState struct {
	ID               uint64
	Liquidator       common.Address
	Liquidatee       common.Address
	Price            *big.Int
	EscrowedAmount   *big.Int
	AmountLiquidated *big.Int
	Side             string
	Time             int64
	Released         bool
	Settled          bool
}

// Receipt returns a copy of the receipt with the given id.
func (m *Market) Receipt(id uint64) (ReceiptState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.receipts.Get(id)
	if err != nil {
		return ReceiptState{}, err
	}
	return ReceiptState{
		ID:               r.ID,
		Liquidator:       r.Liquidator,
		Liquidatee:       r.Liquidatee,
		Price:            fixed.Clone(r.Price),
		EscrowedAmount:   fixed.Clone(r.EscrowedAmount),
		AmountLiquidated: fixed.Clone(r.AmountLiquidated),
		Side:             r.LiquidationSide.String(),
		Time:             r.Time,
		Released:         r.Released,
		Settled:          r.Settled,
	}, nil
}

// Receipts returns copies of every receipt in issue order.
func (m *Market) Receipts() []ReceiptState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ReceiptState, 0, m.receipts.Len())
	for _, r := range m.receipts.All() {
		out = append(out, ReceiptState{
			ID:               r.ID,
			Liquidator:       r.Liquidator,
			Liquidatee:       r.Liquidatee,
			Price:            fixed.Clone(r.Price),
			EscrowedAmount:   fixed.Clone(r.EscrowedAmount),
			AmountLiquidated: fixed.Clone(r.AmountLiquidated),
			Side:             r.LiquidationSide.String(),
			Time:             r.Time,
			Released:         r.Released,
			Settled:          r.Settled,
		})
	}
	return out
}

// FundingRateEntryState is a read-only funding history entry.
type FundingRateEntryState struct {
	Index             uint64
	Timestamp         int64
	InstantaneousRate *big.Int
	CumulativeRate    *big.Int
}

// LatestFundingRate returns the newest market funding entry.
func (m *Market) LatestFundingRate() FundingRateEntryState {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.pricing.LastFundingIndex()
	e := m.pricing.FundingEntry(i)
	return FundingRateEntryState{
		Index:             i,
		Timestamp:         e.Timestamp,
		InstantaneousRate: fixed.Clone(e.InstantaneousRate),
		CumulativeRate:    fixed.Clone(e.CumulativeRate),
	}
}

// LatestInsuranceFundingRate returns the newest insurance funding entry.
func (m *Market) LatestInsuranceFundingRate() FundingRateEntryState {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.pricing.LastInsuranceIndex()
	e := m.pricing.InsuranceEntry(i)
	return FundingRateEntryState{
		Index:             i,
		Timestamp:         e.Timestamp,
		InstantaneousRate: fixed.Clone(e.InstantaneousRate),
		CumulativeRate:    fixed.Clone(e.CumulativeRate),
	}
}
