// Package market implements the orchestrating ledger of one perpetual-swap
// market: collateral custody, order settlement, lazy funding application,
// liquidations, and the insurance pool lifecycle. All state mutation funnels
// through a single mutex so every operation observes and commits a
// consistent snapshot.
package market

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/balances"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/insurance"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/liquidation"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/observability"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/oracle"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/order"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/pricing"
)

// Config wires a Market together. Token, IndexOracle and GasOracle are
// required; Metrics and Events are optional.
type Config struct {
	Address     common.Address
	Owner       common.Address
	Token       CollateralToken
	IndexOracle oracle.Oracle
	GasOracle   oracle.Oracle
	Params      Params
	StartTime   int64
	Logger      zerolog.Logger
	Metrics     *observability.Metrics
	Events      chan<- Event
}

// Market is the ledger for one perpetual-swap market. The insurance pool is
// created with the market and lives for its whole lifetime.
type Market struct {
	mu sync.Mutex

	addr  common.Address
	owner common.Address

	token       CollateralToken
	indexOracle oracle.Oracle
	gasOracle   oracle.Oracle

	params   Params
	pricing  *pricing.Engine
	pool     *insurance.Pool
	receipts *liquidation.Receipts

	accounts map[common.Address]*balances.AccountBalance
	filled   map[common.Hash]*big.Int

	// totalLeveragedValue aggregates every account's leveraged notional;
	// the insurance pool target and funding settlement both read it.
	totalLeveragedValue *big.Int

	// poolHeld is collateral the market has credited to the pool but the
	// pool has not yet pulled into buffer collateral.
	poolHeld *big.Int

	feesCollected *big.Int

	log     zerolog.Logger
	metrics *observability.Metrics
	events  chan<- Event
}

// New validates the configuration and returns a market with an empty,
// freshly created insurance pool.
func New(cfg Config) (*Market, error) {
	if cfg.Token == nil || cfg.IndexOracle == nil || cfg.GasOracle == nil {
		return nil, fmt.Errorf("%w: token and oracles are required", ErrInvalidConfiguration)
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}

	params := cfg.Params.clone()
	return &Market{
		addr:                cfg.Address,
		owner:               cfg.Owner,
		token:               cfg.Token,
		indexOracle:         cfg.IndexOracle,
		gasOracle:           cfg.GasOracle,
		params:              params,
		pricing:             pricing.NewEngine(params.FundingRateSensitivity, cfg.StartTime),
		pool:                insurance.NewPool(params.InsuranceFundingRateFactor),
		receipts:            liquidation.NewReceipts(),
		accounts:            make(map[common.Address]*balances.AccountBalance),
		filled:              make(map[common.Hash]*big.Int),
		totalLeveragedValue: new(big.Int),
		poolHeld:            new(big.Int),
		feesCollected:       new(big.Int),
		log:                 cfg.Logger.With().Str("market", cfg.Address.Hex()).Logger(),
		metrics:             cfg.Metrics,
		events:              cfg.Events,
	}, nil
}

// Address returns the market's own address, the custodian of all deposited
// collateral.
func (m *Market) Address() common.Address {
	return m.addr
}

func (m *Market) account(addr common.Address) *balances.AccountBalance {
	acct, ok := m.accounts[addr]
	if !ok {
		acct = balances.NewAccountBalance()
		m.accounts[addr] = acct
	}
	return acct
}

// catchUp advances the pricing engine across any elapsed hour boundaries
// and returns the current index and fair prices. Every mutating operation
// calls it first so time-based transitions land before operation logic.
func (m *Market) catchUp(now int64) (indexPrice, fairPrice *big.Int, err error) {
	indexPrice, err = m.indexOracle.LatestAnswer()
	if err != nil {
		return nil, nil, fmt.Errorf("index oracle: %w", err)
	}

	before := m.pricing.LastFundingIndex()
	poolRate, err := m.pool.FundingRate(m.totalLeveragedValue)
	if err != nil {
		return nil, nil, err
	}
	if err := m.pricing.CatchUp(now, indexPrice, poolRate); err != nil {
		return nil, nil, err
	}
	after := m.pricing.LastFundingIndex()
	if after > before {
		entry := m.pricing.FundingEntry(after)
		m.log.Debug().
			Uint64("funding_index", after).
			Str("rate", entry.InstantaneousRate.String()).
			Msg("funding entries appended")
		if m.metrics != nil {
			m.metrics.FundingEntriesAppended.
				WithLabelValues(m.addr.Hex(), "funding").Add(float64(after - before))
			m.metrics.FundingEntriesAppended.
				WithLabelValues(m.addr.Hex(), "insurance").Add(float64(after - before))
		}
		m.emit(EventFundingRate, now, FundingRatePayload{
			Index:             after,
			InstantaneousRate: entry.InstantaneousRate,
			CumulativeRate:    entry.CumulativeRate,
		})
	}

	fairPrice, err = m.pricing.FairPrice(indexPrice, now)
	if err != nil {
		return nil, nil, err
	}
	return indexPrice, fairPrice, nil
}

// settle catches one account up to the newest funding indices. Market
// funding is paid from (or into) the account's quote; insurance funding is
// always a charge, credited to the pool. The gas price is stamped so later
// liquidation checks use the cost observed at last touch.
func (m *Market) settle(addr common.Address) error {
	acct := m.account(addr)
	target := m.pricing.LastFundingIndex()

	gasPrice, err := m.gasOracle.LatestAnswer()
	if err != nil {
		return fmt.Errorf("gas oracle: %w", err)
	}
	acct.LastUpdatedGasPrice = gasPrice

	if acct.LastUpdatedFundingIndex == target {
		return nil
	}

	fundingDiff := pricing.AccruedFunding(m.pricing.FundingEntry, acct.LastUpdatedFundingIndex, target)
	owed, err := fixed.Mul(fundingDiff, acct.TotalLeveragedValue)
	if err != nil {
		return err
	}

	insuranceDiff := pricing.AccruedFunding(m.pricing.InsuranceEntry, acct.LastUpdatedFundingIndex, target)
	owedToPool, err := fixed.Mul(insuranceDiff, acct.TotalLeveragedValue)
	if err != nil {
		return err
	}

	quote := new(big.Int).Sub(acct.Position.Quote, owed)
	quote.Sub(quote, owedToPool)
	if err := fixed.CheckSigned(quote); err != nil {
		return err
	}

	acct.Position.Quote = quote
	acct.LastUpdatedFundingIndex = target
	if owedToPool.Sign() > 0 {
		m.poolHeld = new(big.Int).Add(m.poolHeld, owedToPool)
		m.pullPoolCollateral()
	}

	if m.metrics != nil {
		m.metrics.FundingSettlements.WithLabelValues(m.addr.Hex()).Inc()
	}
	m.log.Debug().
		Str("account", addr.Hex()).
		Str("funding_owed", owed.String()).
		Str("insurance_owed", owedToPool.String()).
		Uint64("funding_index", target).
		Msg("account settled")
	return nil
}

// pullPoolCollateral moves market-held pool credit into the pool's buffer
// collateral.
func (m *Market) pullPoolCollateral() {
	pulled := m.pool.PullCollateral(m.poolHeld)
	if pulled.Sign() > 0 {
		m.poolHeld = new(big.Int).Sub(m.poolHeld, pulled)
		m.updatePoolGauges()
	}
}

// updateLeverage refreshes one account's leveraged value at the fair price
// and folds the delta into the market-wide aggregate, floored at zero.
func (m *Market) updateLeverage(acct *balances.AccountBalance, fairPrice *big.Int) error {
	delta, err := acct.UpdateLeveragedValue(fairPrice)
	if err != nil {
		return err
	}
	m.totalLeveragedValue = new(big.Int).Add(m.totalLeveragedValue, delta)
	if m.totalLeveragedValue.Sign() < 0 {
		m.totalLeveragedValue = new(big.Int)
	}
	return nil
}

// commitLeverage installs a precomputed leveraged value on the account and
// folds the delta into the market-wide aggregate, floored at zero. It
// cannot fail, so callers may run it after an external token transfer.
func (m *Market) commitLeverage(acct *balances.AccountBalance, leveraged *big.Int) {
	delta := new(big.Int).Sub(leveraged, acct.TotalLeveragedValue)
	acct.TotalLeveragedValue = leveraged
	m.totalLeveragedValue = new(big.Int).Add(m.totalLeveragedValue, delta)
	if m.totalLeveragedValue.Sign() < 0 {
		m.totalLeveragedValue = new(big.Int)
	}
}

// trueMaxLeverage is the current leverage ceiling given the insurance
// pool's funding level.
func (m *Market) trueMaxLeverage() (*big.Int, error) {
	return insurance.TrueMaxLeverage(
		m.pool.Holdings(),
		m.pool.Target(m.totalLeveragedValue),
		m.params.MaxLeverage,
		m.params.LowestMaxLeverage,
		m.params.DeleveragingCliff,
		m.params.InsurancePoolSwitchStage,
	)
}

// liquidationGasCost converts the account's stamped gas price into the
// margin-currency cost of one liquidation call.
func (m *Market) liquidationGasCost(acct *balances.AccountBalance) (*big.Int, error) {
	cost := new(big.Int).Mul(acct.LastUpdatedGasPrice, m.params.LiquidationGasUnits)
	if err := fixed.CheckUnsigned(cost); err != nil {
		return nil, err
	}
	return cost, nil
}

func (m *Market) observe(op string, start time.Time) {
	if m.metrics != nil {
		m.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *Market) updatePoolGauges() {
	if m.metrics == nil {
		return
	}
	holdings, _ := new(big.Float).SetInt(m.pool.Holdings()).Float64()
	target, _ := new(big.Float).SetInt(m.pool.Target(m.totalLeveragedValue)).Float64()
	m.metrics.PoolHoldings.WithLabelValues(m.addr.Hex()).Set(holdings)
	m.metrics.PoolTarget.WithLabelValues(m.addr.Hex()).Set(target)
}

// Deposit transfers amount of collateral from the trader into the market
// and credits it to the trader's quote.
func (m *Market) Deposit(trader common.Address, amount *big.Int, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.observe("deposit", time.Now())

	if err := fixed.CheckUnsigned(amount); err != nil {
		return err
	}
	_, fairPrice, err := m.catchUp(now)
	if err != nil {
		return err
	}
	if err := m.settle(trader); err != nil {
		return err
	}

	acct := m.account(trader)
	hypothetical := acct.Position.Clone()
	hypothetical.Quote = new(big.Int).Add(hypothetical.Quote, amount)
	if err := fixed.CheckSigned(hypothetical.Quote); err != nil {
		return err
	}
	leveraged, err := balances.LeveragedNotionalValue(hypothetical, fairPrice)
	if err != nil {
		return err
	}

	// The external transfer is the last fallible step: a token failure
	// leaves the ledger untouched, and a ledger failure never moves tokens.
	if err := m.token.TransferFrom(trader, m.addr, amount); err != nil {
		return err
	}
	acct.Position = hypothetical
	m.commitLeverage(acct, leveraged)

	if m.metrics != nil {
		m.metrics.Deposits.WithLabelValues(m.addr.Hex()).Inc()
	}
	m.log.Info().Str("account", trader.Hex()).Str("amount", amount.String()).Msg("deposit")
	m.emit(EventDeposit, now, TransferPayload{Account: trader.Hex(), Amount: amount})
	return nil
}

// Withdraw transfers amount of collateral back to the trader, provided the
// remaining position still meets its margin requirement at the fair price.
func (m *Market) Withdraw(trader common.Address, amount *big.Int, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.observe("withdraw", time.Now())

	if err := fixed.CheckUnsigned(amount); err != nil {
		return err
	}
	_, fairPrice, err := m.catchUp(now)
	if err != nil {
		return err
	}
	if err := m.settle(trader); err != nil {
		return err
	}

	acct := m.account(trader)
	hypothetical := acct.Position.Clone()
	hypothetical.Quote = new(big.Int).Sub(hypothetical.Quote, amount)

	maxLeverage, err := m.trueMaxLeverage()
	if err != nil {
		return err
	}
	gasCost, err := m.liquidationGasCost(acct)
	if err != nil {
		return err
	}
	ok, err := balances.MarginIsValid(hypothetical, fairPrice, gasCost, maxLeverage)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: withdrawal of %s", ErrInsufficientMargin, amount)
	}
	leveraged, err := balances.LeveragedNotionalValue(hypothetical, fairPrice)
	if err != nil {
		return err
	}

	if err := m.token.TransferFrom(m.addr, trader, amount); err != nil {
		return err
	}
	acct.Position = hypothetical
	m.commitLeverage(acct, leveraged)

	if m.metrics != nil {
		m.metrics.Withdrawals.WithLabelValues(m.addr.Hex()).Inc()
	}
	m.log.Info().Str("account", trader.Hex()).Str("amount", amount.String()).Msg("withdrawal")
	m.emit(EventWithdrawal, now, TransferPayload{Account: trader.Hex(), Amount: amount})
	return nil
}

// MatchOrders settles fillAmount units between two opposing orders. The
// execution price is the price of the order created first; on equal
// creation times the long order's price stands. Both resulting positions
// must be valid under the current leverage ceiling or the whole call fails.
func (m *Market) MatchOrders(a, b *order.Order, fillAmount *big.Int, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.observe("match_orders", time.Now())

	if err := fixed.CheckUnsigned(fillAmount); err != nil {
		return err
	}
	if fillAmount.Sign() == 0 {
		return fmt.Errorf("%w: zero fill", ErrInvalidFill)
	}

	indexPrice, fairPrice, err := m.catchUp(now)
	if err != nil {
		return err
	}

	hashA, hashB := a.Hash(), b.Hash()
	filledA := m.filledOf(hashA)
	filledB := m.filledOf(hashB)

	if res := order.CanMatch(a, filledA, b, filledB, now); res != order.Valid {
		if m.metrics != nil {
			m.metrics.MatchesRejected.WithLabelValues(m.addr.Hex(), res.String()).Inc()
		}
		return &MatchError{Result: res}
	}

	remainderA := new(big.Int).Sub(a.Amount, filledA)
	remainderB := new(big.Int).Sub(b.Amount, filledB)
	if fillAmount.Cmp(remainderA) > 0 || fillAmount.Cmp(remainderB) > 0 {
		return fmt.Errorf("%w: fill %s, remainders %s/%s", ErrInvalidFill, fillAmount, remainderA, remainderB)
	}

	long, short := a, b
	if a.Side == order.Short {
		long, short = b, a
	}
	executionPrice := long.Price
	if short.Created < long.Created {
		executionPrice = short.Price
	}

	if err := m.settle(long.Maker); err != nil {
		return err
	}
	if err := m.settle(short.Maker); err != nil {
		return err
	}

	longAcct := m.account(long.Maker)
	shortAcct := m.account(short.Maker)

	fee, err := m.tradeFee(fillAmount, executionPrice)
	if err != nil {
		return err
	}

	stagedLong := &balances.AccountBalance{Position: longAcct.Position.Clone()}
	stagedShort := &balances.AccountBalance{Position: shortAcct.Position.Clone()}
	if err := stagedLong.ApplyTrade(fillAmount, executionPrice, true); err != nil {
		return err
	}
	if err := stagedShort.ApplyTrade(fillAmount, executionPrice, false); err != nil {
		return err
	}
	stagedLong.Position.Quote = new(big.Int).Sub(stagedLong.Position.Quote, fee)
	stagedShort.Position.Quote = new(big.Int).Sub(stagedShort.Position.Quote, fee)

	maxLeverage, err := m.trueMaxLeverage()
	if err != nil {
		return err
	}
	for _, side := range []struct {
		staged *balances.AccountBalance
		acct   *balances.AccountBalance
		maker  common.Address
	}{
		{stagedLong, longAcct, long.Maker},
		{stagedShort, shortAcct, short.Maker},
	} {
		gasCost, err := m.liquidationGasCost(side.acct)
		if err != nil {
			return err
		}
		ok, err := balances.MarginIsValid(side.staged.Position, fairPrice, gasCost, maxLeverage)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: account %s after fill", ErrInsufficientMargin, side.maker.Hex())
		}
	}

	longAcct.Position = stagedLong.Position
	shortAcct.Position = stagedShort.Position
	m.filled[hashA] = new(big.Int).Add(filledA, fillAmount)
	m.filled[hashB] = new(big.Int).Add(filledB, fillAmount)
	m.feesCollected = new(big.Int).Add(m.feesCollected, new(big.Int).Lsh(fee, 1))

	m.pricing.RecordTrade(executionPrice, indexPrice, now)
	if err := m.updateLeverage(longAcct, fairPrice); err != nil {
		return err
	}
	if err := m.updateLeverage(shortAcct, fairPrice); err != nil {
		return err
	}

	if m.metrics != nil {
		m.metrics.OrdersMatched.WithLabelValues(m.addr.Hex()).Inc()
	}
	m.log.Info().
		Str("long", long.Maker.Hex()).
		Str("short", short.Maker.Hex()).
		Str("price", executionPrice.String()).
		Str("amount", fillAmount.String()).
		Msg("orders matched")
	m.emit(EventTradeSettled, now, TradeSettledPayload{
		Long:      long.Maker.Hex(),
		Short:     short.Maker.Hex(),
		Price:     executionPrice,
		Amount:    fillAmount,
		LongHash:  long.Hash().Hex(),
		ShortHash: short.Hash().Hex(),
	})
	return nil
}

// tradeFee is FeeRate applied to one side's fill notional.
func (m *Market) tradeFee(fillAmount, price *big.Int) (*big.Int, error) {
	if m.params.FeeRate.Sign() == 0 {
		return new(big.Int), nil
	}
	notional, err := fixed.UMul(fillAmount, price)
	if err != nil {
		return nil, err
	}
	return fixed.UMul(m.params.FeeRate, notional)
}

func (m *Market) filledOf(hash common.Hash) *big.Int {
	if f, ok := m.filled[hash]; ok {
		return fixed.Clone(f)
	}
	return new(big.Int)
}

// sortedAccounts returns the account addresses in deterministic byte order,
// so walks over the account set replay identically.
func (m *Market) sortedAccounts() []common.Address {
	addrs := make([]common.Address, 0, len(m.accounts))
	for addr := range m.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Cmp(addrs[j]) < 0
	})
	return addrs
}
