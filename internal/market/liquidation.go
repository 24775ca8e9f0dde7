package market

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/balances"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/liquidation"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/order"
)

// Fill is one order the liquidator used to unwind the acquired position,
// and how many units it filled.
type Fill struct {
	Order  *order.Order
	Amount *big.Int
}

// Liquidate transfers amount units of the liquidatee's underwater position
// to the liquidator, escrows a pro-rated share of the liquidatee's
// remaining margin, and issues a receipt. Amount is unsigned base units and
// must not exceed the liquidatee's position.
func (m *Market) Liquidate(liquidator, liquidatee common.Address, amount *big.Int, now int64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.observe("liquidate", time.Now())

	if err := fixed.CheckUnsigned(amount); err != nil {
		return 0, err
	}
	_, fairPrice, err := m.catchUp(now)
	if err != nil {
		return 0, err
	}
	if err := m.settle(liquidatee); err != nil {
		return 0, err
	}
	if err := m.settle(liquidator); err != nil {
		return 0, err
	}

	target := m.account(liquidatee)
	baseAbs := fixed.Abs(target.Position.Base)
	if amount.Sign() == 0 || amount.Cmp(baseAbs) > 0 {
		return 0, fmt.Errorf("%w: amount %s, position %s", ErrInvalidLiquidationAmount, amount, baseAbs)
	}

	maxLeverage, err := m.trueMaxLeverage()
	if err != nil {
		return 0, err
	}
	gasCost, err := m.liquidationGasCost(target)
	if err != nil {
		return 0, err
	}
	minMargin, err := balances.MinimumMargin(target.Position, fairPrice, gasCost, maxLeverage)
	if err != nil {
		return 0, err
	}
	margin, err := balances.Margin(target.Position, fairPrice)
	if err != nil {
		return 0, err
	}
	if margin.Cmp(minMargin) >= 0 {
		return 0, fmt.Errorf("%w: margin %s, minimum %s", ErrAccountNotLiquidatable, margin, minMargin)
	}

	// Escrow is pro-rated by the share of the position taken.
	fullEscrow := liquidation.EscrowLiquidationAmount(minMargin, margin)
	portion, err := fixed.UDiv(amount, baseAbs)
	if err != nil {
		return 0, err
	}
	escrowed, err := fixed.UMul(fullEscrow, portion)
	if err != nil {
		return 0, err
	}

	signedAmount := fixed.Clone(amount)
	side := order.Long
	if target.Position.Base.Sign() < 0 {
		signedAmount.Neg(signedAmount)
		side = order.Short
	}

	changes, err := liquidation.LiquidationBalanceChanges(target.Position.Base, target.Position.Quote, signedAmount)
	if err != nil {
		return 0, err
	}

	taker := m.account(liquidator)
	stagedTaker := taker.Position.Clone()
	stagedTaker.Quote = new(big.Int).Add(stagedTaker.Quote, changes.LiquidatorQuote)
	stagedTaker.Base = new(big.Int).Add(stagedTaker.Base, changes.LiquidatorBase)

	stagedTarget := target.Position.Clone()
	stagedTarget.Quote = new(big.Int).Add(stagedTarget.Quote, changes.LiquidateeQuote)
	stagedTarget.Base = new(big.Int).Add(stagedTarget.Base, changes.LiquidateeBase)
	stagedTarget.Quote = new(big.Int).Sub(stagedTarget.Quote, escrowed)

	takerGas, err := m.liquidationGasCost(taker)
	if err != nil {
		return 0, err
	}
	ok, err := balances.MarginIsValid(stagedTaker, fairPrice, takerGas, maxLeverage)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: liquidator cannot carry position", ErrInsufficientMargin)
	}

	taker.Position = stagedTaker
	target.Position = stagedTarget
	receipt := m.receipts.Create(liquidator, liquidatee, m.addr, fairPrice, escrowed, signedAmount, side, now)

	if err := m.updateLeverage(taker, fairPrice); err != nil {
		return 0, err
	}
	if err := m.updateLeverage(target, fairPrice); err != nil {
		return 0, err
	}

	if m.metrics != nil {
		m.metrics.LiquidationsTriggered.WithLabelValues(m.addr.Hex()).Inc()
	}
	m.log.Info().
		Uint64("receipt", receipt.ID).
		Str("liquidator", liquidator.Hex()).
		Str("liquidatee", liquidatee.Hex()).
		Str("amount", signedAmount.String()).
		Str("escrowed", escrowed.String()).
		Msg("liquidation triggered")
	m.emit(EventLiquidationTriggered, now, LiquidationPayload{
		ReceiptID:  receipt.ID,
		Liquidator: liquidator.Hex(),
		Liquidatee: liquidatee.Hex(),
		Amount:     signedAmount,
		Escrowed:   escrowed,
		Price:      fairPrice,
	})
	return receipt.ID, nil
}

// ClaimReceipts settles a liquidation receipt: the liquidator presents the
// orders that unwound the acquired position and is refunded the slippage
// against the receipt price, first from escrow, then from the insurance
// pool, and last by socializing the remainder onto opposing positions.
func (m *Market) ClaimReceipts(liquidator common.Address, receiptID uint64, fills []Fill, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.observe("claim_receipts", time.Now())

	receipt, err := m.receipts.Get(receiptID)
	if err != nil {
		return err
	}
	if receipt.Liquidator != liquidator {
		return liquidation.ErrNotLiquidator
	}
	if receipt.Settled {
		return liquidation.ErrReceiptAlreadySettled
	}
	if !receipt.WithinClaimWindow(now, m.params.ReceiptClaimWindow) {
		return liquidation.ErrClaimWindowExpired
	}

	_, fairPrice, err := m.catchUp(now)
	if err != nil {
		return err
	}
	if err := m.settle(liquidator); err != nil {
		return err
	}

	unitsSold := new(big.Int)
	avgPrice := new(big.Int)
	unwindSide := receipt.LiquidationSide.Opposite()
	for _, fill := range fills {
		o := fill.Order
		switch {
		case o.Maker != liquidator:
			return fmt.Errorf("%w: maker %s", ErrInvalidClaimOrder, o.Maker.Hex())
		case o.Market != m.addr:
			return fmt.Errorf("%w: market %s", ErrInvalidClaimOrder, o.Market.Hex())
		case o.Created < receipt.Time:
			return fmt.Errorf("%w: order predates receipt", ErrInvalidClaimOrder)
		case o.Side != unwindSide:
			return fmt.Errorf("%w: wrong side %s", ErrInvalidClaimOrder, o.Side)
		}
		if err := fixed.CheckUnsigned(fill.Amount); err != nil {
			return err
		}
		avgPrice, err = order.AverageExecutionPrice(unitsSold, avgPrice, fill.Amount, o.Price)
		if err != nil {
			return err
		}
		unitsSold = new(big.Int).Add(unitsSold, fill.Amount)
	}
	if unitsSold.Cmp(receipt.UnitsSold()) > 0 {
		return fmt.Errorf("%w: sold %s of %s units", ErrInvalidClaimOrder, unitsSold, receipt.UnitsSold())
	}

	slippage, err := liquidation.CalculateSlippage(
		unitsSold, m.params.MaxSlippage, avgPrice, receipt.Price, receipt.LiquidationSide)
	if err != nil {
		return err
	}

	fromEscrow := receipt.ConsumeEscrow(slippage)
	refund := fixed.Clone(fromEscrow)
	remaining := new(big.Int).Sub(slippage, fromEscrow)

	if remaining.Sign() > 0 {
		m.pullPoolCollateral()
		drained := m.pool.Drain(remaining)
		if drained.Sign() > 0 {
			refund.Add(refund, drained)
			remaining.Sub(remaining, drained)
			if m.metrics != nil {
				m.metrics.PoolDrains.WithLabelValues(m.addr.Hex()).Inc()
			}
			m.updatePoolGauges()
		}
	}
	if remaining.Sign() > 0 {
		if err := m.deleverage(remaining, unwindSide, fairPrice, now); err != nil {
			return err
		}
	}

	acct := m.account(liquidator)
	acct.Position.Quote = new(big.Int).Add(acct.Position.Quote, refund)
	receipt.Settled = true
	if err := m.updateLeverage(acct, fairPrice); err != nil {
		return err
	}

	if m.metrics != nil {
		m.metrics.ReceiptsClaimed.WithLabelValues(m.addr.Hex()).Inc()
	}
	m.log.Info().
		Uint64("receipt", receipt.ID).
		Str("slippage", slippage.String()).
		Str("refund", refund.String()).
		Msg("receipt claimed")
	m.emit(EventReceiptClaimed, now, LiquidationPayload{
		ReceiptID:  receipt.ID,
		Liquidator: liquidator.Hex(),
		Liquidatee: receipt.Liquidatee.Hex(),
		Amount:     receipt.AmountLiquidated,
		Escrowed:   receipt.EscrowedAmount,
		Price:      receipt.Price,
	})
	return nil
}

// ClaimEscrow returns the unclaimed escrow to the liquidatee once the claim
// window has lapsed. Settlement alone is not enough: the liquidatee must
// wait out the window even when the liquidator has already claimed.
func (m *Market) ClaimEscrow(liquidatee common.Address, receiptID uint64, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.observe("claim_escrow", time.Now())

	receipt, err := m.receipts.Get(receiptID)
	if err != nil {
		return err
	}
	if receipt.Liquidatee != liquidatee {
		return liquidation.ErrNotLiquidatee
	}
	if receipt.Released {
		return liquidation.ErrEscrowAlreadyReleased
	}
	if receipt.WithinClaimWindow(now, m.params.ReceiptClaimWindow) {
		return liquidation.ErrClaimWindowOpen
	}

	_, fairPrice, err := m.catchUp(now)
	if err != nil {
		return err
	}
	if err := m.settle(liquidatee); err != nil {
		return err
	}

	remaining := fixed.Clone(receipt.EscrowedAmount)
	receipt.EscrowedAmount = new(big.Int)
	receipt.Released = true

	acct := m.account(liquidatee)
	acct.Position.Quote = new(big.Int).Add(acct.Position.Quote, remaining)
	if err := m.updateLeverage(acct, fairPrice); err != nil {
		return err
	}

	if m.metrics != nil {
		m.metrics.EscrowsReleased.WithLabelValues(m.addr.Hex()).Inc()
	}
	m.log.Info().
		Uint64("receipt", receipt.ID).
		Str("liquidatee", liquidatee.Hex()).
		Str("amount", remaining.String()).
		Msg("escrow released")
	m.emit(EventEscrowReleased, now, TransferPayload{Account: liquidatee.Hex(), Amount: remaining})
	return nil
}

// deleverage socializes a liquidation shortfall the escrow and pool could
// not cover: positions opposing the liquidated side give up base units,
// without payment, until shortfall worth of notional at the fair price has
// been absorbed. Accounts are walked in address order so the outcome is
// deterministic.
func (m *Market) deleverage(shortfall *big.Int, side order.Side, fairPrice *big.Int, now int64) error {
	if fairPrice.Sign() <= 0 {
		m.log.Warn().Msg("deleveraging skipped, fair price is zero")
		return nil
	}

	remaining := fixed.Clone(shortfall)
	units, err := fixed.UDiv(remaining, fairPrice)
	if err != nil {
		return err
	}

	for _, addr := range m.sortedAccounts() {
		if units.Sign() == 0 {
			break
		}
		acct := m.accounts[addr]
		base := acct.Position.Base
		if side == order.Long && base.Sign() <= 0 {
			continue
		}
		if side == order.Short && base.Sign() >= 0 {
			continue
		}

		reduce := fixed.Min(units, fixed.Abs(base))
		if base.Sign() > 0 {
			acct.Position.Base = new(big.Int).Sub(base, reduce)
		} else {
			acct.Position.Base = new(big.Int).Add(base, reduce)
		}
		units = new(big.Int).Sub(units, reduce)
		if err := m.updateLeverage(acct, fairPrice); err != nil {
			return err
		}
	}

	if m.metrics != nil {
		m.metrics.DeleveragingEvents.WithLabelValues(m.addr.Hex()).Inc()
	}
	m.log.Warn().
		Str("shortfall", shortfall.String()).
		Str("side", side.String()).
		Msg("positions deleveraged")
	m.emit(EventDeleveraging, now, DeleveragingPayload{Shortfall: shortfall, Side: side.String()})
	return nil
}
