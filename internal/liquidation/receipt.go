package liquidation

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/order"
)

var (
	// ErrUnknownReceipt rejects a lookup for an id that was never issued.
	ErrUnknownReceipt = errors.New("liquidation: unknown receipt")
	// ErrReceiptAlreadySettled rejects a second claimReceipts call.
	ErrReceiptAlreadySettled = errors.New("liquidation: receipt already settled")
	// ErrEscrowAlreadyReleased rejects a second claimEscrow call.
	ErrEscrowAlreadyReleased = errors.New("liquidation: escrow already released")
	// ErrClaimWindowExpired rejects claimReceipts after the claim window.
	ErrClaimWindowExpired = errors.New("liquidation: claim window expired")
	// ErrClaimWindowOpen rejects claimEscrow while the liquidator can still claim.
	ErrClaimWindowOpen = errors.New("liquidation: claim window still open")
	// ErrNotLiquidator rejects claimReceipts from anyone but the liquidator.
	ErrNotLiquidator = errors.New("liquidation: caller is not the receipt liquidator")
	// ErrNotLiquidatee rejects claimEscrow from anyone but the liquidatee.
	ErrNotLiquidatee = errors.New("liquidation: caller is not the receipt liquidatee")
)

// Receipt is the audit record of one liquidation episode. Receipts are
// append-only: created on a successful liquidation call, mutated only by
// settlement and escrow release, never deleted.
type Receipt struct {
	ID               uint64
	Liquidator       common.Address
	Liquidatee       common.Address
	Market           common.Address
	Price            *big.Int // fair price at liquidation, WAD
	EscrowedAmount   *big.Int // unsigned WAD quote
	AmountLiquidated *big.Int // signed base units
	LiquidationSide  order.Side
	Time             int64
	Released         bool // escrow paid back to the liquidatee
	Settled          bool // liquidator claimed slippage
}

// UnitsSold is |AmountLiquidated|.
func (r *Receipt) UnitsSold() *big.Int {
	return fixed.Abs(r.AmountLiquidated)
}

// WithinClaimWindow reports whether the liquidator may still claim at now.
func (r *Receipt) WithinClaimWindow(now, window int64) bool {
	return now < r.Time+window
}

// ConsumeEscrow deducts amount from the remaining escrow, flooring at zero,
// and returns the amount actually consumed.
func (r *Receipt) ConsumeEscrow(amount *big.Int) *big.Int {
	consumed := fixed.Min(amount, r.EscrowedAmount)
	if consumed.Sign() < 0 {
		consumed = new(big.Int)
	}
	r.EscrowedAmount = new(big.Int).Sub(r.EscrowedAmount, consumed)
	return consumed
}

// Receipts is the arena of receipts for one market: a growable slice plus a
// monotonically increasing id.
type Receipts struct {
	entries []*Receipt
}

// NewReceipts returns an empty arena.
func NewReceipts() *Receipts {
	return &Receipts{}
}

// Create appends a new receipt and returns it. The id is the receipt's
// position in the arena.
func (rs *Receipts) Create(
	liquidator, liquidatee, market common.Address,
	price, escrowed, amount *big.Int,
	side order.Side,
	now int64,
) *Receipt {
	r := &Receipt{
		ID:               uint64(len(rs.entries)),
		Liquidator:       liquidator,
		Liquidatee:       liquidatee,
		Market:           market,
		Price:            fixed.Clone(price),
		EscrowedAmount:   fixed.Clone(escrowed),
		AmountLiquidated: fixed.Clone(amount),
		LiquidationSide:  side,
		Time:             now,
	}
	rs.entries = append(rs.entries, r)
	return r
}

// Get returns the receipt with the given id.
func (rs *Receipts) Get(id uint64) (*Receipt, error) {
	if id >= uint64(len(rs.entries)) {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownReceipt, id)
	}
	return rs.entries[id], nil
}

// Len is the number of receipts issued.
func (rs *Receipts) Len() int {
	return len(rs.entries)
}

// All returns the receipts in issue order.
func (rs *Receipts) All() []*Receipt {
	out := make([]*Receipt, len(rs.entries))
	copy(out, rs.entries)
	return out
}
