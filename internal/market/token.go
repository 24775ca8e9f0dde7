package market

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/fixed"
)

// CollateralToken is the boundary to the margin-currency token. The core
// only moves balances; it never inspects token internals.
type CollateralToken interface {
	TransferFrom(from, to common.Address, amount *big.Int) error
}

// MemoryToken is an in-memory collateral token for simulation and tests.
type MemoryToken struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

// NewMemoryToken returns an empty token ledger.
func NewMemoryToken() *MemoryToken {
	return &MemoryToken{balances: make(map[common.Address]*big.Int)}
}

// Mint credits holder with amount out of thin air.
func (t *MemoryToken) Mint(holder common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(holder, amount)
}

// BalanceOf returns holder's balance.
func (t *MemoryToken) BalanceOf(holder common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if bal, ok := t.balances[holder]; ok {
		return fixed.Clone(bal)
	}
	return new(big.Int)
}

func (t *MemoryToken) TransferFrom(from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	bal, ok := t.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: account %s", ErrInsufficientFunds, from)
	}
	bal.Sub(bal, amount)
	t.credit(to, amount)
	return nil
}

func (t *MemoryToken) credit(holder common.Address, amount *big.Int) {
	if bal, ok := t.balances[holder]; ok {
		bal.Add(bal, amount)
		return
	}
	t.balances[holder] = fixed.Clone(amount)
}
