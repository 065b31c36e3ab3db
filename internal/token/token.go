// Package token provides an in-memory fungible token ledger implementing
// the engine's funds-transfer contract. It backs local deployments and the
// test suite; a chain-backed adapter would satisfy the same interface.
package token

import (
	"fmt"
	"sync"

	"PerpEngine/internal/gateway"
)

// Ledger is a map-backed balance tracker. Balances never go negative; a
// transfer exceeding the sender's balance fails without mutation.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]int64
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]int64),
	}
}

// Mint credits newly issued units to a holder. Used by deployment seeding
// and tests; the engine itself never mints.
func (l *Ledger) Mint(holder string, amount int64) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	l.balances[holder] += amount
	l.mu.Unlock()
}

// Transfer moves amount from one holder to another.
func (l *Ledger) Transfer(from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from] < amount {
		return fmt.Errorf("%w: %s has %d, need %d",
			gateway.ErrInsufficientBalance, from, l.balances[from], amount)
	}

	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// Balance returns a holder's current balance.
func (l *Ledger) Balance(holder string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[holder]
}

// TotalSupply sums all balances; a zero-sum drift check for audits.
func (l *Ledger) TotalSupply() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total int64
	for _, b := range l.balances {
		total += b
	}
	return total
}

var _ gateway.Token = (*Ledger)(nil)
