package wallet

import "sync"

// Wallet is the single shared balance ledger. Margin is debited on open via
// Reserve and returned on close via Release; realized P&L is applied via
// Credit. All operations are atomic with respect to each other and none
// blocks longer than one update.
type Wallet struct {
	mu      sync.Mutex
	balance float64
}

// New creates a wallet with the given starting balance.
func New(initialBalance float64) *Wallet {
	return &Wallet{balance: initialBalance}
}

// Reserve atomically debits amount from the balance. It returns false,
// leaving the balance untouched, when the amount is non-positive or exceeds
// the available balance.
func (w *Wallet) Reserve(amount float64) bool {
	if amount <= 0 {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.balance < amount {
		return false
	}
	w.balance -= amount
	return true
}

// Release returns previously reserved margin to the balance.
func (w *Wallet) Release(amount float64) {
	w.mu.Lock()
	w.balance += amount
	w.mu.Unlock()
}

// Credit applies realized P&L to the balance. The amount may be negative.
func (w *Wallet) Credit(pnl float64) {
	w.mu.Lock()
	w.balance += pnl
	w.mu.Unlock()
}

// Balance returns a consistent snapshot of the current balance.
func (w *Wallet) Balance() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance
}
