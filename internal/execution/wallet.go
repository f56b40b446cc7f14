package execution

import (
	"context"
	"sync"
)

// DefaultPaperBalance начальный баланс бумажного счета
const DefaultPaperBalance = 10000.0

// BalanceSource отдает доступный баланс
type BalanceSource interface {
	Balance(ctx context.Context) (float64, error)
}

// BalanceFunc превращает функцию в BalanceSource
type BalanceFunc func(ctx context.Context) (float64, error)

func (f BalanceFunc) Balance(ctx context.Context) (float64, error) { return f(ctx) }

// PaperWallet - баланс бумажной торговли и бэктеста.
// Изменяется только зачислением результата закрытых сделок.
type PaperWallet struct {
	mu      sync.Mutex
	balance float64
}

func NewPaperWallet(initial float64) *PaperWallet {
	if initial <= 0 {
		initial = DefaultPaperBalance
	}
	return &PaperWallet{balance: initial}
}

func (w *PaperWallet) Balance(context.Context) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance, nil
}

// Credit зачисляет результат сделки, убыток передается отрицательным числом
func (w *PaperWallet) Credit(pnl float64) {
	w.mu.Lock()
	w.balance += pnl
	w.mu.Unlock()
}
