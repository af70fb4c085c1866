package ledger

import (
	"context"
	"sync"
)

// Memory — потокобезопасная реализация Ledger на map в памяти.
type Memory struct {
	mu       sync.Mutex
	balances map[string]int64
}

// NewMemory создаёт пустой леджер в памяти.
func NewMemory() *Memory {
	return &Memory{balances: make(map[string]int64)}
}

// Balance возвращает текущий баланс пользователя.
func (m *Memory) Balance(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

// Credit увеличивает баланс пользователя.
func (m *Memory) Credit(_ context.Context, userID string, amountCents int64) (int64, error) {
	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances[userID] += amountCents
	return m.balances[userID], nil
}

// Debit уменьшает баланс пользователя. Отрицательный результат запрещён.
func (m *Memory) Debit(_ context.Context, userID string, amountCents int64) (int64, error) {
	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.balances[userID]
	if amountCents > current {
		return current, ErrInsufficientFunds
	}

	m.balances[userID] = current - amountCents
	return m.balances[userID], nil
}
