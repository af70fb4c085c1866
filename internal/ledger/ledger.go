// Package ledger содержит баланс пользователей и операции пополнения и списания.
package ledger

import (
	"context"
	"errors"
)

// ErrInsufficientFunds возвращается при попытке списания суммы, превышающей баланс.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidAmount возвращается для неположительной суммы операции.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Ledger описывает контракт хранения балансов. Суммы всегда в сентаво.
// Операция фиксируется до любого зависимого внешнего вызова, чтобы баланс
// никогда не расходился с уже совершёнными действиями.
type Ledger interface {
	// Balance возвращает текущий баланс пользователя; 0 для неизвестного.
	Balance(ctx context.Context, userID string) (int64, error)
	// Credit увеличивает баланс и возвращает новое значение.
	Credit(ctx context.Context, userID string, amountCents int64) (int64, error)
	// Debit уменьшает баланс и возвращает новое значение.
	// Возвращает ErrInsufficientFunds, если средств не хватает.
	Debit(ctx context.Context, userID string, amountCents int64) (int64, error)
}
