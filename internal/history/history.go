// Package history содержит журнал операций: депозиты, покупки и их статусы.
package history

import (
	"context"
	"errors"

	"github.com/mmeshcher/numbermarket-system/internal/model"
)

// ErrRecordNotFound возвращается, если запись для обновления статуса не найдена.
// История носит справочный характер: вызывающая сторона логирует ошибку
// и продолжает работу, движение денег от неё не зависит.
var ErrRecordNotFound = errors.New("history record not found")

// Log описывает контракт журнала операций пользователя.
type Log interface {
	// Append добавляет запись и возвращает её сохранённую форму
	// (с присвоенными идентификатором и временем, если они пустые).
	Append(ctx context.Context, userID string, tx model.Transaction) (model.Transaction, error)
	// UpdateStatus находит самую свежую запись с данным ref
	// (идентификатор аренды или записи) и меняет её статус;
	// code дописывается, если не пуст.
	UpdateStatus(ctx context.Context, userID, ref string, status model.TransactionStatus, code string) error
	// List возвращает записи пользователя в порядке создания.
	List(ctx context.Context, userID string) ([]model.Transaction, error)
}
