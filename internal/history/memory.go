package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/numbermarket-system/internal/model"
)

// Memory — реализация Log на map в памяти.
type Memory struct {
	mu      sync.Mutex
	records map[string][]model.Transaction
}

// NewMemory создаёт пустой журнал в памяти.
func NewMemory() *Memory {
	return &Memory{records: make(map[string][]model.Transaction)}
}

// Append добавляет запись в журнал пользователя.
func (m *Memory) Append(_ context.Context, userID string, tx model.Transaction) (model.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[userID] = append(m.records[userID], tx)
	return tx, nil
}

// UpdateStatus обновляет статус самой свежей записи с данным ref.
func (m *Memory) UpdateStatus(_ context.Context, userID, ref string, status model.TransactionStatus, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := m.records[userID]
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].RentalID == ref || recs[i].ID == ref {
			recs[i].Status = status
			if code != "" {
				recs[i].Code = code
			}
			return nil
		}
	}

	return ErrRecordNotFound
}

// List возвращает копию журнала пользователя в порядке создания.
func (m *Memory) List(_ context.Context, userID string) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := m.records[userID]
	out := make([]model.Transaction, len(recs))
	copy(out, recs)
	return out, nil
}
