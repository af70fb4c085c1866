// Package session содержит хранилище сессий с сериализацией операций по пользователю.
package session

import (
	"errors"
	"sync"

	"github.com/mmeshcher/numbermarket-system/internal/model"
)

// ErrTicketExists возвращается при попытке открыть второй тикет для пользователя.
var ErrTicketExists = errors.New("ticket already open")

// Store хранит сессии и открытые тикеты. Все мутации сессии одного
// пользователя выполняются под его собственным мьютексом: проверка и
// установка флагов "в полёте" становятся атомарной парой, а сессии
// разных пользователей друг друга не блокируют.
type Store struct {
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	sessions map[string]*model.Session
	tickets  map[string]string
}

// NewStore создаёт пустое хранилище сессий.
func NewStore() *Store {
	return &Store{
		locks:    make(map[string]*sync.Mutex),
		sessions: make(map[string]*model.Session),
		tickets:  make(map[string]string),
	}
}

func (st *Store) userLock(userID string) *sync.Mutex {
	st.mu.Lock()
	defer st.mu.Unlock()

	l, ok := st.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		st.locks[userID] = l
	}
	return l
}

// Update выполняет fn над сессией пользователя под его мьютексом,
// создавая сессию лениво при первом обращении. Если fn возвращает
// ошибку, изменения, уже внесённые в сессию, сохраняются: fn обязана
// сама не менять состояние на отказных путях.
func (st *Store) Update(userID string, fn func(*model.Session) error) error {
	l := st.userLock(userID)
	l.Lock()
	defer l.Unlock()

	st.mu.Lock()
	s, ok := st.sessions[userID]
	if !ok {
		s = &model.Session{UserID: userID, Stage: model.StageAwaitingTerms}
		st.sessions[userID] = s
	}
	st.mu.Unlock()

	return fn(s)
}

// Get возвращает копию сессии пользователя. Копия снимается под
// пользовательским мьютексом, чтобы не наблюдать сессию посреди мутации.
func (st *Store) Get(userID string) (model.Session, bool) {
	l := st.userLock(userID)
	l.Lock()
	defer l.Unlock()

	st.mu.Lock()
	s, ok := st.sessions[userID]
	st.mu.Unlock()

	if !ok {
		return model.Session{}, false
	}
	return *s, true
}

// Delete удаляет сессию пользователя.
func (st *Store) Delete(userID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, userID)
}

// OpenTicket регистрирует тикет пользователя. У пользователя может быть
// не более одного открытого тикета; повторная попытка возвращает
// ErrTicketExists и идентификатор существующего канала.
func (st *Store) OpenTicket(userID, channelID string) (string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if existing, ok := st.tickets[userID]; ok {
		return existing, ErrTicketExists
	}
	st.tickets[userID] = channelID
	return channelID, nil
}

// Ticket возвращает канал открытого тикета пользователя.
func (st *Store) Ticket(userID string) (string, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	ch, ok := st.tickets[userID]
	return ch, ok
}

// CloseTicket снимает регистрацию тикета и удаляет сессию.
func (st *Store) CloseTicket(userID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.tickets, userID)
	delete(st.sessions, userID)
}
