// Package model содержит доменные сущности магазина виртуальных номеров.
package model

import (
	"fmt"
	"time"
)

// Product описывает позицию каталога: платформа, для которой продаётся SMS-номер.
type Product struct {
	ID         string
	Name       string
	PriceCents int64
	Stock      int
}

// TransactionKind описывает тип записи в истории операций.
type TransactionKind string

const (
	KindDeposit  TransactionKind = "deposito"
	KindPurchase TransactionKind = "compra"
)

// TransactionStatus описывает статус записи в истории операций.
type TransactionStatus string

const (
	StatusAwaitingSMS TransactionStatus = "Aguardando SMS"
	StatusCompleted   TransactionStatus = "Concluído"
	StatusRefunded    TransactionStatus = "Cancelado/Reembolsado"
	StatusExpired     TransactionStatus = "Expirado"
	StatusPending     TransactionStatus = "Pendente"
)

// Transaction описывает одну операцию пользователя: депозит или покупку
// номера. Запись неизменяема после создания, кроме статуса и кода,
// которые обновляются по факту терминального события (SMS получен,
// отмена подтверждена, оплата одобрена).
type Transaction struct {
	ID          string
	Kind        TransactionKind
	AmountCents int64
	Status      TransactionStatus
	Product     string
	RentalID    string
	Number      string
	Code        string
	CreatedAt   time.Time
}

// Stage описывает этап, на котором находится сессия пользователя в тикете.
type Stage string

const (
	StageAwaitingTerms Stage = "awaiting_terms"
	StageMenu          Stage = "menu"
	StageBrowsing      Stage = "browsing"
	StageConfirming    Stage = "confirming"
	StageActive        Stage = "active"
)

// Session — рабочая память одного открытого тикета. Живёт только пока
// тикет открыт; при закрытии канала или по таймауту неактивности
// уничтожается вместе с незавершёнными флагами.
type Session struct {
	UserID    string
	ChannelID string
	Stage     Stage
	Page      int

	Selected *Product

	ActiveRentalID   string
	ActivePriceCents int64

	ActiveDepositID    string
	DepositCode        string
	DepositAmountCents int64

	// Флаги "в полёте" — единственный механизм идемпотентности денежных
	// переходов. Выставляются строго до любого внешнего вызова.
	PurchaseInFlight bool
	CancelInFlight   bool
	DepositInFlight  bool
}

// Button описывает кнопку декларативного представления.
type Button struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// SelectOption описывает один пункт меню выбора.
type SelectOption struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// SelectMenu описывает меню выбора декларативного представления.
type SelectMenu struct {
	ID      string         `json:"id"`
	Options []SelectOption `json:"options"`
}

// View — декларативный ответ конечного автомата. Слой сообщений (вне
// ядра) отвечает за визуальное оформление; ядро отдаёт только текст и
// набор элементов управления.
type View struct {
	Text        string       `json:"text"`
	Buttons     []Button     `json:"buttons,omitempty"`
	SelectMenus []SelectMenu `json:"select_menus,omitempty"`
	Ephemeral   bool         `json:"ephemeral,omitempty"`
}

// FormatReais форматирует сумму в сентаво как денежную строку.
func FormatReais(cents int64) string {
	return fmt.Sprintf("R$ %.2f", float64(cents)/100)
}
