// Package handler содержит HTTP-обработчики API сервиса numbermarket.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/numbermarket-system/internal/ledger"
	"github.com/mmeshcher/numbermarket-system/internal/middleware"
	"github.com/mmeshcher/numbermarket-system/internal/model"
	"github.com/mmeshcher/numbermarket-system/internal/payment"
	"github.com/mmeshcher/numbermarket-system/internal/rental"
	"github.com/mmeshcher/numbermarket-system/internal/session"
	"github.com/mmeshcher/numbermarket-system/internal/ticket"
	"github.com/mmeshcher/numbermarket-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Dispatch(ctx context.Context, a ticket.Action) (model.View, error)
	Balance(ctx context.Context, userID string) (int64, error)
	History(ctx context.Context, userID string) ([]model.Transaction, error)
}

// Handler реализует HTTP-обработчики API сервиса numbermarket.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type actionRequest struct {
	Action    string `json:"action"`
	ChannelID string `json:"channel_id"`
	Value     string `json:"value,omitempty"`
}

type actionResponse struct {
	View model.View `json:"view"`
}

// TicketAction принимает одно действие пользователя от моста сообщений
// и возвращает представление для отрисовки. Представление приходит и
// при отклонённом действии: мост показывает его текст пользователю.
func (h *Handler) TicketAction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Action == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	view, err := h.service.Dispatch(r.Context(), ticket.Action{
		UserID:    userID,
		ChannelID: req.ChannelID,
		Kind:      ticket.ActionKind(req.Action),
		Value:     req.Value,
	})

	status := http.StatusOK
	if err != nil {
		status = h.statusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("dispatch action error", zap.Error(err), zap.String("userID", userID), zap.String("action", req.Action))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(actionResponse{View: view}); err != nil {
		h.logger.Error("encode action response", zap.Error(err))
	}
}

func (h *Handler) statusForError(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ticket.ErrDuplicateAction),
		errors.Is(err, ticket.ErrRentalActive),
		errors.Is(err, ticket.ErrDepositActive),
		errors.Is(err, ticket.ErrNoActiveRental),
		errors.Is(err, ticket.ErrNoTicket),
		errors.Is(err, session.ErrTicketExists):
		return http.StatusConflict
	case errors.Is(err, ticket.ErrStateMismatch),
		errors.Is(err, ticket.ErrUnknownAction),
		errors.Is(err, validation.ErrInvalidAmount),
		errors.Is(err, validation.ErrBelowMinimum),
		errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, rental.ErrNotConfigured), errors.Is(err, payment.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type balanceResponse struct {
	Current float64 `json:"current"`
}

// GetBalance возвращает баланс текущего пользователя в реалах.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	balance, err := h.service.Balance(r.Context(), userID)
	if err != nil {
		h.logger.Error("get balance error", zap.Error(err), zap.String("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(balanceResponse{Current: float64(balance) / 100}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type transactionResponse struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
	Product   string  `json:"product,omitempty"`
	Number    string  `json:"number,omitempty"`
	Code      string  `json:"code,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// GetHistory возвращает журнал операций текущего пользователя.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	records, err := h.service.History(r.Context(), userID)
	if err != nil {
		h.logger.Error("get history error", zap.Error(err), zap.String("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(records) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, transactionResponse{
			ID:        rec.ID,
			Kind:      string(rec.Kind),
			Amount:    float64(rec.AmountCents) / 100,
			Status:    string(rec.Status),
			Product:   rec.Product,
			Number:    rec.Number,
			Code:      rec.Code,
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}
