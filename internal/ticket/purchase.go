package ticket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/numbermarket-system/internal/ledger"
	"github.com/mmeshcher/numbermarket-system/internal/model"
	"github.com/mmeshcher/numbermarket-system/internal/rental"
)

// confirmPurchase выполняет покупку номера. Порядок жёсткий: проверка
// и установка флага под замком сессии, затем аренда у провайдера, и
// только после успешной аренды — списание баланса.
func (m *Machine) confirmPurchase(ctx context.Context, userID, channelID string) (model.View, error) {
	var product model.Product

	err := m.sessions.Update(userID, func(s *model.Session) error {
		if s.PurchaseInFlight {
			return ErrDuplicateAction
		}
		if s.ActiveRentalID != "" {
			return ErrRentalActive
		}
		if s.Stage != model.StageConfirming || s.Selected == nil {
			return ErrStateMismatch
		}

		bal, err := m.ledger.Balance(ctx, userID)
		if err != nil {
			return fmt.Errorf("check balance: %w", err)
		}
		if bal < s.Selected.PriceCents {
			return ledger.ErrInsufficientFunds
		}

		product = *s.Selected
		s.PurchaseInFlight = true
		return nil
	})
	if err != nil {
		return m.purchaseRejection(userID, err)
	}

	m.armPurchaseGuard(userID)

	act, err := m.rentals.Acquire(ctx, product.ID, m.cfg.CountryCode, m.cfg.Carrier)
	if err != nil {
		m.clearPurchaseFlag(userID)
		m.logger.Error("rental acquire failed", zap.Error(err), zap.String("userID", userID), zap.String("productID", product.ID))
		if errors.Is(err, rental.ErrNotConfigured) {
			return viewNotice("O administrador ainda não configurou o provedor de números."), err
		}
		return viewNotice("Não foi possível obter um número. Nada foi cobrado do seu saldo."), err
	}

	// Аренда привязывается к сессии до списания. Если страховочный
	// таймер успел сбросить флаг и параллельная покупка уже заняла
	// слот, этот номер лишний: возвращаем его провайдеру, денег не
	// двигаем. Сброшенный флаг сам по себе не повод для отказа, иначе
	// медленный, но единственный запрос убил бы собственную покупку.
	claimErr := m.sessions.Update(userID, func(s *model.Session) error {
		if s.ActiveRentalID != "" {
			return ErrRentalActive
		}
		s.ActiveRentalID = act.ID
		s.ActivePriceCents = product.PriceCents
		s.Stage = model.StageActive
		s.Selected = nil
		s.PurchaseInFlight = false
		return nil
	})
	if claimErr != nil {
		m.logger.Warn("duplicate rental detected", zap.String("userID", userID), zap.String("rentalID", act.ID))
		if _, cErr := m.rentals.Cancel(ctx, act.ID); cErr != nil {
			m.logger.Error("cancel of duplicate rental failed", zap.Error(cErr), zap.String("rentalID", act.ID))
		}
		return viewNotice("Detectamos uma compra duplicada. O número extra foi devolvido e nada foi cobrado."), claimErr
	}
	m.disarmPurchaseGuard(userID)

	if _, err := m.ledger.Debit(ctx, userID, product.PriceCents); err != nil {
		// Номер получен, а списание не прошло: возвращаем номер провайдеру
		// и освобождаем слот для новой попытки.
		if _, cErr := m.rentals.Cancel(ctx, act.ID); cErr != nil {
			m.logger.Error("cancel after failed debit", zap.Error(cErr), zap.String("rentalID", act.ID))
		}
		_ = m.sessions.Update(userID, func(s *model.Session) error {
			s.ActiveRentalID = ""
			s.ActivePriceCents = 0
			s.Stage = model.StageConfirming
			s.Selected = &product
			return nil
		})
		m.logger.Error("debit failed", zap.Error(err), zap.String("userID", userID))
		return viewNotice("Não foi possível concluir a compra. Nada foi cobrado do seu saldo."), err
	}

	if _, err := m.history.Append(ctx, userID, model.Transaction{
		Kind:        model.KindPurchase,
		AmountCents: product.PriceCents,
		Status:      model.StatusAwaitingSMS,
		Product:     product.Name,
		RentalID:    act.ID,
		Number:      act.Number,
	}); err != nil {
		m.logger.Warn("history append failed", zap.Error(err), zap.String("userID", userID))
	}

	m.wg.Add(1)
	go m.pollSMS(userID, channelID, act, product.Name)

	return viewAwaitingSMS(act, product.Name), nil
}

func (m *Machine) purchaseRejection(userID string, err error) (model.View, error) {
	switch {
	case errors.Is(err, ErrDuplicateAction):
		return viewNotice("Processando compra anterior, aguarde..."), err
	case errors.Is(err, ErrRentalActive):
		return viewNotice("Você já tem um número ativo neste ticket. Cancele ou aguarde o SMS."), err
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return viewNotice("Saldo Insuficiente! Nada foi cobrado."), err
	case errors.Is(err, ErrStateMismatch):
		m.logger.Info("confirm without selected product", zap.String("userID", userID))
		return viewNotice("Nenhum serviço selecionado. Abra o catálogo novamente."), err
	default:
		m.logger.Error("purchase guard failed", zap.Error(err), zap.String("userID", userID))
		return viewNotice("Erro ao processar a compra. Nada foi cobrado do seu saldo."), err
	}
}

// cancelRefund отменяет активную аренду и возвращает деньги. Критичный
// инвариант: возврат начисляется не более одного раза, что обеспечивают
// флаг cancelInFlight и очистка activeRentalID.
func (m *Machine) cancelRefund(ctx context.Context, userID string) (model.View, error) {
	price, newBal, err := m.refundActiveRental(ctx, userID)
	switch {
	case errors.Is(err, ErrDuplicateAction):
		// Повторный клик: молча отклоняем, деньги уже в пути.
		return viewNotice("Cancelamento já em andamento."), err
	case errors.Is(err, ErrNoActiveRental):
		return viewNotice("Nenhum número ativo encontrado."), err
	case err != nil:
		return viewNotice("Erro técnico ao processar o cancelamento. Tente novamente."), err
	}

	return viewRefunded(price, newBal), nil
}

// refundActiveRental — общий путь возврата для отмены, закрытия тикета
// и закрытия по бездействию. Возврат средств выполняется независимо от
// ответа провайдера: деньги должны вернуться, даже если его учёт не
// согласен.
func (m *Machine) refundActiveRental(ctx context.Context, userID string) (price, newBalance int64, err error) {
	var rentalID string

	err = m.sessions.Update(userID, func(s *model.Session) error {
		if s.CancelInFlight {
			return ErrDuplicateAction
		}
		if s.ActiveRentalID == "" {
			return ErrNoActiveRental
		}
		s.CancelInFlight = true
		rentalID = s.ActiveRentalID
		price = s.ActivePriceCents
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	if res, cErr := m.rentals.Cancel(ctx, rentalID); cErr != nil {
		m.logger.Warn("rental cancel call failed", zap.Error(cErr), zap.String("rentalID", rentalID))
	} else if !res.Success {
		m.logger.Info("rental cancel refused by provider", zap.String("rentalID", rentalID), zap.String("message", res.Message))
	}

	newBalance, err = m.ledger.Credit(ctx, userID, price)
	if err != nil {
		// Возврат не прошёл: снимаем только флаг и оставляем аренду,
		// чтобы пользователь мог повторить попытку.
		_ = m.sessions.Update(userID, func(s *model.Session) error {
			s.CancelInFlight = false
			return nil
		})
		return 0, 0, fmt.Errorf("refund credit: %w", err)
	}

	if uErr := m.history.UpdateStatus(ctx, userID, rentalID, model.StatusRefunded, ""); uErr != nil {
		m.logger.Warn("history status update failed", zap.Error(uErr), zap.String("rentalID", rentalID))
	}

	_ = m.sessions.Update(userID, func(s *model.Session) error {
		s.ActiveRentalID = ""
		s.ActivePriceCents = 0
		s.CancelInFlight = false
		s.Stage = model.StageMenu
		return nil
	})

	return price, newBalance, nil
}

// pollSMS опрашивает провайдера до получения кода. Каждый тик цикл
// сверяет activeRentalID сессии со своим: отмена или закрытие тикета
// останавливают его в пределах одного тика.
func (m *Machine) pollSMS(userID, channelID string, act rental.Activation, productName string) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SMSPollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < m.cfg.SMSPollAttempts; attempt++ {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		}

		s, ok := m.sessions.Get(userID)
		if !ok || s.ActiveRentalID != act.ID {
			return
		}

		st, err := m.rentals.Status(m.ctx, act.ID)
		if err != nil {
			m.logger.Warn("rental status poll failed", zap.Error(err), zap.String("rentalID", act.ID))
			continue
		}

		switch st.State {
		case rental.StateReceived:
			if err := m.history.UpdateStatus(m.ctx, userID, act.ID, model.StatusCompleted, st.Code); err != nil {
				m.logger.Warn("history status update failed", zap.Error(err), zap.String("rentalID", act.ID))
			}
			// activeRentalID остаётся — история служит источником истины
			// о завершении, а второй номер в тикете по-прежнему запрещён.
			m.notifier.Notify(userID, channelID, viewCodeReceived(act, productName, st.Code))
			return
		case rental.StateExpired:
			if err := m.history.UpdateStatus(m.ctx, userID, act.ID, model.StatusExpired, ""); err != nil {
				m.logger.Warn("history status update failed", zap.Error(err), zap.String("rentalID", act.ID))
			}
			m.notifier.Notify(userID, channelID, viewRentalExpired(act))
			return
		}
	}

	m.logger.Info("sms poll gave up", zap.String("rentalID", act.ID), zap.Int("attempts", m.cfg.SMSPollAttempts))
}

func (m *Machine) armPurchaseGuard(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.purchaseGuards[userID]; ok {
		t.Stop()
	}
	m.purchaseGuards[userID] = time.AfterFunc(m.cfg.PurchaseGuardTTL, func() {
		cleared := false
		_ = m.sessions.Update(userID, func(s *model.Session) error {
			if s.PurchaseInFlight {
				s.PurchaseInFlight = false
				cleared = true
			}
			return nil
		})
		if cleared {
			m.logger.Warn("purchase flag cleared by safety timer", zap.String("userID", userID))
		}
	})
}

func (m *Machine) disarmPurchaseGuard(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.purchaseGuards[userID]; ok {
		t.Stop()
		delete(m.purchaseGuards, userID)
	}
}

func (m *Machine) clearPurchaseFlag(userID string) {
	_ = m.sessions.Update(userID, func(s *model.Session) error {
		s.PurchaseInFlight = false
		return nil
	})
	m.disarmPurchaseGuard(userID)
}
