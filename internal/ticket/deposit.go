package ticket

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/numbermarket-system/internal/model"
	"github.com/mmeshcher/numbermarket-system/internal/payment"
	"github.com/mmeshcher/numbermarket-system/internal/validation"
)

func (m *Machine) requestDeposit(userID string) (model.View, error) {
	if !m.payments.Configured() {
		return viewNotice("O administrador ainda não configurou o método de pagamento."), nil
	}

	if s, ok := m.sessions.Get(userID); ok && s.ActiveDepositID != "" {
		return viewNotice("Você já tem um PIX ativo. Pague-o ou aguarde o vencimento para gerar outro."), ErrDepositActive
	}

	return viewDepositPrompt(), nil
}

// submitDeposit создаёт PIX-платёж на введённую сумму. Флаг "в полёте"
// и проверка активного депозита выставляются до обращения к шлюзу.
func (m *Machine) submitDeposit(ctx context.Context, userID, channelID, raw string) (model.View, error) {
	amount, err := validation.ParseDepositAmount(raw)
	switch {
	case errors.Is(err, validation.ErrBelowMinimum):
		return viewNotice("O valor mínimo de recarga é " + model.FormatReais(validation.MinDepositCents) + "."), err
	case err != nil:
		return viewNotice("Valor inválido. Use o formato 10,50."), err
	}

	err = m.sessions.Update(userID, func(s *model.Session) error {
		if s.DepositInFlight {
			return ErrDuplicateAction
		}
		if s.ActiveDepositID != "" {
			return ErrDepositActive
		}
		s.DepositInFlight = true
		return nil
	})
	switch {
	case errors.Is(err, ErrDuplicateAction):
		return viewNotice("Gerando seu PIX, aguarde..."), err
	case errors.Is(err, ErrDepositActive):
		return viewNotice("Você já tem um PIX ativo. Pague-o ou aguarde o vencimento para gerar outro."), err
	case err != nil:
		return viewNotice("Erro ao iniciar a recarga. Tente novamente."), err
	}

	charge, err := m.payments.CreateCharge(ctx, amount, "Recarga de saldo")
	if err != nil {
		m.clearDepositFlag(userID)
		m.logger.Error("charge creation failed", zap.Error(err), zap.String("userID", userID))
		if errors.Is(err, payment.ErrNotConfigured) {
			return viewNotice("O administrador ainda não configurou o método de pagamento."), err
		}
		return viewNotice("Não foi possível gerar o PIX. Nenhum valor foi movimentado."), err
	}

	_ = m.sessions.Update(userID, func(s *model.Session) error {
		s.ActiveDepositID = charge.ID
		s.DepositCode = charge.CopyPasteCode
		s.DepositAmountCents = amount
		s.DepositInFlight = false
		return nil
	})

	m.armDepositExpiry(userID, channelID, charge.ID)

	pollCtx, pollCancel := context.WithCancel(m.ctx)
	m.mu.Lock()
	if prev, ok := m.depositCancel[userID]; ok {
		prev()
	}
	m.depositCancel[userID] = pollCancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.pollDeposit(pollCtx, userID, channelID, charge.ID, amount)

	return viewPix(amount, charge.CopyPasteCode), nil
}

// pollDeposit ждёт решения шлюза по платежу. Зачисление происходит
// только если платёж всё ещё привязан к сессии: просроченный депозит
// не зачисляется, даже если шлюз позже его одобрил.
func (m *Machine) pollDeposit(ctx context.Context, userID, channelID, chargeID string, amount int64) {
	defer m.wg.Done()

	status, err := m.payments.Await(ctx, chargeID, m.cfg.PaymentPollAttempts, m.cfg.PaymentPollInterval)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("payment await failed", zap.Error(err), zap.String("chargeID", chargeID))
		}
		return
	}

	switch status {
	case payment.StatusApproved:
		if !m.releaseDeposit(userID, chargeID) {
			// Платёж одобрили после истечения срока: зачислять поздно,
			// возвращаем деньги через шлюз.
			m.logger.Info("approved charge no longer bound to session", zap.String("chargeID", chargeID), zap.String("userID", userID))
			if err := m.payments.Refund(m.ctx, chargeID); err != nil {
				m.logger.Error("refund of stale charge failed", zap.Error(err), zap.String("chargeID", chargeID))
			}
			return
		}

		newBal, err := m.ledger.Credit(m.ctx, userID, amount)
		if err != nil {
			m.logger.Error("deposit credit failed", zap.Error(err), zap.String("userID", userID), zap.String("chargeID", chargeID))
			m.notifier.Notify(userID, channelID, viewNotice("Pagamento aprovado, mas houve um erro ao creditar o saldo. Contate o suporte."))
			return
		}

		if _, err := m.history.Append(m.ctx, userID, model.Transaction{
			Kind:        model.KindDeposit,
			AmountCents: amount,
			Status:      model.StatusCompleted,
		}); err != nil {
			m.logger.Warn("history append failed", zap.Error(err), zap.String("userID", userID))
		}

		m.notifier.Notify(userID, channelID, viewDepositApproved(amount, newBal))

	case payment.StatusRejected, payment.StatusCancelled:
		if m.releaseDeposit(userID, chargeID) {
			m.notifier.Notify(userID, channelID, viewNotice("Seu pagamento foi recusado. Nenhum valor foi movimentado."))
		}

	case payment.StatusTimeout:
		// Таймер истечения сам уберёт депозит и уведомит пользователя.
	}
}

// releaseDeposit отвязывает платёж от сессии, если он всё ещё активен.
// Возвращает false, когда депозит уже снят другим путём.
func (m *Machine) releaseDeposit(userID, chargeID string) bool {
	matched := false
	_ = m.sessions.Update(userID, func(s *model.Session) error {
		if s.ActiveDepositID != chargeID {
			return nil
		}
		matched = true
		s.ActiveDepositID = ""
		s.DepositCode = ""
		s.DepositAmountCents = 0
		return nil
	})
	if matched {
		m.disarmDeposit(userID)
	}
	return matched
}

func (m *Machine) armDepositExpiry(userID, channelID, chargeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.depositExpiry[userID]; ok {
		t.Stop()
	}
	m.depositExpiry[userID] = time.AfterFunc(m.cfg.DepositTTL, func() {
		m.expireDeposit(userID, channelID, chargeID)
	})
}

// expireDeposit снимает неоплаченный платёж по истечении срока. Деньги
// не двигаются; цикл опроса останавливается немедленно.
func (m *Machine) expireDeposit(userID, channelID, chargeID string) {
	if !m.releaseDeposit(userID, chargeID) {
		return
	}

	m.logger.Info("deposit expired", zap.String("userID", userID), zap.String("chargeID", chargeID))
	m.notifier.Notify(userID, channelID, viewNotice("Seu PIX expirou e foi cancelado. Nenhum valor foi movimentado. Gere um novo quando quiser."))
}

func (m *Machine) disarmDeposit(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.depositExpiry[userID]; ok {
		t.Stop()
		delete(m.depositExpiry, userID)
	}
	if c, ok := m.depositCancel[userID]; ok {
		c()
		delete(m.depositCancel, userID)
	}
}

func (m *Machine) clearDepositFlag(userID string) {
	_ = m.sessions.Update(userID, func(s *model.Session) error {
		s.DepositInFlight = false
		return nil
	})
}
