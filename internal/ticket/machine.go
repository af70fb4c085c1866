// Package ticket реализует конечный автомат тикета: покупку номера,
// опрос SMS, депозиты и возвраты с защитой от повторных действий.
package ticket

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/numbermarket-system/internal/catalog"
	"github.com/mmeshcher/numbermarket-system/internal/history"
	"github.com/mmeshcher/numbermarket-system/internal/ledger"
	"github.com/mmeshcher/numbermarket-system/internal/model"
	"github.com/mmeshcher/numbermarket-system/internal/payment"
	"github.com/mmeshcher/numbermarket-system/internal/rental"
	"github.com/mmeshcher/numbermarket-system/internal/session"
)

// ErrDuplicateAction возвращается, когда такой же денежный переход уже в полёте.
var (
	ErrDuplicateAction = errors.New("same action already in flight")
	// ErrRentalActive возвращается при попытке купить второй номер в одном тикете.
	ErrRentalActive = errors.New("rental already active")
	// ErrNoActiveRental возвращается при отмене без активной аренды.
	ErrNoActiveRental = errors.New("no active rental")
	// ErrDepositActive возвращается при запросе депозита, когда платёж уже создан.
	ErrDepositActive = errors.New("deposit already active")
	// ErrStateMismatch возвращается для действия, не соответствующего этапу сессии.
	ErrStateMismatch = errors.New("action does not match session state")
	// ErrNoTicket возвращается для действий вне открытого тикета.
	ErrNoTicket = errors.New("no open ticket")
	// ErrUnknownAction возвращается для неизвестного вида действия.
	ErrUnknownAction = errors.New("unknown action kind")
)

// RentalProvider описывает контракт сервиса аренды номеров.
type RentalProvider interface {
	Configured() bool
	Acquire(ctx context.Context, serviceID, countryCode, carrier string) (rental.Activation, error)
	Status(ctx context.Context, rentalID string) (rental.Status, error)
	Cancel(ctx context.Context, rentalID string) (rental.CancelResult, error)
}

// PaymentProvider описывает контракт платёжного шлюза.
type PaymentProvider interface {
	Configured() bool
	CreateCharge(ctx context.Context, amountCents int64, description string) (payment.Charge, error)
	Await(ctx context.Context, chargeID string, maxAttempts uint64, interval time.Duration) (payment.ChargeStatus, error)
	Refund(ctx context.Context, chargeID string) error
}

// Notifier доставляет асинхронные представления слою сообщений.
type Notifier interface {
	Notify(userID, channelID string, view model.View)
	CloseChannel(channelID string)
}

// Config содержит тайминги и параметры аренды конечного автомата.
type Config struct {
	CountryCode string
	Carrier     string

	SMSPollInterval time.Duration
	SMSPollAttempts int

	PaymentPollInterval time.Duration
	PaymentPollAttempts uint64

	// PurchaseGuardTTL — страховочный сброс флага покупки "в полёте".
	PurchaseGuardTTL time.Duration
	// DepositTTL — время жизни неоплаченного депозита.
	DepositTTL time.Duration
	// InactivityTTL — закрытие тикета при бездействии.
	InactivityTTL time.Duration
}

// DefaultConfig возвращает боевые тайминги автомата.
func DefaultConfig() Config {
	return Config{
		CountryCode:         "73",
		Carrier:             "any",
		SMSPollInterval:     10 * time.Second,
		SMSPollAttempts:     60,
		PaymentPollInterval: 10 * time.Second,
		PaymentPollAttempts: 30,
		PurchaseGuardTTL:    30 * time.Second,
		DepositTTL:          5 * time.Minute,
		InactivityTTL:       5 * time.Minute,
	}
}

// Machine — конечный автомат тикетов. Все переходы одного пользователя
// сериализуются хранилищем сессий; проверка и установка флагов "в
// полёте" происходят до любого внешнего вызова.
type Machine struct {
	cfg      Config
	sessions *session.Store
	catalog  *catalog.Catalog
	ledger   ledger.Ledger
	history  history.Log
	rentals  RentalProvider
	payments PaymentProvider
	notifier Notifier
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	inactivity     map[string]*time.Timer
	purchaseGuards map[string]*time.Timer
	depositExpiry  map[string]*time.Timer
	depositCancel  map[string]context.CancelFunc
}

// New создаёт конечный автомат тикетов.
func New(cfg Config, sessions *session.Store, cat *catalog.Catalog, led ledger.Ledger, hist history.Log, rentals RentalProvider, payments PaymentProvider, notifier Notifier, logger *zap.Logger) *Machine {
	ctx, cancel := context.WithCancel(context.Background())

	return &Machine{
		cfg:            cfg,
		sessions:       sessions,
		catalog:        cat,
		ledger:         led,
		history:        hist,
		rentals:        rentals,
		payments:       payments,
		notifier:       notifier,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		inactivity:     make(map[string]*time.Timer),
		purchaseGuards: make(map[string]*time.Timer),
		depositExpiry:  make(map[string]*time.Timer),
		depositCancel:  make(map[string]context.CancelFunc),
	}
}

// Close останавливает фоновые циклы и таймеры автомата.
func (m *Machine) Close() {
	m.cancel()

	m.mu.Lock()
	for _, t := range m.inactivity {
		t.Stop()
	}
	for _, t := range m.purchaseGuards {
		t.Stop()
	}
	for _, t := range m.depositExpiry {
		t.Stop()
	}
	for _, c := range m.depositCancel {
		c()
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// Dispatch обрабатывает одно входящее действие пользователя и возвращает
// представление для слоя сообщений.
func (m *Machine) Dispatch(ctx context.Context, a Action) (model.View, error) {
	if a.Kind == ActionAcquire {
		return m.openTicket(ctx, a.UserID, a.ChannelID)
	}

	channelID, ok := m.sessions.Ticket(a.UserID)
	if !ok {
		return viewNotice("Você não tem um ticket aberto."), ErrNoTicket
	}
	m.touchInactivity(a.UserID, channelID)

	switch a.Kind {
	case ActionAcceptTerms:
		return m.acceptTerms(ctx, a.UserID)
	case ActionRejectTerms:
		return m.rejectTerms(a.UserID, channelID)
	case ActionOpenCatalog:
		return m.openCatalog(a.UserID)
	case ActionPagePrev:
		return m.changePage(a.UserID, -1)
	case ActionPageNext:
		return m.changePage(a.UserID, +1)
	case ActionSelectProduct:
		return m.selectProduct(ctx, a.UserID, a.Value)
	case ActionConfirmPurchase:
		return m.confirmPurchase(ctx, a.UserID, channelID)
	case ActionCancelPurchase, ActionBackMenu:
		return m.backToMenu(ctx, a.UserID)
	case ActionCancelRefund:
		return m.cancelRefund(ctx, a.UserID)
	case ActionRequestDeposit:
		return m.requestDeposit(a.UserID)
	case ActionSubmitDeposit:
		return m.submitDeposit(ctx, a.UserID, channelID, a.Value)
	case ActionCloseTicket:
		return m.closeTicket(ctx, a.UserID, channelID)
	case ActionOpenHistory:
		return m.openHistory(ctx, a.UserID)
	case ActionCopyPix:
		return m.copyPix(a.UserID)
	default:
		return viewNotice("Ação desconhecida."), ErrUnknownAction
	}
}

// Balance возвращает текущий баланс пользователя в сентаво.
func (m *Machine) Balance(ctx context.Context, userID string) (int64, error) {
	return m.ledger.Balance(ctx, userID)
}

// History возвращает журнал операций пользователя в порядке создания.
func (m *Machine) History(ctx context.Context, userID string) ([]model.Transaction, error) {
	return m.history.List(ctx, userID)
}

func (m *Machine) openTicket(ctx context.Context, userID, channelID string) (model.View, error) {
	existing, err := m.sessions.OpenTicket(userID, channelID)
	if err != nil {
		return viewNotice("Você já tem um ticket aberto: " + existing), err
	}

	_ = m.sessions.Update(userID, func(s *model.Session) error {
		*s = model.Session{UserID: userID, ChannelID: channelID, Stage: model.StageAwaitingTerms}
		return nil
	})

	m.touchInactivity(userID, channelID)

	return viewTerms(userID), nil
}

func (m *Machine) acceptTerms(ctx context.Context, userID string) (model.View, error) {
	_ = m.sessions.Update(userID, func(s *model.Session) error {
		s.Stage = model.StageMenu
		return nil
	})
	return m.menuView(ctx, userID)
}

func (m *Machine) rejectTerms(userID, channelID string) (model.View, error) {
	m.teardown(userID)
	m.notifier.CloseChannel(channelID)
	return model.View{Text: "Ticket fechado pelo usuário."}, nil
}

func (m *Machine) openCatalog(userID string) (model.View, error) {
	_ = m.sessions.Update(userID, func(s *model.Session) error {
		s.Stage = model.StageBrowsing
		s.Page = 0
		return nil
	})
	return viewCatalog(m.catalog.Page(0), 0, m.catalog.TotalPages()), nil
}

func (m *Machine) changePage(userID string, dir int) (model.View, error) {
	var page int
	_ = m.sessions.Update(userID, func(s *model.Session) error {
		s.Stage = model.StageBrowsing
		s.Page += dir
		if s.Page < 0 {
			s.Page = 0
		}
		if max := m.catalog.TotalPages() - 1; s.Page > max {
			s.Page = max
		}
		page = s.Page
		return nil
	})
	return viewCatalog(m.catalog.Page(page), page, m.catalog.TotalPages()), nil
}

func (m *Machine) selectProduct(ctx context.Context, userID, productID string) (model.View, error) {
	p, ok := m.catalog.ByID(productID)
	if !ok {
		m.logger.Info("unknown product selected", zap.String("userID", userID), zap.String("productID", productID))
		return viewNotice("Serviço não encontrado."), ErrStateMismatch
	}

	_ = m.sessions.Update(userID, func(s *model.Session) error {
		s.Stage = model.StageConfirming
		s.Selected = &p
		return nil
	})

	bal, err := m.ledger.Balance(ctx, userID)
	if err != nil {
		m.logger.Error("balance read failed", zap.Error(err), zap.String("userID", userID))
		return viewNotice("Erro ao consultar seu saldo. Tente novamente."), err
	}

	return viewConfirm(p, bal), nil
}

func (m *Machine) backToMenu(ctx context.Context, userID string) (model.View, error) {
	_ = m.sessions.Update(userID, func(s *model.Session) error {
		s.Stage = model.StageMenu
		s.Selected = nil
		return nil
	})
	return m.menuView(ctx, userID)
}

func (m *Machine) openHistory(ctx context.Context, userID string) (model.View, error) {
	records, err := m.history.List(ctx, userID)
	if err != nil {
		m.logger.Error("history read failed", zap.Error(err), zap.String("userID", userID))
		return viewNotice("Erro ao carregar histórico. Tente novamente."), err
	}
	return viewHistory(records), nil
}

func (m *Machine) copyPix(userID string) (model.View, error) {
	s, ok := m.sessions.Get(userID)
	if !ok || s.DepositCode == "" {
		return viewNotice("Código PIX não encontrado ou expirado."), nil
	}
	return model.View{Text: s.DepositCode, Ephemeral: true}, nil
}

// closeTicket закрывает тикет; активная аренда перед удалением канала
// отменяется и возмещается тем же путём, что и явная отмена.
func (m *Machine) closeTicket(ctx context.Context, userID, channelID string) (model.View, error) {
	var refundNote string

	if s, ok := m.sessions.Get(userID); ok && s.ActiveRentalID != "" {
		price, newBal, err := m.refundActiveRental(ctx, userID)
		switch {
		case errors.Is(err, ErrDuplicateAction):
			return viewNotice("Já há um processo de cancelamento em andamento."), err
		case err != nil:
			m.logger.Error("refund on close failed", zap.Error(err), zap.String("userID", userID))
			return viewNotice("Não foi possível estornar o número ativo. Tente novamente."), err
		default:
			refundNote = "\nReembolso automático: " + model.FormatReais(price) +
				" estornados ao fechar o ticket. Novo Saldo: " + model.FormatReais(newBal)
		}
	}

	m.teardown(userID)
	m.notifier.CloseChannel(channelID)

	return model.View{Text: "Ticket sendo encerrado..." + refundNote}, nil
}

func (m *Machine) menuView(ctx context.Context, userID string) (model.View, error) {
	bal, err := m.ledger.Balance(ctx, userID)
	if err != nil {
		m.logger.Error("balance read failed", zap.Error(err), zap.String("userID", userID))
		return viewNotice("Erro ao consultar seu saldo. Tente novamente."), err
	}
	return viewMenu(userID, bal), nil
}

// teardown снимает таймеры, фоновые циклы и состояние пользователя.
func (m *Machine) teardown(userID string) {
	m.mu.Lock()
	if t, ok := m.inactivity[userID]; ok {
		t.Stop()
		delete(m.inactivity, userID)
	}
	if t, ok := m.purchaseGuards[userID]; ok {
		t.Stop()
		delete(m.purchaseGuards, userID)
	}
	if t, ok := m.depositExpiry[userID]; ok {
		t.Stop()
		delete(m.depositExpiry, userID)
	}
	if c, ok := m.depositCancel[userID]; ok {
		c()
		delete(m.depositCancel, userID)
	}
	m.mu.Unlock()

	m.sessions.CloseTicket(userID)
}

// touchInactivity перезапускает таймер бездействия: любое действие в
// тикете продлевает его жизнь.
func (m *Machine) touchInactivity(userID, channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.inactivity[userID]; ok {
		t.Stop()
	}
	m.inactivity[userID] = time.AfterFunc(m.cfg.InactivityTTL, func() {
		m.expireTicket(userID, channelID)
	})
}

func (m *Machine) expireTicket(userID, channelID string) {
	if s, ok := m.sessions.Get(userID); ok && s.ActiveRentalID != "" {
		if _, _, err := m.refundActiveRental(m.ctx, userID); err != nil && !errors.Is(err, ErrNoActiveRental) {
			m.logger.Error("refund on inactivity close failed", zap.Error(err), zap.String("userID", userID))
		}
	}

	m.logger.Info("ticket closed by inactivity", zap.String("userID", userID), zap.String("channelID", channelID))
	m.teardown(userID)
	m.notifier.CloseChannel(channelID)
}
