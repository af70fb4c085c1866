package ticket

// ActionKind перечисляет действия пользователя, поступающие из слоя сообщений.
type ActionKind string

const (
	ActionAcquire         ActionKind = "acquire"
	ActionAcceptTerms     ActionKind = "accept_terms"
	ActionRejectTerms     ActionKind = "reject_terms"
	ActionOpenCatalog     ActionKind = "open_catalog"
	ActionPagePrev        ActionKind = "page_prev"
	ActionPageNext        ActionKind = "page_next"
	ActionSelectProduct   ActionKind = "select_product"
	ActionConfirmPurchase ActionKind = "confirm_purchase"
	ActionCancelPurchase  ActionKind = "cancel_purchase"
	ActionCancelRefund    ActionKind = "cancel_refund"
	ActionRequestDeposit  ActionKind = "request_deposit"
	ActionSubmitDeposit   ActionKind = "submit_deposit_amount"
	ActionCloseTicket     ActionKind = "close_ticket"
	ActionOpenHistory     ActionKind = "open_history"
	ActionBackMenu        ActionKind = "back_menu"
	ActionCopyPix         ActionKind = "copy_pix"
)

// Action описывает одно входящее событие: кто, в каком канале и что нажал.
type Action struct {
	UserID    string
	ChannelID string
	Kind      ActionKind
	// Value несёт полезную нагрузку действия: идентификатор услуги для
	// select_product, введённую сумму для submit_deposit_amount.
	Value string
}
