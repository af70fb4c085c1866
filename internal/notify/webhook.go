// Package notify доставляет асинхронные события мосту сообщений через вебхук.
package notify

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/mmeshcher/numbermarket-system/internal/model"
)

type event struct {
	UserID       string      `json:"user_id,omitempty"`
	ChannelID    string      `json:"channel_id"`
	CloseChannel bool        `json:"close_channel,omitempty"`
	View         *model.View `json:"view,omitempty"`
}

// Webhook отправляет события моста на настроенный URL. Без URL события
// только логируются: сервис остаётся работоспособным в одиночном режиме.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWebhook создаёт отправителя событий моста.
func NewWebhook(url string, logger *zap.Logger) *Webhook {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil

	return &Webhook{
		url:        url,
		httpClient: rc.StandardClient(),
		logger:     logger,
	}
}

// Notify доставляет представление в канал пользователя.
func (w *Webhook) Notify(userID, channelID string, view model.View) {
	w.send(event{UserID: userID, ChannelID: channelID, View: &view})
}

// CloseChannel сообщает мосту, что канал тикета нужно удалить.
func (w *Webhook) CloseChannel(channelID string) {
	w.send(event{ChannelID: channelID, CloseChannel: true})
}

func (w *Webhook) send(ev event) {
	if w.url == "" {
		w.logger.Info("webhook not configured, event dropped",
			zap.String("channelID", ev.ChannelID),
			zap.Bool("close", ev.CloseChannel),
		)
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		w.logger.Error("marshal webhook event", zap.Error(err))
		return
	}

	resp, err := w.httpClient.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		w.logger.Error("deliver webhook event", zap.Error(err), zap.String("channelID", ev.ChannelID))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		w.logger.Warn("webhook rejected event",
			zap.Int("status", resp.StatusCode),
			zap.String("channelID", ev.ChannelID),
		)
	}
}
