// Package rental предоставляет клиент для внешнего сервиса аренды SMS-номеров.
package rental

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrNotConfigured возвращается, если адрес или ключ API не заданы.
var ErrNotConfigured = errors.New("rental client not configured")

// ProviderError описывает отказ или некорректный ответ провайдера аренды.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("rental provider: %s (status %d)", e.Message, e.StatusCode)
}

// State описывает состояние аренды с точки зрения ядра.
type State string

const (
	StateWaiting  State = "waiting"
	StateReceived State = "received"
	StateExpired  State = "expired"
)

// Activation описывает выданный провайдером номер.
type Activation struct {
	ID     string `json:"id"`
	Number string `json:"numero"`
}

// Status описывает ответ провайдера о состоянии аренды.
type Status struct {
	State State
	Code  string
}

// CancelResult описывает ответ провайдера на отмену аренды.
type CancelResult struct {
	Success bool   `json:"success"`
	Message string `json:"response"`
}

// Client инкапсулирует HTTP-взаимодействие с сервисом аренды номеров.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт клиент сервиса аренды с ограниченными повторами запросов.
func NewClient(baseURL, apiKey string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: rc.StandardClient(),
	}
}

// Configured сообщает, достаточно ли настроек для обращения к провайдеру.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

func (c *Client) do(ctx context.Context, method, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &ProviderError{StatusCode: resp.StatusCode, Message: "unexpected status"}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

// Acquire запрашивает новый номер для указанной услуги. До успешного
// ответа с непустым идентификатором вызывающая сторона не имеет права
// списывать баланс.
func (c *Client) Acquire(ctx context.Context, serviceID, countryCode, carrier string) (Activation, error) {
	if !c.Configured() {
		return Activation{}, ErrNotConfigured
	}

	path := fmt.Sprintf("/api/numbers?service=%s&country=%s&operator=%s", serviceID, countryCode, carrier)

	var act Activation
	if _, err := c.do(ctx, http.MethodPost, path, &act); err != nil {
		return Activation{}, err
	}

	if act.ID == "" {
		return Activation{}, &ProviderError{StatusCode: http.StatusOK, Message: "response without activation id"}
	}

	return act, nil
}

type statusResponse struct {
	Status string `json:"status"`
	Code   string `json:"codigo"`
}

// Status запрашивает состояние аренды. Схема ответа принадлежит
// провайдеру и считается нестабильной: неизвестные статусы трактуются
// как ожидание.
func (c *Client) Status(ctx context.Context, rentalID string) (Status, error) {
	if !c.Configured() {
		return Status{}, ErrNotConfigured
	}

	var raw statusResponse
	if _, err := c.do(ctx, http.MethodGet, "/api/numbers/"+rentalID+"/status", &raw); err != nil {
		return Status{}, err
	}

	switch raw.Status {
	case "STATUS_OK", "RECEBIDO":
		return Status{State: StateReceived, Code: raw.Code}, nil
	case "STATUS_CANCEL", "EXPIRADO":
		return Status{State: StateExpired}, nil
	default:
		return Status{State: StateWaiting}, nil
	}
}

// Cancel отменяет аренду. С точки зрения вызывающей стороны операция
// идемпотентна: возврат средств выполняется независимо от ответа
// провайдера.
func (c *Client) Cancel(ctx context.Context, rentalID string) (CancelResult, error) {
	if !c.Configured() {
		return CancelResult{}, ErrNotConfigured
	}

	var res CancelResult
	if _, err := c.do(ctx, http.MethodPost, "/api/numbers/"+rentalID+"/cancel", &res); err != nil {
		return CancelResult{}, err
	}

	return res, nil
}
