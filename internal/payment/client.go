// Package payment предоставляет клиент платёжного шлюза мгновенных платежей.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sethvargo/go-retry"
)

// ErrNotConfigured возвращается, если адрес шлюза или токен не заданы.
var ErrNotConfigured = errors.New("payment client not configured")

// ProviderError описывает отказ или некорректный ответ платёжного шлюза.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider: %s (status %d)", e.Message, e.StatusCode)
}

// ChargeStatus описывает состояние платежа.
type ChargeStatus string

const (
	StatusPending   ChargeStatus = "pending"
	StatusApproved  ChargeStatus = "approved"
	StatusRejected  ChargeStatus = "rejected"
	StatusCancelled ChargeStatus = "cancelled"
	// StatusTimeout — синтетический статус: лимит опроса исчерпан без
	// терминального ответа шлюза.
	StatusTimeout ChargeStatus = "timeout"
)

// Charge описывает созданный платёж с кодом для оплаты.
type Charge struct {
	ID            string
	CopyPasteCode string
	Status        ChargeStatus
}

// Client инкапсулирует HTTP-взаимодействие с платёжным шлюзом.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewClient создаёт клиент платёжного шлюза с ограниченными повторами запросов.
func NewClient(baseURL, accessToken string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  rc.StandardClient(),
	}
}

// Configured сообщает, достаточно ли настроек для обращения к шлюзу.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.accessToken != ""
}

type createChargeRequest struct {
	TransactionAmount float64 `json:"transaction_amount"`
	Description       string  `json:"description"`
	PaymentMethodID   string  `json:"payment_method_id"`
}

type chargeResponse struct {
	ID                 json.Number `json:"id"`
	Status             string      `json:"status"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode string `json:"qr_code"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

// CreateCharge создаёт платёж и возвращает его идентификатор и код
// для копирования.
func (c *Client) CreateCharge(ctx context.Context, amountCents int64, description string) (Charge, error) {
	if !c.Configured() {
		return Charge{}, ErrNotConfigured
	}

	body, err := json.Marshal(createChargeRequest{
		TransactionAmount: float64(amountCents) / 100,
		Description:       description,
		PaymentMethodID:   "pix",
	})
	if err != nil {
		return Charge{}, fmt.Errorf("marshal request: %w", err)
	}

	var raw chargeResponse
	if err := c.do(ctx, http.MethodPost, "/v1/payments", body, &raw); err != nil {
		return Charge{}, err
	}

	if raw.ID.String() == "" {
		return Charge{}, &ProviderError{StatusCode: http.StatusOK, Message: "response without charge id"}
	}

	return Charge{
		ID:            raw.ID.String(),
		CopyPasteCode: raw.PointOfInteraction.TransactionData.QRCode,
		Status:        mapStatus(raw.Status),
	}, nil
}

// Status запрашивает текущее состояние платежа.
func (c *Client) Status(ctx context.Context, chargeID string) (ChargeStatus, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	var raw chargeResponse
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+chargeID, nil, &raw); err != nil {
		return "", err
	}

	return mapStatus(raw.Status), nil
}

// Await опрашивает платёж до терминального статуса. Цикл ограничен
// числом попыток и никогда не блокируется бесконечно: по исчерпании
// лимита возвращается StatusTimeout. Ошибки отдельных попыток не
// прерывают опрос.
func (c *Client) Await(ctx context.Context, chargeID string, maxAttempts uint64, interval time.Duration) (ChargeStatus, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	final := StatusTimeout

	backoff := retry.WithMaxRetries(maxAttempts, retry.NewConstant(interval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		status, err := c.Status(ctx, chargeID)
		if err != nil {
			return retry.RetryableError(err)
		}

		switch status {
		case StatusApproved, StatusRejected, StatusCancelled:
			final = status
			return nil
		default:
			return retry.RetryableError(fmt.Errorf("charge %s still %s", chargeID, status))
		}
	})

	if err != nil {
		if ctx.Err() != nil {
			return StatusTimeout, ctx.Err()
		}
		// Лимит попыток исчерпан.
		return StatusTimeout, nil
	}

	return final, nil
}

// Refund запрашивает возврат платежа. Вызов сугубо best-effort: видимое
// пользователю возмещение делается кредитом в леджере, а не здесь.
func (c *Client) Refund(ctx context.Context, chargeID string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	return c.do(ctx, http.MethodPost, "/v1/payments/"+chargeID+"/refunds", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{StatusCode: resp.StatusCode, Message: "unexpected status"}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

func mapStatus(s string) ChargeStatus {
	switch s {
	case "approved":
		return StatusApproved
	case "rejected":
		return StatusRejected
	case "cancelled":
		return StatusCancelled
	default:
		return StatusPending
	}
}
