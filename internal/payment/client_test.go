package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCreateCharge_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payments" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Fatalf("authorization = %q", got)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["transaction_amount"] != 20.0 {
			t.Fatalf("transaction_amount = %v, want 20", req["transaction_amount"])
		}
		if req["payment_method_id"] != "pix" {
			t.Fatalf("payment_method_id = %v", req["payment_method_id"])
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": 987654,
			"status": "pending",
			"point_of_interaction": {"transaction_data": {"qr_code": "00020126pix-copy-paste"}}
		}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "tok-1")

	charge, err := client.CreateCharge(context.Background(), 2000, "Depósito de Saldo")
	if err != nil {
		t.Fatalf("CreateCharge error: %v", err)
	}
	if charge.ID != "987654" {
		t.Fatalf("id = %q, want 987654", charge.ID)
	}
	if charge.CopyPasteCode != "00020126pix-copy-paste" {
		t.Fatalf("copy-paste = %q", charge.CopyPasteCode)
	}
	if charge.Status != StatusPending {
		t.Fatalf("status = %v", charge.Status)
	}
}

func TestCreateCharge_NotConfigured(t *testing.T) {
	client := NewClient("", "")

	_, err := client.CreateCharge(context.Background(), 2000, "x")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestAwait_ApprovedAfterRetries(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := "pending"
		if calls.Add(1) >= 3 {
			status = "approved"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 1, "status": "` + status + `"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "tok-1")

	status, err := client.Await(context.Background(), "1", 10, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if status != StatusApproved {
		t.Fatalf("status = %v, want approved", status)
	}
}

func TestAwait_TimeoutAfterMaxAttempts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 1, "status": "pending"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "tok-1")

	status, err := client.Await(context.Background(), "1", 3, time.Millisecond)
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if status != StatusTimeout {
		t.Fatalf("status = %v, want timeout", status)
	}
}

func TestAwait_CancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 1, "status": "pending"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "tok-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Await(ctx, "1", 100, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRefund_BestEffort(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/42/refunds" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "tok-1")

	if err := client.Refund(context.Background(), "42"); err != nil {
		t.Fatalf("Refund error: %v", err)
	}
}
