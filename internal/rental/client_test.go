package rental

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAcquire_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/numbers" {
			t.Fatalf("path = %s, want /api/numbers", r.URL.Path)
		}
		if got := r.URL.Query().Get("service"); got != "12" {
			t.Fatalf("service = %s, want 12", got)
		}
		if got := r.URL.Query().Get("country"); got != "73" {
			t.Fatalf("country = %s, want 73", got)
		}
		if got := r.Header.Get("X-Api-Key"); got != "key-1" {
			t.Fatalf("api key = %s, want key-1", got)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(Activation{ID: "555", Number: "+5511999990000"}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "key-1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	act, err := client.Acquire(ctx, "12", "73", "any")
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if act.ID != "555" || act.Number != "+5511999990000" {
		t.Fatalf("unexpected activation: %+v", act)
	}
}

func TestAcquire_MissingID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"numero":"+5511999990000"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "key-1")

	_, err := client.Acquire(context.Background(), "12", "73", "any")

	var pErr *ProviderError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestAcquire_NotConfigured(t *testing.T) {
	client := NewClient("", "")

	_, err := client.Acquire(context.Background(), "12", "73", "any")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStatus_Mapping(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     State
		wantCode string
	}{
		{name: "received", body: `{"status":"STATUS_OK","codigo":"482913"}`, want: StateReceived, wantCode: "482913"},
		{name: "received legacy", body: `{"status":"RECEBIDO","codigo":"111222"}`, want: StateReceived, wantCode: "111222"},
		{name: "waiting", body: `{"status":"STATUS_WAIT_CODE"}`, want: StateWaiting},
		{name: "expired", body: `{"status":"EXPIRADO"}`, want: StateExpired},
		{name: "unknown treated as waiting", body: `{"status":"SOMETHING_NEW"}`, want: StateWaiting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/numbers/555/status" {
					t.Fatalf("path = %s", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			client := NewClient(ts.URL, "key-1")

			st, err := client.Status(context.Background(), "555")
			if err != nil {
				t.Fatalf("Status error: %v", err)
			}
			if st.State != tt.want {
				t.Fatalf("state = %v, want %v", st.State, tt.want)
			}
			if st.Code != tt.wantCode {
				t.Fatalf("code = %q, want %q", st.Code, tt.wantCode)
			}
		})
	}
}

func TestCancel_ProviderRefusal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/numbers/555/cancel" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false,"response":"EARLY_CANCEL_DENIED"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "key-1")

	res, err := client.Cancel(context.Background(), "555")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if res.Success {
		t.Fatalf("expected refusal")
	}
	if res.Message != "EARLY_CANCEL_DENIED" {
		t.Fatalf("message = %q", res.Message)
	}
}
