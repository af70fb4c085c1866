package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/numbermarket-system/internal/model"
)

func TestWebhookNotify(t *testing.T) {
	var mu sync.Mutex
	var received []event

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var ev event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode event: %v", err)
		}
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, zap.NewNop())

	wh.Notify("314159", "ch-1", model.View{Text: "Código Recebido: 482913"})
	wh.CloseChannel("ch-1")

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("events = %d, want 2", len(received))
	}

	if received[0].UserID != "314159" || received[0].View == nil || received[0].View.Text != "Código Recebido: 482913" {
		t.Fatalf("notify event = %+v", received[0])
	}
	if !received[1].CloseChannel || received[1].ChannelID != "ch-1" {
		t.Fatalf("close event = %+v", received[1])
	}
}

func TestWebhookWithoutURL(t *testing.T) {
	wh := NewWebhook("", zap.NewNop())

	// Без URL события не должны приводить к панике или запросам.
	wh.Notify("314159", "ch-1", model.View{Text: "oi"})
	wh.CloseChannel("ch-1")
}
