package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/mmeshcher/numbermarket-system/internal/model"
)

func TestStore_UpdateCreatesLazily(t *testing.T) {
	st := NewStore()

	err := st.Update("u1", func(s *model.Session) error {
		if s.Stage != model.StageAwaitingTerms {
			t.Fatalf("new session stage = %v, want awaiting_terms", s.Stage)
		}
		s.Stage = model.StageMenu
		return nil
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}

	s, ok := st.Get("u1")
	if !ok || s.Stage != model.StageMenu {
		t.Fatalf("session not persisted: %+v ok=%v", s, ok)
	}
}

func TestStore_CheckAndSetIsAtomic(t *testing.T) {
	st := NewStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	// Много конкурентных попыток выставить флаг покупки: пройти должна ровно одна.
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = st.Update("u1", func(s *model.Session) error {
				if s.PurchaseInFlight {
					return errors.New("busy")
				}
				s.PurchaseInFlight = true
				mu.Lock()
				acquired++
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if acquired != 1 {
		t.Fatalf("flag acquired %d times, want 1", acquired)
	}
}

func TestStore_SingleTicketPerUser(t *testing.T) {
	st := NewStore()

	ch, err := st.OpenTicket("u1", "chan-1")
	if err != nil || ch != "chan-1" {
		t.Fatalf("first OpenTicket: ch=%q err=%v", ch, err)
	}

	ch, err = st.OpenTicket("u1", "chan-2")
	if !errors.Is(err, ErrTicketExists) {
		t.Fatalf("expected ErrTicketExists, got %v", err)
	}
	if ch != "chan-1" {
		t.Fatalf("existing channel = %q, want chan-1", ch)
	}
}

func TestStore_CloseTicketDropsSession(t *testing.T) {
	st := NewStore()

	_, _ = st.OpenTicket("u1", "chan-1")
	_ = st.Update("u1", func(s *model.Session) error {
		s.ActiveRentalID = "R1"
		return nil
	})

	st.CloseTicket("u1")

	if _, ok := st.Get("u1"); ok {
		t.Fatalf("session survived CloseTicket")
	}
	if _, ok := st.Ticket("u1"); ok {
		t.Fatalf("ticket survived CloseTicket")
	}
}
