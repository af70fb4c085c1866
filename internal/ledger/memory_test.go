package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemory_DefaultBalanceIsZero(t *testing.T) {
	l := NewMemory()

	bal, err := l.Balance(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("Balance error: %v", err)
	}
	if bal != 0 {
		t.Fatalf("balance = %d, want 0", bal)
	}
}

func TestMemory_CreditDebit(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	if _, err := l.Credit(ctx, "u1", 5000); err != nil {
		t.Fatalf("Credit error: %v", err)
	}

	bal, err := l.Debit(ctx, "u1", 1000)
	if err != nil {
		t.Fatalf("Debit error: %v", err)
	}
	if bal != 4000 {
		t.Fatalf("balance after debit = %d, want 4000", bal)
	}
}

func TestMemory_DebitNeverGoesNegative(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	if _, err := l.Credit(ctx, "u1", 500); err != nil {
		t.Fatalf("Credit error: %v", err)
	}

	_, err := l.Debit(ctx, "u1", 1000)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	bal, _ := l.Balance(ctx, "u1")
	if bal != 500 {
		t.Fatalf("balance changed by failed debit: %d", bal)
	}
}

func TestMemory_RejectsNonPositiveAmounts(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	if _, err := l.Credit(ctx, "u1", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("Credit(0): expected ErrInvalidAmount, got %v", err)
	}
	if _, err := l.Debit(ctx, "u1", -10); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("Debit(-10): expected ErrInvalidAmount, got %v", err)
	}
}

func TestMemory_ConcurrentDebitsConserveMoney(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	if _, err := l.Credit(ctx, "u1", 1000); err != nil {
		t.Fatalf("Credit error: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Debit(ctx, "u1", 100); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("succeeded debits = %d, want 10", succeeded)
	}

	bal, _ := l.Balance(ctx, "u1")
	if bal != 0 {
		t.Fatalf("final balance = %d, want 0", bal)
	}
}
