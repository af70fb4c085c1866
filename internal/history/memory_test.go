package history

import (
	"context"
	"errors"
	"testing"

	"github.com/mmeshcher/numbermarket-system/internal/model"
)

func TestMemory_AppendAssignsIDAndTimestamp(t *testing.T) {
	log := NewMemory()

	stored, err := log.Append(context.Background(), "u1", model.Transaction{
		Kind:        model.KindPurchase,
		AmountCents: 1000,
		Status:      model.StatusAwaitingSMS,
	})
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if stored.ID == "" {
		t.Fatalf("expected assigned record id")
	}
	if stored.CreatedAt.IsZero() {
		t.Fatalf("expected assigned timestamp")
	}
}

func TestMemory_UpdateStatusMatchesMostRecent(t *testing.T) {
	log := NewMemory()
	ctx := context.Background()

	_, _ = log.Append(ctx, "u1", model.Transaction{Kind: model.KindPurchase, RentalID: "R1", Status: model.StatusRefunded})
	_, _ = log.Append(ctx, "u1", model.Transaction{Kind: model.KindPurchase, RentalID: "R1", Status: model.StatusAwaitingSMS})

	if err := log.UpdateStatus(ctx, "u1", "R1", model.StatusCompleted, "482913"); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}

	recs, _ := log.List(ctx, "u1")
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].Status != model.StatusRefunded {
		t.Fatalf("older record touched: %v", recs[0].Status)
	}
	if recs[1].Status != model.StatusCompleted || recs[1].Code != "482913" {
		t.Fatalf("most recent record not updated: %+v", recs[1])
	}
}

func TestMemory_UpdateStatusUnknownRef(t *testing.T) {
	log := NewMemory()

	err := log.UpdateStatus(context.Background(), "u1", "missing", model.StatusCompleted, "")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestMemory_ListIsCreationOrdered(t *testing.T) {
	log := NewMemory()
	ctx := context.Background()

	first, _ := log.Append(ctx, "u1", model.Transaction{Kind: model.KindDeposit, AmountCents: 2000})
	second, _ := log.Append(ctx, "u1", model.Transaction{Kind: model.KindPurchase, AmountCents: 1000})

	recs, err := log.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != first.ID || recs[1].ID != second.ID {
		t.Fatalf("unexpected order: %+v", recs)
	}
}
