package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/noticeboard-backend/internal/domain"
)

func TestPendingCheckout_CreateGetComplete(t *testing.T) {
	db := newTestDB(t, &domain.PendingCheckout{})
	ctx := context.Background()
	tier := domain.TierBasic

	pc := &domain.PendingCheckout{SessionID: "cs_1", EmployerID: "e1", Kind: domain.PurchaseSubscriptionCredits, Tier: &tier, Amount: 2900, Currency: "gbp"}
	if err := CreatePendingCheckout(ctx, db, pc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if pc.ID == "" {
		t.Fatalf("expected generated id")
	}
	if err := CreatePendingCheckout(ctx, db, &domain.PendingCheckout{SessionID: "cs_1", EmployerID: "e1", Kind: domain.PurchaseOneTimeContact, Currency: "gbp"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on same session, got %v", err)
	}

	got, err := GetPendingCheckoutBySession(ctx, db, "cs_1")
	if err != nil || got.Tier == nil || *got.Tier != domain.TierBasic {
		t.Fatalf("get: %+v err=%v", got, err)
	}
	if _, err := GetPendingCheckoutBySession(ctx, db, "cs_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	first := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := CompletePendingCheckout(ctx, db, pc.ID, first); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := CompletePendingCheckout(ctx, db, pc.ID, first.Add(time.Hour)); err != nil {
		t.Fatalf("second complete: %v", err)
	}
	got, _ = GetPendingCheckoutBySession(ctx, db, "cs_1")
	if got.CompletedAt == nil || !got.CompletedAt.Equal(first) {
		t.Fatalf("completion must be stamped once, got %v", got.CompletedAt)
	}
}

func TestInsertAppliedTransaction_DetectsReplay(t *testing.T) {
	db := newTestDB(t, &domain.AppliedTransaction{})
	ctx := context.Background()

	at := &domain.AppliedTransaction{TransactionID: "pi_1", EmployerID: "e1", Kind: domain.PurchaseOneTimeContact, AmountPaid: 1000, Outcome: "applied"}
	if err := InsertAppliedTransaction(ctx, db, at); err != nil {
		t.Fatalf("insert: %v", err)
	}
	dup := &domain.AppliedTransaction{TransactionID: "pi_1", EmployerID: "e1", Kind: domain.PurchaseOneTimeContact, Outcome: "applied"}
	if err := InsertAppliedTransaction(ctx, db, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := GetAppliedTransaction(ctx, db, "pi_1")
	if err != nil || got.AmountPaid != 1000 {
		t.Fatalf("get: %+v err=%v", got, err)
	}
	if _, err := GetAppliedTransaction(ctx, db, "pi_x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
