package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/noticeboard-backend/internal/domain"
	"github.com/tbourn/noticeboard-backend/internal/payments"
	"github.com/tbourn/noticeboard-backend/internal/repo"
)

func seedCheckout(t *testing.T, db *gorm.DB, pc *domain.PendingCheckout) {
	t.Helper()
	if pc.Currency == "" {
		pc.Currency = "gbp"
	}
	if err := repo.CreatePendingCheckout(context.Background(), db, pc); err != nil {
		t.Fatalf("seed checkout: %v", err)
	}
}

func subscriptionEvent(txn, session, emp string, tier domain.Tier) payments.CheckoutCompleted {
	return payments.CheckoutCompleted{
		TransactionID: txn,
		SessionID:     session,
		EmployerID:    emp,
		Kind:          domain.PurchaseSubscriptionCredits,
		Tier:          tier,
		AmountPaid:    2900,
		Currency:      "gbp",
	}
}

func appliedExists(t *testing.T, db *gorm.DB, txn string) bool {
	t.Helper()
	_, err := repo.GetAppliedTransaction(context.Background(), db, txn)
	if errors.Is(err, repo.ErrNotFound) {
		return false
	}
	if err != nil {
		t.Fatalf("applied lookup: %v", err)
	}
	return true
}

func TestReconcile_SubscriptionGrantsTierCredits(t *testing.T) {
	db := newTestDB(t)
	seedEmployer(t, db, "e1")
	l := &Ledger{DB: db}
	r := &Reconciler{DB: db, Ledger: l}
	basic := domain.TierBasic
	seedCheckout(t, db, &domain.PendingCheckout{SessionID: "cs_1", EmployerID: "e1", Kind: domain.PurchaseSubscriptionCredits, Tier: &basic})

	res, err := r.Reconcile(context.Background(), subscriptionEvent("cs_1", "cs_1", "e1", domain.TierBasic))
	if err != nil || res != ResultApplied {
		t.Fatalf("Reconcile=%q err=%v", res, err)
	}
	want := map[domain.CreditType]int64{domain.CreditView: 10, domain.CreditMessage: 5, domain.CreditInterviewRequest: 2}
	for ct, n := range want {
		if got := balance(t, l, "e1", ct); got != n {
			t.Fatalf("%s balance=%d want %d", ct, got, n)
		}
	}
	if got := balance(t, l, "e1", domain.CreditOffer); got != 0 {
		t.Fatalf("offer balance=%d", got)
	}

	emp, err := repo.GetEmployer(context.Background(), db, "e1")
	if err != nil || emp.SubscriptionTier != domain.TierBasic {
		t.Fatalf("tier not updated: %+v %v", emp, err)
	}
	pc, err := repo.GetPendingCheckoutBySession(context.Background(), db, "cs_1")
	if err != nil || pc.CompletedAt == nil {
		t.Fatalf("checkout not completed: %+v %v", pc, err)
	}

	credits, err := repo.ListCredits(context.Background(), db, "e1")
	if err != nil {
		t.Fatalf("ListCredits: %v", err)
	}
	for _, c := range credits {
		if c.ExpiresAt == nil || c.Source != "subscription" {
			t.Fatalf("subscription credit must expire and be tagged: %+v", c)
		}
	}
}

func TestReconcile_ReplayIsIgnored(t *testing.T) {
	db := newTestDB(t)
	seedEmployer(t, db, "e1")
	l := &Ledger{DB: db}
	r := &Reconciler{DB: db, Ledger: l}
	premium := domain.TierPremium
	seedCheckout(t, db, &domain.PendingCheckout{SessionID: "cs_2", EmployerID: "e1", Kind: domain.PurchaseSubscriptionCredits, Tier: &premium})
	ev := subscriptionEvent("pi_2", "cs_2", "e1", domain.TierPremium)

	if res, err := r.Reconcile(context.Background(), ev); err != nil || res != ResultApplied {
		t.Fatalf("first=%q err=%v", res, err)
	}
	res, err := r.Reconcile(context.Background(), ev)
	if err != nil || res != ResultIgnored {
		t.Fatalf("replay=%q err=%v", res, err)
	}
	if got := balance(t, l, "e1", domain.CreditView); got != 50 {
		t.Fatalf("replay must not grant again: %d", got)
	}

	// A different transaction for an already completed session is also a no-op.
	ev.TransactionID = "pi_other"
	res, err = r.Reconcile(context.Background(), ev)
	if err != nil || res != ResultIgnored {
		t.Fatalf("completed session=%q err=%v", res, err)
	}
	if appliedExists(t, db, "pi_other") {
		t.Fatalf("ignored delivery must leave no marker")
	}
	if got := balance(t, l, "e1", domain.CreditView); got != 50 {
		t.Fatalf("balance changed: %d", got)
	}
}

func TestReconcile_ConcurrentDeliveryAppliesOnce(t *testing.T) {
	db := newTestDB(t)
	seedEmployer(t, db, "e1")
	l := &Ledger{DB: db}
	r := &Reconciler{DB: db, Ledger: l}
	basic := domain.TierBasic
	seedCheckout(t, db, &domain.PendingCheckout{SessionID: "cs_c", EmployerID: "e1", Kind: domain.PurchaseSubscriptionCredits, Tier: &basic})
	ev := subscriptionEvent("pi_c", "cs_c", "e1", domain.TierBasic)

	const deliveries = 10
	var applied, ignored atomic.Int64
	var wg sync.WaitGroup
	wg.Add(deliveries)
	for i := 0; i < deliveries; i++ {
		go func() {
			defer wg.Done()
			res, err := r.Reconcile(context.Background(), ev)
			switch {
			case err != nil:
				t.Errorf("unexpected error: %v", err)
			case res == ResultApplied:
				applied.Add(1)
			case res == ResultIgnored:
				ignored.Add(1)
			}
		}()
	}
	wg.Wait()

	if applied.Load() != 1 || ignored.Load() != deliveries-1 {
		t.Fatalf("applied=%d ignored=%d", applied.Load(), ignored.Load())
	}
	if got := balance(t, l, "e1", domain.CreditView); got != 10 {
		t.Fatalf("view balance=%d want 10", got)
	}
	credits, err := repo.ListCredits(context.Background(), db, "e1")
	if err != nil {
		t.Fatalf("ListCredits: %v", err)
	}
	if len(credits) != 3 {
		t.Fatalf("credit rows=%d want one grant per pooled type", len(credits))
	}
}

func TestReconcile_UnknownSessionIgnored(t *testing.T) {
	db := newTestDB(t)
	seedEmployer(t, db, "e1")
	r := &Reconciler{DB: db}

	res, err := r.Reconcile(context.Background(), subscriptionEvent("pi_x", "cs_missing", "e1", domain.TierBasic))
	if err != nil || res != ResultIgnored {
		t.Fatalf("res=%q err=%v", res, err)
	}
	if appliedExists(t, db, "pi_x") {
		t.Fatalf("unknown session must not record the transaction")
	}
}

func TestReconcile_MismatchRejected(t *testing.T) {
	db := newTestDB(t)
	seedEmployer(t, db, "e1")
	seedEmployer(t, db, "e2")
	l := &Ledger{DB: db}
	r := &Reconciler{DB: db, Ledger: l}
	basic := domain.TierBasic
	seedCheckout(t, db, &domain.PendingCheckout{SessionID: "cs_3", EmployerID: "e1", Kind: domain.PurchaseSubscriptionCredits, Tier: &basic})

	_, err := r.Reconcile(context.Background(), subscriptionEvent("pi_3", "cs_3", "e2", domain.TierBasic))
	if !errors.Is(err, ErrCheckoutMismatch) {
		t.Fatalf("employer mismatch: %v", err)
	}
	_, err = r.Reconcile(context.Background(), subscriptionEvent("pi_3", "cs_3", "e1", domain.TierPremium))
	if !errors.Is(err, ErrCheckoutMismatch) {
		t.Fatalf("tier mismatch: %v", err)
	}
	if appliedExists(t, db, "pi_3") || balance(t, l, "e2", domain.CreditView) != 0 || balance(t, l, "e1", domain.CreditView) != 0 {
		t.Fatalf("rejected event must leave no trace")
	}

	// The genuine delivery still applies afterwards.
	if res, err := r.Reconcile(context.Background(), subscriptionEvent("pi_3", "cs_3", "e1", domain.TierBasic)); err != nil || res != ResultApplied {
		t.Fatalf("genuine=%q err=%v", res, err)
	}
}

func TestReconcile_InvalidEvent(t *testing.T) {
	db := newTestDB(t)
	r := &Reconciler{DB: db}
	if _, err := r.Reconcile(context.Background(), payments.CheckoutCompleted{SessionID: "cs"}); !errors.Is(err, ErrInvalidPurchase) {
		t.Fatalf("want ErrInvalidPurchase, got %v", err)
	}
}

func TestReconcile_GrantFailureLeavesNoMarker(t *testing.T) {
	db := newTestDB(t)
	seedEmployer(t, db, "e1")
	l := &Ledger{DB: db}
	r := &Reconciler{DB: db, Ledger: l}
	basic := domain.TierBasic
	seedCheckout(t, db, &domain.PendingCheckout{SessionID: "cs_4", EmployerID: "e1", Kind: domain.PurchaseSubscriptionCredits, Tier: &basic})

	var fail atomic.Bool
	fail.Store(true)
	if err := db.Callback().Create().Before("gorm:create").Register("test:fail_credits", func(tx *gorm.DB) {
		if fail.Load() && tx.Statement.Schema != nil && tx.Statement.Schema.Table == "credits" {
			_ = tx.AddError(errors.New("store unavailable"))
		}
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	ev := subscriptionEvent("pi_4", "cs_4", "e1", domain.TierBasic)
	if _, err := r.Reconcile(context.Background(), ev); err == nil {
		t.Fatalf("expected store failure")
	}
	if appliedExists(t, db, "pi_4") {
		t.Fatalf("failed grant must not leave the marker")
	}

	fail.Store(false)
	res, err := r.Reconcile(context.Background(), ev)
	if err != nil || res != ResultApplied {
		t.Fatalf("retry=%q err=%v", res, err)
	}
	if got := balance(t, l, "e1", domain.CreditMessage); got != 5 {
		t.Fatalf("retry balance=%d", got)
	}
}

func TestReconcile_OneTimeUnlocksAwaitingContact(t *testing.T) {
	db, l, svc := newContactFixture(t)
	r := &Reconciler{DB: db, Ledger: l}
	ctx := context.Background()

	// Basic tier: five message credits, the sixth request needs payment.
	basic := domain.TierBasic
	seedCheckout(t, db, &domain.PendingCheckout{SessionID: "cs_sub", EmployerID: "e1", Kind: domain.PurchaseSubscriptionCredits, Tier: &basic})
	if _, err := r.Reconcile(ctx, subscriptionEvent("cs_sub", "cs_sub", "e1", domain.TierBasic)); err != nil {
		t.Fatalf("subscription: %v", err)
	}
	for i := 0; i < 5; i++ {
		cand := "m" + string(rune('a'+i))
		seedCandidate(t, db, cand)
		dec, err := svc.Request(ctx, RequestInput{EmployerID: "e1", CandidateID: cand, Type: domain.CreditMessage, Message: "hi"})
		if err != nil || dec.Outcome != OutcomeAllowed {
			t.Fatalf("message %d: %+v %v", i, dec, err)
		}
	}
	sixth, err := svc.Request(ctx, RequestInput{EmployerID: "e1", CandidateID: "c1", Type: domain.CreditMessage, Message: "hi"})
	if err != nil {
		t.Fatalf("sixth: %v", err)
	}
	if sixth.Outcome != OutcomePaymentRequired || sixth.Price.Amount != 1000 {
		t.Fatalf("sixth: %+v", sixth)
	}

	cid := sixth.Contact.ID
	seedCheckout(t, db, &domain.PendingCheckout{SessionID: "cs_one", EmployerID: "e1", Kind: domain.PurchaseOneTimeContact, ContactID: &cid, Amount: 1000})
	res, err := r.Reconcile(ctx, payments.CheckoutCompleted{
		TransactionID: "pi_one",
		SessionID:     "cs_one",
		EmployerID:    "e1",
		Kind:          domain.PurchaseOneTimeContact,
		ContactID:     cid,
		AmountPaid:    1000,
	})
	if err != nil || res != ResultApplied {
		t.Fatalf("one-time=%q err=%v", res, err)
	}

	c, err := repo.GetContact(ctx, db, cid)
	if err != nil {
		t.Fatalf("GetContact: %v", err)
	}
	if c.Status != domain.ContactPending || c.PaidTransactionID == nil || *c.PaidTransactionID != "pi_one" {
		t.Fatalf("contact not unlocked: %+v", c)
	}
	if got := balance(t, l, "e1", domain.CreditMessage); got != 0 {
		t.Fatalf("one-time payment must not touch the pool: %d", got)
	}
}

func TestReconcile_OneTimeForResolvedContactIsRecordedButIgnored(t *testing.T) {
	db, l, svc := newContactFixture(t)
	r := &Reconciler{DB: db, Ledger: l}
	ctx := context.Background()

	dec, err := svc.Request(ctx, RequestInput{EmployerID: "e1", CandidateID: "c1", Type: domain.CreditView})
	if err != nil || dec.Outcome != OutcomePaymentRequired {
		t.Fatalf("request: %+v %v", dec, err)
	}
	// The employer bought credits and retried before paying the one-time checkout.
	grant(t, l, "e1", domain.CreditView, 1, nil)
	if again, err := svc.Request(ctx, RequestInput{EmployerID: "e1", CandidateID: "c1", Type: domain.CreditView}); err != nil || again.Outcome != OutcomeAllowed {
		t.Fatalf("retry: %+v %v", again, err)
	}

	cid := dec.Contact.ID
	seedCheckout(t, db, &domain.PendingCheckout{SessionID: "cs_late", EmployerID: "e1", Kind: domain.PurchaseOneTimeContact, ContactID: &cid, Amount: 500})
	ev := payments.CheckoutCompleted{TransactionID: "pi_late", SessionID: "cs_late", EmployerID: "e1", Kind: domain.PurchaseOneTimeContact, ContactID: cid}
	res, err := r.Reconcile(ctx, ev)
	if err != nil || res != ResultIgnored {
		t.Fatalf("late payment=%q err=%v", res, err)
	}
	at, err := repo.GetAppliedTransaction(ctx, db, "pi_late")
	if err != nil || at.Outcome != "no_effect" {
		t.Fatalf("marker: %+v %v", at, err)
	}
	c, _ := repo.GetContact(ctx, db, cid)
	if c.PaidTransactionID != nil {
		t.Fatalf("resolved contact must not be touched: %+v", c)
	}

	// Replays of the recorded transaction stay ignored.
	if res, err := r.Reconcile(ctx, ev); err != nil || res != ResultIgnored {
		t.Fatalf("replay=%q err=%v", res, err)
	}
}

func TestReconcile_OneTimeForeignContactMismatch(t *testing.T) {
	db, l, svc := newContactFixture(t)
	seedEmployer(t, db, "e2")
	r := &Reconciler{DB: db, Ledger: l}
	ctx := context.Background()

	dec, err := svc.Request(ctx, RequestInput{EmployerID: "e1", CandidateID: "c1", Type: domain.CreditView})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	cid := dec.Contact.ID
	seedCheckout(t, db, &domain.PendingCheckout{SessionID: "cs_f", EmployerID: "e2", Kind: domain.PurchaseOneTimeContact, ContactID: &cid})
	_, err = r.Reconcile(ctx, payments.CheckoutCompleted{TransactionID: "pi_f", SessionID: "cs_f", EmployerID: "e2", Kind: domain.PurchaseOneTimeContact, ContactID: cid})
	if !errors.Is(err, ErrCheckoutMismatch) {
		t.Fatalf("want ErrCheckoutMismatch, got %v", err)
	}
}
