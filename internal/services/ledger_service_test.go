package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/noticeboard-backend/internal/domain"
	"github.com/tbourn/noticeboard-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:svc_" + uuid.NewString() + "?mode=memory&cache=shared"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection serializes writers the way a single SQLite file does and
	// keeps concurrent tests free of shared-cache table locks.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func grant(t *testing.T, l *Ledger, emp string, ct domain.CreditType, n int64, exp *time.Time) *domain.Credit {
	t.Helper()
	c, err := l.Grant(context.Background(), emp, ct, n, exp)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	return c
}

func balance(t *testing.T, l *Ledger, emp string, ct domain.CreditType) int64 {
	t.Helper()
	n, err := l.Balance(context.Background(), emp, ct)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return n
}

func usedOf(t *testing.T, db *gorm.DB, id string) int64 {
	t.Helper()
	var c domain.Credit
	if err := db.First(&c, "id = ?", id).Error; err != nil {
		t.Fatalf("load credit: %v", err)
	}
	return c.Used
}

func TestLedger_BalanceSumsSpendableRows(t *testing.T) {
	db := newTestDB(t)
	l := &Ledger{DB: db}
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	grant(t, l, "e1", domain.CreditView, 3, nil)
	grant(t, l, "e1", domain.CreditView, 2, &future)
	// expired
	if _, err := repo.CreateCredit(context.Background(), db, "e1", domain.CreditView, 9, "manual", &past); err != nil {
		t.Fatalf("seed expired: %v", err)
	}
	grant(t, l, "e2", domain.CreditView, 7, nil)

	if got := balance(t, l, "e1", domain.CreditView); got != 5 {
		t.Fatalf("balance=%d want 5", got)
	}
	if got := balance(t, l, "e1", domain.CreditMessage); got != 0 {
		t.Fatalf("message balance=%d want 0", got)
	}

	all, err := l.Balances(context.Background(), "e1")
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if len(all) != 3 || all[domain.CreditView] != 5 || all[domain.CreditInterviewRequest] != 0 {
		t.Fatalf("Balances=%v", all)
	}
	if _, ok := all[domain.CreditOffer]; ok {
		t.Fatalf("offer must not appear in pooled balances")
	}
}

func TestLedger_Consume_OldestExpiryFirst(t *testing.T) {
	db := newTestDB(t)
	l := &Ledger{DB: db}
	soon := time.Now().Add(time.Hour)
	later := time.Now().Add(48 * time.Hour)

	never := grant(t, l, "e1", domain.CreditMessage, 5, nil)
	late := grant(t, l, "e1", domain.CreditMessage, 2, &later)
	early := grant(t, l, "e1", domain.CreditMessage, 2, &soon)

	if err := l.Consume(context.Background(), "e1", domain.CreditMessage, 3); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if usedOf(t, db, early.ID) != 2 || usedOf(t, db, late.ID) != 1 || usedOf(t, db, never.ID) != 0 {
		t.Fatalf("wrong consumption order: early=%d late=%d never=%d",
			usedOf(t, db, early.ID), usedOf(t, db, late.ID), usedOf(t, db, never.ID))
	}
	if got := balance(t, l, "e1", domain.CreditMessage); got != 6 {
		t.Fatalf("balance=%d want 6", got)
	}
}

func TestLedger_Consume_InsufficientLeavesRowsUntouched(t *testing.T) {
	db := newTestDB(t)
	l := &Ledger{DB: db}
	a := grant(t, l, "e1", domain.CreditView, 1, nil)
	b := grant(t, l, "e1", domain.CreditView, 1, nil)

	err := l.Consume(context.Background(), "e1", domain.CreditView, 3)
	if !errors.Is(err, ErrInsufficientCredit) {
		t.Fatalf("want ErrInsufficientCredit, got %v", err)
	}
	if usedOf(t, db, a.ID) != 0 || usedOf(t, db, b.ID) != 0 {
		t.Fatalf("failed consume must not write")
	}
	if got := balance(t, l, "e1", domain.CreditView); got != 2 {
		t.Fatalf("balance=%d want 2", got)
	}
}

func TestLedger_Consume_ExhaustedRowsAreSkipped(t *testing.T) {
	db := newTestDB(t)
	l := &Ledger{DB: db}
	grant(t, l, "e1", domain.CreditView, 1, nil)

	if err := l.Consume(context.Background(), "e1", domain.CreditView, 1); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if err := l.Consume(context.Background(), "e1", domain.CreditView, 1); !errors.Is(err, ErrInsufficientCredit) {
		t.Fatalf("second consume: want ErrInsufficientCredit, got %v", err)
	}
}

func TestLedger_OfferIsNeverPooled(t *testing.T) {
	db := newTestDB(t)
	l := &Ledger{DB: db}
	ctx := context.Background()

	if got := balance(t, l, "e1", domain.CreditOffer); got != 0 {
		t.Fatalf("offer balance=%d", got)
	}
	if err := l.Consume(ctx, "e1", domain.CreditOffer, 1); !errors.Is(err, ErrInsufficientCredit) {
		t.Fatalf("offer consume: %v", err)
	}
	if _, err := l.Grant(ctx, "e1", domain.CreditOffer, 1, nil); !errors.Is(err, ErrInvalidCreditType) {
		t.Fatalf("offer grant: %v", err)
	}
}

func TestLedger_Validation(t *testing.T) {
	db := newTestDB(t)
	l := &Ledger{DB: db}
	ctx := context.Background()

	if _, err := l.Balance(ctx, "e1", domain.CreditType("bogus")); !errors.Is(err, ErrInvalidCreditType) {
		t.Fatalf("bogus balance: %v", err)
	}
	if err := l.Consume(ctx, "e1", domain.CreditType("bogus"), 1); !errors.Is(err, ErrInvalidCreditType) {
		t.Fatalf("bogus consume: %v", err)
	}
	if err := l.Consume(ctx, "e1", domain.CreditView, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("zero consume: %v", err)
	}
	if _, err := l.Grant(ctx, "e1", domain.CreditView, 0, nil); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("zero grant: %v", err)
	}
}

func TestLedger_ConsumeTx_RollsBackWithCaller(t *testing.T) {
	db := newTestDB(t)
	l := &Ledger{DB: db}
	c := grant(t, l, "e1", domain.CreditView, 2, nil)

	boom := errors.New("boom")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := l.ConsumeTx(context.Background(), tx, "e1", domain.CreditView, 1); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if usedOf(t, db, c.ID) != 0 {
		t.Fatalf("consume must roll back with the caller's transaction")
	}
}

func TestLedger_ConsumeTx_FailureInsideCommittedTxWritesNothing(t *testing.T) {
	db := newTestDB(t)
	l := &Ledger{DB: db}
	a := grant(t, l, "e1", domain.CreditView, 1, nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := l.ConsumeTx(context.Background(), tx, "e1", domain.CreditView, 2); !errors.Is(err, ErrInsufficientCredit) {
			t.Errorf("want ErrInsufficientCredit, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("outer tx: %v", err)
	}
	if usedOf(t, db, a.ID) != 0 {
		t.Fatalf("failed nested consume must leave no partial bump")
	}
}

func TestLedger_ConcurrentConsumeNeverOverspends(t *testing.T) {
	db := newTestDB(t)
	l := &Ledger{DB: db}
	grant(t, l, "e1", domain.CreditView, 3, nil)
	grant(t, l, "e1", domain.CreditView, 2, nil)

	const workers = 20
	var ok, denied atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			err := l.Consume(context.Background(), "e1", domain.CreditView, 1)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInsufficientCredit):
				denied.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 5 || denied.Load() != workers-5 {
		t.Fatalf("ok=%d denied=%d", ok.Load(), denied.Load())
	}
	if got := balance(t, l, "e1", domain.CreditView); got != 0 {
		t.Fatalf("balance=%d want 0", got)
	}
}
