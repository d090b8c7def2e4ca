// Package services – Ledger
//
// This file implements the entitlement ledger: per-employer balances of
// pooled contact credits, all-or-nothing consumption, and grants.
//
// Consumption never relies on an in-process lock. Rows are read and bumped
// inside a store transaction; on PostgreSQL the candidate rows are locked
// FOR UPDATE, SQLite serializes writers, and every bump is a conditional
// update that cannot push used past amount. Together these keep concurrent
// requests across server instances from double-spending the last unit.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/noticeboard-backend/internal/domain"
	"github.com/tbourn/noticeboard-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Ledger tracks contact credits per employer and credit type.
type Ledger struct {
	DB *gorm.DB
}

func checkCreditType(ct domain.CreditType) error {
	if !ct.Valid() {
		return ErrInvalidCreditType
	}
	return nil
}

// Balance returns the available units of ct for employerID: the sum of
// (amount - used) over rows that are neither spent nor expired. Offer
// credits are never pooled, so their balance is always zero.
func (l *Ledger) Balance(ctx context.Context, employerID string, ct domain.CreditType) (int64, error) {
	if err := checkCreditType(ct); err != nil {
		return 0, err
	}
	if !ct.Pooled() {
		return 0, nil
	}
	return repo.AvailableBalance(ctx, l.DB, employerID, ct, time.Now().UTC())
}

// Balances returns the available units for every pooled credit type.
func (l *Ledger) Balances(ctx context.Context, employerID string) (map[domain.CreditType]int64, error) {
	out := make(map[domain.CreditType]int64, len(domain.PooledCreditTypes))
	for _, ct := range domain.PooledCreditTypes {
		n, err := l.Balance(ctx, employerID, ct)
		if err != nil {
			return nil, err
		}
		out[ct] = n
	}
	return out, nil
}

// Consume spends quantity units of ct in its own transaction. It returns
// ErrInsufficientCredit, leaving every row untouched, when the balance does
// not cover quantity.
func (l *Ledger) Consume(ctx context.Context, employerID string, ct domain.CreditType, quantity int64) error {
	tr := otel.Tracer("services/Ledger")
	ctx, span := tr.Start(ctx, "Consume",
		trace.WithAttributes(
			attribute.String("employer.id", employerID),
			attribute.String("credit.type", string(ct)),
			attribute.Int64("quantity", quantity),
		),
	)
	defer span.End()

	if err := l.ConsumeTx(ctx, l.DB, employerID, ct, quantity); err != nil {
		return err
	}
	recordConsumed(ct, quantity)
	return nil
}

// ConsumeTx is Consume within tx. The work runs in a nested transaction
// (a savepoint when tx is already a transaction), so a failed consume leaves
// no partial bumps even if the caller goes on to commit tx.
//
// ConsumeTx does not update metrics; callers record consumption once their
// own transaction has committed.
func (l *Ledger) ConsumeTx(ctx context.Context, tx *gorm.DB, employerID string, ct domain.CreditType, quantity int64) error {
	if err := checkCreditType(ct); err != nil {
		return err
	}
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if !ct.Pooled() {
		return ErrInsufficientCredit
	}

	return tx.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := repo.ListSpendableCredits(ctx, tx, employerID, ct, time.Now().UTC(), true)
		if err != nil {
			return err
		}
		var available int64
		for _, r := range rows {
			available += r.Remaining()
		}
		if available < quantity {
			return ErrInsufficientCredit
		}

		need := quantity
		for _, r := range rows {
			if need == 0 {
				break
			}
			take := r.Remaining()
			if take > need {
				take = need
			}
			if take == 0 {
				continue
			}
			ok, err := repo.IncrementUsed(ctx, tx, r.ID, take)
			if err != nil {
				return err
			}
			if !ok {
				// Another writer spent the row after we read it.
				return ErrInsufficientCredit
			}
			need -= take
		}
		return nil
	})
}

// Grant creates a manual credit row of amount units of ct.
func (l *Ledger) Grant(ctx context.Context, employerID string, ct domain.CreditType, amount int64, expiresAt *time.Time) (*domain.Credit, error) {
	c, err := l.GrantTx(ctx, l.DB, employerID, ct, amount, expiresAt, "manual")
	if err != nil {
		return nil, err
	}
	recordGranted(ct, amount)
	return c, nil
}

// GrantTx creates a credit row within tx. Offer credits cannot be granted.
// Like ConsumeTx it leaves metrics to the caller.
func (l *Ledger) GrantTx(ctx context.Context, tx *gorm.DB, employerID string, ct domain.CreditType, amount int64, expiresAt *time.Time, source string) (*domain.Credit, error) {
	if !ct.Pooled() {
		return nil, ErrInvalidCreditType
	}
	if amount < 1 {
		return nil, ErrInvalidQuantity
	}
	if expiresAt != nil {
		t := expiresAt.UTC()
		expiresAt = &t
	}
	return repo.CreateCredit(ctx, tx, employerID, ct, amount, source, expiresAt)
}

func recordConsumed(ct domain.CreditType, n int64) {
	creditsConsumed.WithLabelValues(string(ct)).Add(float64(n))
}

func recordGranted(ct domain.CreditType, n int64) {
	creditsGranted.WithLabelValues(string(ct)).Add(float64(n))
}
