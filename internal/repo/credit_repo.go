// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Credit
// ledger rows.
//
// Functions are thin: balance arithmetic and the all-or-nothing consumption
// rule live in services.Ledger. The one concurrency-relevant primitive here
// is IncrementUsed, a conditional update that can never push used past
// amount even if two writers race on the same row.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/noticeboard-backend/internal/domain"
)

// CreateCredit inserts a new ledger row with used = 0.
func CreateCredit(ctx context.Context, db *gorm.DB, employerID string, ct domain.CreditType, amount int64, source string, expiresAt *time.Time) (*domain.Credit, error) {
	c := &domain.Credit{
		ID:         uuid.NewString(),
		EmployerID: employerID,
		CreditType: ct,
		Amount:     amount,
		Used:       0,
		Source:     source,
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// spendable scopes a query to rows of (employerID, ct) that still have units
// and have not expired at now.
func spendable(db *gorm.DB, employerID string, ct domain.CreditType, now time.Time) *gorm.DB {
	return db.Model(&domain.Credit{}).
		Where("employer_id = ? AND credit_type = ?", employerID, ct).
		Where("used < amount").
		Where("expires_at IS NULL OR expires_at > ?", now)
}

// AvailableBalance returns SUM(amount - used) over spendable rows.
func AvailableBalance(ctx context.Context, db *gorm.DB, employerID string, ct domain.CreditType, now time.Time) (int64, error) {
	var total int64
	err := spendable(db.WithContext(ctx), employerID, ct, now).
		Select("COALESCE(SUM(amount - used), 0)").
		Row().
		Scan(&total)
	return total, err
}

// ListSpendableCredits returns spendable rows oldest-expiry-first: rows with
// an expiry come before rows without one, then by creation time and id.
//
// When lock is true and the dialect supports it, the rows are selected
// FOR UPDATE so concurrent consumers serialize on them until the enclosing
// transaction ends.
func ListSpendableCredits(ctx context.Context, db *gorm.DB, employerID string, ct domain.CreditType, now time.Time, lock bool) ([]domain.Credit, error) {
	q := spendable(db.WithContext(ctx), employerID, ct, now).
		Order("expires_at IS NULL, expires_at ASC, created_at ASC, id ASC")
	if lock && supportsRowLocks(db) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var out []domain.Credit
	err := q.Find(&out).Error
	return out, err
}

// IncrementUsed adds n to a row's used counter only if the result stays
// within amount. It reports whether the row was updated.
func IncrementUsed(ctx context.Context, db *gorm.DB, id string, n int64) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Credit{}).
		Where("id = ? AND used + ? <= amount", id, n).
		UpdateColumn("used", gorm.Expr("used + ?", n))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListCredits returns every ledger row for an employer, newest first.
func ListCredits(ctx context.Context, db *gorm.DB, employerID string) ([]domain.Credit, error) {
	var out []domain.Credit
	err := db.WithContext(ctx).
		Where("employer_id = ?", employerID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}
