// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for pending
// checkouts and the applied-transaction log used for idempotent payment
// reconciliation.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/noticeboard-backend/internal/domain"
)

// CreatePendingCheckout records the mapping from a gateway session to the
// purchase it pays for.
func CreatePendingCheckout(ctx context.Context, db *gorm.DB, pc *domain.PendingCheckout) error {
	if pc.ID == "" {
		pc.ID = uuid.NewString()
	}
	if pc.CreatedAt.IsZero() {
		pc.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(pc).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetPendingCheckoutBySession fetches a pending checkout by gateway session
// id, or ErrNotFound.
func GetPendingCheckoutBySession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.PendingCheckout, error) {
	var pc domain.PendingCheckout
	err := db.WithContext(ctx).Where("session_id = ?", sessionID).First(&pc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

// CompletePendingCheckout stamps the checkout as completed. Completing an
// already-completed checkout is a no-op.
func CompletePendingCheckout(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.PendingCheckout{}).
		Where("id = ? AND completed_at IS NULL", id).
		Update("completed_at", at).Error
}

// InsertAppliedTransaction records that a transaction's effect is being
// applied. It returns ErrDuplicate if the transaction id is already present,
// which is how replays are detected.
func InsertAppliedTransaction(ctx context.Context, db *gorm.DB, at *domain.AppliedTransaction) error {
	if at.AppliedAt.IsZero() {
		at.AppliedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(at).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// SetAppliedTransactionOutcome records the final outcome of an applied
// transaction inside the transaction that inserted it.
func SetAppliedTransactionOutcome(ctx context.Context, db *gorm.DB, txnID, outcome string) error {
	return db.WithContext(ctx).
		Model(&domain.AppliedTransaction{}).
		Where("transaction_id = ?", txnID).
		Update("outcome", outcome).Error
}

// GetAppliedTransaction fetches an applied transaction, or ErrNotFound.
func GetAppliedTransaction(ctx context.Context, db *gorm.DB, txnID string) (*domain.AppliedTransaction, error) {
	var at domain.AppliedTransaction
	err := db.WithContext(ctx).Where("transaction_id = ?", txnID).First(&at).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}
