// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Contact
// model.
//
// The open-request rule (at most one pending or awaiting_payment contact per
// employer, candidate, and type) is backed by the unique open_key column:
// CreateContact surfaces a violation as ErrDuplicate, and TransitionContact
// clears the key whenever a contact leaves the open set.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/noticeboard-backend/internal/domain"
)

// ErrStaleStatus is returned by TransitionContact when the row was not in the
// expected status.
var ErrStaleStatus = errors.New("contact status changed")

// CreateContact inserts a new open contact. The status must be pending or
// awaiting_payment. A concurrent open request for the same tuple yields
// ErrDuplicate.
func CreateContact(ctx context.Context, db *gorm.DB, employerID, candidateID string, t domain.ContactType, message *string, status domain.ContactStatus) (*domain.Contact, error) {
	now := time.Now().UTC()
	key := domain.ContactOpenKey(employerID, candidateID, t)
	c := &domain.Contact{
		ID:          uuid.NewString(),
		EmployerID:  employerID,
		CandidateID: candidateID,
		ContactType: t,
		Message:     message,
		Status:      status,
		OpenKey:     &key,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !status.Open() {
		c.OpenKey = nil
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return c, nil
}

// FindOpenContact returns the open contact for a tuple, or ErrNotFound.
func FindOpenContact(ctx context.Context, db *gorm.DB, employerID, candidateID string, t domain.ContactType) (*domain.Contact, error) {
	var c domain.Contact
	err := db.WithContext(ctx).
		Where("open_key = ?", domain.ContactOpenKey(employerID, candidateID, t)).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetContact fetches a contact by id, or ErrNotFound.
func GetContact(ctx context.Context, db *gorm.DB, id string) (*domain.Contact, error) {
	var c domain.Contact
	err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// TransitionContact moves a contact from one status to another in a single
// conditional update. It returns ErrStaleStatus if the row was not in from,
// and ErrNotFound if it does not exist.
//
// paidTxnID, when non-nil, is recorded alongside the transition.
func TransitionContact(ctx context.Context, db *gorm.DB, id string, from, to domain.ContactStatus, paidTxnID *string) error {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if !to.Open() {
		updates["open_key"] = gorm.Expr("NULL")
	}
	if paidTxnID != nil {
		updates["paid_transaction_id"] = *paidTxnID
	}
	res := db.WithContext(ctx).
		Model(&domain.Contact{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := db.WithContext(ctx).Model(&domain.Contact{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrStaleStatus
	}
	return nil
}

// ListContactsByEmployerPage returns an employer's contacts, newest first.
func ListContactsByEmployerPage(ctx context.Context, db *gorm.DB, employerID string, offset, limit int) ([]domain.Contact, error) {
	var out []domain.Contact
	err := db.WithContext(ctx).
		Where("employer_id = ?", employerID).
		Order("created_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountContactsByEmployer returns the number of contacts an employer has made.
func CountContactsByEmployer(ctx context.Context, db *gorm.DB, employerID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Contact{}).Where("employer_id = ?", employerID).Count(&n).Error
	return n, err
}

// ListContactsByCandidatePage returns contacts addressed to a candidate,
// newest first. Contacts still awaiting payment are not visible to the
// candidate.
func ListContactsByCandidatePage(ctx context.Context, db *gorm.DB, candidateID string, offset, limit int) ([]domain.Contact, error) {
	var out []domain.Contact
	err := db.WithContext(ctx).
		Where("candidate_id = ? AND status <> ?", candidateID, domain.ContactAwaitingPayment).
		Order("created_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountContactsByCandidate counts the contacts ListContactsByCandidatePage
// would page over.
func CountContactsByCandidate(ctx context.Context, db *gorm.DB, candidateID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Contact{}).
		Where("candidate_id = ? AND status <> ?", candidateID, domain.ContactAwaitingPayment).
		Count(&n).Error
	return n, err
}

// ExpirePendingContactsBefore marks every pending contact last updated before
// cutoff as expired and releases its open key. Contacts awaiting payment are
// left alone so a late payment can still unlock them. It returns the number of
// rows changed.
func ExpirePendingContactsBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Contact{}).
		Where("status = ? AND updated_at < ?", domain.ContactPending, cutoff).
		Updates(map[string]any{
			"status":     domain.ContactExpired,
			"open_key":   gorm.Expr("NULL"),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
