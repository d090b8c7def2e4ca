// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for verification
// requests and their audit log.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/noticeboard-backend/internal/domain"
)

// CreateVerificationRequest inserts a pending request.
func CreateVerificationRequest(ctx context.Context, db *gorm.DB, vr *domain.VerificationRequest) error {
	now := time.Now().UTC()
	vr.ID = uuid.NewString()
	vr.Status = "pending"
	vr.SubmittedAt = now
	vr.CreatedAt = now
	vr.UpdatedAt = now
	return db.WithContext(ctx).Create(vr).Error
}

// GetVerificationRequest fetches a request by id, or ErrNotFound.
func GetVerificationRequest(ctx context.Context, db *gorm.DB, id string) (*domain.VerificationRequest, error) {
	var vr domain.VerificationRequest
	err := db.WithContext(ctx).Where("id = ?", id).First(&vr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &vr, nil
}

// LatestVerificationRequest returns the user's most recent request, or
// ErrNotFound.
func LatestVerificationRequest(ctx context.Context, db *gorm.DB, userID string) (*domain.VerificationRequest, error) {
	var vr domain.VerificationRequest
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("submitted_at desc, id desc").
		First(&vr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &vr, nil
}

// HasPendingVerification reports whether userID has a request under review.
func HasPendingVerification(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.VerificationRequest{}).
		Where("user_id = ? AND status = ?", userID, "pending").
		Count(&n).Error
	return n > 0, err
}

// ReviewVerificationRequest finalizes a pending request. It returns
// ErrStaleStatus if the request is no longer pending.
func ReviewVerificationRequest(ctx context.Context, db *gorm.DB, id, status, reviewer string, notes *string) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.VerificationRequest{}).
		Where("id = ? AND status = ?", id, "pending").
		Updates(map[string]any{
			"status":      status,
			"reviewed_at": now,
			"reviewed_by": reviewer,
			"admin_notes": notes,
			"updated_at":  now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// AppendVerificationLog appends an audit entry. details may be nil.
func AppendVerificationLog(ctx context.Context, db *gorm.DB, requestID, action, performedBy, performedByType string, details map[string]any) error {
	entry := &domain.VerificationLog{
		ID:                    uuid.NewString(),
		VerificationRequestID: requestID,
		Action:                action,
		PerformedBy:           performedBy,
		PerformedByType:       performedByType,
		CreatedAt:             time.Now().UTC(),
	}
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return err
		}
		entry.Details = datatypes.JSON(b)
	}
	return db.WithContext(ctx).Create(entry).Error
}

// ListVerificationLogs returns the audit trail for a request, oldest first.
func ListVerificationLogs(ctx context.Context, db *gorm.DB, requestID string) ([]domain.VerificationLog, error) {
	var out []domain.VerificationLog
	err := db.WithContext(ctx).
		Where("verification_request_id = ?", requestID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}
