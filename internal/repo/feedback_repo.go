// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// PilotFeedback model.
//
// The repository follows a "thin" approach: it performs persistence and simple
// aggregate queries, leaving validation (rating range, comment length) to the
// services package. The rating CHECK constraint is a backstop, not the
// primary validation.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/noticeboard-backend/internal/domain"
)

// CreatePilotFeedback inserts one feedback row.
func CreatePilotFeedback(ctx context.Context, db *gorm.DB, userType domain.UserType, rating int, comment *string) (*domain.PilotFeedback, error) {
	fb := &domain.PilotFeedback{
		ID:          uuid.NewString(),
		UserType:    userType,
		Rating:      rating,
		Comment:     comment,
		SubmittedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(fb).Error; err != nil {
		return nil, err
	}
	return fb, nil
}

// FeedbackAggregate is the count and mean rating for one user type.
type FeedbackAggregate struct {
	UserType domain.UserType `json:"user_type"`
	Count    int64           `json:"count"`
	Average  float64         `json:"average_rating"`
}

// PilotFeedbackSummary groups feedback by user type.
func PilotFeedbackSummary(ctx context.Context, db *gorm.DB) ([]FeedbackAggregate, error) {
	var out []FeedbackAggregate
	err := db.WithContext(ctx).
		Model(&domain.PilotFeedback{}).
		Select("user_type, COUNT(*) AS count, AVG(rating) AS average").
		Group("user_type").
		Order("user_type").
		Scan(&out).Error
	return out, err
}

// RatingCount is the number of feedback rows with one rating value.
type RatingCount struct {
	Rating int
	Count  int64
}

// PilotFeedbackRatingCounts groups feedback by rating.
func PilotFeedbackRatingCounts(ctx context.Context, db *gorm.DB) ([]RatingCount, error) {
	var out []RatingCount
	err := db.WithContext(ctx).
		Model(&domain.PilotFeedback{}).
		Select("rating, COUNT(*) AS count").
		Group("rating").
		Order("rating").
		Scan(&out).Error
	return out, err
}

// ListPilotFeedbackPage returns feedback newest first.
func ListPilotFeedbackPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.PilotFeedback, error) {
	var out []domain.PilotFeedback
	err := db.WithContext(ctx).
		Order("submitted_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
