// Package services – FeedbackService
//
// This file implements pilot feedback: candidates and employers leave a 1..5
// rating with an optional comment, and admins read the aggregate summary.
// Validation lives here; the rating CHECK constraint in the schema is only a
// backstop.
package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/noticeboard-backend/internal/domain"
	"github.com/tbourn/noticeboard-backend/internal/repo"
	"github.com/tbourn/noticeboard-backend/internal/utils"
)

// MaxFeedbackCommentRunes caps pilot feedback comments.
const MaxFeedbackCommentRunes = 2000

// FeedbackSummary aggregates all pilot feedback.
type FeedbackSummary struct {
	Total         int64                     `json:"total"`
	AverageRating float64                   `json:"average_rating"`
	ByUserType    map[domain.UserType]int64 `json:"by_user_type"`
	ByRating      map[int]int64             `json:"by_rating"`
	Items         []domain.PilotFeedback    `json:"items"`
}

// FeedbackService records and summarizes pilot feedback.
type FeedbackService struct {
	// DB is the database handle used for all feedback operations.
	DB *gorm.DB
}

// Submit stores one feedback entry.
//
// Errors:
//   - ErrInvalidFeedback: unknown user type or rating outside 1..5.
//   - ErrTooLong: comment longer than MaxFeedbackCommentRunes.
func (s *FeedbackService) Submit(ctx context.Context, userType domain.UserType, rating int, comment string) (*domain.PilotFeedback, error) {
	if !userType.Valid() || rating < 1 || rating > 5 {
		return nil, ErrInvalidFeedback
	}
	var c *string
	if t := strings.TrimSpace(comment); t != "" {
		if utf8.RuneCountInString(t) > MaxFeedbackCommentRunes {
			return nil, ErrTooLong
		}
		c = &t
	}
	return repo.CreatePilotFeedback(ctx, s.DB, userType, rating, c)
}

// Summary returns totals, the overall mean rating, counts per user type and
// per rating (every rating 1..5 is present, zero when unused), and a page of
// entries newest first.
func (s *FeedbackService) Summary(ctx context.Context, page, pageSize int) (*FeedbackSummary, error) {
	aggs, err := repo.PilotFeedbackSummary(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	ratings, err := repo.PilotFeedbackRatingCounts(ctx, s.DB)
	if err != nil {
		return nil, err
	}

	out := &FeedbackSummary{
		ByUserType: map[domain.UserType]int64{domain.UserCandidate: 0, domain.UserEmployer: 0},
		ByRating:   map[int]int64{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}
	var weighted float64
	for _, a := range aggs {
		out.ByUserType[a.UserType] = a.Count
		out.Total += a.Count
		weighted += a.Average * float64(a.Count)
	}
	if out.Total > 0 {
		out.AverageRating = weighted / float64(out.Total)
	}
	for _, r := range ratings {
		out.ByRating[r.Rating] = r.Count
	}

	offset, limit := utils.Window(page, pageSize)
	out.Items, err = repo.ListPilotFeedbackPage(ctx, s.DB, offset, limit)
	if err != nil {
		return nil, err
	}
	return out, nil
}
