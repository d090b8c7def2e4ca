// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Employer and
// Candidate profiles.
//
// Profiles are keyed by the identity-provider subject and created on first
// write via upsert; they are never hard-deleted.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/noticeboard-backend/internal/domain"
)

// UpsertEmployer inserts the employer or updates its editable profile fields.
// Tier and verification state are never touched here.
func UpsertEmployer(ctx context.Context, db *gorm.DB, e *domain.Employer) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	if e.SubscriptionTier == "" {
		e.SubscriptionTier = domain.TierFree
	}
	if e.VerificationStatus == "" {
		e.VerificationStatus = domain.VerificationUnverified
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "company_name", "full_name", "phone", "website", "updated_at"}),
	}).Create(e).Error
}

// GetEmployer fetches an employer by id, or ErrNotFound.
func GetEmployer(ctx context.Context, db *gorm.DB, id string) (*domain.Employer, error) {
	var e domain.Employer
	err := db.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// SetEmployerTier records the employer's current subscription tier.
func SetEmployerTier(ctx context.Context, db *gorm.DB, id string, tier domain.Tier) error {
	res := db.WithContext(ctx).
		Model(&domain.Employer{}).
		Where("id = ?", id).
		Updates(map[string]any{"subscription_tier": tier, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertCandidate inserts the candidate or updates its editable profile fields.
// resume_path is owned by the upload flow and survives profile edits.
func UpsertCandidate(ctx context.Context, db *gorm.DB, c *domain.Candidate) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Visibility == "" {
		c.Visibility = "private"
	}
	if c.VerificationStatus == "" {
		c.VerificationStatus = domain.VerificationUnverified
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email", "full_name", "skills", "salary_min", "salary_max",
			"notice_end_date", "visibility", "updated_at",
		}),
	}).Create(c).Error
}

// GetCandidate fetches a candidate by id, or ErrNotFound.
func GetCandidate(ctx context.Context, db *gorm.DB, id string) (*domain.Candidate, error) {
	var c domain.Candidate
	err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CandidateFilter narrows ListPublicCandidates.
type CandidateFilter struct {
	// SalaryMax keeps candidates whose minimum expectation is at or below it.
	SalaryMax *int64
	// AvailableBy keeps candidates whose notice ends on or before it.
	AvailableBy  *time.Time
	VerifiedOnly bool
}

// ListPublicCandidates returns every public candidate matching f. Skill
// ranking is done by the caller.
func ListPublicCandidates(ctx context.Context, db *gorm.DB, f CandidateFilter) ([]domain.Candidate, error) {
	q := db.WithContext(ctx).Where("visibility = ?", "public")
	if f.SalaryMax != nil {
		q = q.Where("salary_min IS NULL OR salary_min <= ?", *f.SalaryMax)
	}
	if f.AvailableBy != nil {
		q = q.Where("notice_end_date IS NULL OR notice_end_date <= ?", *f.AvailableBy)
	}
	if f.VerifiedOnly {
		q = q.Where("is_verified = ?", true)
	}
	var out []domain.Candidate
	err := q.Order("updated_at desc, id asc").Find(&out).Error
	return out, err
}

// SetVerification updates the verification flags on the profile for userID.
func SetVerification(ctx context.Context, db *gorm.DB, userType domain.UserType, userID string, status domain.VerificationStatus) error {
	var model any
	switch userType {
	case domain.UserEmployer:
		model = &domain.Employer{}
	case domain.UserCandidate:
		model = &domain.Candidate{}
	default:
		return errors.New("unknown user type")
	}
	res := db.WithContext(ctx).
		Model(model).
		Where("id = ?", userID).
		Updates(map[string]any{
			"verification_status": status,
			"is_verified":         status == domain.VerificationVerified,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
