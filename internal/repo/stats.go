// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/noticeboard-backend/internal/domain"
)

// ContactsStats returns the number of contacts an employer has made and the
// greatest UpdatedAt among them.
//
// When the employer has no contacts, the returned count is 0 and
// maxUpdatedAt is nil.
func ContactsStats(ctx context.Context, db *gorm.DB, employerID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Contact{}).Where("employer_id = ?", employerID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Avoid MAX() which comes back as TEXT in SQLite.
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
