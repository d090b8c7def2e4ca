// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency represents a recorded result of a previously processed request,
// keyed by (user_id, scope, key). It enables safe retries for POST operations
// by returning the originally produced resource without re-executing side
// effects such as credit consumption.
type Idempotency struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	UserID     string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope      string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_scope_key,priority:2"`
	Key        string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_user_scope_key,priority:3"`
	ResourceID string    `gorm:"type:varchar(64);not null"`
	Status     int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
