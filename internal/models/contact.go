package models

import "time"

// UserContact is the delivery address for a user. Account management lives
// in the external auth system; this row is a read-mostly projection kept in
// sync by it. No contact row means in-app delivery only.
type UserContact struct {
	UserID      string `gorm:"primaryKey;size:64"`
	Email       string `gorm:"size:255;not null"`
	DisplayName string `gorm:"size:255"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
