package models

import "time"

// MonitoringEntry links a user, a consumed item, and a detected successor.
// The (UserID, SourceMediaID, SuccessorMediaID) triple is unique at the
// storage layer; the dedup upsert relies on that constraint. Entries are
// never deleted, they double as the dispatch audit trail.
type MonitoringEntry struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement"`
	UserID           string `gorm:"size:64;not null;uniqueIndex:idx_monitoring_triple,priority:1;index:idx_monitoring_user_notified,priority:1"`
	SourceMediaID    uint64 `gorm:"not null;uniqueIndex:idx_monitoring_triple,priority:2"`
	SuccessorMediaID uint64 `gorm:"not null;uniqueIndex:idx_monitoring_triple,priority:3"`

	Confidence float64
	MatchType  MatchType `gorm:"size:30"`

	// Notified flips false->true exactly once, by the dispatcher, under
	// either delivery or suppression.
	Notified bool `gorm:"not null;default:false;index:idx_monitoring_user_notified,priority:2"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Notification is a user-visible record created in the same transaction
// that marks its monitoring entry notified.
type Notification struct {
	ID       uint64   `gorm:"primaryKey;autoIncrement"`
	UserID   string   `gorm:"size:64;not null;index:idx_notifications_user_read,priority:1"`
	Category Category `gorm:"size:30;not null"`

	Title   string `gorm:"size:255;not null"`
	Message string `gorm:"type:text;not null"`

	SourceMediaID    *uint64
	SuccessorMediaID *uint64

	Payload map[string]any `gorm:"serializer:json"`

	// Stateless HMAC-signed token, verified without a per-token row.
	UnsubscribeToken string `gorm:"size:512"`

	IsRead bool `gorm:"not null;default:false;index:idx_notifications_user_read,priority:2"`
	ReadAt *time.Time

	Emailed  bool `gorm:"not null;default:false"`
	EmailedAt *time.Time

	CreatedAt time.Time
}

// NotificationPreference holds per-category opt-in flags for a user.
// Consulted read-only at dispatch time; defaults are all enabled.
type NotificationPreference struct {
	UserID string `gorm:"primaryKey;size:64"`

	EmailEnabled bool
	InAppEnabled bool

	SequelDetected bool
	SeasonReleased bool
	NewContent     bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CategoryEnabled reports whether the given category is enabled.
func (p *NotificationPreference) CategoryEnabled(c Category) bool {
	switch c {
	case CategorySequelDetected:
		return p.SequelDetected
	case CategorySeasonReleased:
		return p.SeasonReleased
	case CategoryNewContent:
		return p.NewContent
	}
	return false
}

// SetCategory flips a single category flag.
func (p *NotificationPreference) SetCategory(c Category, enabled bool) {
	switch c {
	case CategorySequelDetected:
		p.SequelDetected = enabled
	case CategorySeasonReleased:
		p.SeasonReleased = enabled
	case CategoryNewContent:
		p.NewContent = enabled
	}
}

// DefaultPreferences returns the all-enabled preference row created on
// first touch.
func DefaultPreferences(userID string) *NotificationPreference {
	return &NotificationPreference{
		UserID:         userID,
		EmailEnabled:   true,
		InAppEnabled:   true,
		SequelDetected: true,
		SeasonReleased: true,
		NewContent:     true,
	}
}
