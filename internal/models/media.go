package models

import "time"

// Media represents a catalog entry (movie, TV season, or un-seasoned item).
// (BaseTitle, SeasonNumber) is the stable comparison key for successor
// matching; two franchise entries must not collide under it.
type Media struct {
	ID    uint64 `gorm:"primaryKey;autoIncrement"`
	Title string `gorm:"size:255;not null;index"`

	MediaType MediaType `gorm:"size:20;index"`

	// Comparison key derived by the title parser at ingestion time.
	BaseTitle    string `gorm:"size:255;index:idx_media_base_season,priority:1"`
	SeasonNumber *int   `gorm:"index:idx_media_base_season,priority:2"` // nil for movies

	EpisodeNumber *int
	ReleaseDate   *time.Time
	Platform      string `gorm:"size:50"`

	// Provider identifiers and enrichment payload.
	TMDBID      *int           `gorm:"index"`
	IMDBID      string         `gorm:"size:20"`
	ExternalIDs map[string]any `gorm:"serializer:json"`
	Metadata    map[string]any `gorm:"serializer:json"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserMedia records a user's consumption of a catalog entry. The storage
// layer enforces one row per (user, media) pair.
type UserMedia struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	UserID  string `gorm:"size:64;not null;uniqueIndex:idx_user_media_pair,priority:1"`
	MediaID uint64 `gorm:"not null;uniqueIndex:idx_user_media_pair,priority:2"`

	Status     ConsumptionStatus `gorm:"size:20"`
	Platform   string            `gorm:"size:50"`
	ConsumedAt *time.Time

	ImportedFrom string `gorm:"size:50"` // csv, manual, api

	CreatedAt time.Time
}
