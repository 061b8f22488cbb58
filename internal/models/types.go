package models

// MediaType represents the type of media (movie or tv series)
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv_series"
)

// ConsumptionStatus represents how far a user got with a media item
type ConsumptionStatus string

const (
	ConsumptionWatched    ConsumptionStatus = "watched"
	ConsumptionInProgress ConsumptionStatus = "in_progress"
	ConsumptionCompleted  ConsumptionStatus = "completed"
)

// Category represents a notification category users can opt out of
type Category string

const (
	CategorySequelDetected Category = "sequel_detected"
	CategorySeasonReleased Category = "season_released"
	CategoryNewContent     Category = "new_content"
)

// ValidCategory reports whether c names a known notification category.
func ValidCategory(c Category) bool {
	switch c {
	case CategorySequelDetected, CategorySeasonReleased, CategoryNewContent:
		return true
	}
	return false
}

// MatchType represents how a successor candidate was matched
type MatchType string

const (
	MatchSeasonIncrement MatchType = "season_increment"
	MatchNextRelease     MatchType = "next_release"
)
