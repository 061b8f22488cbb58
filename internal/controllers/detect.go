package controllers

import (
	"fmt"

	"github.com/amaumene/sequelarr/internal/models"
	"github.com/amaumene/sequelarr/internal/titles"
	"github.com/rs/zerolog"
)

// Candidate is a detected successor with its match confidence. Only exact
// normalized-title matches are produced, always at confidence 1.0; fuzzy
// matching is deliberately not attempted, an unmatched source yields no
// candidate instead of a guess.
type Candidate struct {
	Media      *models.Media
	Confidence float64
	MatchType  models.MatchType
	Reason     string
}

// DetectionController finds successor candidates in the catalog
type DetectionController struct {
	db     *models.Database
	parser *titles.Parser
	logger zerolog.Logger
}

// NewDetectionController creates a new detection controller
func NewDetectionController(db *models.Database, parser *titles.Parser, logger zerolog.Logger) *DetectionController {
	return &DetectionController{
		db:     db,
		parser: parser,
		logger: logger,
	}
}

// FindSuccessor returns the best successor candidate for a source entry, or
// nil when the catalog holds none. Seasoned sources match the lowest season
// strictly greater than their own; un-seasoned sources match the
// chronologically next release of the same base title. Pure read, no
// mutation.
func (c *DetectionController) FindSuccessor(userID string, source *models.Media) (*Candidate, error) {
	baseTitle := source.BaseTitle
	if baseTitle == "" {
		parsed, err := c.parser.Parse(source.Title)
		if err != nil {
			return nil, err
		}
		baseTitle = parsed.NormalizedTitle
	}

	if source.SeasonNumber != nil {
		return c.findNextSeason(userID, source, baseTitle)
	}
	return c.findNextRelease(userID, source, baseTitle)
}

func (c *DetectionController) findNextSeason(userID string, source *models.Media, baseTitle string) (*Candidate, error) {
	candidates, err := c.db.FindSeasonSuccessors(baseTitle, *source.SeasonNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query season successors: %w", err)
	}

	for _, candidate := range candidates {
		if candidate.ID == source.ID {
			continue
		}

		c.logger.Debug().
			Str("user_id", userID).
			Uint64("source_id", source.ID).
			Uint64("candidate_id", candidate.ID).
			Int("season", *candidate.SeasonNumber).
			Msg("Found season successor")

		return &Candidate{
			Media:      candidate,
			Confidence: 1.0,
			MatchType:  models.MatchSeasonIncrement,
			Reason:     fmt.Sprintf("Season %d follows season %d", *candidate.SeasonNumber, *source.SeasonNumber),
		}, nil
	}

	return nil, nil
}

func (c *DetectionController) findNextRelease(userID string, source *models.Media, baseTitle string) (*Candidate, error) {
	if source.ReleaseDate == nil {
		// Without a release date there is no chronological ordering to
		// follow, so nothing is proposed.
		return nil, nil
	}

	candidates, err := c.db.FindNextReleases(baseTitle, *source.ReleaseDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query next releases: %w", err)
	}

	for _, candidate := range candidates {
		if candidate.ID == source.ID {
			continue
		}

		c.logger.Debug().
			Str("user_id", userID).
			Uint64("source_id", source.ID).
			Uint64("candidate_id", candidate.ID).
			Msg("Found next release")

		return &Candidate{
			Media:      candidate,
			Confidence: 1.0,
			MatchType:  models.MatchNextRelease,
			Reason:     "Same title, next release",
		}, nil
	}

	return nil, nil
}
