package controllers

import (
	"github.com/amaumene/sequelarr/internal/metrics"
	"github.com/amaumene/sequelarr/internal/models"
	"github.com/rs/zerolog"
)

// MonitorController records detected successors as monitoring entries,
// guaranteeing at most one entry per (user, source, successor) triple.
type MonitorController struct {
	db     *models.Database
	logger zerolog.Logger
}

// NewMonitorController creates a new monitor controller
func NewMonitorController(db *models.Database, logger zerolog.Logger) *MonitorController {
	return &MonitorController{
		db:     db,
		logger: logger,
	}
}

// RecordCandidate stores a monitoring entry for the candidate. The insert
// is atomic insert-if-absent against the storage unique constraint, so
// concurrent import batches for the same user collapse to a single entry.
// An existing entry (notified or not) makes this a no-op returning it.
func (c *MonitorController) RecordCandidate(userID string, sourceMediaID uint64, candidate *Candidate) (*models.MonitoringEntry, error) {
	entry := &models.MonitoringEntry{
		UserID:           userID,
		SourceMediaID:    sourceMediaID,
		SuccessorMediaID: candidate.Media.ID,
		Confidence:       candidate.Confidence,
		MatchType:        candidate.MatchType,
	}

	stored, created, err := c.db.InsertMonitoringEntry(entry)
	if err != nil {
		return nil, err
	}

	if created {
		metrics.EntriesRecorded.Inc()
		c.logger.Info().
			Str("user_id", userID).
			Uint64("source_id", sourceMediaID).
			Uint64("successor_id", candidate.Media.ID).
			Str("match_type", string(candidate.MatchType)).
			Msg("Recorded monitoring entry")
	} else {
		metrics.EntriesDuplicate.Inc()
		c.logger.Debug().
			Str("user_id", userID).
			Uint64("source_id", sourceMediaID).
			Uint64("successor_id", candidate.Media.ID).
			Msg("Monitoring entry already exists")
	}

	return stored, nil
}
