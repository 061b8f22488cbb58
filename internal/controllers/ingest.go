package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amaumene/sequelarr/internal/models"
	"github.com/amaumene/sequelarr/internal/services/tmdb"
	"github.com/amaumene/sequelarr/internal/titles"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

// ImportRecord is one consumption item handed over by the external import
// subsystem (CSV upload, manual entry).
type ImportRecord struct {
	UserID     string
	Title      string
	Platform   string
	Status     models.ConsumptionStatus
	ConsumedAt *time.Time
}

// RecordError describes a single failed record in a batch
type RecordError struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	Error string `json:"error"`
}

// BatchResult is the per-record breakdown returned to batch callers
type BatchResult struct {
	Processed int           `json:"processed"`
	Matched   int           `json:"matched"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Errors    []RecordError `json:"errors,omitempty"`
}

// Enricher is the metadata enrichment dependency. nil disables enrichment.
type Enricher interface {
	Enrich(ctx context.Context, baseTitle string, mediaType models.MediaType, year *int) (*tmdb.Metadata, error)
}

// IngestController runs the detection pipeline over import batches:
// normalize, match, enrich, record.
type IngestController struct {
	db          *models.Database
	parser      *titles.Parser
	enricher    Enricher
	detectCtrl  *DetectionController
	monitorCtrl *MonitorController
	logger      zerolog.Logger
}

// NewIngestController creates a new ingest controller
func NewIngestController(
	db *models.Database,
	parser *titles.Parser,
	enricher Enricher,
	detectCtrl *DetectionController,
	monitorCtrl *MonitorController,
	logger zerolog.Logger,
) *IngestController {
	return &IngestController{
		db:          db,
		parser:      parser,
		enricher:    enricher,
		detectCtrl:  detectCtrl,
		monitorCtrl: monitorCtrl,
		logger:      logger,
	}
}

// ProcessBatch runs the pipeline for every record. Per-record failures
// (unparseable titles, enrichment outages, duplicates) are logged, counted
// and excluded from the result without aborting the rest; storage failures
// abort the batch and surface to the caller's retry logic.
func (c *IngestController) ProcessBatch(ctx context.Context, records []ImportRecord) (*BatchResult, error) {
	ctx, span := otel.Tracer("sequelarr/pipeline").Start(ctx, "ingest.process_batch")
	defer span.End()

	result := &BatchResult{}
	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		matched, err := c.processRecord(ctx, record)
		if err != nil {
			if errors.Is(err, models.ErrPersistence) {
				// Systemic: abort the whole batch with a clear status.
				return result, fmt.Errorf("batch aborted at record %d: %w", i, err)
			}
			result.Failed++
			result.Errors = append(result.Errors, RecordError{Index: i, Title: record.Title, Error: err.Error()})
			c.logger.Warn().Err(err).
				Int("index", i).
				Str("title", record.Title).
				Msg("Skipping import record")
			continue
		}

		result.Processed++
		if matched {
			result.Matched++
		} else {
			result.Skipped++
		}
	}

	c.logger.Info().
		Int("processed", result.Processed).
		Int("matched", result.Matched).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("Import batch completed")

	return result, nil
}

func (c *IngestController) processRecord(ctx context.Context, record ImportRecord) (bool, error) {
	parsed, err := c.parser.Parse(record.Title)
	if err != nil {
		return false, err
	}

	source, err := c.ensureCatalogEntry(record, parsed)
	if err != nil {
		return false, err
	}

	status := record.Status
	if status == "" {
		status = models.ConsumptionWatched
	}
	if _, err := c.db.UpsertConsumption(&models.UserMedia{
		UserID:       record.UserID,
		MediaID:      source.ID,
		Status:       status,
		Platform:     record.Platform,
		ConsumedAt:   record.ConsumedAt,
		ImportedFrom: "import",
	}); err != nil {
		return false, err
	}

	candidate, err := c.detectCtrl.FindSuccessor(record.UserID, source)
	if err != nil {
		return false, err
	}
	if candidate == nil {
		return false, nil
	}

	c.enrichCandidate(ctx, parsed, candidate)

	if _, err := c.monitorCtrl.RecordCandidate(record.UserID, source.ID, candidate); err != nil {
		return false, err
	}
	return true, nil
}

// ensureCatalogEntry resolves the record's catalog entry by comparison key,
// creating a minimal one for titles the catalog has not seen.
func (c *IngestController) ensureCatalogEntry(record ImportRecord, parsed *titles.Parsed) (*models.Media, error) {
	media, err := c.db.GetMediaByKey(parsed.NormalizedTitle, parsed.SeasonNumber)
	if err == nil {
		return media, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	mediaType := models.MediaTypeMovie
	if parsed.IsTVSeries {
		mediaType = models.MediaTypeTV
	}

	media = &models.Media{
		Title:         record.Title,
		MediaType:     mediaType,
		BaseTitle:     parsed.NormalizedTitle,
		SeasonNumber:  parsed.SeasonNumber,
		EpisodeNumber: parsed.EpisodeNumber,
		Platform:      record.Platform,
	}
	if err := c.db.CreateMedia(media); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("base_title", parsed.NormalizedTitle).
		Msg("Created catalog entry for imported title")

	return media, nil
}

// enrichCandidate attaches provider metadata to the candidate. Best-effort:
// a failed lookup delays display quality, never the match.
func (c *IngestController) enrichCandidate(ctx context.Context, parsed *titles.Parsed, candidate *Candidate) {
	if c.enricher == nil {
		return
	}

	md, err := c.enricher.Enrich(ctx, parsed.BaseTitle, candidate.Media.MediaType, parsed.Year)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("base_title", parsed.BaseTitle).
			Msg("Enrichment unavailable, proceeding without metadata")
		return
	}
	if md == nil {
		return
	}

	applyMetadata(candidate.Media, md)
	if err := c.db.UpdateMedia(candidate.Media); err != nil {
		c.logger.Warn().Err(err).
			Uint64("media_id", candidate.Media.ID).
			Msg("Failed to persist enrichment metadata")
	}
}

func applyMetadata(media *models.Media, md *tmdb.Metadata) {
	tmdbID := md.TMDBID
	media.TMDBID = &tmdbID
	if md.IMDBID != "" {
		media.IMDBID = md.IMDBID
	}
	if media.Metadata == nil {
		media.Metadata = map[string]any{}
	}
	media.Metadata["canonical_title"] = md.CanonicalTitle
	media.Metadata["overview"] = md.Overview
	media.Metadata["poster_url"] = md.PosterURL
	media.Metadata["rating"] = md.Rating
	if md.TotalSeasons > 0 {
		media.Metadata["total_seasons"] = md.TotalSeasons
		media.Metadata["total_episodes"] = md.TotalEpisodes
	}
	if media.ReleaseDate == nil && md.ReleaseDate != "" {
		if t, err := time.Parse("2006-01-02", md.ReleaseDate); err == nil {
			media.ReleaseDate = &t
		}
	}
}
