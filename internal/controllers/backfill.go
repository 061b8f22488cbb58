package controllers

import (
	"context"
	"fmt"
)

// BackfillMetadata enriches catalog entries that have no provider data yet.
// The shared cache and rate limiter apply, so a large catalog drains at the
// provider's pace. Returns the number of entries enriched.
func (c *IngestController) BackfillMetadata(ctx context.Context, limit int) (int, error) {
	if c.enricher == nil {
		return 0, nil
	}

	medias, err := c.db.ListMediaMissingMetadata(limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list entries for backfill: %w", err)
	}

	enriched := 0
	for _, media := range medias {
		if err := ctx.Err(); err != nil {
			return enriched, err
		}

		var year *int
		if media.ReleaseDate != nil {
			y := media.ReleaseDate.Year()
			year = &y
		}

		md, err := c.enricher.Enrich(ctx, media.BaseTitle, media.MediaType, year)
		if err != nil {
			c.logger.Warn().Err(err).
				Uint64("media_id", media.ID).
				Msg("Backfill enrichment unavailable")
			continue
		}
		if md == nil {
			continue
		}

		applyMetadata(media, md)
		if err := c.db.UpdateMedia(media); err != nil {
			c.logger.Warn().Err(err).
				Uint64("media_id", media.ID).
				Msg("Failed to persist backfill metadata")
			continue
		}
		enriched++
	}

	c.logger.Info().
		Int("candidates", len(medias)).
		Int("enriched", enriched).
		Msg("Catalog backfill completed")

	return enriched, nil
}
