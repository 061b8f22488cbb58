package tmdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/amaumene/sequelarr/internal/metrics"
	"github.com/amaumene/sequelarr/internal/models"
	"github.com/amaumene/sequelarr/internal/titles"
	"github.com/cenkalti/backoff/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Metadata is the provider payload attached to catalog entries. Enrichment
// is best-effort display data; matching never depends on it.
type Metadata struct {
	TMDBID         int     `json:"tmdb_id"`
	IMDBID         string  `json:"imdb_id,omitempty"`
	CanonicalTitle string  `json:"canonical_title"`
	ReleaseDate    string  `json:"release_date,omitempty"`
	Overview       string  `json:"overview,omitempty"`
	PosterURL      string  `json:"poster_url,omitempty"`
	Rating         float64 `json:"rating,omitempty"`
	TotalSeasons   int     `json:"total_seasons,omitempty"`
	TotalEpisodes  int     `json:"total_episodes,omitempty"`
}

// Provider is the slice of the TMDB client the enricher needs.
type Provider interface {
	SearchTV(ctx context.Context, query string, year *int) ([]SearchResult, error)
	SearchMovie(ctx context.Context, query string, year *int) ([]SearchResult, error)
	GetTVDetails(ctx context.Context, tvID int) (*TVDetails, error)
	GetMovieDetails(ctx context.Context, movieID int) (*MovieDetails, error)
}

// Options tunes the enricher. Zero values fall back to defaults.
type Options struct {
	CacheTTL   time.Duration // default 24h
	Timeout    time.Duration // per-call budget, default 10s
	MaxRetries uint64        // default 3
}

func (o Options) withDefaults() Options {
	if o.CacheTTL <= 0 {
		o.CacheTTL = 24 * time.Hour
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	return o
}

// Enricher is the cache-first, rate-limited metadata lookup. The limiter is
// shared across all concurrent callers of this instance; inject one limiter
// per provider domain. Safe for concurrent use.
type Enricher struct {
	provider Provider
	parser   *titles.Parser
	cache    *gocache.Cache
	limiter  *rate.Limiter
	opts     Options
	logger   zerolog.Logger
}

// NewEnricher creates an enricher around a provider client
func NewEnricher(provider Provider, parser *titles.Parser, limiter *rate.Limiter, opts Options, logger zerolog.Logger) *Enricher {
	opts = opts.withDefaults()
	return &Enricher{
		provider: provider,
		parser:   parser,
		cache:    gocache.New(opts.CacheTTL, opts.CacheTTL/2),
		limiter:  limiter,
		opts:     opts,
		logger:   logger,
	}
}

// Enrich looks up provider metadata for a base title. Cache hits return
// immediately; misses go to the provider behind the token bucket with
// bounded retries. Returns nil when nothing matched. Failed lookups are not
// cached so a later pass can retry.
func (e *Enricher) Enrich(ctx context.Context, baseTitle string, mediaType models.MediaType, year *int) (*Metadata, error) {
	key := cacheKey(e.parser.Normalize(baseTitle), mediaType, year)

	if cached, found := e.cache.Get(key); found {
		metrics.EnrichmentCacheHits.Inc()
		return cached.(*Metadata), nil
	}
	metrics.EnrichmentCacheMisses.Inc()

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	var result *Metadata
	operation := func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			// Context died while queued for a token; retrying is pointless.
			return backoff.Permanent(fmt.Errorf("waiting for rate limiter: %w", errors.Join(models.ErrRateLimited, err)))
		}
		md, err := e.lookup(ctx, baseTitle, mediaType, year)
		if err != nil {
			return err
		}
		result = md
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.opts.MaxRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		metrics.ProviderFailures.Inc()
		return nil, fmt.Errorf("enrich %q: %w", baseTitle, errors.Join(models.ErrEnrichmentUnavailable, err))
	}

	if result == nil {
		// No provider match: not cached, a later pass may find it.
		return nil, nil
	}

	e.cache.Set(key, result, gocache.DefaultExpiration)
	return result, nil
}

// lookup performs one provider round trip: search, pick the closest result,
// fetch its details.
func (e *Enricher) lookup(ctx context.Context, baseTitle string, mediaType models.MediaType, year *int) (*Metadata, error) {
	metrics.ProviderRequests.Inc()

	var results []SearchResult
	var err error
	if mediaType == models.MediaTypeTV {
		results, err = e.provider.SearchTV(ctx, baseTitle, year)
	} else {
		results, err = e.provider.SearchMovie(ctx, baseTitle, year)
	}
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	best := e.bestMatch(baseTitle, results)

	if mediaType == models.MediaTypeTV {
		details, err := e.provider.GetTVDetails(ctx, best.ID)
		if err != nil {
			return nil, err
		}
		return &Metadata{
			TMDBID:         details.ID,
			IMDBID:         details.ExternalIDs.IMDBID,
			CanonicalTitle: details.Name,
			ReleaseDate:    details.FirstAirDate,
			Overview:       details.Overview,
			PosterURL:      PosterURL(details.PosterPath),
			Rating:         details.VoteAverage,
			TotalSeasons:   details.NumberOfSeasons,
			TotalEpisodes:  details.NumberOfEpisodes,
		}, nil
	}

	details, err := e.provider.GetMovieDetails(ctx, best.ID)
	if err != nil {
		return nil, err
	}
	return &Metadata{
		TMDBID:         details.ID,
		IMDBID:         details.IMDBID,
		CanonicalTitle: details.Title,
		ReleaseDate:    details.ReleaseDate,
		Overview:       details.Overview,
		PosterURL:      PosterURL(details.PosterPath),
		Rating:         details.VoteAverage,
	}, nil
}

// bestMatch picks the search result whose normalized title is closest to the
// query by edit distance. This only chooses among provider results for
// display data; successor matching elsewhere stays exact.
func (e *Enricher) bestMatch(query string, results []SearchResult) SearchResult {
	normalizedQuery := e.parser.Normalize(query)

	best := results[0]
	bestDistance := -1
	for _, r := range results {
		d := levenshtein.ComputeDistance(normalizedQuery, e.parser.Normalize(r.DisplayTitle()))
		if bestDistance < 0 || d < bestDistance {
			best = r
			bestDistance = d
		}
	}

	e.logger.Debug().
		Str("query", query).
		Str("matched", best.DisplayTitle()).
		Int("distance", bestDistance).
		Msg("Selected provider search result")

	return best
}

func cacheKey(normalizedTitle string, mediaType models.MediaType, year *int) string {
	key := string(mediaType) + ":" + normalizedTitle
	if year != nil {
		key += ":" + strconv.Itoa(*year)
	}
	return key
}
