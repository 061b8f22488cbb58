package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/amaumene/sequelarr/internal/config"
	"github.com/amaumene/sequelarr/internal/models"
	"github.com/rs/zerolog"
)

const (
	baseURL      = "https://api.themoviedb.org/3"
	imageBaseURL = "https://image.tmdb.org/t/p/w500"
)

// Client handles communication with the TMDB API
type Client struct {
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new TMDB client
func NewClient(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	if cfg.TMDBAPIKey == "" {
		return nil, fmt.Errorf("TMDB API key is required: %w", models.ErrConfiguration)
	}

	return &Client{
		apiKey:     cfg.TMDBAPIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

// SearchResult represents a single search hit
type SearchResult struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`  // TV
	Title        string  `json:"title"` // movie
	FirstAirDate string  `json:"first_air_date"`
	ReleaseDate  string  `json:"release_date"`
	Overview     string  `json:"overview"`
	PosterPath   string  `json:"poster_path"`
	VoteAverage  float64 `json:"vote_average"`
}

// DisplayTitle returns the title field regardless of media type
func (r SearchResult) DisplayTitle() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Title
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// TVDetails represents detailed TV series information
type TVDetails struct {
	ID               int     `json:"id"`
	Name             string  `json:"name"`
	NumberOfSeasons  int     `json:"number_of_seasons"`
	NumberOfEpisodes int     `json:"number_of_episodes"`
	FirstAirDate     string  `json:"first_air_date"`
	Overview         string  `json:"overview"`
	PosterPath       string  `json:"poster_path"`
	VoteAverage      float64 `json:"vote_average"`
	ExternalIDs      struct {
		IMDBID string `json:"imdb_id"`
	} `json:"external_ids"`
}

// MovieDetails represents detailed movie information
type MovieDetails struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	IMDBID      string  `json:"imdb_id"`
	ReleaseDate string  `json:"release_date"`
	Overview    string  `json:"overview"`
	PosterPath  string  `json:"poster_path"`
	VoteAverage float64 `json:"vote_average"`
}

// SearchTV searches for TV series by title and optional first-air year
func (c *Client) SearchTV(ctx context.Context, query string, year *int) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("query", query)
	if year != nil {
		params.Set("first_air_date_year", strconv.Itoa(*year))
	}

	var resp searchResponse
	if err := c.doRequest(ctx, "/search/tv", params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// SearchMovie searches for movies by title and optional release year
func (c *Client) SearchMovie(ctx context.Context, query string, year *int) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("query", query)
	if year != nil {
		params.Set("year", strconv.Itoa(*year))
	}

	var resp searchResponse
	if err := c.doRequest(ctx, "/search/movie", params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GetTVDetails fetches detailed information for a TV series, including
// season and episode totals and external IDs.
func (c *Client) GetTVDetails(ctx context.Context, tvID int) (*TVDetails, error) {
	params := url.Values{}
	params.Set("append_to_response", "external_ids")

	var details TVDetails
	if err := c.doRequest(ctx, fmt.Sprintf("/tv/%d", tvID), params, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// GetMovieDetails fetches detailed information for a movie
func (c *Client) GetMovieDetails(ctx context.Context, movieID int) (*MovieDetails, error) {
	var details MovieDetails
	if err := c.doRequest(ctx, fmt.Sprintf("/movie/%d", movieID), nil, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// PosterURL builds a full image URL from a TMDB poster path
func PosterURL(posterPath string) string {
	if posterPath == "" {
		return ""
	}
	return imageBaseURL + posterPath
}

// doRequest performs an authenticated GET request against the TMDB API
func (c *Client) doRequest(ctx context.Context, path string, params url.Values, result any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)

	fullURL := baseURL + path + "?" + params.Encode()

	c.logger.Debug().
		Str("path", path).
		Msg("Making TMDB API request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("TMDB request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("TMDB returned 429: %w", models.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("TMDB request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode TMDB response: %w", err)
		}
	}

	return nil
}
