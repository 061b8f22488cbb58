package tmdb

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amaumene/sequelarr/internal/models"
	"github.com/amaumene/sequelarr/internal/titles"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// fakeProvider counts calls and serves canned results
type fakeProvider struct {
	mu          sync.Mutex
	searchCalls int32
	results     []SearchResult
	searchErr   error
	tvDetails   map[int]*TVDetails
}

func (f *fakeProvider) SearchTV(ctx context.Context, query string, year *int) ([]SearchResult, error) {
	atomic.AddInt32(&f.searchCalls, 1)
	return f.results, f.searchErr
}

func (f *fakeProvider) SearchMovie(ctx context.Context, query string, year *int) ([]SearchResult, error) {
	atomic.AddInt32(&f.searchCalls, 1)
	return f.results, f.searchErr
}

func (f *fakeProvider) GetTVDetails(ctx context.Context, tvID int) (*TVDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.tvDetails[tvID]; ok {
		return d, nil
	}
	return nil, errors.New("unknown id")
}

func (f *fakeProvider) GetMovieDetails(ctx context.Context, movieID int) (*MovieDetails, error) {
	return &MovieDetails{ID: movieID, Title: "Some Movie"}, nil
}

func newTestEnricher(provider Provider, limiter *rate.Limiter) *Enricher {
	return NewEnricher(provider, titles.NewParser(), limiter, Options{
		CacheTTL:   time.Hour,
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	}, zerolog.Nop())
}

func TestEnrichCacheHit(t *testing.T) {
	provider := &fakeProvider{
		results: []SearchResult{{ID: 1396, Name: "Breaking Bad"}},
		tvDetails: map[int]*TVDetails{
			1396: {ID: 1396, Name: "Breaking Bad", NumberOfSeasons: 5},
		},
	}
	e := newTestEnricher(provider, rate.NewLimiter(rate.Inf, 1))

	ctx := context.Background()
	first, err := e.Enrich(ctx, "Breaking Bad", models.MediaTypeTV, nil)
	if err != nil {
		t.Fatalf("First Enrich failed: %v", err)
	}
	if first == nil || first.TMDBID != 1396 {
		t.Fatalf("Expected TMDB ID 1396, got %+v", first)
	}

	second, err := e.Enrich(ctx, "Breaking Bad", models.MediaTypeTV, nil)
	if err != nil {
		t.Fatalf("Second Enrich failed: %v", err)
	}
	if second.TMDBID != first.TMDBID {
		t.Errorf("Cache returned different metadata: %+v vs %+v", first, second)
	}

	if n := atomic.LoadInt32(&provider.searchCalls); n != 1 {
		t.Errorf("Expected 1 provider search, got %d", n)
	}
}

func TestEnrichNoMatchNotCached(t *testing.T) {
	provider := &fakeProvider{results: nil}
	e := newTestEnricher(provider, rate.NewLimiter(rate.Inf, 1))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		md, err := e.Enrich(ctx, "Unknown Show", models.MediaTypeTV, nil)
		if err != nil {
			t.Fatalf("Enrich attempt %d failed: %v", i+1, err)
		}
		if md != nil {
			t.Fatalf("Expected nil metadata for unknown title, got %+v", md)
		}
	}

	// Misses go back to the provider every time.
	if n := atomic.LoadInt32(&provider.searchCalls); n != 2 {
		t.Errorf("Expected 2 provider searches, got %d", n)
	}
}

func TestEnrichProviderFailure(t *testing.T) {
	provider := &fakeProvider{searchErr: errors.New("upstream down")}
	e := newTestEnricher(provider, rate.NewLimiter(rate.Inf, 1))

	_, err := e.Enrich(context.Background(), "Breaking Bad", models.MediaTypeTV, nil)
	if !errors.Is(err, models.ErrEnrichmentUnavailable) {
		t.Errorf("Expected ErrEnrichmentUnavailable, got %v", err)
	}
}

func TestEnrichRateLimiterShared(t *testing.T) {
	provider := &fakeProvider{
		results: []SearchResult{{ID: 7, Name: "Dark"}},
		tvDetails: map[int]*TVDetails{
			7: {ID: 7, Name: "Dark", NumberOfSeasons: 3},
		},
	}
	// Generous limiter: the point is that concurrent callers share one
	// bucket and all complete.
	e := newTestEnricher(provider, rate.NewLimiter(rate.Limit(100), 10))

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Enrich(ctx, "Dark", models.MediaTypeTV, nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent Enrich failed: %v", err)
	}
}

func TestEnrichRateLimitExhausted(t *testing.T) {
	provider := &fakeProvider{
		results: []SearchResult{{ID: 7, Name: "Dark"}},
		tvDetails: map[int]*TVDetails{
			7: {ID: 7, Name: "Dark", NumberOfSeasons: 3},
		},
	}
	// Two tokens, effectively no refill: the third distinct lookup cannot
	// get a token within its budget.
	limiter := rate.NewLimiter(rate.Every(time.Hour), 2)
	e := NewEnricher(provider, titles.NewParser(), limiter, Options{
		CacheTTL:   time.Hour,
		Timeout:    100 * time.Millisecond,
		MaxRetries: 1,
	}, zerolog.Nop())

	ctx := context.Background()
	for _, title := range []string{"Dark", "Dark Matter"} {
		if _, err := e.Enrich(ctx, title, models.MediaTypeTV, nil); err != nil {
			t.Fatalf("Enrich(%q) failed: %v", title, err)
		}
	}

	_, err := e.Enrich(ctx, "Darkest Hour", models.MediaTypeTV, nil)
	if !errors.Is(err, models.ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited once the window is exhausted, got %v", err)
	}

	// Cached titles stay available without spending a token.
	if _, err := e.Enrich(ctx, "Dark", models.MediaTypeTV, nil); err != nil {
		t.Errorf("Expected cached Enrich to bypass the limiter, got %v", err)
	}
}

func TestBestMatchPicksClosest(t *testing.T) {
	provider := &fakeProvider{}
	e := newTestEnricher(provider, rate.NewLimiter(rate.Inf, 1))

	results := []SearchResult{
		{ID: 1, Name: "The Office (UK)"},
		{ID: 2, Name: "The Office"},
		{ID: 3, Name: "Office Ladies"},
	}
	best := e.bestMatch("The Office", results)
	if best.ID != 2 {
		t.Errorf("Expected result 2, got %d (%s)", best.ID, best.DisplayTitle())
	}
}

func TestCacheKeyIncludesYear(t *testing.T) {
	year := 2005
	withYear := cacheKey("office", models.MediaTypeTV, &year)
	withoutYear := cacheKey("office", models.MediaTypeTV, nil)
	if withYear == withoutYear {
		t.Error("Expected year to distinguish cache keys")
	}
	if cacheKey("office", models.MediaTypeTV, nil) == cacheKey("office", models.MediaTypeMovie, nil) {
		t.Error("Expected media type to distinguish cache keys")
	}
}
