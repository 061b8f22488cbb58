// Package titles parses raw media titles into a comparable base title plus
// optional season, episode and year, and produces the normalized comparison
// key used for successor matching.
package titles

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/amaumene/sequelarr/internal/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Parsed holds the structured result of parsing a raw title.
type Parsed struct {
	OriginalTitle string
	BaseTitle     string
	// NormalizedTitle is the stable comparison key: folded, lowercased,
	// stripped of punctuation, year suffixes and leading articles.
	NormalizedTitle string
	SeasonNumber    *int // nil for movies and un-seasoned items
	EpisodeNumber   *int
	Year            *int
	IsTVSeries      bool
}

var seasonPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)[:\s]Season\s+(\d+)`),                      // ": Season 3"
	regexp.MustCompile(`(?i)[:\s]S(\d{1,2})\b`),                        // ": S3"
	regexp.MustCompile(`(?i)\bSeason\s+(\d+)`),                         // "Season 3"
	regexp.MustCompile(`(?i)\bS(\d{1,2})E\d+`),                         // "S03E01"
	regexp.MustCompile(`(?i)\b(?:Temporada|Saison|Staffel)\s+(\d+)`),   // localized variants
}

var episodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Episode\s+(\d+)`), // "Episode 1"
	regexp.MustCompile(`(?i)\bE(\d{1,3})\b`),  // "E01"
	regexp.MustCompile(`(?i)\bEp\.?\s*(\d+)`), // "Ep. 1"
}

// Patterns re-anchored to cut the marker and everything after it.
var seasonCutPatterns = cutPatterns(seasonPatterns)
var episodeCutPatterns = cutPatterns(episodePatterns)

func cutPatterns(patterns []*regexp.Regexp) []*regexp.Regexp {
	cut := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		cut[i] = regexp.MustCompile(p.String() + `.*$`)
	}
	return cut
}

var (
	yearRe       = regexp.MustCompile(`\((\d{4})\)`)
	yearSuffixRe = regexp.MustCompile(`\s*\(\d{4}\)\s*`)
	articleRe    = regexp.MustCompile(`^\s*(?i:the|a|an)\s+`)
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

// stripMarks removes diacritics so "Café" and "Cafe" share one key.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var separators = []string{":", "—", "–", "-"}

// Parser parses raw titles. Stateless, safe for concurrent use.
type Parser struct{}

// NewParser creates a title parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse extracts structured information from a raw title, e.g.
// "Breaking Bad: Season 3" -> base "Breaking Bad", season 3.
// Empty or unparseable input returns a normalization error; callers skip
// the single record, it is never fatal to a batch.
func (p *Parser) Parse(title string) (*Parsed, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return nil, fmt.Errorf("empty title: %w", models.ErrNormalization)
	}

	result := &Parsed{OriginalTitle: title}

	if season := extractNumber(trimmed, seasonPatterns); season != nil {
		result.SeasonNumber = season
		result.IsTVSeries = true
	}
	if episode := extractNumber(trimmed, episodePatterns); episode != nil {
		result.EpisodeNumber = episode
		result.IsTVSeries = true
	}
	result.Year = ExtractYear(trimmed)

	base := extractBaseTitle(trimmed)
	if base == "" {
		return nil, fmt.Errorf("no base title in %q: %w", title, models.ErrNormalization)
	}
	result.BaseTitle = base

	result.NormalizedTitle = p.Normalize(base)
	if result.NormalizedTitle == "" {
		return nil, fmt.Errorf("title %q normalizes to nothing: %w", title, models.ErrNormalization)
	}

	return result, nil
}

// Normalize produces the comparison key for a title: diacritics folded,
// lowercased, year suffixes and leading articles dropped, punctuation
// stripped, whitespace collapsed.
func (p *Parser) Normalize(title string) string {
	if title == "" {
		return ""
	}

	folded, _, err := transform.String(stripMarks, title)
	if err != nil {
		folded = title
	}

	s := strings.ToLower(folded)
	s = yearSuffixRe.ReplaceAllString(s, " ")
	s = articleRe.ReplaceAllString(s, "")
	s = punctRe.ReplaceAllString(s, "")
	s = spacesRe.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}

// SameBase reports whether two raw titles share a normalized base title.
func (p *Parser) SameBase(a, b string) bool {
	pa, err := p.Parse(a)
	if err != nil {
		return false
	}
	pb, err := p.Parse(b)
	if err != nil {
		return false
	}
	return pa.NormalizedTitle == pb.NormalizedTitle
}

// ExtractYear returns a year in parentheses, e.g. "Inception (2010)" -> 2010.
func ExtractYear(title string) *int {
	match := yearRe.FindStringSubmatch(title)
	if match == nil {
		return nil
	}
	year, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	if year < 1900 || year > time.Now().Year()+5 {
		return nil
	}
	return &year
}

func extractNumber(title string, patterns []*regexp.Regexp) *int {
	for _, re := range patterns {
		match := re.FindStringSubmatch(title)
		if match == nil {
			continue
		}
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		return &n
	}
	return nil
}

func extractBaseTitle(title string) string {
	base := title

	for _, re := range seasonCutPatterns {
		base = re.ReplaceAllString(base, "")
	}
	for _, re := range episodeCutPatterns {
		base = re.ReplaceAllString(base, "")
	}

	base = strings.TrimSpace(base)
	for _, sep := range separators {
		base = strings.TrimSuffix(base, sep)
	}

	return strings.TrimSpace(spacesRe.ReplaceAllString(base, " "))
}
