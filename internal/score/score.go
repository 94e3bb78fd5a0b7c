// Package score computes lead quality scores. Scoring is a pure function of
// a canonical lead's current state: recomputing with the same inputs always
// yields the same result.
package score

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/voyago/leadharvest/internal/lead"
)

// travelKeywords is the relevance keyword set matched against accumulated
// source text.
var travelKeywords = []string{
	"hotel", "resort", "tour", "travel", "booking", "reservation",
	"accommodation", "restaurant", "excursion", "guide", "vacation",
	"holiday", "lodge", "guesthouse",
}

const scoreableFieldCount = 5

// Weights holds the final-score blend. They must sum to 1.0.
type Weights struct {
	Completeness float64
	Relevance    float64
	Freshness    float64
	Confidence   float64
}

// DefaultWeights is the standard blend.
var DefaultWeights = Weights{
	Completeness: 0.3,
	Relevance:    0.3,
	Freshness:    0.2,
	Confidence:   0.2,
}

// Config controls the scorer.
type Config struct {
	Weights Weights
	// HalfLifeDays controls freshness decay.
	HalfLifeDays float64
	// ExpectedHits normalizes the relevance keyword count.
	ExpectedHits int
}

// Scorer computes the four sub-scores and their weighted blend.
type Scorer struct {
	cfg Config
}

// New validates the configuration and constructs a Scorer.
func New(cfg Config) (*Scorer, error) {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights
	}
	sum := cfg.Weights.Completeness + cfg.Weights.Relevance + cfg.Weights.Freshness + cfg.Weights.Confidence
	if math.Abs(sum-1.0) > 1e-9 {
		return nil, fmt.Errorf("score weights sum to %.4f, want 1.0", sum)
	}
	if cfg.HalfLifeDays <= 0 {
		cfg.HalfLifeDays = 90
	}
	if cfg.ExpectedHits <= 0 {
		cfg.ExpectedHits = 5
	}
	return &Scorer{cfg: cfg}, nil
}

// Score computes all sub-scores for the lead given the accumulated source
// text and the current time. Every sub-score and the final score lie in
// [0, 1].
func (s *Scorer) Score(l *lead.Canonical, sourceText string, now time.Time) lead.Scores {
	sc := lead.Scores{
		Completeness: s.completeness(l),
		Relevance:    s.relevance(sourceText),
		Freshness:    s.freshness(l.LastFetchedAt, now),
		Confidence:   s.confidence(l.Methods),
	}
	w := s.cfg.Weights
	sc.Final = w.Completeness*sc.Completeness +
		w.Relevance*sc.Relevance +
		w.Freshness*sc.Freshness +
		w.Confidence*sc.Confidence
	return sc
}

func (s *Scorer) completeness(l *lead.Canonical) float64 {
	populated := 0
	for _, f := range l.ScoreableFields() {
		if f != "" {
			populated++
		}
	}
	return float64(populated) / scoreableFieldCount
}

func (s *Scorer) relevance(sourceText string) float64 {
	if sourceText == "" {
		return 0
	}
	lower := strings.ToLower(sourceText)
	hits := 0
	for _, kw := range travelKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return math.Min(1.0, float64(hits)/float64(s.cfg.ExpectedHits))
}

func (s *Scorer) freshness(lastFetched, now time.Time) float64 {
	if lastFetched.IsZero() {
		return 0
	}
	ageDays := now.Sub(lastFetched).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays / s.cfg.HalfLifeDays)
}

// confidence is the average trust across contributing candidates.
func (s *Scorer) confidence(methods []lead.ExtractionMethod) float64 {
	if len(methods) == 0 {
		return 0
	}
	total := 0.0
	for _, m := range methods {
		total += m.Trust()
	}
	return total / float64(len(methods))
}

// Less reports whether a ranks above b for export: final desc, completeness
// desc, most recently updated first.
func Less(a, b *lead.Canonical) bool {
	if a.Scores.Final != b.Scores.Final {
		return a.Scores.Final > b.Scores.Final
	}
	if a.Scores.Completeness != b.Scores.Completeness {
		return a.Scores.Completeness > b.Scores.Completeness
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}
