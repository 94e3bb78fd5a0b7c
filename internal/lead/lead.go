// Package lead defines the business-lead domain types shared across
// extraction, dedup, scoring, and persistence.
package lead

import "time"

// ExtractionMethod identifies which pipeline pass produced a candidate.
type ExtractionMethod string

// Extraction methods ordered by trust.
const (
	MethodStructured ExtractionMethod = "structured"
	MethodPattern    ExtractionMethod = "pattern"
	MethodSemantic   ExtractionMethod = "semantic"
)

// Trust returns the confidence weight assigned to the extraction method.
func (m ExtractionMethod) Trust() float64 {
	switch m {
	case MethodStructured:
		return 1.0
	case MethodPattern:
		return 0.7
	case MethodSemantic:
		return 0.5
	default:
		return 0
	}
}

// Candidate is one raw lead observation from a single page. Any field may be
// empty; fields are extracted, never guessed.
type Candidate struct {
	SourceURL    string           `json:"source_url"`
	BusinessName string           `json:"business_name,omitempty"`
	Email        string           `json:"email,omitempty"`
	Phone        string           `json:"phone,omitempty"`
	Address      string           `json:"address,omitempty"`
	Website      string           `json:"website,omitempty"`
	LeadType     string           `json:"lead_type,omitempty"`
	Method       ExtractionMethod `json:"extraction_method"`
	SourceText   string           `json:"-"`
	FetchedAt    time.Time        `json:"fetched_at"`
}

// Identified reports whether the candidate carries at least one identifying
// field. Unidentified candidates are discarded, never stored.
func (c Candidate) Identified() bool {
	return c.BusinessName != "" || c.Email != "" || c.Phone != "" || c.Website != ""
}

// Scores holds the sub-scores and final score for a canonical lead.
type Scores struct {
	Completeness float64 `json:"completeness"`
	Relevance    float64 `json:"relevance"`
	Freshness    float64 `json:"freshness"`
	Confidence   float64 `json:"confidence"`
	Final        float64 `json:"final"`
}

// Canonical is the deduplicated, merged representation of one business across
// every candidate that resolved to it.
type Canonical struct {
	ID           string `json:"id"`
	BusinessName string `json:"business_name,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Address      string `json:"address,omitempty"`
	Website      string `json:"website,omitempty"`
	LeadType     string `json:"lead_type,omitempty"`

	// fieldMethod records which extraction method supplied each scalar so a
	// lower-trust candidate never overwrites a higher-trust value.
	FieldMethods map[string]ExtractionMethod `json:"field_methods"`

	// ContributingSources is the set of source URLs whose candidates merged
	// into this lead. Always non-empty.
	ContributingSources []string `json:"contributing_sources"`

	// Methods tracks the extraction method of every contributing candidate,
	// in resolution order, for confidence scoring.
	Methods []ExtractionMethod `json:"methods"`

	LastFetchedAt time.Time `json:"last_fetched_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Scores        Scores    `json:"scores"`
}

// HasSource reports whether url already contributed to the lead.
func (c *Canonical) HasSource(url string) bool {
	for _, s := range c.ContributingSources {
		if s == url {
			return true
		}
	}
	return false
}

// ScoreableFields enumerates the canonical fields counted by the
// completeness score.
func (c *Canonical) ScoreableFields() []string {
	return []string{c.BusinessName, c.Email, c.Phone, c.Address, c.Website}
}
