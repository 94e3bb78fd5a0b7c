package crawl

import (
	"context"
	"time"

	"github.com/voyago/leadharvest/internal/lead"
)

// FetchExecutor fetches a URL using one tier's strategy. Implementations must
// map every failure to the Outcome vocabulary in types.go and never panic.
type FetchExecutor interface {
	Fetch(ctx context.Context, job Job) Result
	Tier() Tier
}

// SeedProvider supplies seed URLs for a search query. External collaborator.
type SeedProvider interface {
	GetSeeds(ctx context.Context, query string, maxResults int) ([]string, error)
}

// SemanticExtractor is the AI fallback extractor. It may fail with rate-limit
// or timeout errors; callers must tolerate both and degrade to pattern-only
// output.
type SemanticExtractor interface {
	Extract(ctx context.Context, excerpt string, hints map[string]string) (*lead.Candidate, error)
}

// LeadStore receives canonical lead upserts. External persistence
// collaborator; the core never reads back through it.
type LeadStore interface {
	UpsertLead(ctx context.Context, l *lead.Canonical) error
}

// Clock returns the current time; swapped for a fixed clock in tests.
type Clock interface {
	Now() time.Time
}
