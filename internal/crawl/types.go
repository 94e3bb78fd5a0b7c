// Package crawl implements the crawl orchestration core: the URL frontier,
// per-domain politeness, tier escalation, and the worker loop that drives
// fetches through extraction, dedup, and scoring.
package crawl

import (
	"net/http"
	"time"
)

// Tier identifies a fetch strategy of increasing capability and cost.
type Tier int

// Fetch tiers. Escalation is monotonic and never skips a tier.
const (
	Tier1 Tier = 1 // plain HTTP probe
	Tier2 Tier = 2 // structured crawl (colly)
	Tier3 Tier = 3 // full browser rendering (chromedp)
)

// MaxTier is the highest-capability fetch strategy available.
const MaxTier = Tier3

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values. Success, Failed, and DomainExhausted are terminal.
const (
	StatusQueued          JobStatus = "queued"
	StatusInFlight        JobStatus = "in_flight"
	StatusSuccess         JobStatus = "success"
	StatusRetryQueued     JobStatus = "retry_queued"
	StatusEscalateQueued  JobStatus = "escalate_queued"
	StatusFailed          JobStatus = "failed"
	StatusSkippedDup      JobStatus = "skipped_duplicate"
	StatusDomainExhausted JobStatus = "domain_exhausted"
)

// Terminal reports whether the status ends the job's lifecycle.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkippedDup, StatusDomainExhausted:
		return true
	}
	return false
}

// Job is one unit of crawl work, identified by its normalized URL.
type Job struct {
	URL            string    `json:"url"`
	Domain         string    `json:"domain"`
	DiscoveredFrom string    `json:"discovered_from,omitempty"`
	Priority       int       `json:"priority"`
	Tier           Tier      `json:"tier"`
	Attempt        int       `json:"attempt"` // attempts within the current tier
	Status         JobStatus `json:"status"`
	DiscoveredAt   time.Time `json:"discovered_at"`
	FailureReason  string    `json:"failure_reason,omitempty"`
}

// Outcome is the closed vocabulary fetch executors must report. It is the
// core's only coupling to fetch implementations.
type Outcome string

// Fetch outcomes.
const (
	OutcomeOK             Outcome = "ok"
	OutcomeBlockedRobots  Outcome = "blocked_by_robots"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeHTTPError      Outcome = "http_error"
	OutcomeJSRequired     Outcome = "js_required"
	OutcomeParseError     Outcome = "parse_error"
)

// Result captures one fetch attempt. Immutable once produced.
type Result struct {
	Job         Job
	TierUsed    Tier
	HTTPStatus  int
	Body        []byte
	ContentType string
	Headers     http.Header
	Elapsed     time.Duration
	Outcome     Outcome
	FinalURL    string
}
