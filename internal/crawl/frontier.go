package crawl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// EnqueueResult reports how the frontier handled an enqueue request.
type EnqueueResult string

// Enqueue results.
const (
	EnqueueAccepted  EnqueueResult = "accepted"
	EnqueueDuplicate EnqueueResult = "duplicate"
)

// ErrFrontierCorrupt indicates an internal invariant violation. It is fatal:
// the orchestrator halts the run rather than continue on bad state.
var ErrFrontierCorrupt = errors.New("frontier state corrupt")

// Frontier is the deduplicated, priority-ordered queue of pending crawl jobs.
// Ordering is priority desc then discovery time asc, with a per-domain
// round-robin so no single domain starves the queue: two jobs of the same
// domain are never dequeued back-to-back while another domain has ready work.
type Frontier struct {
	mu          sync.Mutex
	jobs        map[string]*Job   // normalized URL -> job, any state
	ready       map[string][]*Job // domain -> queued jobs, kept sorted
	ring        []string          // domains with ready work
	lastDomain  string
	reattempted map[string]struct{} // failed URLs already granted a second run
	clock       Clock

	wake chan struct{}
}

// NewFrontier constructs an empty Frontier.
func NewFrontier(clock Clock) *Frontier {
	return &Frontier{
		jobs:        make(map[string]*Job),
		ready:       make(map[string][]*Job),
		reattempted: make(map[string]struct{}),
		clock:       clock,
		wake:        make(chan struct{}, 1),
	}
}

// Enqueue admits a discovered URL. Duplicates are rejected, with one
// exception: a URL that already failed terminally may be re-enqueued exactly
// once, at an escalated tier, when rediscovered from a different page. That
// allows a second path to a flaky site without permitting retry storms.
func (f *Frontier) Enqueue(rawURL, discoveredFrom string, priority int) (EnqueueResult, error) {
	norm, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	domain, err := DomainOf(norm)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.jobs[norm]; ok {
		if existing.Status != StatusFailed {
			return EnqueueDuplicate, nil
		}
		if _, done := f.reattempted[norm]; done || discoveredFrom == existing.DiscoveredFrom {
			return EnqueueDuplicate, nil
		}
		f.reattempted[norm] = struct{}{}
		retry := *existing
		retry.DiscoveredFrom = discoveredFrom
		retry.Priority = priority
		retry.Tier = min(existing.Tier+1, MaxTier)
		retry.Attempt = 0
		retry.Status = StatusQueued
		retry.FailureReason = ""
		retry.DiscoveredAt = f.clock.Now()
		f.jobs[norm] = &retry
		f.push(&retry)
		f.signal()
		return EnqueueAccepted, nil
	}

	job := &Job{
		URL:            norm,
		Domain:         domain,
		DiscoveredFrom: discoveredFrom,
		Priority:       priority,
		Tier:           Tier1,
		Status:         StatusQueued,
		DiscoveredAt:   f.clock.Now(),
	}
	f.jobs[norm] = job
	f.push(job)
	f.signal()
	return EnqueueAccepted, nil
}

// DequeueReady returns the next job honoring priority and domain round-robin,
// marking it in-flight. It blocks until work arrives or ctx is done; no job
// is handed out after cancellation.
func (f *Frontier) DequeueReady(ctx context.Context) (Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, fmt.Errorf("frontier dequeue: %w", err)
		}
		f.mu.Lock()
		job, ok := f.pop()
		more := len(f.ring) > 0
		f.mu.Unlock()
		if ok {
			if more {
				// Wake another parked worker; the signal channel only
				// buffers one notification per burst of enqueues.
				f.signal()
			}
			return job, nil
		}
		select {
		case <-ctx.Done():
			return Job{}, fmt.Errorf("frontier dequeue: %w", ctx.Err())
		case <-f.wake:
		}
	}
}

// Complete records the terminal or requeue transition decided for an
// in-flight job. Requeue statuses re-enter the queue with the tier and
// attempt count already set on the job by the escalation policy.
func (f *Frontier) Complete(job Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.jobs[job.URL]
	if !ok {
		return fmt.Errorf("%w: completing unknown job %s", ErrFrontierCorrupt, job.URL)
	}
	if stored.Status != StatusInFlight {
		return fmt.Errorf("%w: job %s completed while %s", ErrFrontierCorrupt, job.URL, stored.Status)
	}
	*stored = job
	switch job.Status {
	case StatusRetryQueued, StatusEscalateQueued:
		stored.Status = StatusQueued
		f.push(stored)
		f.signal()
	case StatusSuccess, StatusFailed, StatusSkippedDup, StatusDomainExhausted:
	default:
		return fmt.Errorf("%w: job %s completed with non-terminal status %s", ErrFrontierCorrupt, job.URL, job.Status)
	}
	return nil
}

// DropDomain terminates every queued job for an exhausted domain.
func (f *Frontier) DropDomain(domain, reason string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	queued := f.ready[domain]
	for _, job := range queued {
		job.Status = StatusDomainExhausted
		job.FailureReason = reason
	}
	delete(f.ready, domain)
	f.removeFromRing(domain)
	return len(queued)
}

// Stats returns per-status job counts for observability endpoints.
func (f *Frontier) Stats() map[JobStatus]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[JobStatus]int)
	for _, job := range f.jobs {
		out[job.Status]++
	}
	return out
}

// push inserts a queued job into its domain queue, keeping priority desc,
// discovery asc order. Caller holds f.mu.
func (f *Frontier) push(job *Job) {
	q := f.ready[job.Domain]
	idx := sort.Search(len(q), func(i int) bool {
		if q[i].Priority != job.Priority {
			return q[i].Priority < job.Priority
		}
		return q[i].DiscoveredAt.After(job.DiscoveredAt)
	})
	q = append(q, nil)
	copy(q[idx+1:], q[idx:])
	q[idx] = job
	if len(f.ready[job.Domain]) == 0 {
		f.ring = append(f.ring, job.Domain)
	}
	f.ready[job.Domain] = q
}

// pop removes and returns the next ready job: the best (priority desc,
// discovery asc) head job across domains, with the previously served domain
// excluded while any other domain has work. Caller holds f.mu.
func (f *Frontier) pop() (Job, bool) {
	if len(f.ring) == 0 {
		return Job{}, false
	}
	best := -1
	for pos, domain := range f.ring {
		// Skip the previous domain unless it is the only one with work.
		if domain == f.lastDomain && len(f.ring) > 1 {
			continue
		}
		if best < 0 || headBefore(f.ready[domain][0], f.ready[f.ring[best]][0]) {
			best = pos
		}
	}
	if best < 0 {
		best = 0
	}
	return f.take(best), true
}

// headBefore orders domain-queue heads: priority desc, discovery asc.
func headBefore(a, b *Job) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.DiscoveredAt.Before(b.DiscoveredAt)
}

func (f *Frontier) take(pos int) Job {
	domain := f.ring[pos]
	q := f.ready[domain]
	job := q[0]
	if len(q) == 1 {
		delete(f.ready, domain)
		f.ring = append(f.ring[:pos], f.ring[pos+1:]...)
	} else {
		f.ready[domain] = q[1:]
	}
	f.lastDomain = domain
	job.Status = StatusInFlight
	return *job
}

func (f *Frontier) removeFromRing(domain string) {
	for i, d := range f.ring {
		if d == domain {
			f.ring = append(f.ring[:i], f.ring[i+1:]...)
			return
		}
	}
}

func (f *Frontier) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}
