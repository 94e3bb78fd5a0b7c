package crawl

import (
	"context"
	"math"
	"sync"
	"time"
)

// DomainState tracks politeness bookkeeping for one domain. Owned exclusively
// by the Politeness controller; never deleted during a run.
type DomainState struct {
	Domain              string
	NextAllowed         time.Time
	ConsecutiveFailures int
	PagesFetched        int
	Exhausted           bool
}

// PolitenessConfig controls per-domain rate limiting.
type PolitenessConfig struct {
	Delay             time.Duration // minimum gap between fetches to one domain
	MaxBackoff        time.Duration // cap for the failure backoff
	MaxPagesPerDomain int           // 0 disables the budget
}

// Politeness is the per-domain rate limiter. Admission is non-blocking: the
// caller is told how long to wait and performs the wait itself, so one slow
// domain never suspends the whole pool. State is guarded per domain, not by
// one global lock.
type Politeness struct {
	cfg   PolitenessConfig
	clock Clock

	mu      sync.Mutex // guards the map only
	domains map[string]*domainEntry
}

type domainEntry struct {
	mu    sync.Mutex
	state DomainState
}

// NewPoliteness constructs the controller.
func NewPoliteness(cfg PolitenessConfig, clock Clock) *Politeness {
	if cfg.Delay <= 0 {
		cfg.Delay = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	return &Politeness{
		cfg:     cfg,
		clock:   clock,
		domains: make(map[string]*domainEntry),
	}
}

func (p *Politeness) entry(domain string) *domainEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.domains[domain]
	if !ok {
		e = &domainEntry{state: DomainState{Domain: domain}}
		p.domains[domain] = e
	}
	return e
}

// Admit returns how long the caller must wait before fetching from domain,
// and reserves the slot so concurrent workers cannot bypass the delay. Zero
// means the fetch may start immediately.
func (p *Politeness) Admit(domain string) time.Duration {
	e := p.entry(domain)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := p.clock.Now()
	wait := e.state.NextAllowed.Sub(now)
	if wait < 0 {
		wait = 0
	}
	// Reserve: the next admission queues behind this one even before the
	// fetch outcome is recorded, serializing same-domain fetches.
	start := now.Add(wait)
	e.state.NextAllowed = start.Add(p.delayFor(e.state.ConsecutiveFailures))
	return wait
}

// Record updates domain state after a fetch attempt.
func (p *Politeness) Record(domain string, outcome Outcome) {
	e := p.entry(domain)
	e.mu.Lock()
	defer e.mu.Unlock()

	switch outcome {
	case OutcomeOK, OutcomeJSRequired, OutcomeParseError:
		// The server answered; only transport-level failures back off.
		e.state.ConsecutiveFailures = 0
	case OutcomeTimeout, OutcomeHTTPError:
		e.state.ConsecutiveFailures++
	}
	if outcome == OutcomeOK {
		e.state.PagesFetched++
		if p.cfg.MaxPagesPerDomain > 0 && e.state.PagesFetched >= p.cfg.MaxPagesPerDomain {
			e.state.Exhausted = true
		}
	}
	next := p.clock.Now().Add(p.delayFor(e.state.ConsecutiveFailures))
	if next.After(e.state.NextAllowed) {
		e.state.NextAllowed = next
	}
}

// Exhausted reports whether the domain hit its page budget.
func (p *Politeness) Exhausted(domain string) bool {
	e := p.entry(domain)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Exhausted
}

// State returns a copy of the domain's politeness state.
func (p *Politeness) State(domain string) DomainState {
	e := p.entry(domain)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// delayFor computes max(delay, delay*2^failures) capped at MaxBackoff.
func (p *Politeness) delayFor(failures int) time.Duration {
	if failures <= 0 {
		return p.cfg.Delay
	}
	backoff := float64(p.cfg.Delay) * math.Pow(2, float64(failures))
	if backoff > float64(p.cfg.MaxBackoff) {
		return p.cfg.MaxBackoff
	}
	if backoff < float64(p.cfg.Delay) {
		return p.cfg.Delay
	}
	return time.Duration(backoff)
}

// pause waits for delay or until ctx is done, whichever comes first. It
// suspends the calling worker only; other workers proceed.
func pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
