// Package dedup resolves lead candidates against the canonical lead set:
// exact identifier matching first, fuzzy name matching as a fallback, and
// trust-ordered merging on match.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voyago/leadharvest/internal/crawl"
	"github.com/voyago/leadharvest/internal/lead"
	"github.com/voyago/leadharvest/internal/score"
)

// Config controls the resolver.
type Config struct {
	// SimilarityThreshold is the minimum fuzzy-name similarity for a match.
	SimilarityThreshold float64
	// MaxSourceTextBytes bounds the text accumulated per lead for relevance
	// scoring.
	MaxSourceTextBytes int
}

// entry pairs a canonical lead with its own mutex so merges on the same lead
// never interleave while distinct leads merge concurrently.
type entry struct {
	mu   sync.Mutex
	lead *lead.Canonical
	text strings.Builder
}

// Resolver implements crawl.Resolver. Matching order: exact email, exact
// E.164 phone, fuzzy normalized name with the same registrable domain, exact
// website domain. Every candidate resolves to exactly one lead.
type Resolver struct {
	cfg    Config
	scorer *score.Scorer
	clock  crawl.Clock
	logger *zap.Logger

	mu       sync.Mutex
	leads    map[string]*entry
	byEmail  map[string]string
	byPhone  map[string]string
	byDomain map[string]string
	// names maps lead ID to the normalized business name for fuzzy scans.
	names map[string]string
	// domains maps lead ID to the registrable domain the lead was first
	// observed on; fuzzy name matches require it to agree.
	domains map[string]string
}

// New constructs the resolver.
func New(cfg Config, scorer *score.Scorer, clock crawl.Clock, logger *zap.Logger) *Resolver {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.85
	}
	if cfg.MaxSourceTextBytes <= 0 {
		cfg.MaxSourceTextBytes = 64 << 10
	}
	return &Resolver{
		cfg:      cfg,
		scorer:   scorer,
		clock:    clock,
		logger:   logger,
		leads:    make(map[string]*entry),
		byEmail:  make(map[string]string),
		byPhone:  make(map[string]string),
		byDomain: make(map[string]string),
		names:    make(map[string]string),
		domains:  make(map[string]string),
	}
}

// Resolve merges the candidate into an existing lead or creates a new one,
// rescores, and returns a snapshot. The bool reports creation.
func (r *Resolver) Resolve(_ context.Context, cand lead.Candidate) (lead.Canonical, bool, error) {
	if !cand.Identified() {
		return lead.Canonical{}, false, fmt.Errorf("candidate from %s has no identifying field", cand.SourceURL)
	}

	now := r.clock.Now()
	ent, created := r.match(cand, now)

	ent.mu.Lock()
	r.merge(ent, cand, now)
	snapshot := r.rescore(ent, now)
	ent.mu.Unlock()

	return snapshot, created, nil
}

// match finds or creates the lead entry under the index lock. Index updates
// for the candidate's identifiers happen here so two concurrent candidates
// with the same email land on the same entry.
func (r *Resolver) match(cand lead.Candidate, now time.Time) (*entry, bool) {
	email := strings.ToLower(strings.TrimSpace(cand.Email))
	phone := strings.TrimSpace(cand.Phone)
	website := strings.TrimSpace(cand.Website)
	normName := normalizeName(cand.BusinessName)
	candDomain := r.candidateDomain(cand)

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.lookup(email, phone, normName, candDomain, website)
	created := false
	if !ok {
		id = uuid.NewString()
		r.leads[id] = &entry{lead: &lead.Canonical{
			ID:           id,
			FieldMethods: make(map[string]lead.ExtractionMethod),
		}}
		created = true
		r.logger.Debug("canonical lead created",
			zap.String("lead_id", id), zap.String("source", cand.SourceURL))
	}

	if email != "" {
		r.byEmail[email] = id
	}
	if phone != "" {
		r.byPhone[phone] = id
	}
	if d := websiteDomain(website); d != "" {
		r.byDomain[d] = id
	}
	if normName != "" {
		r.names[id] = normName
	}
	if _, have := r.domains[id]; !have && candDomain != "" {
		r.domains[id] = candDomain
	}
	return r.leads[id], created
}

// lookup applies the match order; first hit wins.
func (r *Resolver) lookup(email, phone, normName, candDomain, website string) (string, bool) {
	if email != "" {
		if id, ok := r.byEmail[email]; ok {
			return id, true
		}
	}
	if phone != "" {
		if id, ok := r.byPhone[phone]; ok {
			return id, true
		}
	}
	if normName != "" && candDomain != "" {
		for id, name := range r.names {
			if r.domains[id] != candDomain {
				continue
			}
			if similarity(normName, name) >= r.cfg.SimilarityThreshold {
				return id, true
			}
		}
	}
	if d := websiteDomain(website); d != "" {
		if id, ok := r.byDomain[d]; ok {
			return id, true
		}
	}
	return "", false
}

func (r *Resolver) candidateDomain(cand lead.Candidate) string {
	if d := websiteDomain(cand.Website); d != "" {
		return d
	}
	return websiteDomain(cand.SourceURL)
}

func websiteDomain(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	normalized, err := crawl.NormalizeURL(rawURL)
	if err != nil {
		return ""
	}
	host, err := crawl.DomainOf(normalized)
	if err != nil {
		return ""
	}
	return crawl.RegistrableDomain(host)
}

// merge folds the candidate into the lead. Higher-trust methods win
// conflicting scalars; a lower-trust value never overwrites a higher-trust
// one. Caller holds the entry lock.
func (r *Resolver) merge(ent *entry, cand lead.Candidate, now time.Time) {
	l := ent.lead
	r.setField(l, "business_name", &l.BusinessName, cand.BusinessName, cand.Method)
	r.setField(l, "email", &l.Email, strings.ToLower(strings.TrimSpace(cand.Email)), cand.Method)
	r.setField(l, "phone", &l.Phone, cand.Phone, cand.Method)
	r.setField(l, "address", &l.Address, cand.Address, cand.Method)
	r.setField(l, "website", &l.Website, cand.Website, cand.Method)
	if cand.LeadType != "" && cand.LeadType != "unknown" {
		r.setField(l, "lead_type", &l.LeadType, cand.LeadType, cand.Method)
	}

	if !l.HasSource(cand.SourceURL) {
		l.ContributingSources = append(l.ContributingSources, cand.SourceURL)
	}
	l.Methods = append(l.Methods, cand.Method)
	if cand.FetchedAt.After(l.LastFetchedAt) {
		l.LastFetchedAt = cand.FetchedAt
	}
	l.UpdatedAt = now

	if cand.SourceText != "" && ent.text.Len() < r.cfg.MaxSourceTextBytes {
		remaining := r.cfg.MaxSourceTextBytes - ent.text.Len()
		txt := cand.SourceText
		if len(txt) > remaining {
			txt = txt[:remaining]
		}
		ent.text.WriteString(txt)
		ent.text.WriteByte(' ')
	}
}

func (r *Resolver) setField(l *lead.Canonical, name string, dst *string, val string, method lead.ExtractionMethod) {
	val = strings.TrimSpace(val)
	if val == "" {
		return
	}
	if *dst != "" && l.FieldMethods[name].Trust() >= method.Trust() {
		return
	}
	*dst = val
	l.FieldMethods[name] = method
}

// rescore recomputes the scores and returns a detached copy safe to hand to
// callers. Caller holds the entry lock.
func (r *Resolver) rescore(ent *entry, now time.Time) lead.Canonical {
	ent.lead.Scores = r.scorer.Score(ent.lead, ent.text.String(), now)

	cp := *ent.lead
	cp.FieldMethods = make(map[string]lead.ExtractionMethod, len(ent.lead.FieldMethods))
	for k, v := range ent.lead.FieldMethods {
		cp.FieldMethods[k] = v
	}
	cp.ContributingSources = append([]string(nil), ent.lead.ContributingSources...)
	cp.Methods = append([]lead.ExtractionMethod(nil), ent.lead.Methods...)
	return cp
}

// Snapshot returns detached copies of every canonical lead, for export.
func (r *Resolver) Snapshot() []lead.Canonical {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.leads))
	for _, ent := range r.leads {
		entries = append(entries, ent)
	}
	r.mu.Unlock()

	now := r.clock.Now()
	out := make([]lead.Canonical, 0, len(entries))
	for _, ent := range entries {
		ent.mu.Lock()
		out = append(out, r.rescore(ent, now))
		ent.mu.Unlock()
	}
	return out
}
