// Package extract turns fetched pages into lead candidates through three
// passes: structured data, text patterns, and a semantic fallback. It also
// discovers outbound links for the frontier.
package extract

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/voyago/leadharvest/internal/crawl"
	"github.com/voyago/leadharvest/internal/lead"
)

// Config controls the extraction pipeline.
type Config struct {
	// MinFields is the field count below which the semantic fallback runs.
	MinFields int
	// ExcerptBytes bounds the text excerpt handed to the semantic extractor.
	ExcerptBytes int
	// SemanticConcurrency bounds in-flight semantic calls. Zero disables the
	// semantic pass entirely.
	SemanticConcurrency int64
	// DefaultRegion is the phone-number region assumed when a number has no
	// country prefix.
	DefaultRegion string
	// LinkPriority is the base priority assigned to discovered links.
	LinkPriority int
	// LinkBoost is added to LinkPriority for links whose anchor text or URL
	// carries a travel keyword.
	LinkBoost int
}

// Pipeline implements crawl.Extractor.
type Pipeline struct {
	cfg      Config
	semantic crawl.SemanticExtractor
	budget   *semaphore.Weighted
	clock    crawl.Clock
	logger   *zap.Logger
}

// New constructs the pipeline. semantic may be nil; the fallback pass is then
// skipped unconditionally.
func New(cfg Config, semantic crawl.SemanticExtractor, clock crawl.Clock, logger *zap.Logger) *Pipeline {
	if cfg.MinFields <= 0 {
		cfg.MinFields = 2
	}
	if cfg.ExcerptBytes <= 0 {
		cfg.ExcerptBytes = 8 << 10
	}
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = "US"
	}
	if cfg.LinkPriority == 0 {
		cfg.LinkPriority = 1
	}
	if cfg.LinkBoost == 0 {
		cfg.LinkBoost = 2
	}
	var budget *semaphore.Weighted
	if cfg.SemanticConcurrency > 0 && semantic != nil {
		budget = semaphore.NewWeighted(cfg.SemanticConcurrency)
	}
	return &Pipeline{cfg: cfg, semantic: semantic, budget: budget, clock: clock, logger: logger}
}

// Extract implements crawl.Extractor. Structured candidates come first, then
// pattern candidates, then at most one semantic candidate when the first two
// passes stay below the minimum field count. Candidates with no identifying
// field are dropped before they reach the caller.
func (p *Pipeline) Extract(ctx context.Context, res crawl.Result) ([]lead.Candidate, error) {
	sourceURL := res.FinalURL
	if sourceURL == "" {
		sourceURL = res.Job.URL
	}
	now := p.clock.Now()

	var candidates []lead.Candidate
	structured, err := extractStructured(res.Body, sourceURL, now)
	if err != nil {
		return nil, fmt.Errorf("structured pass: %w", err)
	}
	candidates = append(candidates, structured...)

	text := visibleText(res.Body)
	pattern := p.extractPatterns(text, res.Body, sourceURL, now)
	candidates = append(candidates, pattern...)

	if p.fieldCount(candidates) < p.cfg.MinFields {
		if cand := p.semanticPass(ctx, text, sourceURL, now); cand != nil {
			candidates = append(candidates, *cand)
		}
	}

	sourceText := text
	if len(sourceText) > p.cfg.ExcerptBytes {
		sourceText = sourceText[:p.cfg.ExcerptBytes]
	}
	kept := candidates[:0]
	for _, c := range candidates {
		if !c.Identified() {
			continue
		}
		// Structured and semantic phones arrive raw; normalize when valid and
		// keep the original spelling otherwise.
		if c.Phone != "" {
			if e164 := p.normalizePhone(c.Phone); e164 != "" {
				c.Phone = e164
			}
		}
		c.SourceText = sourceText
		kept = append(kept, c)
	}
	return kept, nil
}

// fieldCount is the number of distinct populated identifying fields across
// all candidates so far; it gates the semantic fallback.
func (p *Pipeline) fieldCount(candidates []lead.Candidate) int {
	var name, email, phone, address, website bool
	for _, c := range candidates {
		name = name || c.BusinessName != ""
		email = email || c.Email != ""
		phone = phone || c.Phone != ""
		address = address || c.Address != ""
		website = website || c.Website != ""
	}
	n := 0
	for _, set := range []bool{name, email, phone, address, website} {
		if set {
			n++
		}
	}
	return n
}

// semanticPass calls the external extractor under the concurrency budget.
// Budget exhaustion and collaborator errors both degrade to pattern-only
// output, never to a job failure.
func (p *Pipeline) semanticPass(ctx context.Context, text, sourceURL string, now time.Time) *lead.Candidate {
	if p.budget == nil || p.semantic == nil {
		return nil
	}
	if !p.budget.TryAcquire(1) {
		p.logger.Debug("semantic budget exhausted", zap.String("url", sourceURL))
		return nil
	}
	defer p.budget.Release(1)

	excerpt := text
	if len(excerpt) > p.cfg.ExcerptBytes {
		excerpt = excerpt[:p.cfg.ExcerptBytes]
	}
	cand, err := p.semantic.Extract(ctx, excerpt, map[string]string{"source_url": sourceURL})
	if err != nil {
		p.logger.Warn("semantic extraction failed", zap.String("url", sourceURL), zap.Error(err))
		return nil
	}
	if cand == nil {
		return nil
	}
	cand.SourceURL = sourceURL
	cand.Method = lead.MethodSemantic
	cand.FetchedAt = now
	return cand
}
