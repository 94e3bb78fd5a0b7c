package crawl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voyago/leadharvest/internal/event"
	"github.com/voyago/leadharvest/internal/lead"
)

// DiscoveredLink is a link found on a fetched page, with the priority it
// should be enqueued at.
type DiscoveredLink struct {
	URL      string
	Priority int
}

// Extractor turns a successful fetch into lead candidates and discovered
// links. Link discovery is independent of lead quality.
type Extractor interface {
	Extract(ctx context.Context, res Result) ([]lead.Candidate, error)
	Links(res Result) []DiscoveredLink
}

// Resolver merges a candidate into the canonical lead set and returns a
// rescored snapshot. The second return is true when a new lead was created.
type Resolver interface {
	Resolve(ctx context.Context, cand lead.Candidate) (lead.Canonical, bool, error)
}

// BlobStore persists raw page snapshots and returns their URI.
type BlobStore interface {
	Put(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// OrchestratorConfig controls the worker pool.
type OrchestratorConfig struct {
	Workers        int
	RequestTimeout time.Duration
	FollowLinks    bool
	SnapshotPrefix string
}

// Orchestrator ties frontier, politeness, tier escalation, extraction, dedup,
// and scoring into one control loop executed by a bounded worker pool.
type Orchestrator struct {
	cfg       OrchestratorConfig
	frontier  *Frontier
	polite    *Politeness
	robots    RobotsPolicy
	policy    *EscalationPolicy
	executors map[Tier]FetchExecutor
	extractor Extractor
	resolver  Resolver
	store     LeadStore
	blobs     BlobStore
	events    event.Emitter
	clock     Clock
	logger    *zap.Logger
}

// NewOrchestrator wires the crawl loop. executors must cover every tier that
// escalation can reach; blobs and store may be nil in degraded setups.
func NewOrchestrator(
	cfg OrchestratorConfig,
	frontier *Frontier,
	polite *Politeness,
	robots RobotsPolicy,
	policy *EscalationPolicy,
	executors map[Tier]FetchExecutor,
	extractor Extractor,
	resolver Resolver,
	store LeadStore,
	blobs BlobStore,
	events event.Emitter,
	clock Clock,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Orchestrator{
		cfg:       cfg,
		frontier:  frontier,
		polite:    polite,
		robots:    robots,
		policy:    policy,
		executors: executors,
		extractor: extractor,
		resolver:  resolver,
		store:     store,
		blobs:     blobs,
		events:    events,
		clock:     clock,
		logger:    logger,
	}
}

// Seed bulk-enqueues seed URLs at the given priority.
func (o *Orchestrator) Seed(urls []string, priority int) int {
	accepted := 0
	for _, u := range urls {
		res, err := o.frontier.Enqueue(u, "", priority)
		if err != nil {
			o.logger.Warn("seed rejected", zap.String("url", u), zap.Error(err))
			continue
		}
		if res == EnqueueAccepted {
			accepted++
		}
	}
	return accepted
}

// Run blocks, executing the crawl loop until ctx is cancelled or a fatal
// frontier invariant violation occurs. Cancellation is cooperative: no new
// dequeues happen after ctx is done, but in-flight results still flow through
// extraction and scoring.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < o.cfg.Workers; i++ {
		worker := o.logger.Named("worker").With(zap.Int("index", i))
		g.Go(func() error {
			return o.runWorker(gctx, worker)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (o *Orchestrator) runWorker(ctx context.Context, logger *zap.Logger) error {
	for {
		job, err := o.frontier.DequeueReady(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := o.process(ctx, job, logger); err != nil {
			// Only invariant violations propagate; everything else is
			// isolated to the failing job.
			return err
		}
	}
}

func (o *Orchestrator) process(ctx context.Context, job Job, logger *zap.Logger) error {
	if o.polite.Exhausted(job.Domain) {
		job.Status = StatusDomainExhausted
		job.FailureReason = "domain page budget exhausted"
		dropped := o.frontier.DropDomain(job.Domain, job.FailureReason)
		logger.Info("domain exhausted",
			zap.String("domain", job.Domain), zap.Int("dropped_jobs", dropped))
		return o.finishJob(job)
	}

	pause(ctx, o.polite.Admit(job.Domain))
	if ctx.Err() != nil {
		// Cancelled before the fetch started: put the job back untouched.
		job.Status = StatusRetryQueued
		return o.frontier.Complete(job)
	}

	if !o.robots.Allowed(ctx, job.URL) {
		robotsBlocked.Inc()
		logger.Warn("fetch blocked by robots.txt",
			zap.String("url", job.URL), zap.String("domain", job.Domain))
		res := Result{Job: job, TierUsed: job.Tier, Outcome: OutcomeBlockedRobots}
		return o.settle(ctx, job, res, logger)
	}

	exec, ok := o.executors[job.Tier]
	if !ok {
		return fmt.Errorf("%w: no executor for tier %d", ErrFrontierCorrupt, job.Tier)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	res := exec.Fetch(fetchCtx, job)
	cancel()

	return o.settle(ctx, job, res, logger)
}

// settle records politeness state, applies the escalation table, routes a
// successful result through the pipeline, and completes the job.
func (o *Orchestrator) settle(ctx context.Context, job Job, res Result, logger *zap.Logger) error {
	o.polite.Record(job.Domain, res.Outcome)
	fetchAttempts.WithLabelValues(strconv.Itoa(int(job.Tier)), string(res.Outcome)).Inc()
	o.events.Emit(event.Event{
		TS:      o.clock.Now(),
		Stage:   event.StageFetchDone,
		URL:     job.URL,
		Domain:  job.Domain,
		Tier:    int(job.Tier),
		Outcome: string(res.Outcome),
		Bytes:   int64(len(res.Body)),
		Dur:     res.Elapsed,
	})

	decision := o.policy.Decide(job, res.Outcome)
	updated := o.policy.Apply(job, res.Outcome, decision)
	if decision == DecisionEscalate {
		escalations.Inc()
		logger.Debug("escalating job",
			zap.String("url", job.URL), zap.Int("to_tier", int(updated.Tier)))
	}

	// Even when ctx is cancelled mid-flight, a completed fetch is still
	// routed through extraction and scoring so no partial state is lost.
	if decision == DecisionSuccess {
		o.handleSuccess(ctx, updated, res, logger)
	}

	return o.finishJob(updated)
}

func (o *Orchestrator) finishJob(job Job) error {
	if err := o.frontier.Complete(job); err != nil {
		return err
	}
	if job.Status.Terminal() {
		jobsTerminal.WithLabelValues(string(job.Status)).Inc()
	}
	o.events.Emit(event.Event{
		TS:     o.clock.Now(),
		Stage:  event.StageJobTransition,
		URL:    job.URL,
		Domain: job.Domain,
		Tier:   int(job.Tier),
		Status: string(job.Status),
		Note:   job.FailureReason,
	})
	return nil
}

func (o *Orchestrator) handleSuccess(ctx context.Context, job Job, res Result, logger *zap.Logger) {
	o.snapshot(ctx, job, res, logger)

	candidates, err := o.extractor.Extract(ctx, res)
	if err != nil {
		// Extraction errors never crash the loop; the page simply yields
		// whatever candidates were produced before the failure.
		logger.Warn("extraction failed", zap.String("url", job.URL), zap.Error(err))
	}
	for _, cand := range candidates {
		if !cand.Identified() {
			continue
		}
		canonical, created, err := o.resolver.Resolve(ctx, cand)
		if err != nil {
			logger.Warn("lead resolution failed",
				zap.String("url", cand.SourceURL), zap.Error(err))
			continue
		}
		op := "merged"
		if created {
			op = "created"
		}
		leadsUpserted.WithLabelValues(op).Inc()
		if o.store != nil {
			if err := o.store.UpsertLead(ctx, &canonical); err != nil {
				logger.Warn("lead upsert failed",
					zap.String("lead_id", canonical.ID), zap.Error(err))
			}
		}
		o.events.Emit(event.Event{
			TS:     o.clock.Now(),
			Stage:  event.StageLeadUpserted,
			URL:    cand.SourceURL,
			Domain: job.Domain,
			LeadID: canonical.ID,
			Op:     op,
			Score:  canonical.Scores.Final,
		})
	}

	if !o.cfg.FollowLinks {
		return
	}
	for _, link := range o.extractor.Links(res) {
		result, err := o.frontier.Enqueue(link.URL, job.URL, link.Priority)
		if err != nil {
			continue
		}
		linksDiscovered.WithLabelValues(string(result)).Inc()
	}
}

func (o *Orchestrator) snapshot(ctx context.Context, job Job, res Result, logger *zap.Logger) {
	if o.blobs == nil || len(res.Body) == 0 {
		return
	}
	path := fmt.Sprintf("%s/%s/%d.html", o.cfg.SnapshotPrefix, job.Domain, o.clock.Now().UnixNano())
	if _, err := o.blobs.Put(ctx, path, res.ContentType, res.Body); err != nil {
		logger.Warn("snapshot write failed", zap.String("url", job.URL), zap.Error(err))
	}
}
