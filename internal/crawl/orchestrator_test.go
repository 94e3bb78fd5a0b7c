package crawl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voyago/leadharvest/internal/clock"
	"github.com/voyago/leadharvest/internal/event"
	"github.com/voyago/leadharvest/internal/lead"
)

type fakeExecutor struct {
	tier Tier

	mu   sync.Mutex
	jobs []Job
	// outcomes is consumed one per fetch; the last entry repeats.
	outcomes []Outcome
	body     []byte
}

func (f *fakeExecutor) Tier() Tier { return f.tier }

func (f *fakeExecutor) Fetch(_ context.Context, job Job) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	outcome := f.outcomes[0]
	if len(f.outcomes) > 1 {
		f.outcomes = f.outcomes[1:]
	}
	res := Result{Job: job, TierUsed: f.tier, Outcome: outcome}
	if outcome == OutcomeOK {
		res.HTTPStatus = 200
		res.Body = f.body
	}
	return res
}

func (f *fakeExecutor) seen() []Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Job(nil), f.jobs...)
}

type fakeExtractor struct {
	mu         sync.Mutex
	candidates []lead.Candidate
	links      []DiscoveredLink
	calls      int
}

func (f *fakeExtractor) Extract(_ context.Context, _ Result) ([]lead.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.candidates, nil
}

func (f *fakeExtractor) Links(Result) []DiscoveredLink { return f.links }

type fakeResolver struct {
	mu       sync.Mutex
	resolved []lead.Candidate
}

func (f *fakeResolver) Resolve(_ context.Context, cand lead.Candidate) (lead.Canonical, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, cand)
	return lead.Canonical{ID: "lead-1", BusinessName: cand.BusinessName}, true, nil
}

type fakeStore struct {
	mu    sync.Mutex
	leads []lead.Canonical
}

func (f *fakeStore) UpsertLead(_ context.Context, l *lead.Canonical) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leads = append(f.leads, *l)
	return nil
}

type denyRobots struct{}

func (denyRobots) Allowed(context.Context, string) bool { return false }

type orchFixture struct {
	frontier  *Frontier
	orch      *Orchestrator
	executors map[Tier]*fakeExecutor
	extractor *fakeExtractor
	resolver  *fakeResolver
	store     *fakeStore
}

func newOrchFixture(t *testing.T, robots RobotsPolicy, outcomes map[Tier][]Outcome) *orchFixture {
	t.Helper()
	clk := clock.NewSystem()
	frontier := NewFrontier(clk)
	polite := NewPoliteness(PolitenessConfig{Delay: time.Millisecond}, clk)
	if robots == nil {
		robots = NewRobotsEnforcer(false, "test-bot", zaptest.NewLogger(t))
	}

	executors := make(map[Tier]*fakeExecutor)
	execs := make(map[Tier]FetchExecutor)
	for tier, seq := range outcomes {
		fe := &fakeExecutor{tier: tier, outcomes: seq, body: []byte("<html>ok</html>")}
		executors[tier] = fe
		execs[tier] = fe
	}

	extractor := &fakeExtractor{candidates: []lead.Candidate{{
		SourceURL:    "https://a.example/",
		BusinessName: "Harbor Hotel",
		Email:        "stay@harborhotel.example",
		Method:       lead.MethodPattern,
	}}}
	resolver := &fakeResolver{}
	store := &fakeStore{}

	orch := NewOrchestrator(
		OrchestratorConfig{Workers: 2, RequestTimeout: time.Second},
		frontier,
		polite,
		robots,
		NewEscalationPolicy(2),
		execs,
		extractor,
		resolver,
		store,
		nil,
		event.Discard{},
		clk,
		zaptest.NewLogger(t),
	)
	return &orchFixture{
		frontier:  frontier,
		orch:      orch,
		executors: executors,
		extractor: extractor,
		resolver:  resolver,
		store:     store,
	}
}

func runUntilSettled(t *testing.T, fx *orchFixture, wantTerminal int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.orch.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		terminal := 0
		for status, n := range fx.frontier.Stats() {
			if status.Terminal() {
				terminal += n
			}
		}
		if terminal >= wantTerminal {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatalf("jobs never settled: stats=%v", fx.frontier.Stats())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	require.NoError(t, <-done)
}

func TestOrchestratorSuccessFlowsThroughPipeline(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, nil, map[Tier][]Outcome{Tier1: {OutcomeOK}})
	fx.orch.Seed([]string{"https://a.example/"}, 1)
	runUntilSettled(t, fx, 1)

	assert.Equal(t, 1, fx.frontier.Stats()[StatusSuccess])
	assert.Equal(t, 1, fx.extractor.calls)
	require.Len(t, fx.resolver.resolved, 1)
	assert.Equal(t, "Harbor Hotel", fx.resolver.resolved[0].BusinessName)
	require.Len(t, fx.store.leads, 1)
	assert.Equal(t, "lead-1", fx.store.leads[0].ID)
}

func TestOrchestratorEscalatesJSRequired(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, nil, map[Tier][]Outcome{
		Tier1: {OutcomeJSRequired},
		Tier2: {OutcomeOK},
	})
	fx.orch.Seed([]string{"https://a.example/app"}, 1)
	runUntilSettled(t, fx, 1)

	assert.Equal(t, 1, fx.frontier.Stats()[StatusSuccess])
	tier2Jobs := fx.executors[Tier2].seen()
	require.Len(t, tier2Jobs, 1)
	assert.Equal(t, Tier2, tier2Jobs[0].Tier)
	assert.Equal(t, 0, tier2Jobs[0].Attempt)
}

func TestOrchestratorRetriesThenEscalatesTimeouts(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, nil, map[Tier][]Outcome{
		Tier1: {OutcomeTimeout, OutcomeTimeout},
		Tier2: {OutcomeOK},
	})
	fx.orch.Seed([]string{"https://slow.example/"}, 1)
	runUntilSettled(t, fx, 1)

	assert.Len(t, fx.executors[Tier1].seen(), 2, "two attempts at tier 1")
	assert.Len(t, fx.executors[Tier2].seen(), 1, "then escalate")
	assert.Equal(t, 1, fx.frontier.Stats()[StatusSuccess])
}

func TestOrchestratorFailsAtMaxTier(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, nil, map[Tier][]Outcome{
		Tier1: {OutcomeParseError},
		Tier2: {OutcomeParseError},
		Tier3: {OutcomeParseError},
	})
	fx.orch.Seed([]string{"https://broken.example/"}, 1)
	runUntilSettled(t, fx, 1)

	assert.Equal(t, 1, fx.frontier.Stats()[StatusFailed])
	assert.Empty(t, fx.resolver.resolved)
}

func TestOrchestratorRobotsBlockIsTerminal(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, denyRobots{}, map[Tier][]Outcome{Tier1: {OutcomeOK}})
	fx.orch.Seed([]string{"https://private.example/"}, 1)
	runUntilSettled(t, fx, 1)

	assert.Equal(t, 1, fx.frontier.Stats()[StatusFailed])
	assert.Empty(t, fx.executors[Tier1].seen(), "blocked fetch never reaches the executor")
	assert.Empty(t, fx.resolver.resolved)
}

func TestOrchestratorFollowsDiscoveredLinks(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, nil, map[Tier][]Outcome{Tier1: {OutcomeOK}})
	fx.extractor.links = []DiscoveredLink{
		{URL: "https://a.example/contact", Priority: 3},
		{URL: "https://a.example/", Priority: 1}, // duplicate of the seed
	}
	fx.orch.cfg.FollowLinks = true
	fx.orch.Seed([]string{"https://a.example/"}, 1)
	runUntilSettled(t, fx, 2)

	assert.Equal(t, 2, fx.frontier.Stats()[StatusSuccess])
}
