package dedup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voyago/leadharvest/internal/clock"
	"github.com/voyago/leadharvest/internal/lead"
	"github.com/voyago/leadharvest/internal/score"
)

var testTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	scorer, err := score.New(score.Config{})
	require.NoError(t, err)
	return New(Config{}, scorer, clock.Fixed{T: testTime}, zaptest.NewLogger(t))
}

func TestResolveCreatesNewLead(t *testing.T) {
	t.Parallel()

	r := newResolver(t)
	got, created, err := r.Resolve(context.Background(), lead.Candidate{
		SourceURL:    "https://harbor.example/contact",
		BusinessName: "Harbor Hotel",
		Email:        "stay@harbor.example",
		Method:       lead.MethodPattern,
		FetchedAt:    testTime,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "Harbor Hotel", got.BusinessName)
	assert.Equal(t, []string{"https://harbor.example/contact"}, got.ContributingSources)
	assert.Positive(t, got.Scores.Final)
}

func TestResolveMergesOnEmail(t *testing.T) {
	t.Parallel()

	r := newResolver(t)
	first, created, err := r.Resolve(context.Background(), lead.Candidate{
		SourceURL:    "https://harbor.example/contact",
		BusinessName: "Harbor Hotel",
		Email:        "stay@harbor.example",
		Method:       lead.MethodPattern,
	})
	require.NoError(t, err)
	require.True(t, created)

	// Same email on a different page, different name spelling: one lead.
	second, created, err := r.Resolve(context.Background(), lead.Candidate{
		SourceURL:    "https://directory.example/listing",
		BusinessName: "The Harbor Hotel & Spa",
		Email:        "STAY@harbor.example",
		Phone:        "+12125550187",
		Method:       lead.MethodPattern,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "+12125550187", second.Phone)
	assert.ElementsMatch(t,
		[]string{"https://harbor.example/contact", "https://directory.example/listing"},
		second.ContributingSources)
}

func TestResolveMergesOnPhone(t *testing.T) {
	t.Parallel()

	r := newResolver(t)
	first, _, err := r.Resolve(context.Background(), lead.Candidate{
		SourceURL: "https://a.example/", BusinessName: "Blue Lagoon Tours",
		Phone: "+3547778888", Method: lead.MethodPattern,
	})
	require.NoError(t, err)

	second, created, err := r.Resolve(context.Background(), lead.Candidate{
		SourceURL: "https://b.example/", Phone: "+3547778888",
		Email: "book@bluelagoon.example", Method: lead.MethodStructured,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestResolveFuzzyNameRequiresSameDomain(t *testing.T) {
	t.Parallel()

	r := newResolver(t)
	first, _, err := r.Resolve(context.Background(), lead.Candidate{
		SourceURL:    "https://www.cafe-lumiere.example/about",
		BusinessName: "Café Lumière",
		Website:      "https://cafe-lumiere.example",
		Method:       lead.MethodStructured,
	})
	require.NoError(t, err)

	// Same normalized name (diacritics stripped), same registrable domain.
	second, created, err := r.Resolve(context.Background(), lead.Candidate{
		SourceURL:    "https://shop.cafe-lumiere.example/menu",
		BusinessName: "cafe  lumiere",
		Method:       lead.MethodPattern,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// Similar name on an unrelated domain: a distinct lead.
	third, created, err := r.Resolve(context.Background(), lead.Candidate{
		SourceURL:    "https://other.example/",
		BusinessName: "Cafe Lumiere",
		Method:       lead.MethodPattern,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestResolveMatchesWebsiteDomain(t *testing.T) {
	t.Parallel()

	r := newResolver(t)
	first, _, err := r.Resolve(context.Background(), lead.Candidate{
		SourceURL: "https://a.example/", BusinessName: "Harbor Hotel",
		Website: "https://harborhotel.example", Method: lead.MethodPattern,
	})
	require.NoError(t, err)

	second, created, err := r.Resolve(context.Background(), lead.Candidate{
		SourceURL: "https://b.example/", BusinessName: "Totally Different Name",
		Website: "https://www.harborhotel.example/rooms", Method: lead.MethodPattern,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestResolveHigherTrustWinsConflicts(t *testing.T) {
	t.Parallel()

	r := newResolver(t)
	_, _, err := r.Resolve(context.Background(), lead.Candidate{
		SourceURL: "https://a.example/", Email: "info@harbor.example",
		BusinessName: "Harbor Hotel", Method: lead.MethodStructured,
	})
	require.NoError(t, err)

	// Lower-trust candidate must not overwrite the structured name.
	got, _, err := r.Resolve(context.Background(), lead.Candidate{
		SourceURL: "https://b.example/", Email: "info@harbor.example",
		BusinessName: "harbor hotel contact page", Method: lead.MethodSemantic,
	})
	require.NoError(t, err)
	assert.Equal(t, "Harbor Hotel", got.BusinessName)

	// A higher-trust candidate does replace a lower-trust value.
	_, _, err = r.Resolve(context.Background(), lead.Candidate{
		SourceURL: "https://c.example/", Email: "other@harbor.example",
		Phone: "+12125550187", BusinessName: "Pier House", Method: lead.MethodSemantic,
	})
	require.NoError(t, err)
	got, _, err = r.Resolve(context.Background(), lead.Candidate{
		SourceURL: "https://d.example/", Phone: "+12125550187",
		BusinessName: "Pier House Hotel", Method: lead.MethodStructured,
	})
	require.NoError(t, err)
	assert.Equal(t, "Pier House Hotel", got.BusinessName)
}

func TestResolveRejectsUnidentifiedCandidate(t *testing.T) {
	t.Parallel()

	r := newResolver(t)
	_, _, err := r.Resolve(context.Background(), lead.Candidate{
		SourceURL: "https://a.example/",
		Address:   "1 Somewhere Street",
		Method:    lead.MethodPattern,
	})
	require.Error(t, err)
}

// Every candidate lands in exactly one canonical lead, even under
// concurrent resolution of the same identity.
func TestResolvePartitionUnderConcurrency(t *testing.T) {
	t.Parallel()

	r := newResolver(t)
	const workers = 16

	var wg sync.WaitGroup
	ids := make([]string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, _, err := r.Resolve(context.Background(), lead.Candidate{
				SourceURL: "https://a.example/page",
				Email:     "same@identity.example",
				Method:    lead.MethodPattern,
			})
			assert.NoError(t, err)
			ids[i] = got.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Equal(t, ids[0], ids[i], "same identity resolved to different leads")
	}
	assert.Len(t, r.Snapshot(), 1)
}

func TestSnapshotReturnsDetachedCopies(t *testing.T) {
	t.Parallel()

	r := newResolver(t)
	_, _, err := r.Resolve(context.Background(), lead.Candidate{
		SourceURL: "https://a.example/", Email: "a@b.example",
		BusinessName: "Harbor Hotel", Method: lead.MethodPattern,
	})
	require.NoError(t, err)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	snap[0].BusinessName = "mutated"

	again := r.Snapshot()
	assert.Equal(t, "Harbor Hotel", again[0].BusinessName)
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cafe lumiere", normalizeName("Café  Lumière"))
	assert.Equal(t, "hotel del mar", normalizeName("  HOTEL   DEL   MAR "))
	assert.Equal(t, "", normalizeName(""))
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, similarity("harbor hotel", "harbor hotel"), 1e-9)
	assert.Greater(t, similarity("harbor hotel", "harbor hotels"), 0.85)
	assert.Less(t, similarity("harbor hotel", "mountain lodge"), 0.5)
	assert.Zero(t, similarity("", "harbor"))
}
