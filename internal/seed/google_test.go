package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newGoogleProvider(t *testing.T, baseURL string) *GoogleProvider {
	t.Helper()
	p, err := NewGoogleProvider(GoogleConfig{
		APIKey:         "key",
		SearchEngineID: "cx",
		PageDelay:      time.Millisecond,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	p.baseURL = baseURL
	return p
}

func searchItems(links ...string) searchResponse {
	var out searchResponse
	for _, l := range links {
		out.Items = append(out.Items, struct {
			Link string `json:"link"`
		}{Link: l})
	}
	return out
}

func TestNewGoogleProviderRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewGoogleProvider(GoogleConfig{APIKey: "key"}, zaptest.NewLogger(t))
	require.Error(t, err)
	_, err = NewGoogleProvider(GoogleConfig{SearchEngineID: "cx"}, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestGetSeedsSinglePage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "key", q.Get("key"))
		assert.Equal(t, "cx", q.Get("cx"))
		assert.Equal(t, "hotels in lisbon", q.Get("q"))
		assert.Equal(t, "5", q.Get("num"))
		assert.Equal(t, "1", q.Get("start"))
		_ = json.NewEncoder(w).Encode(searchItems(
			"https://a.example/", "https://b.example/", "https://c.example/",
		))
	}))
	defer srv.Close()

	p := newGoogleProvider(t, srv.URL)
	seeds, err := p.GetSeeds(context.Background(), "hotels in lisbon", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/", "https://b.example/", "https://c.example/"}, seeds)
}

func TestGetSeedsPaginates(t *testing.T) {
	t.Parallel()

	var starts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		starts = append(starts, q.Get("start"))
		num, err := strconv.Atoi(q.Get("num"))
		require.NoError(t, err)
		start, err := strconv.Atoi(q.Get("start"))
		require.NoError(t, err)

		links := make([]string, 0, num)
		for i := 0; i < num; i++ {
			links = append(links, fmt.Sprintf("https://site%d.example/", start+i))
		}
		_ = json.NewEncoder(w).Encode(searchItems(links...))
	}))
	defer srv.Close()

	p := newGoogleProvider(t, srv.URL)
	seeds, err := p.GetSeeds(context.Background(), "tours", 25)
	require.NoError(t, err)

	assert.Len(t, seeds, 25, "10 + 10 + 5 across three pages")
	assert.Equal(t, []string{"1", "11", "21"}, starts)
	assert.Equal(t, "https://site1.example/", seeds[0])
	assert.Equal(t, "https://site25.example/", seeds[24])
}

func TestGetSeedsStopsOnShortPage(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(searchItems("https://only.example/"))
	}))
	defer srv.Close()

	p := newGoogleProvider(t, srv.URL)
	seeds, err := p.GetSeeds(context.Background(), "tours", 30)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://only.example/"}, seeds)
	assert.Equal(t, 1, calls, "a short page means no further results exist")
}

func TestGetSeedsAPIErrorReturnsPartial(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			links := make([]string, 10)
			for i := range links {
				links[i] = fmt.Sprintf("https://site%d.example/", i)
			}
			_ = json.NewEncoder(w).Encode(searchItems(links...))
			return
		}
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := newGoogleProvider(t, srv.URL)
	seeds, err := p.GetSeeds(context.Background(), "tours", 20)
	require.Error(t, err)
	assert.Len(t, seeds, 10, "first page survives the second page's failure")
}

func TestStaticProvider(t *testing.T) {
	t.Parallel()

	p := NewStaticProvider([]string{"https://a.example/", "https://b.example/", "https://c.example/"})

	all, err := p.GetSeeds(context.Background(), "ignored", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	two, err := p.GetSeeds(context.Background(), "ignored", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/", "https://b.example/"}, two)
}
