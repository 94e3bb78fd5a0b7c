package seed

import "context"

// StaticProvider returns a fixed URL list regardless of query. Used for
// configured seed lists and in tests.
type StaticProvider struct {
	urls []string
}

// NewStaticProvider copies the URL list.
func NewStaticProvider(urls []string) *StaticProvider {
	return &StaticProvider{urls: append([]string(nil), urls...)}
}

// GetSeeds implements crawl.SeedProvider.
func (p *StaticProvider) GetSeeds(_ context.Context, _ string, maxResults int) ([]string, error) {
	if maxResults <= 0 || maxResults >= len(p.urls) {
		return append([]string(nil), p.urls...), nil
	}
	return append([]string(nil), p.urls[:maxResults]...), nil
}
