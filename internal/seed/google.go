// Package seed supplies starting URLs for crawl runs: a Google Custom
// Search client for query-driven discovery and a static provider for fixed
// seed lists.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const googleSearchURL = "https://www.googleapis.com/customsearch/v1"

// GoogleConfig holds Custom Search JSON API credentials.
type GoogleConfig struct {
	APIKey         string
	SearchEngineID string
	Timeout        time.Duration
	// PageDelay spaces out paginated requests.
	PageDelay time.Duration
}

// GoogleProvider implements crawl.SeedProvider against the Custom Search
// JSON API. Results are paginated ten at a time, the API's page maximum.
type GoogleProvider struct {
	cfg     GoogleConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewGoogleProvider validates credentials and constructs the provider.
func NewGoogleProvider(cfg GoogleConfig, logger *zap.Logger) (*GoogleProvider, error) {
	if cfg.APIKey == "" || cfg.SearchEngineID == "" {
		return nil, fmt.Errorf("google api key and search engine id are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = time.Second
	}
	return &GoogleProvider{
		cfg:     cfg,
		baseURL: googleSearchURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}, nil
}

type searchResponse struct {
	Items []struct {
		Link string `json:"link"`
	} `json:"items"`
}

// GetSeeds implements crawl.SeedProvider.
func (p *GoogleProvider) GetSeeds(ctx context.Context, query string, maxResults int) ([]string, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	var seeds []string
	start := 1
	for len(seeds) < maxResults {
		num := maxResults - len(seeds)
		if num > 10 {
			num = 10
		}
		items, err := p.page(ctx, query, num, start)
		if err != nil {
			return seeds, err
		}
		seeds = append(seeds, items...)
		if len(items) < num {
			break
		}
		start += num
		if len(seeds) < maxResults {
			select {
			case <-time.After(p.cfg.PageDelay):
			case <-ctx.Done():
				return seeds, ctx.Err()
			}
		}
	}
	p.logger.Info("seed search complete",
		zap.String("query", query), zap.Int("seeds", len(seeds)))
	return seeds, nil
}

func (p *GoogleProvider) page(ctx context.Context, query string, num, start int) ([]string, error) {
	params := url.Values{
		"key":   {p.cfg.APIKey},
		"cx":    {p.cfg.SearchEngineID},
		"q":     {query},
		"num":   {strconv.Itoa(num)},
		"start": {strconv.Itoa(start)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call custom search: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			p.logger.Debug("close search response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("custom search returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	var out searchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	links := make([]string, 0, len(out.Items))
	for _, item := range out.Items {
		if item.Link != "" {
			links = append(links, item.Link)
		}
	}
	return links, nil
}
