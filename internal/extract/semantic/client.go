// Package semantic adapts an external AI extraction service to the
// SemanticExtractor contract. The service receives a bounded text excerpt
// and returns at most one lead candidate.
package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/voyago/leadharvest/internal/lead"
)

// ErrRateLimited is returned when the service responds 429. Callers drop to
// pattern-only output and may retry later fetches normally.
var ErrRateLimited = errors.New("semantic extractor rate limited")

// Config controls the HTTP adapter.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Client is an HTTP JSON adapter implementing crawl.SemanticExtractor.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New constructs the adapter.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type extractRequest struct {
	Excerpt string            `json:"excerpt"`
	Hints   map[string]string `json:"hints,omitempty"`
}

type extractResponse struct {
	BusinessName string  `json:"business_name"`
	Email        string  `json:"email"`
	Phone        string  `json:"phone"`
	Address      string  `json:"address"`
	Website      string  `json:"website"`
	LeadType     string  `json:"lead_type"`
	Confidence   float64 `json:"confidence"`
}

// Extract implements crawl.SemanticExtractor. A nil candidate with nil error
// means the service found nothing usable.
func (c *Client) Extract(ctx context.Context, excerpt string, hints map[string]string) (*lead.Candidate, error) {
	payload, err := json.Marshal(extractRequest{Excerpt: excerpt, Hints: hints})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call semantic extractor: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close semantic response body", zap.Error(cerr))
		}
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("semantic extractor returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read semantic response: %w", err)
	}
	var out extractResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode semantic response: %w", err)
	}
	if out.BusinessName == "" && out.Email == "" && out.Phone == "" && out.Website == "" {
		return nil, nil
	}
	return &lead.Candidate{
		BusinessName: out.BusinessName,
		Email:        out.Email,
		Phone:        out.Phone,
		Address:      out.Address,
		Website:      out.Website,
		LeadType:     out.LeadType,
		Method:       lead.MethodSemantic,
	}, nil
}
