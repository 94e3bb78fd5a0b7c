// Package httpfetch implements the tier-1 fetch executor: a plain HTTP probe
// with no JavaScript execution.
package httpfetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voyago/leadharvest/internal/crawl"
	"github.com/voyago/leadharvest/internal/fetch/detector"
)

// Config controls the probe executor.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Executor is the cheapest fetch strategy: a single GET with redirects.
type Executor struct {
	client   *http.Client
	cfg      Config
	detector detector.Detector
	logger   *zap.Logger
}

// New constructs the tier-1 executor.
func New(cfg Config, det detector.Detector, logger *zap.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 4 << 20
	}
	if det == nil {
		det = detector.None{}
	}
	return &Executor{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConns:          128,
				MaxIdleConnsPerHost:   8,
				IdleConnTimeout:       30 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: cfg.Timeout,
				ForceAttemptHTTP2:     true,
			},
		},
		cfg:      cfg,
		detector: det,
		logger:   logger,
	}
}

// Tier implements crawl.FetchExecutor.
func (e *Executor) Tier() crawl.Tier { return crawl.Tier1 }

// Fetch implements crawl.FetchExecutor. Every failure maps onto the outcome
// vocabulary; Fetch never returns an error through a panic or partial state.
func (e *Executor) Fetch(ctx context.Context, job crawl.Job) crawl.Result {
	start := time.Now()
	res := crawl.Result{Job: job, TierUsed: crawl.Tier1}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.URL, nil)
	if err != nil {
		res.Outcome = crawl.OutcomeParseError
		res.Elapsed = time.Since(start)
		return res
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9")

	resp, err := e.client.Do(req)
	if err != nil {
		res.Outcome = classifyTransportError(err)
		res.Elapsed = time.Since(start)
		return res
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			e.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	res.HTTPStatus = resp.StatusCode
	res.Headers = resp.Header
	res.ContentType = resp.Header.Get("Content-Type")
	res.FinalURL = resp.Request.URL.String()

	if resp.StatusCode >= 400 {
		res.Outcome = crawl.OutcomeHTTPError
		res.Elapsed = time.Since(start)
		return res
	}
	if !htmlContentType(res.ContentType) {
		res.Outcome = crawl.OutcomeParseError
		res.Elapsed = time.Since(start)
		return res
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBodyBytes))
	if err != nil {
		res.Outcome = classifyTransportError(err)
		res.Elapsed = time.Since(start)
		return res
	}
	res.Body = body
	res.Elapsed = time.Since(start)

	if e.detector.NeedsJS(body) {
		res.Outcome = crawl.OutcomeJSRequired
		return res
	}
	res.Outcome = crawl.OutcomeOK
	return res
}

func classifyTransportError(err error) crawl.Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return crawl.OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return crawl.OutcomeTimeout
	}
	return crawl.OutcomeHTTPError
}

func htmlContentType(ct string) bool {
	ct = strings.ToLower(ct)
	if ct == "" {
		// Some servers omit the header for HTML pages; let extraction try.
		return true
	}
	for _, accept := range []string{"text/html", "application/xhtml+xml", "application/xml", "text/plain"} {
		if strings.Contains(ct, accept) {
			return true
		}
	}
	return false
}
