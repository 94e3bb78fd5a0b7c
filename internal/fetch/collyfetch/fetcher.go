// Package collyfetch implements the tier-2 fetch executor on the Colly
// collector: structured crawling with cookie handling, redirects, and
// per-domain transport reuse.
package collyfetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/voyago/leadharvest/internal/crawl"
	"github.com/voyago/leadharvest/internal/fetch/detector"
)

// Config controls the Colly executor.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	Parallelism int
}

// Executor fetches pages through a shared Colly collector, cloned per fetch
// so callbacks never leak between jobs.
type Executor struct {
	base     *colly.Collector
	detector detector.Detector
	logger   *zap.Logger
}

// New constructs the tier-2 executor.
func New(cfg Config, det detector.Detector, logger *zap.Logger) (*Executor, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if det == nil {
		det = detector.None{}
	}
	base := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(cfg.UserAgent),
	)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.Timeout)
	if err := base.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
	}); err != nil {
		return nil, err
	}
	return &Executor{base: base, detector: det, logger: logger}, nil
}

// Tier implements crawl.FetchExecutor.
func (e *Executor) Tier() crawl.Tier { return crawl.Tier2 }

type collyOutcome struct {
	status   int
	headers  http.Header
	body     []byte
	finalURL string
	err      error
}

// Fetch implements crawl.FetchExecutor.
func (e *Executor) Fetch(ctx context.Context, job crawl.Job) crawl.Result {
	start := time.Now()
	res := crawl.Result{Job: job, TierUsed: crawl.Tier2}

	collector := e.base.Clone()
	resultCh := make(chan collyOutcome, 1)
	var once sync.Once
	send := func(out collyOutcome) {
		once.Do(func() { resultCh <- out })
	}

	collector.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			for k, v := range *r.Headers {
				cp := make([]string, len(v))
				copy(cp, v)
				headers[k] = cp
			}
		}
		send(collyOutcome{
			status:   r.StatusCode,
			headers:  headers,
			body:     append([]byte{}, r.Body...),
			finalURL: r.Request.URL.String(),
		})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		send(collyOutcome{status: status, err: err})
	})

	if err := collector.Visit(job.URL); err != nil {
		res.Outcome = crawl.OutcomeParseError
		res.Elapsed = time.Since(start)
		return res
	}
	collector.Wait()

	res.Elapsed = time.Since(start)
	select {
	case out := <-resultCh:
		return e.finish(ctx, res, out)
	default:
		res.Outcome = crawl.OutcomeHTTPError
		return res
	}
}

func (e *Executor) finish(ctx context.Context, res crawl.Result, out collyOutcome) crawl.Result {
	res.HTTPStatus = out.status
	res.Headers = out.headers
	res.FinalURL = out.finalURL
	if out.headers != nil {
		res.ContentType = out.headers.Get("Content-Type")
	}

	if ctx.Err() != nil {
		res.Outcome = crawl.OutcomeTimeout
		return res
	}
	if out.err != nil {
		res.Outcome = classifyError(out.err, out.status)
		return res
	}
	if out.status >= 400 {
		res.Outcome = crawl.OutcomeHTTPError
		return res
	}
	res.Body = out.body
	if e.detector.NeedsJS(out.body) {
		res.Outcome = crawl.OutcomeJSRequired
		return res
	}
	res.Outcome = crawl.OutcomeOK
	return res
}

func classifyError(err error, status int) crawl.Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return crawl.OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return crawl.OutcomeTimeout
	}
	if status >= 400 || status == 0 {
		return crawl.OutcomeHTTPError
	}
	return crawl.OutcomeParseError
}
