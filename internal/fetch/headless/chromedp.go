// Package headless implements the tier-3 fetch executor: full browser
// rendering through chromedp. It is the most expensive strategy and is only
// reached by escalation.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/voyago/leadharvest/internal/crawl"
)

// ErrDisabled indicates rendering has been disabled via configuration.
var ErrDisabled = errors.New("headless rendering disabled")

// Config controls the renderer.
type Config struct {
	UserAgent      string
	MaxConcurrency int
	NavTimeout     time.Duration
	DomainQPS      float64
}

// Executor renders pages in headless Chrome. A shared browser process hosts
// one tab per fetch; concurrency is bounded and per-domain QPS is limited on
// top of the orchestrator's politeness delay.
type Executor struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	sem             chan struct{}
	cfg             Config
	domainLimiters  sync.Map
	logger          *zap.Logger
}

// New launches the shared browser. Returns ErrDisabled when MaxConcurrency
// is zero so callers can leave tier 3 unwired.
func New(cfg Config, logger *zap.Logger) (*Executor, error) {
	if cfg.MaxConcurrency <= 0 {
		return nil, ErrDisabled
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 25 * time.Second
	}
	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &Executor{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		sem:             make(chan struct{}, cfg.MaxConcurrency),
		cfg:             cfg,
		logger:          logger,
	}, nil
}

// Close tears down the browser and allocator.
func (e *Executor) Close() {
	if e == nil {
		return
	}
	e.browserCancel()
	e.allocatorCancel()
}

// Tier implements crawl.FetchExecutor.
func (e *Executor) Tier() crawl.Tier { return crawl.Tier3 }

// Fetch implements crawl.FetchExecutor. Tier 3 never reports js_required:
// the browser is the highest capability available.
func (e *Executor) Fetch(ctx context.Context, job crawl.Job) crawl.Result {
	start := time.Now()
	res := crawl.Result{Job: job, TierUsed: crawl.Tier3}

	release, err := e.acquireSlot(ctx)
	if err != nil {
		res.Outcome = crawl.OutcomeTimeout
		res.Elapsed = time.Since(start)
		return res
	}
	defer release()

	if err := e.waitDomainBudget(ctx, job.URL); err != nil {
		res.Outcome = crawl.OutcomeTimeout
		res.Elapsed = time.Since(start)
		return res
	}

	tabCtx, cancelTab := chromedp.NewContext(e.browserCtx)
	defer cancelTab()
	taskCtx, cancelTask := context.WithTimeout(tabCtx, e.cfg.NavTimeout)
	defer cancelTask()
	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	meta := &responseMeta{headers: make(http.Header)}
	e.recordResponse(tabCtx, meta)

	html, err := e.render(taskCtx, job.URL)
	res.Elapsed = time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			res.Outcome = crawl.OutcomeTimeout
		} else {
			res.Outcome = crawl.OutcomeParseError
		}
		return res
	}

	res.HTTPStatus = meta.statusCode
	res.Headers = meta.headers
	res.ContentType = meta.headers.Get("Content-Type")
	res.FinalURL = meta.finalURL(job.URL)
	res.Body = []byte(html)
	if meta.statusCode >= 400 {
		res.Outcome = crawl.OutcomeHTTPError
		return res
	}
	res.Outcome = crawl.OutcomeOK
	return res
}

func (e *Executor) acquireSlot(ctx context.Context) (func(), error) {
	select {
	case e.sem <- struct{}{}:
		return func() { <-e.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire render slot: %w", ctx.Err())
	}
}

func (e *Executor) waitDomainBudget(ctx context.Context, rawURL string) error {
	if e.cfg.DomainQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse render url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := e.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(e.cfg.DomainQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait limiter: %w", err)
	}
	return nil
}

type responseMeta struct {
	once       sync.Once
	statusCode int
	headers    http.Header
	url        string
}

func (m *responseMeta) finalURL(raw string) string {
	if m.url == "" {
		return raw
	}
	return m.url
}

func (e *Executor) recordResponse(tabCtx context.Context, meta *responseMeta) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		meta.once.Do(func() {
			meta.statusCode = int(resp.Response.Status)
			meta.url = resp.Response.URL
			for k, v := range resp.Response.Headers {
				meta.headers.Add(k, fmt.Sprint(v))
			}
		})
	})
}

func (e *Executor) render(ctx context.Context, rawURL string) (string, error) {
	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(e.cfg.UserAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
