// Package main wires together the lead-harvesting service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub/v2"
	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/voyago/leadharvest/internal/api"
	"github.com/voyago/leadharvest/internal/blob/gcs"
	"github.com/voyago/leadharvest/internal/blob/local"
	"github.com/voyago/leadharvest/internal/clock"
	"github.com/voyago/leadharvest/internal/config"
	"github.com/voyago/leadharvest/internal/crawl"
	"github.com/voyago/leadharvest/internal/dedup"
	"github.com/voyago/leadharvest/internal/event"
	"github.com/voyago/leadharvest/internal/event/sinks"
	"github.com/voyago/leadharvest/internal/extract"
	"github.com/voyago/leadharvest/internal/extract/semantic"
	"github.com/voyago/leadharvest/internal/fetch/collyfetch"
	"github.com/voyago/leadharvest/internal/fetch/detector"
	"github.com/voyago/leadharvest/internal/fetch/headless"
	"github.com/voyago/leadharvest/internal/fetch/httpfetch"
	"github.com/voyago/leadharvest/internal/logging"
	"github.com/voyago/leadharvest/internal/score"
	"github.com/voyago/leadharvest/internal/seed"
	"github.com/voyago/leadharvest/internal/store"
	memorystore "github.com/voyago/leadharvest/internal/store/memory"
	"github.com/voyago/leadharvest/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	clk := clock.NewSystem()

	hub, err := buildEventHub(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("event hub close failed", zap.Error(err))
		}
	}()

	det := detector.NewHeuristic(
		cfg.Detector.MinHTMLBytes, cfg.Detector.Selectors, cfg.Detector.Keywords)
	executors, closeExecutors, err := buildExecutors(cfg, det, logger)
	if err != nil {
		return err
	}
	defer closeExecutors()

	scorer, err := score.New(score.Config{
		Weights: score.Weights{
			Completeness: cfg.Scoring.WeightCompleteness,
			Relevance:    cfg.Scoring.WeightRelevance,
			Freshness:    cfg.Scoring.WeightFreshness,
			Confidence:   cfg.Scoring.WeightConfidence,
		},
		HalfLifeDays: cfg.Scoring.HalfLifeDays,
		ExpectedHits: cfg.Scoring.ExpectedHits,
	})
	if err != nil {
		return err
	}
	resolver := dedup.New(dedup.Config{
		SimilarityThreshold: cfg.Dedup.SimilarityThreshold,
		MaxSourceTextBytes:  cfg.Dedup.MaxSourceTextBytes,
	}, scorer, clk, logger.Named("dedup"))

	var sem crawl.SemanticExtractor
	if cfg.Semantic.Endpoint != "" {
		sem = semantic.New(semantic.Config{
			Endpoint: cfg.Semantic.Endpoint,
			APIKey:   cfg.Semantic.APIKey,
			Timeout:  time.Duration(cfg.Semantic.TimeoutSeconds) * time.Second,
		}, logger.Named("semantic"))
	}
	extractor := extract.New(extract.Config{
		MinFields:           cfg.Extraction.MinFields,
		ExcerptBytes:        cfg.Extraction.ExcerptBytes,
		SemanticConcurrency: cfg.Extraction.SemanticConcurrency,
		DefaultRegion:       cfg.Extraction.DefaultRegion,
		LinkPriority:        cfg.Extraction.LinkPriority,
		LinkBoost:           cfg.Extraction.LinkBoost,
	}, sem, clk, logger.Named("extract"))

	memStore := memorystore.New()
	leadStores := []crawl.LeadStore{memStore}
	if cfg.DB.DSN != "" {
		pgStore, err := postgres.NewLeadStore(ctx, postgres.LeadStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return fmt.Errorf("init postgres lead store: %w", err)
		}
		defer pgStore.Close()
		leadStores = append(leadStores, pgStore)
	}

	blobs, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	frontier := crawl.NewFrontier(clk)
	polite := crawl.NewPoliteness(crawl.PolitenessConfig{
		Delay:             time.Duration(cfg.Politeness.DelaySeconds) * time.Second,
		MaxBackoff:        time.Duration(cfg.Politeness.MaxBackoffSeconds) * time.Second,
		MaxPagesPerDomain: cfg.Politeness.MaxPagesPerDomain,
	}, clk)
	robots := crawl.NewRobotsEnforcer(
		cfg.Crawler.RespectRobots, cfg.Crawler.UserAgent, logger.Named("robots"))
	policy := crawl.NewEscalationPolicy(cfg.Crawler.MaxAttemptsPerTier)

	orch := crawl.NewOrchestrator(
		crawl.OrchestratorConfig{
			Workers:        cfg.Crawler.Workers,
			RequestTimeout: cfg.RequestTimeout(),
			FollowLinks:    cfg.Crawler.FollowLinks,
			SnapshotPrefix: cfg.Storage.Prefix,
		},
		frontier,
		polite,
		robots,
		policy,
		executors,
		extractor,
		resolver,
		store.NewMulti(leadStores...),
		blobs,
		hub,
		clk,
		logger.Named("orchestrator"),
	)

	provider, err := buildSeedProvider(cfg, logger)
	if err != nil {
		return err
	}
	apiServer := api.NewServer(api.Config{
		SeedMaxResults: cfg.Seeds.MaxResults,
		SeedPriority:   cfg.Seeds.Priority,
	}, provider, orch, memStore, clk, logger.Named("api"), nil)

	if len(cfg.Seeds.StaticURLs) > 0 {
		accepted := orch.Seed(cfg.Seeds.StaticURLs, cfg.Seeds.Priority)
		logger.Info("static seeds enqueued", zap.Int("accepted", accepted))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	crawlDone := make(chan error, 1)
	go func() {
		logger.Info("crawl orchestrator started", zap.Int("workers", cfg.Crawler.Workers))
		crawlDone <- orch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := <-crawlDone; err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func buildEventHub(ctx context.Context, cfg config.Config, logger *zap.Logger) (*event.Hub, error) {
	hubSinks := []event.Sink{sinks.NewLogSink(logger.Named("events"))}
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	hubSinks = append(hubSinks, promSink)

	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		pubSink, err := sinks.NewPubSubSink(client.Publisher(cfg.PubSub.TopicName))
		if err != nil {
			return nil, fmt.Errorf("init pubsub sink: %w", err)
		}
		hubSinks = append(hubSinks, pubSink)
	}
	return event.NewHub(event.HubConfig{Logger: logger.Named("hub")}, hubSinks...), nil
}

func buildExecutors(cfg config.Config, det detector.Detector, logger *zap.Logger) (map[crawl.Tier]crawl.FetchExecutor, func(), error) {
	probe := httpfetch.New(httpfetch.Config{
		UserAgent:    cfg.Crawler.UserAgent,
		Timeout:      time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}, det, logger.Named("tier1"))
	crawler, err := collyfetch.New(collyfetch.Config{
		UserAgent:   cfg.Crawler.UserAgent,
		Timeout:     time.Duration(cfg.Colly.TimeoutSeconds) * time.Second,
		Parallelism: cfg.Colly.Parallelism,
	}, det, logger.Named("tier2"))
	if err != nil {
		return nil, nil, fmt.Errorf("init colly executor: %w", err)
	}

	executors := map[crawl.Tier]crawl.FetchExecutor{
		crawl.Tier1: probe,
		crawl.Tier2: crawler,
	}
	closeFn := func() {}
	if cfg.Headless.Enabled {
		renderer, err := headless.New(headless.Config{
			UserAgent:      cfg.Crawler.UserAgent,
			MaxConcurrency: cfg.Headless.MaxParallel,
			NavTimeout:     time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			DomainQPS:      cfg.Headless.DomainQPS,
		}, logger.Named("tier3"))
		if err != nil {
			logger.Warn("headless renderer init failed, tier 3 falls back to colly", zap.Error(err))
			executors[crawl.Tier3] = crawler
		} else {
			executors[crawl.Tier3] = renderer
			closeFn = renderer.Close
		}
	} else {
		// Without a renderer, escalations past tier 2 reuse the colly
		// executor so the tier table stays fully covered.
		executors[crawl.Tier3] = crawler
	}
	return executors, closeFn, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawl.BlobStore, error) {
	switch {
	case cfg.Storage.GCSBucket != "":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	case cfg.Storage.LocalDir != "":
		return local.New(cfg.Storage.LocalDir)
	default:
		logger.Info("no snapshot storage configured")
		return nil, nil
	}
}

func buildSeedProvider(cfg config.Config, logger *zap.Logger) (crawl.SeedProvider, error) {
	if cfg.Seeds.GoogleAPIKey != "" && cfg.Seeds.GoogleSearchEngineID != "" {
		return seed.NewGoogleProvider(seed.GoogleConfig{
			APIKey:         cfg.Seeds.GoogleAPIKey,
			SearchEngineID: cfg.Seeds.GoogleSearchEngineID,
		}, logger.Named("seeds"))
	}
	return seed.NewStaticProvider(cfg.Seeds.StaticURLs), nil
}
