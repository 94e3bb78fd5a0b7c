// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Colly      CollyConfig      `mapstructure:"colly"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Semantic   SemanticConfig   `mapstructure:"semantic"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Seeds      SeedConfig       `mapstructure:"seeds"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs orchestrator and crawl pipeline behavior.
type CrawlerConfig struct {
	Workers            int    `mapstructure:"workers"`
	UserAgent          string `mapstructure:"user_agent"`
	RespectRobots      bool   `mapstructure:"respect_robots"`
	FollowLinks        bool   `mapstructure:"follow_links"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	MaxAttemptsPerTier int    `mapstructure:"max_attempts_per_tier"`
}

// PolitenessConfig controls per-domain pacing.
type PolitenessConfig struct {
	DelaySeconds      int `mapstructure:"delay_seconds"`
	MaxBackoffSeconds int `mapstructure:"max_backoff_seconds"`
	MaxPagesPerDomain int `mapstructure:"max_pages_per_domain"`
}

// HTTPConfig configures the tier-1 probe executor.
type HTTPConfig struct {
	TimeoutSeconds int   `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int64 `mapstructure:"max_body_bytes"`
}

// CollyConfig configures the tier-2 executor.
type CollyConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	Parallelism    int `mapstructure:"parallelism"`
}

// HeadlessConfig configures the tier-3 rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	MaxParallel   int     `mapstructure:"max_parallel"`
	NavTimeoutSec int     `mapstructure:"nav_timeout_seconds"`
	DomainQPS     float64 `mapstructure:"domain_qps"`
}

// DetectorConfig tunes the JS-required heuristic.
type DetectorConfig struct {
	MinHTMLBytes int      `mapstructure:"min_html_bytes"`
	Selectors    []string `mapstructure:"selectors"`
	Keywords     []string `mapstructure:"keywords"`
}

// ExtractionConfig tunes the extraction pipeline.
type ExtractionConfig struct {
	MinFields           int    `mapstructure:"min_fields"`
	ExcerptBytes        int    `mapstructure:"excerpt_bytes"`
	SemanticConcurrency int64  `mapstructure:"semantic_concurrency"`
	DefaultRegion       string `mapstructure:"default_region"`
	LinkPriority        int    `mapstructure:"link_priority"`
	LinkBoost           int    `mapstructure:"link_boost"`
}

// SemanticConfig points at the external semantic extraction service.
type SemanticConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DedupConfig tunes identity resolution.
type DedupConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MaxSourceTextBytes  int     `mapstructure:"max_source_text_bytes"`
}

// ScoringConfig tunes the lead scorer. Weights must sum to 1.0.
type ScoringConfig struct {
	WeightCompleteness float64 `mapstructure:"weight_completeness"`
	WeightRelevance    float64 `mapstructure:"weight_relevance"`
	WeightFreshness    float64 `mapstructure:"weight_freshness"`
	WeightConfidence   float64 `mapstructure:"weight_confidence"`
	HalfLifeDays       float64 `mapstructure:"half_life_days"`
	ExpectedHits       int     `mapstructure:"expected_hits"`
}

// SeedConfig controls seed discovery.
type SeedConfig struct {
	GoogleAPIKey         string   `mapstructure:"google_api_key"`
	GoogleSearchEngineID string   `mapstructure:"google_search_engine_id"`
	StaticURLs           []string `mapstructure:"static_urls"`
	MaxResults           int      `mapstructure:"max_results"`
	Priority             int      `mapstructure:"priority"`
}

// StorageConfig sets snapshot persistence targets.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database. Empty DSN keeps leads
// in memory only.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for publish-subscribe event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.workers", 10)
	v.SetDefault("crawler.user_agent", "leadharvest-bot/0.1")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.follow_links", true)
	v.SetDefault("crawler.timeout_seconds", 30)
	v.SetDefault("crawler.max_attempts_per_tier", 2)
	v.SetDefault("politeness.delay_seconds", 1)
	v.SetDefault("politeness.max_backoff_seconds", 60)
	v.SetDefault("politeness.max_pages_per_domain", 50)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_body_bytes", 4<<20)
	v.SetDefault("colly.timeout_seconds", 30)
	v.SetDefault("colly.parallelism", 4)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.domain_qps", 0.5)
	v.SetDefault("detector.min_html_bytes", 2048)
	v.SetDefault("detector.keywords", []string{"enable javascript", "__next_data__", "ng-app"})
	v.SetDefault("extraction.min_fields", 2)
	v.SetDefault("extraction.excerpt_bytes", 8192)
	v.SetDefault("extraction.semantic_concurrency", 2)
	v.SetDefault("extraction.default_region", "US")
	v.SetDefault("extraction.link_priority", 1)
	v.SetDefault("extraction.link_boost", 2)
	v.SetDefault("semantic.timeout_seconds", 15)
	v.SetDefault("dedup.similarity_threshold", 0.85)
	v.SetDefault("dedup.max_source_text_bytes", 64<<10)
	v.SetDefault("scoring.weight_completeness", 0.3)
	v.SetDefault("scoring.weight_relevance", 0.3)
	v.SetDefault("scoring.weight_freshness", 0.2)
	v.SetDefault("scoring.weight_confidence", 0.2)
	v.SetDefault("scoring.half_life_days", 90)
	v.SetDefault("scoring.expected_hits", 5)
	v.SetDefault("seeds.max_results", 30)
	v.SetDefault("seeds.priority", 5)
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("db.table", "leads")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Politeness.DelaySeconds <= 0 {
		return fmt.Errorf("politeness.delay_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	sum := c.Scoring.WeightCompleteness + c.Scoring.WeightRelevance +
		c.Scoring.WeightFreshness + c.Scoring.WeightConfidence
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.4f", sum)
	}
	return nil
}

// RequestTimeout converts the crawler timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}
