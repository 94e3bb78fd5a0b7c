package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Crawler.Workers)
	assert.Equal(t, "leadharvest-bot/0.1", cfg.Crawler.UserAgent)
	assert.True(t, cfg.Crawler.RespectRobots)
	assert.Equal(t, 2, cfg.Crawler.MaxAttemptsPerTier)
	assert.Equal(t, 1, cfg.Politeness.DelaySeconds)
	assert.Equal(t, 60, cfg.Politeness.MaxBackoffSeconds)
	assert.Equal(t, 50, cfg.Politeness.MaxPagesPerDomain)
	assert.False(t, cfg.Headless.Enabled)
	assert.Equal(t, 2, cfg.Extraction.MinFields)
	assert.InDelta(t, 0.85, cfg.Dedup.SimilarityThreshold, 1e-9)
	assert.InDelta(t, 0.3, cfg.Scoring.WeightCompleteness, 1e-9)
	assert.Equal(t, "leads", cfg.DB.Table)
	assert.Contains(t, cfg.Detector.Keywords, "enable javascript")
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
crawler:
  workers: 3
  follow_links: false
politeness:
  delay_seconds: 5
seeds:
  static_urls:
    - https://a.example/
    - https://b.example/
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Crawler.Workers)
	assert.False(t, cfg.Crawler.FollowLinks)
	assert.Equal(t, 5, cfg.Politeness.DelaySeconds)
	assert.Equal(t, []string{"https://a.example/", "https://b.example/"}, cfg.Seeds.StaticURLs)
	assert.Equal(t, "leadharvest-bot/0.1", cfg.Crawler.UserAgent, "defaults survive partial files")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	t.Run("weights must sum to one", func(t *testing.T) {
		cfg := base()
		cfg.Scoring.WeightCompleteness = 0.9
		require.Error(t, cfg.Validate())
	})

	t.Run("port required", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("workers required", func(t *testing.T) {
		cfg := base()
		cfg.Crawler.Workers = -1
		require.Error(t, cfg.Validate())
	})

	t.Run("headless parallelism", func(t *testing.T) {
		cfg := base()
		cfg.Headless.Enabled = true
		cfg.Headless.MaxParallel = 0
		require.Error(t, cfg.Validate())
	})
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("LEADHARVEST_SERVER_PORT", "7070")
	t.Setenv("LEADHARVEST_CRAWLER_WORKERS", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Crawler.Workers)
}

func TestRequestTimeout(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "30s", cfg.RequestTimeout().String())
}
