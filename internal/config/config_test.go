package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "https://www.sahamidx.com/", cfg.Source.BaseURL)
	assert.Equal(t, 3, cfg.Source.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Source.BaseBackoff)
	assert.Equal(t, time.Minute, cfg.Source.MaxBackoff)
	assert.Equal(t, ".JK", cfg.Source.ExchangeSuffix)
	assert.Equal(t, "table.tbl_border_gray", cfg.Source.TableSelector)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.RunTimeout)
	assert.Equal(t, "idx_right_issue", cfg.Manual.RightsIssueTable)
	assert.Equal(t, "idx_buybacks", cfg.Manual.BuybackTable)
	assert.Equal(t, "local", cfg.RateLimit.Backend)
	assert.Equal(t, "file", cfg.DLQ.Backend)
	assert.Equal(t, "corpaction.runs.completed", cfg.NATS.SummarySubject)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	view, ok := cfg.Source.View("rights_issue")
	assert.True(t, ok)
	assert.Equal(t, "Stock.Rights", view)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpaction.yaml")
	content := `
source:
  max_retries: 5
  base_backoff: 500ms
  max_pages: 3
pipeline:
  concurrency: 2
  lookback_days: 14
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Source.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Source.BaseBackoff)
	assert.Equal(t, 3, cfg.Source.MaxPages)
	assert.Equal(t, 2, cfg.Pipeline.Concurrency)
	assert.Equal(t, 14, cfg.Pipeline.LookbackFor("dividend"))
	assert.Equal(t, 1, cfg.Pipeline.LookbackFor("shareholder_meeting"))
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CORPACTION_SOURCE_MAX_RETRIES", "7")
	t.Setenv("CORPACTION_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Source.MaxRetries)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source: [unterminated"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative retries", func(c *Config) { c.Source.MaxRetries = -1 }},
		{"zero backoff", func(c *Config) { c.Source.BaseBackoff = 0 }},
		{"max below base", func(c *Config) { c.Source.MaxBackoff = time.Millisecond }},
		{"zero pages", func(c *Config) { c.Source.MaxPages = 0 }},
		{"zero concurrency", func(c *Config) { c.Pipeline.Concurrency = 0 }},
		{"unknown limiter", func(c *Config) { c.RateLimit.Backend = "memcached" }},
		{"redis limiter without redis", func(c *Config) { c.RateLimit.Backend = "redis" }},
		{"jetstream dlq without nats", func(c *Config) { c.DLQ.Backend = "jetstream" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
	assert.NoError(t, base.Validate())
}
