package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "stockpulse", cfg.DynamoDBTable)
	assert.Equal(t, 5000*time.Millisecond, cfg.Sentiment.Timeout)
	assert.Equal(t, 3, cfg.Sentiment.MaxAttempts)
	assert.Equal(t, 1000*time.Millisecond, cfg.Sentiment.InitialBackoff)
	assert.Equal(t, 5, cfg.Sentiment.FailureThreshold)
	assert.Equal(t, 30000*time.Millisecond, cfg.Sentiment.Cooldown)
	assert.Equal(t, 5000, cfg.Sentiment.MaxTextLength)
	assert.Equal(t, 1, cfg.TTL.JobDays)
	assert.Equal(t, 7, cfg.TTL.SentimentDays)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SENTIMENT_ENDPOINT", "https://ml.example.com")
	t.Setenv("SENTIMENT_TIMEOUT_MS", "2500")
	t.Setenv("CIRCUIT_FAILURE_THRESHOLD", "7")
	t.Setenv("TTL_SENTIMENT_DAYS", "14")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://ml.example.com", cfg.Sentiment.Endpoint)
	assert.Equal(t, 2500*time.Millisecond, cfg.Sentiment.Timeout)
	assert.Equal(t, 7, cfg.Sentiment.FailureThreshold)
	assert.Equal(t, 14, cfg.TTL.SentimentDays)
}

func TestLoadConfig_OverlayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	overlay := `
sentiment:
  endpoint: https://overlay.example.com
  max_attempts: 5
ttl:
  job_days: 2
`
	require.NoError(t, os.WriteFile(path, []byte(overlay), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://overlay.example.com", cfg.Sentiment.Endpoint)
	assert.Equal(t, 5, cfg.Sentiment.MaxAttempts)
	assert.Equal(t, 2, cfg.TTL.JobDays)
	// untouched keys keep their defaults
	assert.Equal(t, 7, cfg.TTL.SentimentDays)
}

func TestLoadConfig_EnvWinsOverOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sentiment:\n  max_attempts: 5\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SENTIMENT_MAX_ATTEMPTS", "2")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Sentiment.MaxAttempts)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing table", func(c *Config) { c.DynamoDBTable = "" }},
		{"zero attempts", func(c *Config) { c.Sentiment.MaxAttempts = 0 }},
		{"zero threshold", func(c *Config) { c.Sentiment.FailureThreshold = 0 }},
		{"zero ttl", func(c *Config) { c.TTL.JobDays = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_MemoryStoreNeedsNoTable(t *testing.T) {
	cfg := defaultConfig()
	cfg.DynamoDBTable = ""
	cfg.UseMemoryStore = true
	assert.NoError(t, cfg.Validate())
}
