package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NullMeDev/factlens/internal/apperror"
	"github.com/NullMeDev/factlens/internal/predict"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, predict.DefaultPolicy(), cfg.Model.Policy())
	assert.Equal(t, "model/vectorizer.json", cfg.Model.VectorizerPath)
	assert.Equal(t, 0.2, cfg.Training.TestSize)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "factlens.yaml", `
server:
  addr: ":9090"
  rate_limit: 5
model:
  thresholds:
    - min_words: 0
      threshold: 0.9
    - min_words: 100
      threshold: 0.7
extract:
  timeout: 3s
history:
  driver: postgres
  dsn: postgres://localhost/factlens
feeds:
  enabled: true
  urls:
    - https://example.com/rss
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5.0, cfg.Server.RateLimit)
	assert.Equal(t, 10, cfg.Server.RateBurst)
	assert.Equal(t, 3*time.Second, cfg.Extract.Timeout)
	assert.Equal(t, "postgres", cfg.History.Driver)
	assert.Equal(t, []string{"https://example.com/rss"}, cfg.Feeds.URLs)

	policy := cfg.Model.Policy()
	assert.Equal(t, 0.9, policy.Threshold(10))
	assert.Equal(t, 0.7, policy.Threshold(200))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "factlens.yaml", "server:\n  addr: \":9090\"\n")

	t.Setenv("LISTEN_ADDR", ":7070")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", ":memory:")
	t.Setenv("FEED_URLS", "https://a.example/rss, ,https://b.example/rss")
	t.Setenv("EXTRACT_TIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.History.Driver)
	assert.Equal(t, ":memory:", cfg.History.DSN)
	assert.Equal(t, []string{"https://a.example/rss", "https://b.example/rss"}, cfg.Feeds.URLs)
	assert.Equal(t, 2*time.Second, cfg.Extract.Timeout)
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "OPENAI_MODEL=gpt-4o-mini\n")
	t.Cleanup(func() { os.Unsetenv("OPENAI_MODEL") })

	cfg, err := Load("", filepath.Join(dir, "missing.env"), envFile)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, apperror.ErrConfigLoad, apperror.CodeOf(err))
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "server: [unclosed\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, apperror.ErrConfigLoad, apperror.CodeOf(err))
}

func TestValidateReportsEveryIssue(t *testing.T) {
	cfg := Default()
	cfg.Server.RateLimit = 0
	cfg.Model.Thresholds = []predict.Bucket{{MinWords: -1, Threshold: 1.2}}
	cfg.History.Driver = "oracle"
	cfg.Discord.Enabled = true
	cfg.Feeds.Enabled = true
	cfg.Feeds.Schedule = "not a schedule"
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, apperror.ErrConfigValidation, apperror.CodeOf(err))

	for _, want := range []string{
		"server.rate_limit",
		"min_words must not be negative",
		"threshold must be in [0.5, 1)",
		`history.driver "oracle"`,
		"BOT_TOKEN is required",
		"APP_ID is required",
		"feeds.urls",
		"feeds.schedule",
		`logging.level "loud"`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateSkipsDisabledSections(t *testing.T) {
	cfg := Default()
	cfg.Server.Enabled = false
	cfg.Server.Addr = ""
	cfg.History.Enabled = false
	cfg.History.DSN = ""
	require.NoError(t, cfg.Validate())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("FL_INT", "12")
	t.Setenv("FL_BAD_INT", "twelve")
	t.Setenv("FL_BOOL", "true")
	t.Setenv("FL_FLOAT", "0.25")
	t.Setenv("FL_DURATION", "90s")
	t.Setenv("FL_EMPTY_SLICE", "  ")

	assert.Equal(t, 12, GetEnvInt("FL_INT", 1))
	assert.Equal(t, 1, GetEnvInt("FL_BAD_INT", 1))
	assert.True(t, GetEnvBool("FL_BOOL", false))
	assert.Equal(t, 0.25, GetEnvFloat("FL_FLOAT", 0))
	assert.Equal(t, 90*time.Second, GetEnvDuration("FL_DURATION", time.Second))
	assert.Equal(t, "fallback", GetEnvString("FL_UNSET_STRING", "fallback"))
	assert.Equal(t, []string{"x"}, GetEnvStringSlice("FL_EMPTY_SLICE", []string{"x"}))
}
