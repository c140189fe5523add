// Package config loads factlens settings: defaults, then an optional YAML
// file, then .env files, then environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v2"

	"github.com/NullMeDev/factlens/internal/apperror"
	"github.com/NullMeDev/factlens/internal/extract"
	"github.com/NullMeDev/factlens/internal/history"
	"github.com/NullMeDev/factlens/internal/links"
	"github.com/NullMeDev/factlens/internal/logging"
	"github.com/NullMeDev/factlens/internal/predict"
	"github.com/NullMeDev/factlens/internal/training"
)

// Config holds application configuration
type Config struct {
	Version string `yaml:"version"`

	Server   ServerConfig    `yaml:"server"`
	Model    ModelConfig     `yaml:"model"`
	Extract  ExtractConfig   `yaml:"extract"`
	Links    LinksConfig     `yaml:"links"`
	History  HistoryConfig   `yaml:"history"`
	Discord  DiscordConfig   `yaml:"discord"`
	Feeds    FeedsConfig     `yaml:"feeds"`
	OpenAI   OpenAIConfig    `yaml:"openai"`
	Logging  LoggingConfig   `yaml:"logging"`
	Training training.Config `yaml:"training"`
}

// ServerConfig covers the HTTP API.
type ServerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimit is the sustained number of analysis requests per second.
	RateLimit    float64 `yaml:"rate_limit"`
	RateBurst    int     `yaml:"rate_burst"`
	MaxBodyBytes int64   `yaml:"max_body_bytes"`
}

// ModelConfig locates the artifacts and tunes the threshold policy.
type ModelConfig struct {
	VectorizerPath string           `yaml:"vectorizer_path"`
	ClassifierPath string           `yaml:"classifier_path"`
	Thresholds     []predict.Bucket `yaml:"thresholds"`
	UncertainFloor float64          `yaml:"uncertain_floor"`
}

// Policy returns the configured threshold policy.
func (m ModelConfig) Policy() predict.ThresholdPolicy {
	return predict.ThresholdPolicy{
		Buckets:        append([]predict.Bucket(nil), m.Thresholds...),
		UncertainFloor: m.UncertainFloor,
	}
}

type ExtractConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	MaxBytes  int64         `yaml:"max_bytes"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	CacheSize int           `yaml:"cache_size"`
}

// Options converts to extractor options.
func (e ExtractConfig) Options() extract.Options {
	return extract.Options{
		Timeout:   e.Timeout,
		UserAgent: e.UserAgent,
		MaxBytes:  e.MaxBytes,
		CacheTTL:  e.CacheTTL,
		CacheSize: e.CacheSize,
	}
}

type LinksConfig struct {
	TemplatesPath string        `yaml:"templates_path"`
	Watch         bool          `yaml:"watch"`
	NewsSearch    bool          `yaml:"news_search"`
	NewsSearchURL string        `yaml:"news_search_url"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Driver        string `yaml:"driver"`
	DSN           string `yaml:"dsn"`
	RetentionDays int    `yaml:"retention_days"`
	PruneSchedule string `yaml:"prune_schedule"`
}

// Database returns the store connection settings.
func (h HistoryConfig) Database() history.Config {
	return history.Config{Driver: h.Driver, DSN: h.DSN}
}

type DiscordConfig struct {
	Enabled        bool     `yaml:"enabled"`
	BotToken       string   `yaml:"bot_token"`
	AppID          string   `yaml:"app_id"`
	GuildID        string   `yaml:"guild_id"`
	AlertChannelID string   `yaml:"alert_channel_id"`
	WebhookURLs    []string `yaml:"webhook_urls"`
}

type FeedsConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Schedule string   `yaml:"schedule"`
	URLs     []string `yaml:"urls"`
	// MaxItems caps the new items analysed per feed per run.
	MaxItems int `yaml:"max_items"`
	// RatePerMinute paces article fetches across all feeds.
	RatePerMinute int `yaml:"rate_per_minute"`
}

type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Options converts to condenser options.
func (o OpenAIConfig) Options() links.OpenAIOptions {
	return links.OpenAIOptions{
		APIKey:  o.APIKey,
		Model:   o.Model,
		BaseURL: o.BaseURL,
		Timeout: o.Timeout,
	}
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

// Logger converts to logger settings.
func (l LoggingConfig) Logger() logging.Config {
	return logging.Config{Level: l.Level, Format: l.Format, Path: l.Path}
}

// Default returns the built-in configuration.
func Default() *Config {
	policy := predict.DefaultPolicy()
	return &Config{
		Version: "1.0.0",
		Server: ServerConfig{
			Enabled:         true,
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       2,
			RateBurst:       10,
			MaxBodyBytes:    1 << 20,
		},
		Model: ModelConfig{
			VectorizerPath: "model/vectorizer.json",
			ClassifierPath: "model/classifier.json",
			Thresholds:     policy.Buckets,
			UncertainFloor: policy.UncertainFloor,
		},
		Extract: ExtractConfig{
			Timeout:   extract.DefaultTimeout,
			UserAgent: extract.DefaultUserAgent,
			MaxBytes:  extract.DefaultMaxBytes,
			CacheTTL:  extract.DefaultCacheTTL,
			CacheSize: extract.DefaultCacheSize,
		},
		Links: LinksConfig{
			Watch:         true,
			NewsSearch:    true,
			NewsSearchURL: links.DefaultNewsSearchURL,
			CacheTTL:      30 * time.Minute,
		},
		History: HistoryConfig{
			Enabled:       true,
			Driver:        history.DriverSQLite,
			DSN:           "data/factlens.db",
			RetentionDays: 30,
			PruneSchedule: "0 3 * * *",
		},
		Feeds: FeedsConfig{
			Schedule:      "*/15 * * * *",
			MaxItems:      10,
			RatePerMinute: 30,
		},
		OpenAI: OpenAIConfig{
			Timeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Training: training.DefaultConfig(),
	}
}

// Load builds the configuration. path is an optional YAML file; envFiles are
// optional .env files, silently skipped when missing. Variables already set in
// the process environment win over .env values.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperror.NewConfigError(apperror.ErrConfigLoad, "failed to read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperror.NewConfigError(apperror.ErrConfigLoad, "failed to parse config file", err)
		}
	}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, apperror.NewConfigError(apperror.ErrConfigLoad, fmt.Sprintf("failed to load %s", file), err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the configuration.
func (c *Config) applyEnv() {
	c.Version = GetEnvString("FACTLENS_VERSION", c.Version)

	c.Server.Enabled = GetEnvBool("API_ENABLED", c.Server.Enabled)
	c.Server.Addr = GetEnvString("LISTEN_ADDR", c.Server.Addr)
	c.Server.RateLimit = GetEnvFloat("RATE_LIMIT", c.Server.RateLimit)
	c.Server.RateBurst = GetEnvInt("RATE_BURST", c.Server.RateBurst)
	c.Server.ShutdownTimeout = GetEnvDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Model.VectorizerPath = GetEnvString("VECTORIZER_PATH", c.Model.VectorizerPath)
	c.Model.ClassifierPath = GetEnvString("CLASSIFIER_PATH", c.Model.ClassifierPath)

	c.Extract.Timeout = GetEnvDuration("EXTRACT_TIMEOUT", c.Extract.Timeout)
	c.Extract.UserAgent = GetEnvString("USER_AGENT", c.Extract.UserAgent)

	c.Links.TemplatesPath = GetEnvString("LINK_TEMPLATES", c.Links.TemplatesPath)
	c.Links.NewsSearch = GetEnvBool("NEWS_SEARCH", c.Links.NewsSearch)

	c.History.Enabled = GetEnvBool("ENABLE_DATABASE", c.History.Enabled)
	c.History.Driver = GetEnvString("DATABASE_DRIVER", c.History.Driver)
	c.History.DSN = GetEnvString("DATABASE_URL", c.History.DSN)
	c.History.RetentionDays = GetEnvInt("HISTORY_RETENTION_DAYS", c.History.RetentionDays)

	c.Discord.BotToken = GetEnvString("BOT_TOKEN", c.Discord.BotToken)
	c.Discord.AppID = GetEnvString("APP_ID", c.Discord.AppID)
	c.Discord.GuildID = GetEnvString("GUILD_ID", c.Discord.GuildID)
	c.Discord.AlertChannelID = GetEnvString("ALERT_CHANNEL_ID", c.Discord.AlertChannelID)
	c.Discord.WebhookURLs = GetEnvStringSlice("DISCORD_WEBHOOK_URLS", c.Discord.WebhookURLs)
	c.Discord.Enabled = GetEnvBool("ENABLE_DISCORD", c.Discord.Enabled || c.Discord.BotToken != "")

	c.Feeds.URLs = GetEnvStringSlice("FEED_URLS", c.Feeds.URLs)
	c.Feeds.Schedule = GetEnvString("FEED_SCHEDULE", c.Feeds.Schedule)
	c.Feeds.Enabled = GetEnvBool("ENABLE_FEEDS", c.Feeds.Enabled)

	c.OpenAI.APIKey = GetEnvString("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.Model = GetEnvString("OPENAI_MODEL", c.OpenAI.Model)
	c.OpenAI.BaseURL = GetEnvString("OPENAI_BASE_URL", c.OpenAI.BaseURL)

	c.Logging.Level = GetEnvString("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = GetEnvString("LOG_FORMAT", c.Logging.Format)
	c.Logging.Path = GetEnvString("LOG_FILE", c.Logging.Path)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var issues []string
	addf := func(format string, args ...interface{}) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if c.Server.Enabled {
		if strings.TrimSpace(c.Server.Addr) == "" {
			addf("server.addr is required")
		}
		if c.Server.RateLimit <= 0 {
			addf("server.rate_limit must be positive")
		}
		if c.Server.RateBurst < 1 {
			addf("server.rate_burst must be at least 1")
		}
	}

	if c.Model.VectorizerPath == "" || c.Model.ClassifierPath == "" {
		addf("model.vectorizer_path and model.classifier_path are required")
	}
	if len(c.Model.Thresholds) == 0 {
		addf("model.thresholds must not be empty")
	}
	for i, b := range c.Model.Thresholds {
		if b.MinWords < 0 {
			addf("model.thresholds[%d].min_words must not be negative", i)
		}
		if b.Threshold < 0.5 || b.Threshold >= 1 {
			addf("model.thresholds[%d].threshold must be in [0.5, 1)", i)
		}
	}
	if c.Model.UncertainFloor < 0.5 || c.Model.UncertainFloor > 1 {
		addf("model.uncertain_floor must be in [0.5, 1]")
	}

	if c.History.Enabled {
		switch strings.ToLower(c.History.Driver) {
		case history.DriverPostgres, "postgresql", "pg", history.DriverSQLite, "sqlite":
		default:
			addf("history.driver %q is not supported", c.History.Driver)
		}
		if c.History.DSN == "" {
			addf("history.dsn is required when history is enabled")
		}
		if c.History.RetentionDays < 0 {
			addf("history.retention_days must not be negative")
		}
		if c.History.RetentionDays > 0 {
			if _, err := cron.ParseStandard(c.History.PruneSchedule); err != nil {
				addf("history.prune_schedule: %v", err)
			}
		}
	}

	if c.Discord.Enabled {
		if c.Discord.BotToken == "" {
			addf("BOT_TOKEN is required when discord is enabled")
		}
		if c.Discord.AppID == "" {
			addf("APP_ID is required when discord is enabled")
		}
	}

	if c.Feeds.Enabled {
		if len(c.Feeds.URLs) == 0 {
			addf("feeds.urls must list at least one feed when feeds are enabled")
		}
		if _, err := cron.ParseStandard(c.Feeds.Schedule); err != nil {
			addf("feeds.schedule: %v", err)
		}
		if c.Feeds.RatePerMinute <= 0 {
			addf("feeds.rate_per_minute must be positive")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		addf("logging.level %q is not one of debug, info, warning, error", c.Logging.Level)
	}

	if c.Training.TestSize <= 0 || c.Training.TestSize >= 1 {
		addf("training.test_size must be between 0 and 1")
	}

	if len(issues) > 0 {
		return apperror.NewConfigError(apperror.ErrConfigValidation,
			"invalid configuration: "+strings.Join(issues, "; "), nil)
	}
	return nil
}
