package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "NEWSROOM_CONFIG"
	youtubeAPIKeyEnv  = "YOUTUBE_API_KEY"
	llmAPIKeyEnv      = "LLM_API_KEY"
	notionTokenEnv    = "NOTION_TOKEN"
	notionDatabaseEnv = "NOTION_DATABASE_ID"
	dryRunEnv         = "DRY_RUN"
)

// ValidationError reports a missing or malformed required run parameter.
// It is fatal: the pipeline must not start extraction with an invalid config.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config holds every setting required across the application.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Window   WindowConfig   `yaml:"window"`
	Feeds    []FeedConfig   `yaml:"feeds"`
	Channels []ChannelConfig `yaml:"channels"`
	People   []PersonConfig `yaml:"people"`
	YouTube  YouTubeConfig  `yaml:"youtube"`
	LLM      LLMConfig      `yaml:"llm"`
	Notion   NotionConfig   `yaml:"notion"`
	Index    IndexConfig    `yaml:"index"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	DryRun   bool           `yaml:"dryRun"`
}

// LoggingConfig controls slog verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// WindowConfig describes how the run window is derived when no override is
// given: [last successful run, now], clamped to the backfill cutoff floor.
type WindowConfig struct {
	Interval       time.Duration `yaml:"interval"`
	BackfillCutoff string        `yaml:"backfillCutoff"`
}

// CutoffTime parses the absolute backfill floor date.
func (w WindowConfig) CutoffTime() (time.Time, error) {
	if w.BackfillCutoff == "" {
		return time.Time{}, ValidationError{Field: "window.backfillCutoff", Reason: "required"}
	}
	t, err := time.Parse("2006-01-02", w.BackfillCutoff)
	if err != nil {
		return time.Time{}, ValidationError{Field: "window.backfillCutoff", Reason: "must be YYYY-MM-DD"}
	}
	return t.UTC(), nil
}

// FeedConfig describes one syndication feed endpoint.
type FeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// Mixed marks feeds that publish on multiple topics; items from mixed
	// feeds must pass the AI-relevance filter before enrichment.
	Mixed bool `yaml:"mixed"`
}

// ChannelConfig describes one tracked video channel.
type ChannelConfig struct {
	Name      string `yaml:"name"`
	Handle    string `yaml:"handle"`
	ChannelID string `yaml:"channelId"`
	Enabled   *bool  `yaml:"enabled"`
}

// IsEnabled defaults to true when the flag is omitted.
func (c ChannelConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// PersonConfig describes one tracked person for appearance search.
type PersonConfig struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// YouTubeConfig wires the video platform client.
type YouTubeConfig struct {
	APIKey           string `yaml:"apiKey"`
	PageSize         int    `yaml:"pageSize"`
	MaxPages         int    `yaml:"maxPages"`
	MaxPeoplePerRun  int    `yaml:"maxPeoplePerRun"`
	ResultsPerPerson int    `yaml:"resultsPerPerson"`
}

// LLMConfig defines how to contact the enrichment model.
type LLMConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"apiKey"`
	BatchSize   int           `yaml:"batchSize"`
	MaxAttempts int           `yaml:"maxAttempts"`
	RetryDelay  time.Duration `yaml:"retryDelay"`
}

// NotionConfig describes the destination store.
type NotionConfig struct {
	Token      string `yaml:"token"`
	DatabaseID string `yaml:"databaseId"`
}

// IndexConfig locates the durable known-ID index.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// PipelineConfig bounds the run itself.
type PipelineConfig struct {
	LoadBatchSize     int           `yaml:"loadBatchSize"`
	WorkDeadline      time.Duration `yaml:"workDeadline"`
	ShortsMaxDuration time.Duration `yaml:"shortsMaxDuration"`
}

// Load reads the YAML config (path from NEWSROOM_CONFIG unless given
// explicitly), after letting godotenv populate the environment, then applies
// environment overrides on top.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(youtubeAPIKeyEnv); v != "" {
		c.YouTube.APIKey = v
	}
	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(notionTokenEnv); v != "" {
		c.Notion.Token = v
	}
	if v := os.Getenv(notionDatabaseEnv); v != "" {
		c.Notion.DatabaseID = v
	}
	if v := os.Getenv(dryRunEnv); v != "" {
		c.DryRun = strings.EqualFold(v, "true") || v == "1"
	}
}

// Validate checks required run parameters. Returns a ValidationError for the
// first missing one.
func (c Config) Validate() error {
	if _, err := c.Window.CutoffTime(); err != nil {
		return err
	}
	if len(c.Feeds) == 0 && len(c.Channels) == 0 && len(c.People) == 0 {
		return ValidationError{Field: "sources", Reason: "at least one feed, channel, or person is required"}
	}
	for i, f := range c.Feeds {
		if f.URL == "" {
			return ValidationError{Field: fmt.Sprintf("feeds[%d].url", i), Reason: "required"}
		}
	}
	if (len(c.Channels) > 0 || len(c.People) > 0) && c.YouTube.APIKey == "" {
		return ValidationError{Field: "youtube.apiKey", Reason: "required when channels or people are configured"}
	}
	if !c.DryRun {
		if c.Notion.Token == "" {
			return ValidationError{Field: "notion.token", Reason: "required"}
		}
		if c.Notion.DatabaseID == "" {
			return ValidationError{Field: "notion.databaseId", Reason: "required"}
		}
	}
	if c.Index.Path == "" {
		return ValidationError{Field: "index.path", Reason: "required"}
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Window: WindowConfig{
			Interval:       6 * time.Hour,
			BackfillCutoff: "2024-01-01",
		},
		YouTube: YouTubeConfig{
			PageSize:         50,
			MaxPages:         10,
			MaxPeoplePerRun:  3,
			ResultsPerPerson: 5,
		},
		LLM: LLMConfig{
			Endpoint:    "https://generativelanguage.googleapis.com/v1beta/openai",
			Model:       "gemini-2.5-flash",
			BatchSize:   10,
			MaxAttempts: 3,
			RetryDelay:  2 * time.Second,
		},
		Index: IndexConfig{Path: "state/index"},
		Pipeline: PipelineConfig{
			LoadBatchSize:     10,
			WorkDeadline:      20 * time.Minute,
			ShortsMaxDuration: 60 * time.Second,
		},
	}
}
