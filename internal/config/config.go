// Package config provides YAML-based configuration loading for Dripline.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/zulandar/dripline/internal/models"
	"github.com/zulandar/dripline/internal/observability"
	"github.com/zulandar/dripline/internal/scheduler"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used when none is given.
const DefaultPath = "dripline.yaml"

// Environment variables that override secrets in the file.
const (
	EnvSessionID    = "INSTAGRAM_SESSIONID"
	EnvGeminiKey    = "GEMINI_API_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvSlackToken   = "SLACK_BOT_TOKEN"
	EnvDiscordToken = "DISCORD_BOT_TOKEN"
)

// LLM providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// Lead store backends.
const (
	BackendGoogle = "google"
	BackendCSV    = "csv"
)

// Config is the top-level Dripline configuration, loaded from dripline.yaml.
type Config struct {
	Instagram InstagramConfig `yaml:"instagram"`
	LLM       LLMConfig       `yaml:"llm"`
	Sheets    SheetsConfig    `yaml:"sheets"`
	Drip      DripConfig      `yaml:"drip"`
	Outreach  OutreachConfig  `yaml:"outreach"`
	Notify    NotifyConfig    `yaml:"notify"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstagramConfig holds the session and the candidate rules.
type InstagramConfig struct {
	SessionID      string  `yaml:"session_id"`
	BaseURL        string  `yaml:"base_url"`
	TestMode       bool    `yaml:"test_mode"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MinFollowers   int     `yaml:"min_followers"`
	MaxFollowers   int     `yaml:"max_followers"`
	MinEngagement  float64 `yaml:"min_engagement"`
	SamplePosts    int     `yaml:"sample_posts"`
}

// LLMConfig selects the message generator.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"` // OpenAI-compatible endpoint
}

// SheetsConfig locates the lead list.
type SheetsConfig struct {
	Backend         string         `yaml:"backend"`
	SpreadsheetID   string         `yaml:"spreadsheet_id"`
	Worksheet       string         `yaml:"worksheet"`
	CredentialsFile string         `yaml:"credentials_file"`
	CSVFile         string         `yaml:"csv_file"`
	Columns         models.Columns `yaml:"columns"`
}

// DripConfig defines the message sequence.
type DripConfig struct {
	DelayDays      int            `yaml:"delay_days"`
	MaxSequence    *int           `yaml:"max_sequence"`
	DefaultMessage string         `yaml:"default_message"`
	Templates      map[int]string `yaml:"templates"`
}

// OutreachConfig bounds a single run.
type OutreachConfig struct {
	MaxDailyMessages      *int             `yaml:"max_daily_messages"`
	RateLimit             *RateLimitConfig `yaml:"rate_limit"`
	DefaultDMDelaySeconds int              `yaml:"default_dm_delay_seconds"`
	InFlightPolicy        string           `yaml:"in_flight_policy"`
	CountPriorSends       bool             `yaml:"count_prior_sends"`
}

// RateLimitConfig is the randomized pause between sends.
type RateLimitConfig struct {
	MinSeconds int `yaml:"min_seconds"`
	MaxSeconds int `yaml:"max_seconds"`
}

// NotifyConfig configures run summaries to chat.
type NotifyConfig struct {
	Slack    ChatConfig `yaml:"slack"`
	Discord  ChatConfig `yaml:"discord"`
	SkipIdle bool       `yaml:"skip_idle"` // no message when a run did nothing
}

// ChatConfig holds credentials for one chat platform.
type ChatConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// Enabled reports whether the platform is configured.
func (c ChatConfig) Enabled() bool { return c.BotToken != "" }

// ScheduleConfig holds cron expressions for the daemon.
type ScheduleConfig struct {
	Outreach string `yaml:"outreach"`
	Replies  string `yaml:"replies"`
	Timezone string `yaml:"timezone"`
}

// DashboardConfig configures the status server.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MetricsConfig configures metric export for one-shot runs.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // node-exporter textfile path
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config. Secrets set in the
// environment take precedence over the file.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides secrets from the environment.
func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Instagram.SessionID, EnvSessionID)
	switch strings.ToLower(c.LLM.Provider) {
	case "", ProviderGemini:
		set(&c.LLM.APIKey, EnvGeminiKey)
	case ProviderOpenAI:
		set(&c.LLM.APIKey, EnvOpenAIKey)
	}
	set(&c.Notify.Slack.BotToken, EnvSlackToken)
	set(&c.Notify.Discord.BotToken, EnvDiscordToken)
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Instagram.MinFollowers == 0 {
		c.Instagram.MinFollowers = 1000
	}
	if c.Instagram.MaxFollowers == 0 {
		c.Instagram.MaxFollowers = 50000
	}
	if c.Instagram.SamplePosts == 0 {
		c.Instagram.SamplePosts = 10
	}
	if c.Instagram.TimeoutSeconds == 0 {
		c.Instagram.TimeoutSeconds = 30
	}

	c.LLM.Provider = strings.ToLower(c.LLM.Provider)
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderGemini
	}
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case ProviderGemini:
			c.LLM.Model = "gemini-2.0-flash"
		case ProviderOpenAI:
			c.LLM.Model = "gpt-4o-mini"
		}
	}

	c.Sheets.Backend = strings.ToLower(c.Sheets.Backend)
	if c.Sheets.Backend == "" {
		c.Sheets.Backend = BackendGoogle
	}
	if c.Sheets.Worksheet == "" {
		c.Sheets.Worksheet = "Sheet1"
	}
	if c.Sheets.CredentialsFile == "" {
		c.Sheets.CredentialsFile = "credentials.json"
	}
	def := models.DefaultColumns()
	if c.Sheets.Columns.ProfileURL == "" {
		c.Sheets.Columns.ProfileURL = def.ProfileURL
	}
	if c.Sheets.Columns.Status == "" {
		c.Sheets.Columns.Status = def.Status
	}
	if c.Sheets.Columns.MessageNumber == "" {
		c.Sheets.Columns.MessageNumber = def.MessageNumber
	}
	if c.Sheets.Columns.LastMessageDate == "" {
		c.Sheets.Columns.LastMessageDate = def.LastMessageDate
	}

	if c.Drip.DelayDays == 0 {
		c.Drip.DelayDays = 3
	}
	if c.Drip.MaxSequence == nil {
		n := 4
		c.Drip.MaxSequence = &n
	}

	if c.Outreach.MaxDailyMessages == nil {
		n := 25
		c.Outreach.MaxDailyMessages = &n
	}
	if c.Outreach.RateLimit == nil {
		if d := c.Outreach.DefaultDMDelaySeconds; d > 0 {
			c.Outreach.RateLimit = &RateLimitConfig{MinSeconds: d, MaxSeconds: d}
		} else {
			c.Outreach.RateLimit = &RateLimitConfig{MinSeconds: 45, MaxSeconds: 120}
		}
	}
	c.Outreach.InFlightPolicy = strings.ToLower(c.Outreach.InFlightPolicy)
	if c.Outreach.InFlightPolicy == "" {
		c.Outreach.InFlightPolicy = "retry"
	}

	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.Logging.Format == "" {
		c.Logging.Format = observability.FormatAuto
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Instagram.SessionID == "" {
		errs = append(errs, fmt.Sprintf("instagram.session_id is required (or set %s)", EnvSessionID))
	}
	if c.Instagram.MinFollowers < 0 || c.Instagram.MaxFollowers < c.Instagram.MinFollowers {
		errs = append(errs, "instagram follower bounds must satisfy 0 <= min_followers <= max_followers")
	}
	if c.Instagram.MinEngagement < 0 {
		errs = append(errs, "instagram.min_engagement must be non-negative")
	}
	if c.Instagram.SamplePosts < 0 {
		errs = append(errs, "instagram.sample_posts must be non-negative")
	}

	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenAI:
		if c.LLM.APIKey == "" {
			key := EnvGeminiKey
			if c.LLM.Provider == ProviderOpenAI {
				key = EnvOpenAIKey
			}
			errs = append(errs, fmt.Sprintf("llm.api_key is required for provider %s (or set %s)", c.LLM.Provider, key))
		}
	case ProviderNone:
	default:
		errs = append(errs, fmt.Sprintf("llm.provider %q must be one of gemini, openai, none", c.LLM.Provider))
	}

	switch c.Sheets.Backend {
	case BackendGoogle:
		if c.Sheets.SpreadsheetID == "" {
			errs = append(errs, "sheets.spreadsheet_id is required")
		}
	case BackendCSV:
		if c.Sheets.CSVFile == "" {
			errs = append(errs, "sheets.csv_file is required for the csv backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("sheets.backend %q must be google or csv", c.Sheets.Backend))
	}

	if c.Drip.DelayDays < 0 {
		errs = append(errs, "drip.delay_days must be positive")
	}
	if *c.Drip.MaxSequence < 0 {
		errs = append(errs, "drip.max_sequence must be non-negative")
	}
	for n := range c.Drip.Templates {
		if n < 1 || n > *c.Drip.MaxSequence {
			errs = append(errs, fmt.Sprintf("drip.templates[%d] is outside the sequence 1..%d", n, *c.Drip.MaxSequence))
		}
	}
	if strings.TrimSpace(c.Drip.DefaultMessage) == "" {
		errs = append(errs, "drip.default_message is required")
	}

	if *c.Outreach.MaxDailyMessages < 0 {
		errs = append(errs, "outreach.max_daily_messages must be non-negative")
	}
	if rl := c.Outreach.RateLimit; rl.MinSeconds < 0 || rl.MaxSeconds < 0 || rl.MinSeconds > rl.MaxSeconds {
		errs = append(errs, "outreach.rate_limit must satisfy 0 <= min_seconds <= max_seconds")
	}
	if p := c.Outreach.InFlightPolicy; p != "retry" && p != "hold" {
		errs = append(errs, fmt.Sprintf("outreach.in_flight_policy %q must be retry or hold", p))
	}

	if c.Notify.Slack.Enabled() && c.Notify.Slack.Channel == "" {
		errs = append(errs, "notify.slack.channel is required when a bot token is set")
	}
	if c.Notify.Discord.Enabled() && c.Notify.Discord.Channel == "" {
		errs = append(errs, "notify.discord.channel is required when a bot token is set")
	}

	if expr := c.Schedule.Outreach; expr != "" {
		if err := scheduler.Validate(expr); err != nil {
			errs = append(errs, fmt.Sprintf("schedule.outreach: %v", err))
		}
	}
	if expr := c.Schedule.Replies; expr != "" {
		if err := scheduler.Validate(expr); err != nil {
			errs = append(errs, fmt.Sprintf("schedule.replies: %v", err))
		}
	}
	if c.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("schedule.timezone %q: %v", c.Schedule.Timezone, err))
		}
	}

	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		errs = append(errs, "dashboard.port must be a valid port")
	}
	if _, err := observability.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Sprintf("logging.level %q is not a valid level", c.Logging.Level))
	}
	switch c.Logging.Format {
	case observability.FormatAuto, observability.FormatJSON, observability.FormatText:
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q must be auto, json or text", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Location returns the schedule timezone, defaulting to local time.
func (c *Config) Location() *time.Location {
	if c.Schedule.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// MaxSequence returns the configured sequence length.
func (c *Config) MaxSequence() int { return *c.Drip.MaxSequence }

// MaxDaily returns the per-run send cap.
func (c *Config) MaxDaily() int { return *c.Outreach.MaxDailyMessages }
