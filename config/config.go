package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Channel describes one watched YouTube channel and the topics that make a
// video from it worth notifying about. Keyword order matters: when the list
// is longer than the prompt cap, only the leading entries are sent to the
// language model.
type Channel struct {
	Name      string   `yaml:"name"`
	ChannelID string   `yaml:"channel_id"`
	Keywords  []string `yaml:"keywords"`
}

// Config holds all application configuration.
type Config struct {
	TelegramToken    string    `yaml:"telegram_token"`
	ChatID           int64     `yaml:"chat_id"`
	GeminiAPIKey     string    `yaml:"gemini_api_key"`
	GeminiModel      string    `yaml:"gemini_model"`
	RunTime          string    `yaml:"run_time"`
	Timezone         string    `yaml:"timezone"`
	LookbackHours    int       `yaml:"lookback_hours"`
	VideoDelaySecs   int       `yaml:"video_delay_secs"`
	RunTimeoutMins   int       `yaml:"run_timeout_mins"`
	FetchTimeoutSecs int       `yaml:"fetch_timeout_secs"`
	FallbackOnError  bool      `yaml:"fallback_on_error"`
	DBPath           string    `yaml:"db_path"`
	LogLevel         string    `yaml:"log_level"`
	Channels         []Channel `yaml:"channels"`
}

// runTimeRegex validates HH:MM format with proper ranges.
var runTimeRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// Load reads configuration from a YAML file and applies defaults and
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{FallbackOnError: true}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path from environment or default.
func GetConfigPath() string {
	if path := os.Getenv("YT_BOT_CONFIG"); path != "" {
		return path
	}
	return "./config.yaml"
}

// HasTelegram reports whether Telegram delivery is configured. Without it
// the run summary is logged instead of sent.
func (c *Config) HasTelegram() bool {
	return c.TelegramToken != "" && c.ChatID != 0
}

// HasGemini reports whether the language-model tiers can run. Without a key
// classification degrades to keyword matching only.
func (c *Config) HasGemini() bool {
	return c.GeminiAPIKey != ""
}

func applyDefaults(cfg *Config) {
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = "gemini-2.0-flash-lite"
	}
	if cfg.RunTime == "" {
		cfg.RunTime = "08:00"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.LookbackHours == 0 {
		cfg.LookbackHours = 24
	}
	if cfg.VideoDelaySecs == 0 {
		cfg.VideoDelaySecs = 90
	}
	if cfg.RunTimeoutMins == 0 {
		cfg.RunTimeoutMins = 45
	}
	if cfg.FetchTimeoutSecs == 0 {
		cfg.FetchTimeoutSecs = 15
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./yt-bot.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.TelegramToken = token
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.GeminiAPIKey = key
	}
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		var id int64
		if _, err := fmt.Sscanf(chatID, "%d", &id); err == nil {
			cfg.ChatID = id
		}
	}
	if dbPath := os.Getenv("YT_BOT_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
}

func validate(cfg *Config) error {
	if len(cfg.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	for i, ch := range cfg.Channels {
		if ch.ChannelID == "" {
			return fmt.Errorf("channel %d (%q): channel_id is required", i, ch.Name)
		}
		if len(ch.Keywords) == 0 {
			return fmt.Errorf("channel %d (%q): keywords must not be empty", i, ch.Name)
		}
		for _, kw := range ch.Keywords {
			if strings.TrimSpace(kw) == "" {
				return fmt.Errorf("channel %d (%q): blank keyword", i, ch.Name)
			}
		}
	}
	if !runTimeRegex.MatchString(cfg.RunTime) {
		return fmt.Errorf("run_time must be in HH:MM format (00:00-23:59), got %q", cfg.RunTime)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	return nil
}
