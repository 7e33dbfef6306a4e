package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
telegram_token: "test-token"
chat_id: 12345
gemini_api_key: "test-key"
channels:
  - name: "Economy Daily"
    channel_id: "UC1"
    keywords: ["budget", "gdp", "tax"]
  - name: "Policy Watch"
    channel_id: "UC2"
    keywords: ["rbi", "monetary policy"]
`

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Channels) != 2 {
		t.Fatalf("got %d channels, want 2", len(cfg.Channels))
	}
	if cfg.Channels[0].Name != "Economy Daily" {
		t.Errorf("channel name = %q", cfg.Channels[0].Name)
	}
	if got := cfg.Channels[1].Keywords[1]; got != "monetary policy" {
		t.Errorf("keyword = %q, want %q", got, "monetary policy")
	}
	if !cfg.HasTelegram() {
		t.Error("HasTelegram = false with token and chat_id set")
	}
	if !cfg.HasGemini() {
		t.Error("HasGemini = false with key set")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.GeminiModel != "gemini-2.0-flash-lite" {
		t.Errorf("GeminiModel = %q", cfg.GeminiModel)
	}
	if cfg.RunTime != "08:00" {
		t.Errorf("RunTime = %q", cfg.RunTime)
	}
	if cfg.LookbackHours != 24 {
		t.Errorf("LookbackHours = %d", cfg.LookbackHours)
	}
	if cfg.VideoDelaySecs != 90 {
		t.Errorf("VideoDelaySecs = %d", cfg.VideoDelaySecs)
	}
	if cfg.RunTimeoutMins != 45 {
		t.Errorf("RunTimeoutMins = %d", cfg.RunTimeoutMins)
	}
	if !cfg.FallbackOnError {
		t.Error("FallbackOnError default = false, want true")
	}
}

func TestLoadMissingCredentialsIsAllowed(t *testing.T) {
	// Classification must degrade, not fail, without credentials.
	path := writeConfig(t, `
channels:
  - name: "Economy Daily"
    channel_id: "UC1"
    keywords: ["budget"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed without credentials: %v", err)
	}
	if cfg.HasTelegram() {
		t.Error("HasTelegram = true without credentials")
	}
	if cfg.HasGemini() {
		t.Error("HasGemini = true without key")
	}
}

func TestLoadRejectsEmptyChannels(t *testing.T) {
	path := writeConfig(t, `telegram_token: "t"`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing channels")
	}
}

func TestLoadRejectsChannelWithoutKeywords(t *testing.T) {
	path := writeConfig(t, `
channels:
  - name: "Economy Daily"
    channel_id: "UC1"
    keywords: []
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty keyword list")
	}
}

func TestLoadRejectsBadRunTime(t *testing.T) {
	path := writeConfig(t, validConfig+"\nrun_time: \"25:99\"\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid run_time")
	}
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	path := writeConfig(t, validConfig+"\ntimezone: \"Not/AZone\"\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, validConfig)

	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("YT_BOT_DB", "/tmp/override.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.GeminiAPIKey != "env-key" {
		t.Errorf("GeminiAPIKey = %q, want env override", cfg.GeminiAPIKey)
	}
	if cfg.TelegramToken != "env-token" {
		t.Errorf("TelegramToken = %q, want env override", cfg.TelegramToken)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Errorf("DBPath = %q, want env override", cfg.DBPath)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("YT_BOT_CONFIG", "/etc/yt-bot/config.yaml")
	if got := GetConfigPath(); got != "/etc/yt-bot/config.yaml" {
		t.Errorf("GetConfigPath = %q", got)
	}
}
