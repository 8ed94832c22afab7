package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig_Triggers(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.Telegram.TriggerCommands) == 0 {
		t.Error("default trigger commands should not be empty")
	}
	if !cfg.Telegram.ImageUnderstanding {
		t.Error("image understanding should be enabled by default")
	}
}

func TestDefaultConfig_AlbumLimits(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Telegram.MaxAlbumImages == 0 {
		t.Error("MaxAlbumImages should have a default value")
	}
	if cfg.Telegram.AlbumQuietSeconds == 0 {
		t.Error("AlbumQuietSeconds should have a default value")
	}
	if cfg.Telegram.DefaultImagePrompt == "" {
		t.Error("DefaultImagePrompt should have a default value")
	}
}

func TestDefaultConfig_Gemini(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Gemini.Model == "" {
		t.Error("Model should not be empty")
	}
	if cfg.Gemini.APIBase == "" {
		t.Error("APIBase should not be empty")
	}
	if cfg.Gemini.TimeoutSecs == 0 {
		t.Error("TimeoutSecs should not be zero")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TELEBOT_TELEGRAM_TOKEN", "token-from-env")
	t.Setenv("TELEBOT_GEMINI_API_KEY", "key-from-env")
	t.Setenv("TELEBOT_HISTORY_LIMIT", "7")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.Token != "token-from-env" {
		t.Errorf("token not taken from env: %q", cfg.Telegram.Token)
	}
	if cfg.History.Limit != 7 {
		t.Errorf("history limit not taken from env: %d", cfg.History.Limit)
	}
}

func TestLoadConfig_FilePlusEnvRef(t *testing.T) {
	t.Setenv("MY_GEMINI_KEY", "resolved-key")
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"telegram": {"token": "file-token", "trigger_commands": ["/ask"]},
		"gemini": {"api_key": "${MY_GEMINI_KEY}"}
	}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.Token != "file-token" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Gemini.APIKey != "resolved-key" {
		t.Errorf("env ref not resolved: %q", cfg.Gemini.APIKey)
	}
	if len(cfg.Telegram.TriggerCommands) != 1 || cfg.Telegram.TriggerCommands[0] != "/ask" {
		t.Errorf("trigger commands = %v", cfg.Telegram.TriggerCommands)
	}
}

func TestLoadConfig_MissingCredentials(t *testing.T) {
	os.Unsetenv("TELEBOT_TELEGRAM_TOKEN")
	os.Unsetenv("TELEBOT_GEMINI_API_KEY")

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing credentials")
	}
}

func TestResolveEnvRefKeepsOriginalWhenUnset(t *testing.T) {
	os.Unsetenv("TELEBOT_UNSET_REF")
	raw := "${TELEBOT_UNSET_REF}"
	if got := resolveEnvRef(raw); got != raw {
		t.Fatalf("expected unresolved ref to stay unchanged, got %q", got)
	}
}
