package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Telegram Telegram `json:"telegram"`
	Gemini   Gemini   `json:"gemini"`
	History  History  `json:"history"`
	Logging  Logging  `json:"logging"`
}

type Telegram struct {
	Token string `json:"token" env:"TELEBOT_TELEGRAM_TOKEN"`
	Proxy string `json:"proxy" env:"TELEBOT_TELEGRAM_PROXY"`

	// TriggerCommands are the prefixes that address the bot in group chats,
	// e.g. "/ai" or "bot,".
	TriggerCommands []string `json:"trigger_commands" env:"TELEBOT_TELEGRAM_TRIGGER_COMMANDS"`

	// ImageUnderstanding toggles photo handling entirely.
	ImageUnderstanding bool `json:"image_understanding" env:"TELEBOT_TELEGRAM_IMAGE_UNDERSTANDING"`

	// MaxAlbumImages caps how many photos of one album are processed.
	MaxAlbumImages int `json:"max_album_images" env:"TELEBOT_TELEGRAM_MAX_ALBUM_IMAGES"`

	// AlbumQuietSeconds is the debounce interval for album buffering: the
	// album is processed once no new photo has arrived for this long.
	AlbumQuietSeconds float64 `json:"album_quiet_seconds" env:"TELEBOT_TELEGRAM_ALBUM_QUIET_SECONDS"`

	// DefaultImagePrompt is sent to the model when photos arrive without any
	// usable caption.
	DefaultImagePrompt string `json:"default_image_prompt" env:"TELEBOT_TELEGRAM_DEFAULT_IMAGE_PROMPT"`
}

type Gemini struct {
	APIKey string `json:"api_key" env:"TELEBOT_GEMINI_API_KEY"`

	// APIBase points at Gemini's OpenAI-compatible endpoint. Override for
	// proxies or compatible self-hosted gateways.
	APIBase string `json:"api_base" env:"TELEBOT_GEMINI_API_BASE"`

	Model         string `json:"model" env:"TELEBOT_GEMINI_MODEL"`
	ThinkingModel string `json:"thinking_model" env:"TELEBOT_GEMINI_THINKING_MODEL"`
	TimeoutSecs   int    `json:"timeout_seconds" env:"TELEBOT_GEMINI_TIMEOUT_SECONDS"`
}

type History struct {
	// PostgresDSN enables the chat history store. Empty means history is
	// disabled and every request goes to the model without prior turns.
	PostgresDSN string `json:"postgres_dsn" env:"TELEBOT_HISTORY_POSTGRES_DSN"`
	Limit       int    `json:"limit" env:"TELEBOT_HISTORY_LIMIT"`
}

type Logging struct {
	Level       string `json:"level" env:"TELEBOT_LOGGING_LEVEL"`
	FileEnabled bool   `json:"file_enabled" env:"TELEBOT_LOGGING_FILE_ENABLED"`
	FilePath    string `json:"file_path" env:"TELEBOT_LOGGING_FILE_PATH"`

	// RotateMaxSizeMB and RotateMaxAgeDays control log file rotation; zero
	// disables the respective trigger.
	RotateMaxSizeMB  int `json:"rotate_max_size_mb" env:"TELEBOT_LOGGING_ROTATE_MAX_SIZE_MB"`
	RotateMaxAgeDays int `json:"rotate_max_age_days" env:"TELEBOT_LOGGING_ROTATE_MAX_AGE_DAYS"`
}

func DefaultConfig() *Config {
	return &Config{
		Telegram: Telegram{
			TriggerCommands:    []string{"/ai"},
			ImageUnderstanding: true,
			MaxAlbumImages:     5,
			AlbumQuietSeconds:  2.5,
			DefaultImagePrompt: "Describe this image.",
		},
		Gemini: Gemini{
			APIBase:       "https://generativelanguage.googleapis.com/v1beta/openai",
			Model:         "gemini-2.0-flash",
			ThinkingModel: "gemini-2.5-pro",
			TimeoutSecs:   120,
		},
		History: History{
			Limit: 20,
		},
		Logging: Logging{
			Level:            "INFO",
			FileEnabled:      false,
			FilePath:         "~/.telebot-gemini/telebot.log",
			RotateMaxSizeMB:  50,
			RotateMaxAgeDays: 7,
		},
	}
}

// LoadConfig reads the JSON config at path (missing file is fine, defaults
// apply) and then applies environment overrides on top.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	resolveSecretEnvRefs(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is not configured")
	}
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini api key is not configured")
	}
	if c.Telegram.MaxAlbumImages <= 0 {
		c.Telegram.MaxAlbumImages = 5
	}
	if c.Telegram.AlbumQuietSeconds <= 0 {
		c.Telegram.AlbumQuietSeconds = 2.5
	}
	if c.History.Limit <= 0 {
		c.History.Limit = 20
	}
	return nil
}

// Secrets may be written as "$VAR" or "${VAR}" in the JSON file instead of
// inline, so the file can be committed without credentials.
func resolveSecretEnvRefs(cfg *Config) {
	cfg.Telegram.Token = resolveEnvRef(cfg.Telegram.Token)
	cfg.Gemini.APIKey = resolveEnvRef(cfg.Gemini.APIKey)
	cfg.History.PostgresDSN = resolveEnvRef(cfg.History.PostgresDSN)
}

func resolveEnvRef(v string) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return v
	}
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		key := strings.TrimSpace(s[2 : len(s)-1])
		if key == "" {
			return v
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return v
	}
	if strings.HasPrefix(s, "$") && len(s) > 1 {
		if val, ok := os.LookupEnv(strings.TrimSpace(s[1:])); ok {
			return val
		}
	}
	return v
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
