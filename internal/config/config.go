// Package config loads the process-wide settings for go-commander.
//
// Settings come from three layers, later ones winning: built-in defaults,
// an optional JSON or YAML file, and environment variables for secrets.
// Flag parsing is done in cmd/commander; this package is data only.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultPort             = "8420"
	DefaultCharactersDir    = "characters"
	DefaultHistoryDir       = "history"
	DefaultAssetsDir        = "assets"
	DefaultChatModel        = "gpt-4o"
	DefaultGeminiModel      = "gemini-2.0-flash"
	DefaultWhisperModel     = "whisper-1"
	DefaultChatPollSeconds  = 10
	DefaultChatBufferLength = 50
	DefaultFeedPollSeconds  = 60
)

// Chat provider names.
const (
	ChatOpenAI = "openai"
	ChatGemini = "gemini"
)

// Transcriber names.
const (
	TranscriberWhisper = "whisper"
	TranscriberConsole = "console"
)

// System holds every non-character setting.
type System struct {
	Port          string `json:"port" yaml:"port"`
	CharactersDir string `json:"characters_dir" yaml:"characters_dir"`
	HistoryDir    string `json:"history_dir" yaml:"history_dir"`
	AssetsDir     string `json:"assets_dir" yaml:"assets_dir"`

	// Shared microphone keys. An empty start key disables voice input.
	InputVoiceStartButton string `json:"input_voice_start_button" yaml:"input_voice_start_button"`
	InputVoiceEndButton   string `json:"input_voice_end_button" yaml:"input_voice_end_button"`
	ScreenshotButton      string `json:"screenshot_button" yaml:"screenshot_button"`

	Chat       ChatConfig       `json:"chat" yaml:"chat"`
	Speech     SpeechConfig     `json:"speech" yaml:"speech"`
	Audio      AudioConfig      `json:"audio" yaml:"audio"`
	Screenshot ScreenshotConfig `json:"screenshot" yaml:"screenshot"`
	Twitch     TwitchConfig     `json:"twitch" yaml:"twitch"`
	Feeds      FeedConfig       `json:"feeds" yaml:"feeds"`

	// Tokens are never read from the settings file.
	Tokens Tokens `json:"-" yaml:"-"`
}

// ChatConfig selects the chat completion backend.
type ChatConfig struct {
	Provider    string  `json:"provider" yaml:"provider"`
	Model       string  `json:"model" yaml:"model"`
	BaseURL     string  `json:"base_url" yaml:"base_url"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// SpeechConfig selects the transcriber.
type SpeechConfig struct {
	Transcriber   string   `json:"transcriber" yaml:"transcriber"`
	Model         string   `json:"model" yaml:"model"`
	Language      string   `json:"language" yaml:"language"`
	BaseURL       string   `json:"base_url" yaml:"base_url"`
	RecordCommand []string `json:"record_command" yaml:"record_command"`
}

// AudioConfig configures playback.
type AudioConfig struct {
	PlayerCommand []string `json:"player_command" yaml:"player_command"`
}

// ScreenshotConfig configures screen capture.
type ScreenshotConfig struct {
	Command []string `json:"command" yaml:"command"`
}

// TwitchConfig configures the live chat feed.
type TwitchConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	Channel         string `json:"channel" yaml:"channel"`
	Nick            string `json:"nick" yaml:"nick"`
	HistoryLength   int    `json:"chat_history_length" yaml:"chat_history_length"`
	PollIntervalSec int    `json:"chat_poll_interval_seconds" yaml:"chat_poll_interval_seconds"`
}

// FeedConfig configures RSS/Atom feeds used as an extra chat source.
type FeedConfig struct {
	URLs            []string `json:"urls" yaml:"urls"`
	PollIntervalSec int      `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`
}

// PollInterval returns the chat-feed sampling interval.
func (t TwitchConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalSec) * time.Second
}

// PollInterval returns the feed refresh interval.
func (f FeedConfig) PollInterval() time.Duration {
	return time.Duration(f.PollIntervalSec) * time.Second
}

// ChatFeedEnabled reports whether any chat-style source is configured.
func (s *System) ChatFeedEnabled() bool {
	return s.Twitch.Enabled || len(s.Feeds.URLs) > 0
}

// Default returns sensible defaults.
func Default() *System {
	s := &System{}
	s.applyDefaults()
	return s
}

// Load reads a settings file. The format is chosen by extension:
// .yaml/.yml are YAML, everything else JSON. An empty path returns defaults.
func Load(path string) (*System, error) {
	s := &System{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decode(path, data, s); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	s.applyDefaults()
	return s, nil
}

func decode(path string, data []byte, v any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}

func (s *System) applyDefaults() {
	if s.Port == "" {
		s.Port = DefaultPort
	}
	if s.CharactersDir == "" {
		s.CharactersDir = DefaultCharactersDir
	}
	if s.HistoryDir == "" {
		s.HistoryDir = DefaultHistoryDir
	}
	if s.AssetsDir == "" {
		s.AssetsDir = DefaultAssetsDir
	}
	if s.InputVoiceEndButton == "" {
		s.InputVoiceEndButton = s.InputVoiceStartButton
	}
	if s.Chat.Provider == "" {
		s.Chat.Provider = ChatOpenAI
	}
	if s.Chat.Model == "" {
		if s.Chat.Provider == ChatGemini {
			s.Chat.Model = DefaultGeminiModel
		} else {
			s.Chat.Model = DefaultChatModel
		}
	}
	if s.Speech.Transcriber == "" {
		s.Speech.Transcriber = TranscriberWhisper
	}
	if s.Speech.Model == "" {
		s.Speech.Model = DefaultWhisperModel
	}
	if s.Twitch.HistoryLength <= 0 {
		s.Twitch.HistoryLength = DefaultChatBufferLength
	}
	if s.Twitch.PollIntervalSec <= 0 {
		s.Twitch.PollIntervalSec = DefaultChatPollSeconds
	}
	if s.Feeds.PollIntervalSec <= 0 {
		s.Feeds.PollIntervalSec = DefaultFeedPollSeconds
	}
}

// Validate checks that the settings are usable.
func (s *System) Validate() error {
	switch s.Chat.Provider {
	case ChatOpenAI:
		if s.Tokens.OpenAI == "" && s.Chat.BaseURL == "" {
			return &ConfigError{Field: "Tokens.OpenAI", Message: EnvOpenAIKey + " is required for the openai chat provider"}
		}
	case ChatGemini:
		if s.Tokens.Google == "" {
			return &ConfigError{Field: "Tokens.Google", Message: EnvGoogleKey + " is required for the gemini chat provider"}
		}
	default:
		return &ConfigError{Field: "Chat.Provider", Message: fmt.Sprintf("unknown chat provider %q", s.Chat.Provider)}
	}

	switch s.Speech.Transcriber {
	case TranscriberConsole:
	case TranscriberWhisper:
		if s.InputVoiceStartButton != "" && s.Tokens.OpenAI == "" && s.Speech.BaseURL == "" {
			return &ConfigError{Field: "Tokens.OpenAI", Message: EnvOpenAIKey + " is required for whisper transcription"}
		}
	default:
		return &ConfigError{Field: "Speech.Transcriber", Message: fmt.Sprintf("unknown transcriber %q", s.Speech.Transcriber)}
	}

	if s.Twitch.Enabled {
		if s.Twitch.Channel == "" {
			return &ConfigError{Field: "Twitch.Channel", Message: "twitch channel is required when twitch is enabled"}
		}
		if s.Tokens.Twitch == "" {
			return &ConfigError{Field: "Tokens.Twitch", Message: EnvTwitchToken + " is required when twitch is enabled"}
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
