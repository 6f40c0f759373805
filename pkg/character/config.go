package character

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/teslashibe/go-commander/pkg/history"
)

// Voice providers.
const (
	VoiceElevenLabs = "elevenlabs"
	VoiceOpenAI     = "openai"
	VoiceAzure      = "azure"
)

// Defaults applied by Config.Normalize.
const (
	DefaultUsersName      = "Player"
	DefaultAzureVoiceName = "en-US-AvaMultilingualNeural"
	DefaultCharacterColor = "white"
	DefaultFontSize       = 32
	DefaultSubtitleWidth  = 1280
	DefaultImageAlignment = "n"
	imagesDir             = "images"
)

// Configuration errors. Loading a character that fails validation is fatal.
var (
	ErrNoName          = errors.New("character: name required")
	ErrNoVoiceID       = errors.New("character: voice id required")
	ErrNoAzureVoice    = errors.New("character: azure voice name required")
	ErrUnknownProvider = errors.New("character: unknown voice provider")
	ErrSelfPartner     = errors.New("character: cannot be its own scene partner")
	ErrNotFound        = errors.New("character: not defined")
)

// Config is the static definition of one character.
type Config struct {
	Name                string        `json:"name" yaml:"name"`
	DisplayName         string        `json:"display_name" yaml:"display_name"`
	UsersName           string        `json:"users_name" yaml:"users_name"`
	ActivationKey       string        `json:"activation_key" yaml:"activation_key"`
	ScenePartners       []string      `json:"scene_partners" yaml:"scene_partners"`
	FirstSystemMessage  SystemMessage `json:"first_system_message" yaml:"first_system_message"`
	MessageReplacements []Replacement `json:"message_replacements" yaml:"message_replacements"`
	History             HistoryConfig `json:"history" yaml:"history"`
	MonitorToScreenshot int           `json:"monitor_to_screenshot" yaml:"monitor_to_screenshot"`
	Model               string        `json:"model" yaml:"model"`
	Voice               VoiceConfig   `json:"voice" yaml:"voice"`
	Visuals             VisualsConfig `json:"visuals" yaml:"visuals"`
}

// SystemMessage is the personality prompt, written as a list of lines.
type SystemMessage struct {
	Content []string `json:"content" yaml:"content"`
}

// String joins the lines.
func (m SystemMessage) String() string {
	return strings.Join(m.Content, "\n")
}

// Replacement is a literal substitution applied to model output.
type Replacement struct {
	ToReplace   string `json:"to_replace" yaml:"to_replace"`
	ReplaceWith string `json:"replace_with" yaml:"replace_with"`
}

// HistoryConfig controls history length and restore.
type HistoryConfig struct {
	MaxLength int  `json:"max_history_length_messages" yaml:"max_history_length_messages"`
	Restore   bool `json:"restore_previous_history" yaml:"restore_previous_history"`
}

// VoiceConfig selects the speech synthesis voice.
type VoiceConfig struct {
	Provider       string `json:"provider" yaml:"provider"`
	VoiceID        string `json:"voice_id" yaml:"voice_id"`
	ModelID        string `json:"model_id" yaml:"model_id"`
	AzureVoiceName string `json:"azure_voice_name" yaml:"azure_voice_name"`

	// FallbackOpenAIVoice, when set, names an OpenAI voice used if the
	// primary provider fails.
	FallbackOpenAIVoice string `json:"fallback_openai_voice,omitempty" yaml:"fallback_openai_voice"`
}

// SupportsStyles reports whether the provider can render style prefixes.
func (v VoiceConfig) SupportsStyles() bool {
	return v.Provider == VoiceAzure || v.Provider == VoiceOpenAI
}

// VisualsConfig is presentation metadata consumed by the overlay.
type VisualsConfig struct {
	HideIdle       *bool            `json:"hide_character_when_idle" yaml:"hide_character_when_idle"`
	Images         map[State]string `json:"images" yaml:"images"`
	Prefixes       PrefixTable      `json:"supported_prefixes" yaml:"supported_prefixes"`
	StyleImageRoot string           `json:"image_voice_style_root_path" yaml:"image_voice_style_root_path"`
	ImageAlignment string           `json:"image_alignment" yaml:"image_alignment"`
	ImageX         int              `json:"image_xpos" yaml:"image_xpos"`
	ImageY         int              `json:"image_ypos" yaml:"image_ypos"`
	Subtitles      SubtitleConfig   `json:"subtitles" yaml:"subtitles"`
}

// SubtitleConfig styles the subtitle line.
type SubtitleConfig struct {
	Show               bool   `json:"show_subtitles" yaml:"show_subtitles"`
	UserTextColor      string `json:"user_text_color" yaml:"user_text_color"`
	CharacterTextColor string `json:"character_text_color" yaml:"character_text_color"`
	OutlineColor       string `json:"text_outline_color" yaml:"text_outline_color"`
	OutlineWidth       int    `json:"text_outline_width" yaml:"text_outline_width"`
	FontSize           int    `json:"font_size" yaml:"font_size"`
	X                  int    `json:"xpos" yaml:"xpos"`
	Y                  int    `json:"ypos" yaml:"ypos"`
	Width              int    `json:"width" yaml:"width"`
}

// HideWhenIdle defaults to true.
func (v VisualsConfig) HideWhenIdle() bool {
	return v.HideIdle == nil || *v.HideIdle
}

// Normalize fills defaults in place.
func (c *Config) Normalize() {
	if c.DisplayName == "" {
		c.DisplayName = c.Name
	}
	if c.UsersName == "" {
		c.UsersName = DefaultUsersName
	}
	if c.History.MaxLength <= 0 {
		c.History.MaxLength = history.DefaultMaxLength
	}
	if c.Voice.Provider == "" {
		c.Voice.Provider = VoiceElevenLabs
	}
	if c.Voice.Provider == VoiceAzure && c.Voice.AzureVoiceName == "" {
		c.Voice.AzureVoiceName = DefaultAzureVoiceName
	}
	v := &c.Visuals
	if v.ImageAlignment == "" {
		v.ImageAlignment = DefaultImageAlignment
	}
	if v.Subtitles.CharacterTextColor == "" {
		v.Subtitles.CharacterTextColor = DefaultCharacterColor
	}
	if v.Subtitles.UserTextColor == "" {
		v.Subtitles.UserTextColor = DefaultCharacterColor
	}
	if v.Subtitles.OutlineWidth == 0 {
		v.Subtitles.OutlineWidth = 2
	}
	if v.Subtitles.FontSize == 0 {
		v.Subtitles.FontSize = DefaultFontSize
	}
	if v.Subtitles.Width == 0 {
		v.Subtitles.Width = DefaultSubtitleWidth
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Name == "" {
		return ErrNoName
	}
	wrap := func(err error) error { return fmt.Errorf("character %q: %w", c.Name, err) }

	switch c.Voice.Provider {
	case VoiceElevenLabs:
		if c.Voice.VoiceID == "" {
			return wrap(ErrNoVoiceID)
		}
	case VoiceOpenAI:
	case VoiceAzure:
		if c.Voice.AzureVoiceName == "" {
			return wrap(ErrNoAzureVoice)
		}
	default:
		return wrap(fmt.Errorf("%w %q", ErrUnknownProvider, c.Voice.Provider))
	}
	for _, p := range c.ScenePartners {
		if p == c.Name {
			return wrap(ErrSelfPartner)
		}
	}
	for state := range c.Visuals.Images {
		if !state.Valid() {
			return wrap(fmt.Errorf("unknown state %q in images", state))
		}
	}
	return nil
}

// ImageFor returns the asset path of the static image for state, or "".
func (c *Config) ImageFor(state State) string {
	file, ok := c.Visuals.Images[state]
	if !ok || file == "" {
		return ""
	}
	return path.Join(imagesDir, file)
}

// StyleImage returns the asset path of the image for a style prefix token
// such as "(cheerful)". Voices without style support have none.
func (c *Config) StyleImage(token string) string {
	if !c.Voice.SupportsStyles() {
		return ""
	}
	bare := strings.NewReplacer("(", "", ")", "").Replace(token)
	if bare == "" {
		return ""
	}
	return path.Join(imagesDir, c.Visuals.StyleImageRoot+bare+".png")
}
