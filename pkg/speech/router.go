// Package speech turns a character's reply into audible speech: each
// character gets its own synthesis provider, chosen from its voice
// configuration, and every clip plays through one shared output.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/teslashibe/go-commander/internal/config"
	"github.com/teslashibe/go-commander/pkg/audio"
	"github.com/teslashibe/go-commander/pkg/character"
	"github.com/teslashibe/go-commander/pkg/tts"
)

// ErrNoVoice is returned when a character has no provider registered.
var ErrNoVoice = errors.New("speech: no voice for character")

// Factory builds the synthesis provider for one voice configuration.
type Factory func(voice character.VoiceConfig) (tts.Provider, error)

// Router implements the dispatcher's synthesizer.
type Router struct {
	player audio.Speaker
	logger *slog.Logger

	mu     sync.RWMutex
	voices map[string]tts.Provider
}

// NewRouter creates a router that plays through player.
func NewRouter(player audio.Speaker, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		player: player,
		logger: logger.With("component", "speech.router"),
		voices: make(map[string]tts.Provider),
	}
}

// Register assigns a provider to the named character, replacing any
// previous one.
func (r *Router) Register(name string, p tts.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.voices[name]; ok && old != p {
		_ = old.Close()
	}
	r.voices[name] = p
}

// Build registers a provider for every character in cast using factory.
func (r *Router) Build(cast *character.Cast, factory Factory) error {
	for _, ch := range cast.All() {
		p, err := factory(ch.Config().Voice)
		if err != nil {
			return fmt.Errorf("speech: voice for %s: %w", ch.Name(), err)
		}
		r.Register(ch.Name(), p)
		r.logger.Debug("voice registered", "character", ch.Name(), "provider", ch.Config().Voice.Provider)
	}
	return nil
}

// Provider returns the provider registered for name.
func (r *Router) Provider(name string) (tts.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.voices[name]
	return p, ok
}

// Speak synthesizes text in ch's voice and blocks until it has played.
func (r *Router) Speak(ctx context.Context, ch *character.Character, text, style string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	p, ok := r.Provider(ch.Name())
	if !ok {
		return fmt.Errorf("%w %s", ErrNoVoice, ch.Name())
	}

	clip, err := p.Synthesize(ctx, tts.Request{Text: text, Style: style})
	if err != nil {
		return fmt.Errorf("speech: synthesize: %w", err)
	}
	r.logger.Debug("synthesized",
		"character", ch.Name(),
		"chars", clip.CharCount,
		"latency_ms", clip.LatencyMs,
		"duration_ms", clip.Duration.Milliseconds(),
	)
	if err := r.player.Play(ctx, clip); err != nil {
		return fmt.Errorf("speech: play: %w", err)
	}
	return nil
}

// Close closes every registered provider.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, p := range r.voices {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	clear(r.voices)
	return errors.Join(errs...)
}

// ProviderFactory returns the default Factory, which picks ElevenLabs,
// OpenAI or Azure with credentials from tokens. A voice with a
// FallbackOpenAIVoice is chained in front of that OpenAI voice.
func ProviderFactory(tokens config.Tokens, logger *slog.Logger, extra ...tts.Option) Factory {
	return func(v character.VoiceConfig) (tts.Provider, error) {
		primary, err := newProvider(tokens, logger, v, extra)
		if err != nil || v.FallbackOpenAIVoice == "" || v.Provider == character.VoiceOpenAI {
			return primary, err
		}
		backup, err := newProvider(tokens, logger, character.VoiceConfig{
			Provider: character.VoiceOpenAI,
			VoiceID:  v.FallbackOpenAIVoice,
		}, extra)
		if err != nil {
			_ = primary.Close()
			return nil, fmt.Errorf("fallback voice: %w", err)
		}
		return tts.NewChain(logger, primary, backup)
	}
}

func newProvider(tokens config.Tokens, logger *slog.Logger, v character.VoiceConfig, extra []tts.Option) (tts.Provider, error) {
	opts := []tts.Option{tts.WithLogger(logger)}
	switch v.Provider {
	case character.VoiceElevenLabs, "":
		opts = append(opts, tts.WithAPIKey(tokens.ElevenLabs), tts.WithVoice(v.VoiceID))
		if v.ModelID != "" {
			opts = append(opts, tts.WithModel(v.ModelID))
		}
		return tts.NewElevenLabs(append(opts, extra...)...)
	case character.VoiceOpenAI:
		opts = append(opts, tts.WithAPIKey(tokens.OpenAI))
		if v.VoiceID != "" {
			opts = append(opts, tts.WithVoice(v.VoiceID))
		}
		if v.ModelID != "" {
			opts = append(opts, tts.WithModel(v.ModelID))
		}
		return tts.NewOpenAI(append(opts, extra...)...)
	case character.VoiceAzure:
		opts = append(opts,
			tts.WithAPIKey(tokens.AzureSpeech),
			tts.WithRegion(tokens.AzureRegion),
			tts.WithVoice(v.AzureVoiceName),
		)
		return tts.NewAzure(append(opts, extra...)...)
	default:
		return nil, fmt.Errorf("%w %q", character.ErrUnknownProvider, v.Provider)
	}
}
