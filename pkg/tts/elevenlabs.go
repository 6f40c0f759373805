package tts

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabs model IDs
const (
	ModelTurboV2_5      = "eleven_turbo_v2_5"
	ModelFlashV2_5      = "eleven_flash_v2_5"
	ModelMultilingualV2 = "eleven_multilingual_v2"
	ModelMonolingualV1  = "eleven_monolingual_v1"
)

// ElevenLabs implements Provider for ElevenLabs TTS. Speaking styles are
// not supported and are ignored.
type ElevenLabs struct {
	transport
	baseURL string
}

// NewElevenLabs creates an ElevenLabs provider. The voice may be a stock
// voice name ("rachel") or a raw voice ID.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, WrapError(providerElevenLabs, err)
	}
	cfg.VoiceID = ElevenLabsVoiceID(cfg.VoiceID)
	if cfg.OutputFormat == EncodingWAV {
		cfg.OutputFormat = EncodingPCM24
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}
	return &ElevenLabs{
		transport: newTransport(providerElevenLabs, cfg),
		baseURL:   baseURL,
	}, nil
}

// Synthesize converts text to audio.
func (e *ElevenLabs) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	if req.Text == "" {
		return nil, WrapError(providerElevenLabs, ErrEmptyText)
	}
	start := time.Now()

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s",
		e.baseURL, url.PathEscape(e.config.VoiceID), url.QueryEscape(string(e.config.OutputFormat)))
	audio, err := e.postJSON(ctx, endpoint, e.buildPayload(req.Text), map[string]string{
		"xi-api-key": e.config.APIKey,
		"Accept":     e.formatToMIME(),
	})
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	e.logger.Debug("synthesized audio",
		"chars", len(req.Text),
		"bytes", len(audio),
		"latency_ms", latency,
		"model", e.config.ModelID,
	)

	result := &AudioResult{
		Audio:     audio,
		CharCount: len(req.Text),
		LatencyMs: latency,
	}
	if e.config.OutputFormat.IsPCM() {
		result.Format = pcmFormat(e.config.OutputFormat)
		result.Duration = pcmDuration(len(audio), result.Format.SampleRate)
	} else {
		result.Format = AudioFormat{Encoding: e.config.OutputFormat, SampleRate: SampleRateFromEncoding(e.config.OutputFormat), Channels: 1}
	}
	return result, nil
}

// Health checks API connectivity and API key validity.
func (e *ElevenLabs) Health(ctx context.Context) error {
	return e.get(ctx, e.baseURL+"/user", map[string]string{"xi-api-key": e.config.APIKey})
}

// Close releases resources held by the provider.
func (e *ElevenLabs) Close() error {
	e.close()
	return nil
}

// VoiceID returns the resolved voice ID.
func (e *ElevenLabs) VoiceID() string {
	return e.config.VoiceID
}

func (e *ElevenLabs) buildPayload(text string) map[string]any {
	return map[string]any{
		"text":     text,
		"model_id": e.config.ModelID,
		"voice_settings": map[string]any{
			"stability":         e.config.VoiceSettings.Stability,
			"similarity_boost":  e.config.VoiceSettings.SimilarityBoost,
			"style":             e.config.VoiceSettings.Style,
			"use_speaker_boost": e.config.VoiceSettings.SpeakerBoost,
		},
	}
}

func (e *ElevenLabs) formatToMIME() string {
	if e.config.OutputFormat.IsPCM() {
		return "audio/pcm"
	}
	return "audio/mpeg"
}

// stockVoices are the premade ElevenLabs voices characters can name
// instead of pasting an ID.
var stockVoices = map[string]string{
	"adam":      "pNInz6obpgDQGcFmaJgB",
	"antoni":    "ErXwobaYiN019PkySvjV",
	"arnold":    "VR6AewLTigWG4xSOukaG",
	"bella":     "EXAVITQu4vr4xnSDxMaL",
	"charlotte": "XB0fDUnXU5powFXDhCwa",
	"domi":      "AZnzlk1XvdvUeBnXmlld",
	"elli":      "MF3mGyEYCl7XYWbV9V6O",
	"josh":      "TxGEqnHWrfWFTfGW9XjX",
	"rachel":    "21m00Tcm4TlvDq8ikWAM",
	"sam":       "yoZ06aMxZJJ28mfd3POQ",
}

// ElevenLabsVoiceID maps a stock voice name (case-insensitive) to its ID.
// Anything else is returned unchanged.
func ElevenLabsVoiceID(voice string) string {
	if id, ok := stockVoices[strings.ToLower(strings.TrimSpace(voice))]; ok {
		return id
	}
	return voice
}

var _ Provider = (*ElevenLabs)(nil)
