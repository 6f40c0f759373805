package tts

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = "openai"
)

// OpenAI voice options
const (
	VoiceAlloy   = "alloy"
	VoiceAsh     = "ash"
	VoiceCoral   = "coral"
	VoiceEcho    = "echo"
	VoiceFable   = "fable"
	VoiceOnyx    = "onyx"
	VoiceNova    = "nova"
	VoiceSage    = "sage"
	VoiceShimmer = "shimmer"
)

// OpenAI model options
const (
	ModelTTS1      = "tts-1"
	ModelTTS1HD    = "tts-1-hd"
	ModelGPT4oMini = "gpt-4o-mini-tts"
)

// OpenAI implements Provider for OpenAI TTS. With gpt-4o-mini-tts the
// speaking style is passed as voice instructions.
type OpenAI struct {
	transport
	baseURL string
}

// NewOpenAI creates an OpenAI TTS provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelGPT4oMini
	cfg.VoiceID = VoiceCoral
	cfg.OutputFormat = EncodingPCM24
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, WrapError(providerOpenAI, err)
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = VoiceCoral
	}
	if cfg.OutputFormat != EncodingMP3 {
		cfg.OutputFormat = EncodingPCM24
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	return &OpenAI{
		transport: newTransport(providerOpenAI, cfg),
		baseURL:   baseURL,
	}, nil
}

// SupportsInstructions reports whether the model accepts style instructions.
func (o *OpenAI) SupportsInstructions() bool {
	return strings.HasPrefix(o.config.ModelID, "gpt-")
}

// Synthesize converts text to audio.
func (o *OpenAI) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	if req.Text == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyText)
	}
	start := time.Now()

	payload := map[string]any{
		"model":           o.config.ModelID,
		"voice":           o.config.VoiceID,
		"input":           req.Text,
		"response_format": "pcm",
	}
	if o.config.OutputFormat == EncodingMP3 {
		payload["response_format"] = "mp3"
	}
	if req.Style != "" && o.SupportsInstructions() {
		payload["instructions"] = fmt.Sprintf("Speak in a %s tone.", req.Style)
	}

	audio, err := o.postJSON(ctx, o.baseURL+"/audio/speech", payload, map[string]string{
		"Authorization": "Bearer " + o.config.APIKey,
	})
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	o.logger.Debug("synthesized audio",
		"chars", len(req.Text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", o.config.VoiceID,
		"style", req.Style,
	)

	result := &AudioResult{Audio: audio, CharCount: len(req.Text), LatencyMs: latency}
	if o.config.OutputFormat == EncodingMP3 {
		result.Format = AudioFormat{Encoding: EncodingMP3, SampleRate: 44100, Channels: 1}
	} else {
		result.Format = pcmFormat(EncodingPCM24)
		result.Duration = pcmDuration(len(audio), 24000)
	}
	return result, nil
}

// Health checks API connectivity.
func (o *OpenAI) Health(ctx context.Context) error {
	return o.get(ctx, o.baseURL+"/models", map[string]string{"Authorization": "Bearer " + o.config.APIKey})
}

// Close releases resources.
func (o *OpenAI) Close() error {
	o.close()
	return nil
}

var _ Provider = (*OpenAI)(nil)
