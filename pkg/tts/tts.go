// Package tts provides a unified interface for text-to-speech providers.
//
// ElevenLabs (cloned voices), OpenAI (built-in voices, style instructions)
// and Azure Speech (neural voices with SSML speaking styles) all implement
// Provider, so characters can switch voices without touching callers.
//
//	provider, _ := tts.NewAzure(
//	    tts.WithAPIKey(os.Getenv("AZURE_SPEECH_KEY")),
//	    tts.WithRegion("eastus"),
//	    tts.WithVoice("en-US-AvaMultilingualNeural"),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, tts.Request{Text: "Hello", Style: "cheerful"})
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, req Request) (*AudioResult, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Request is one utterance. Style is a speaking style such as "cheerful";
// providers without style support ignore it.
type Request struct {
	Text  string
	Style string
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data in the specified format.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the estimated playback duration; zero for compressed audio.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the request latency in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding represents audio encoding types.
type Encoding string

const (
	// Raw 16-bit mono PCM
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"

	// Containers and compressed formats
	EncodingWAV Encoding = "wav"
	EncodingMP3 Encoding = "mp3_44100_128"
)

// IsPCM reports whether the encoding is headerless PCM.
func (e Encoding) IsPCM() bool {
	switch e {
	case EncodingPCM16, EncodingPCM22, EncodingPCM24, EncodingPCM44:
		return true
	}
	return false
}

// VoiceSettings controls ElevenLabs voice characteristics.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0).
	Stability float64

	// SimilarityBoost controls how closely the voice matches the original (0.0-1.0).
	SimilarityBoost float64

	// Style controls style exaggeration (0.0-1.0).
	Style float64

	SpeakerBoost bool
}

// DefaultVoiceSettings returns defaults for voice synthesis.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		SpeakerBoost:    true,
	}
}

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM44, EncodingMP3:
		return 44100
	default:
		return 24000
	}
}

// pcmFormat describes 16-bit mono PCM at the encoding's rate.
func pcmFormat(enc Encoding) AudioFormat {
	return AudioFormat{Encoding: enc, SampleRate: SampleRateFromEncoding(enc), Channels: 1, BitDepth: 16}
}

// pcmDuration estimates playback time of 16-bit mono PCM.
func pcmDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := time.Duration(n / 2)
	return samples * time.Second / time.Duration(sampleRate)
}
