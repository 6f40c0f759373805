package tts

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	providerAzure = "azure"

	// DefaultAzureVoice is a multilingual neural voice that supports styles.
	DefaultAzureVoice = "en-US-AvaMultilingualNeural"

	azureOutputFormat = "raw-24khz-16bit-mono-pcm"
)

// Azure implements Provider on the Azure Speech REST API. A non-empty
// style is sent as an SSML mstts:express-as element.
type Azure struct {
	transport
	endpoint string
}

// NewAzure creates an Azure Speech provider. WithRegion is required unless
// WithBaseURL points at a full endpoint.
func NewAzure(opts ...Option) (*Azure, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ""
	cfg.VoiceID = DefaultAzureVoice
	cfg.OutputFormat = EncodingPCM24
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, WrapError(providerAzure, err)
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultAzureVoice
	}

	endpoint := strings.TrimSuffix(cfg.BaseURL, "/")
	if endpoint == "" {
		if cfg.Region == "" {
			return nil, WrapError(providerAzure, ErrNoRegion)
		}
		endpoint = fmt.Sprintf("https://%s.tts.speech.microsoft.com", cfg.Region)
	}
	return &Azure{
		transport: newTransport(providerAzure, cfg),
		endpoint:  endpoint,
	}, nil
}

// Synthesize converts text to 24kHz PCM.
func (a *Azure) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	if req.Text == "" {
		return nil, WrapError(providerAzure, ErrEmptyText)
	}
	start := time.Now()

	body := []byte(SSML(a.config.VoiceID, req.Style, req.Text))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/cognitiveservices/v1", bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerAzure, err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", a.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("X-Microsoft-OutputFormat", azureOutputFormat)
	httpReq.Header.Set("User-Agent", "go-commander")

	audio, err := a.fetch(ctx, httpReq, body)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, WrapError(providerAzure, ErrCanceled)
	}

	latency := time.Since(start).Milliseconds()
	a.logger.Debug("synthesized audio",
		"chars", len(req.Text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", a.config.VoiceID,
		"style", req.Style,
	)

	format := pcmFormat(EncodingPCM24)
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  pcmDuration(len(audio), format.SampleRate),
		CharCount: len(req.Text),
		LatencyMs: latency,
	}, nil
}

// Health lists the region's voices.
func (a *Azure) Health(ctx context.Context) error {
	return a.get(ctx, a.endpoint+"/cognitiveservices/voices/list",
		map[string]string{"Ocp-Apim-Subscription-Key": a.config.APIKey})
}

// Close releases resources.
func (a *Azure) Close() error {
	a.close()
	return nil
}

// SSML renders text for voice, wrapped in an express-as element when style
// is set.
func SSML(voice, style, text string) string {
	var b strings.Builder
	b.WriteString(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="http://www.w3.org/2001/mstts" xml:lang="en-US">`)
	b.WriteString(`<voice name="`)
	xmlEscape(&b, voice)
	b.WriteString(`">`)
	if style != "" {
		b.WriteString(`<mstts:express-as style="`)
		xmlEscape(&b, style)
		b.WriteString(`">`)
		xmlEscape(&b, text)
		b.WriteString(`</mstts:express-as>`)
	} else {
		xmlEscape(&b, text)
	}
	b.WriteString(`</voice></speak>`)
	return b.String()
}

func xmlEscape(b *strings.Builder, s string) {
	_ = xml.EscapeText(b, []byte(s))
}

var _ Provider = (*Azure)(nil)
