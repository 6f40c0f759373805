package inference

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/teslashibe/go-commander/internal/httpc"
)

const providerGemini = "gemini"

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini implements Provider on the Google GenAI SDK.
type Gemini struct {
	client *genai.Client
	config *Config
	logger *slog.Logger
}

// NewGemini creates a Gemini provider. BaseURL, when set, overrides the
// Gemini API endpoint.
func NewGemini(ctx context.Context, opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = ""
	cfg.Model = DefaultGeminiModel
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, WrapError(providerGemini, ErrNoAPIKey)
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapError(providerGemini, err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  hc,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("new client: %w", err))
	}

	return &Gemini{
		client: client,
		config: cfg,
		logger: cfg.Logger.With("component", "inference.gemini"),
	}, nil
}

func (g *Gemini) Name() string { return providerGemini }

// Chat generates a completion. System messages become the system
// instruction; assistant messages are sent with the model role. A request
// model that does not name a Gemini model is ignored, so the client can
// serve as a fallback for another provider.
func (g *Gemini) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	model := g.config.Model
	if strings.HasPrefix(req.Model, "gemini") {
		model = req.Model
	}

	system, contents := convertMessages(req.Messages)
	cfg := &genai.GenerateContentConfig{StopSequences: req.Stop}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: system}},
		}
	}
	temp := req.Temperature
	if temp == 0 {
		temp = g.config.Temperature
	}
	if temp > 0 {
		t := float32(temp)
		cfg.Temperature = &t
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.config.MaxTokens
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, fromGenAI(err)
	}

	text, finish := extractText(resp)
	if text == "" {
		return nil, WrapError(providerGemini, ErrEmptyResponse)
	}

	out := &ChatResponse{
		Message:      NewAssistantMessage(text),
		FinishReason: finish,
		Model:        model,
		LatencyMs:    time.Since(start).Milliseconds(),
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	g.logger.Debug("chat completed", "model", model, "latency_ms", out.LatencyMs)
	return out, nil
}

// Health fetches the configured model's metadata.
func (g *Gemini) Health(ctx context.Context) error {
	if _, err := g.client.Models.Get(ctx, g.config.Model, nil); err != nil {
		return WrapError(providerGemini, fmt.Errorf("health check: %w", err))
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources.
func (g *Gemini) Close() error {
	return nil
}

func convertMessages(msgs []Message) (string, []*genai.Content) {
	var system []string
	var contents []*genai.Content
	for _, msg := range msgs {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		role := genai.RoleUser
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		parts := []*genai.Part{{Text: msg.Content}}
		for _, img := range msg.Images {
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: ImageMIME(img), Data: img},
			})
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return strings.Join(system, "\n"), contents
}

func extractText(res *genai.GenerateContentResponse) (string, string) {
	if res == nil {
		return "", ""
	}
	for _, c := range res.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if p != nil {
				sb.WriteString(p.Text)
			}
		}
		if sb.Len() > 0 {
			return sb.String(), string(c.FinishReason)
		}
	}
	return "", ""
}

var _ Provider = (*Gemini)(nil)
