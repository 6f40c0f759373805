// Package chat adapts an inference.Provider to the dispatcher's chat step.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-commander/pkg/history"
	"github.com/teslashibe/go-commander/pkg/inference"
	"github.com/teslashibe/go-commander/pkg/turn"
)

// Completer sends a character's history to a model and returns the reply.
type Completer struct {
	provider    inference.Provider
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// Option configures a Completer.
type Option func(*Completer)

// WithMaxTokens caps reply length.
func WithMaxTokens(n int) Option {
	return func(c *Completer) { c.maxTokens = n }
}

// WithTemperature sets sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Completer) { c.temperature = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Completer) { c.logger = l }
}

// New creates a Completer on provider.
func New(provider inference.Provider, opts ...Option) *Completer {
	c := &Completer{provider: provider, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("component", "chat")
	return c
}

// Complete implements turn.ChatCompleter. The screenshot rides on the last
// user message of this request only and is never stored in history. A
// character's model setting overrides the provider default.
func (c *Completer) Complete(ctx context.Context, req *turn.ChatRequest) (string, error) {
	msgs := Messages(req.History)
	if len(req.Screenshot) > 0 {
		attachImage(msgs, req.Screenshot)
	}

	var model string
	if req.Character != nil {
		model = req.Character.Config().Model
	}
	resp, err := c.provider.Chat(ctx, &inference.ChatRequest{
		Messages:    msgs,
		Model:       model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}

	reply := strings.TrimSpace(resp.Message.Content)
	c.logger.Debug("reply received",
		"messages", len(msgs),
		"screenshot", len(req.Screenshot) > 0,
		"tokens", resp.Usage.TotalTokens,
		"latency_ms", resp.LatencyMs,
	)
	return reply, nil
}

// Messages converts stored history into provider messages.
func Messages(hist []history.Message) []inference.Message {
	out := make([]inference.Message, 0, len(hist))
	for _, m := range hist {
		out = append(out, inference.Message{Role: inference.Role(m.Role), Content: m.Content})
	}
	return out
}

func attachImage(msgs []inference.Message, img []byte) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == inference.RoleUser {
			msgs[i].Images = [][]byte{img}
			return
		}
	}
}

var _ turn.ChatCompleter = (*Completer)(nil)
