package inference

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Chain asks each provider in order and returns the first answer. A
// character with a flaky primary model still gets a reply from the backup.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain requires at least one provider.
func NewChain(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, logger: logger.With("component", "inference.chain")}, nil
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var errs []error
	for i, p := range c.providers {
		start := time.Now()
		resp, err := p.Chat(ctx, req)
		if err == nil {
			if resp.Provider == "" {
				resp.Provider = p.Name()
			}
			if i > 0 {
				c.logger.Info("answered by fallback", "provider", p.Name(), "failed", len(errs))
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, err)

		attrs := []any{"provider", p.Name(), "error", err, "elapsed", time.Since(start)}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Rejected() {
			attrs = append(attrs, "hint", "check the API key")
		}
		c.logger.Warn("provider failed", attrs...)
	}
	return nil, &ChainError{Errors: errs}
}

// Health succeeds when any provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, WrapError(p.Name(), err))
	}
	return errors.Join(errs...)
}

func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// Providers returns the providers in order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

var _ Provider = (*Chain)(nil)
