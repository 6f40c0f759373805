package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Chain speaks with the first provider that succeeds, so a character whose
// primary voice is out of quota still gets heard.
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
	return &Chain{providers: providers, logger: logger.With("component", "tts.chain")}, nil
}

func (c *Chain) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	var errs []error
	for i, p := range c.providers {
		result, err := p.Synthesize(ctx, req)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback voice used", "provider", fmt.Sprintf("%T", p), "chars", len(req.Text))
			}
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, err)
		c.logger.Warn("voice failed", "provider", fmt.Sprintf("%T", p), "error", err)
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
		errs = append(errs, err)
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

// ChainError holds one error per provider tried.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return ErrAllProvidersFailed.Error()
	}
	return fmt.Sprintf("%v (%d tried, last: %v)", ErrAllProvidersFailed, len(e.Errors), e.Errors[len(e.Errors)-1])
}

func (e *ChainError) Unwrap() []error { return e.Errors }

func (e *ChainError) Is(target error) bool { return target == ErrAllProvidersFailed }

var _ Provider = (*Chain)(nil)
