// Package source turns outside events into activations: per-character
// hotkeys, the shared microphone, the screenshot toggle and the chat feed.
// Every source blocks in Run until its context is cancelled.
package source

import (
	"context"
	"log/slog"
)

// Runner is implemented by every activation source.
type Runner interface {
	Run(ctx context.Context) error
}

func componentLogger(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", "source."+name)
}
