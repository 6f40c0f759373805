package source

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-commander/pkg/keys"
	"github.com/teslashibe/go-commander/pkg/turn"
)

// ScreenshotToggle flips screenshot inclusion on every key release.
type ScreenshotToggle struct {
	coord  *turn.Coordinator
	keys   keys.Listener
	key    string
	logger *slog.Logger
}

// NewScreenshotToggle creates the toggle source.
func NewScreenshotToggle(coord *turn.Coordinator, l keys.Listener, key string, logger *slog.Logger) *ScreenshotToggle {
	return &ScreenshotToggle{coord: coord, keys: l, key: key, logger: componentLogger(logger, "screenshot")}
}

// Run listens until ctx is done. Without a key it returns immediately.
func (s *ScreenshotToggle) Run(ctx context.Context) error {
	if s.key == "" {
		return nil
	}
	for {
		if err := s.keys.WaitRelease(ctx, s.key); err != nil {
			return nil
		}
		s.coord.ToggleScreenshot()
	}
}
