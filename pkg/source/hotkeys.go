package source

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-commander/pkg/character"
	"github.com/teslashibe/go-commander/pkg/keys"
	"github.com/teslashibe/go-commander/pkg/turn"
)

// Hotkeys enqueues a character each time its activation key is released.
type Hotkeys struct {
	coord  *turn.Coordinator
	cast   *character.Cast
	keys   keys.Listener
	logger *slog.Logger
}

// NewHotkeys creates a hotkey source for every character with an
// activation key.
func NewHotkeys(coord *turn.Coordinator, cast *character.Cast, l keys.Listener, logger *slog.Logger) *Hotkeys {
	return &Hotkeys{coord: coord, cast: cast, keys: l, logger: componentLogger(logger, "hotkeys")}
}

// Run listens on all activation keys until ctx is done.
func (h *Hotkeys) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, ch := range h.cast.All() {
		key := ch.Config().ActivationKey
		if key == "" {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.listen(ctx, ch, key)
		}()
	}
	wg.Wait()
	return nil
}

func (h *Hotkeys) listen(ctx context.Context, ch *character.Character, key string) {
	h.logger.Info("hotkey armed", "character", ch.Name(), "key", key)
	for {
		if err := h.keys.WaitRelease(ctx, key); err != nil {
			return
		}
		if _, err := h.coord.Enqueue(ch, turn.SourceHotkey, nil); err != nil && !errors.Is(err, turn.ErrRecording) {
			h.logger.Error("enqueue failed", "character", ch.Name(), "error", err)
		}
	}
}
