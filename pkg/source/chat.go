package source

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-commander/pkg/character"
	"github.com/teslashibe/go-commander/pkg/chatfeed"
	"github.com/teslashibe/go-commander/pkg/turn"
)

// DefaultChatInterval is how often each character checks the chat feed.
const DefaultChatInterval = 10 * time.Second

// Picker hands out buffered chat messages and takes back the ones that
// could not be queued.
type Picker interface {
	TakeRandom(remove bool) (chatfeed.Message, bool)
	Restore(m chatfeed.Message)
}

// ChatFeed lets characters answer random audience messages whenever the
// stage is quiet.
type ChatFeed struct {
	coord    *turn.Coordinator
	cast     *character.Cast
	feed     Picker
	interval time.Duration
	logger   *slog.Logger
}

// NewChatFeed creates the chat source.
func NewChatFeed(coord *turn.Coordinator, cast *character.Cast, feed Picker, interval time.Duration, logger *slog.Logger) *ChatFeed {
	if interval <= 0 {
		interval = DefaultChatInterval
	}
	return &ChatFeed{coord: coord, cast: cast, feed: feed, interval: interval, logger: componentLogger(logger, "chat")}
}

// Run polls for every character until ctx is done.
func (c *ChatFeed) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, ch := range c.cast.All() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(c.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.Poll(ch)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

// Poll enqueues ch with a random chat message when ch is idle and nothing
// else is queued or recording. A message that loses the race to another
// activation goes back to the feed. It reports whether ch was enqueued.
func (c *ChatFeed) Poll(ch *character.Character) bool {
	if ch.State() != character.StateIdle || !c.coord.Quiet() {
		return false
	}
	msg, ok := c.feed.TakeRandom(true)
	if !ok {
		return false
	}
	in := &turn.Input{Text: msg.Prompt(), Speaker: msg.Author}
	if _, err := c.coord.EnqueueIfQuiet(ch, turn.SourceChat, in); err != nil {
		c.feed.Restore(msg)
		if !errors.Is(err, turn.ErrRecording) && !errors.Is(err, turn.ErrBusy) {
			c.logger.Error("enqueue failed", "character", ch.Name(), "error", err)
		}
		return false
	}
	c.logger.Info("chat message picked", "character", ch.Name(), "author", msg.Author, "source", msg.Source)
	return true
}
