package audio

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-commander/pkg/tts"
)

// Mock records plays instead of producing sound.
type Mock struct {
	mu    sync.Mutex
	clips []*tts.AudioResult

	// Delay simulates playback time; Err is returned from every Play.
	Delay time.Duration
	Err   error
}

// NewMock returns a silent player.
func NewMock() *Mock {
	return &Mock{}
}

// Play records clip and waits for Delay.
func (m *Mock) Play(ctx context.Context, clip *tts.AudioResult) error {
	m.mu.Lock()
	m.clips = append(m.clips, clip)
	delay, err := m.Delay, m.Err
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Plays returns the clips played so far.
func (m *Mock) Plays() []*tts.AudioResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*tts.AudioResult(nil), m.clips...)
}

var _ Speaker = (*Mock)(nil)
