package stt

import (
	"context"
	"sync"
)

// Mock returns a fixed transcript once stop is closed.
type Mock struct {
	Text     string
	Partials []string
	Err      error

	mu    sync.Mutex
	calls int
}

// Transcribe emits Partials, waits for stop and returns Text or Err.
func (m *Mock) Transcribe(ctx context.Context, stop <-chan struct{}, partial func(string)) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if partial != nil {
		for _, p := range m.Partials {
			partial(p)
		}
	}
	select {
	case <-stop:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return m.Text, m.Err
}

// Calls returns how many captures were made.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
