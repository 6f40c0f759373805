package tts

import (
	"context"
	"sync"
	"time"
)

// Mock is a Provider for tests. Without Err it returns silent 24kHz PCM,
// about 20ms per character, so playback timing stays realistic.
type Mock struct {
	// Err fails Synthesize and Health.
	Err error

	// Delay holds every synthesis back, honoring ctx.
	Delay time.Duration

	mu       sync.Mutex
	requests []Request
	health   int
	closed   int
}

func NewMock() *Mock { return &Mock{} }

// WithError returns a mock that fails with err.
func WithError(err error) *Mock { return &Mock{Err: err} }

// WithLatency sets m.Delay and returns m.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	m.Delay = delay
	return m
}

func (m *Mock) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, WrapError("mock", m.Err)
	}

	const bytesPerChar = 960
	format := pcmFormat(EncodingPCM24)
	silence := make([]byte, len(req.Text)*bytesPerChar)
	return &AudioResult{
		Audio:     silence,
		Format:    format,
		CharCount: len(req.Text),
		LatencyMs: 10,
		Duration:  pcmDuration(len(silence), format.SampleRate),
	}, nil
}

func (m *Mock) Health(ctx context.Context) error {
	m.mu.Lock()
	m.health++
	m.mu.Unlock()
	return m.Err
}

func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	return nil
}

// Calls returns every synthesis request, oldest first.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// CallCount counts calls to Synthesize, Health or Close.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch method {
	case "Synthesize":
		return len(m.requests)
	case "Health":
		return m.health
	case "Close":
		return m.closed
	}
	return 0
}

// LastCall returns the latest synthesis request, or nil.
func (m *Mock) LastCall() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	req := m.requests[len(m.requests)-1]
	return &req
}

func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.health, m.closed = 0, 0
}

var _ Provider = (*Mock)(nil)
