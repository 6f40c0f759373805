package inference

import (
	"context"
	"sync"
)

// Mock is a scripted Provider for tests.
type Mock struct {
	// Label is returned by Name; empty means "mock".
	Label string

	// Reply computes the answer; nil fails with ErrProviderUnavailable.
	Reply func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthErr is returned by Health.
	HealthErr error

	mu       sync.Mutex
	calls    map[string]int
	requests []*ChatRequest
}

// NewMock answers every request with "Mock response".
func NewMock() *Mock {
	return WithReply("Mock response")
}

// WithReply answers every request with reply.
func WithReply(reply string) *Mock {
	return &Mock{
		Reply: func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			return &ChatResponse{Message: NewAssistantMessage(reply), FinishReason: "stop"}, nil
		},
	}
}

// WithError fails every request and health check with err.
func WithError(err error) *Mock {
	return &Mock{
		Reply: func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			return nil, err
		},
		HealthErr: err,
	}
}

func (m *Mock) Name() string {
	if m.Label == "" {
		return "mock"
	}
	return m.Label
}

func (m *Mock) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.count("Chat")
	m.requests = append(m.requests, req)
	reply := m.Reply
	m.mu.Unlock()

	if reply == nil {
		return nil, WrapError(m.Name(), ErrProviderUnavailable)
	}
	return reply(ctx, req)
}

func (m *Mock) Health(ctx context.Context) error {
	m.mu.Lock()
	m.count("Health")
	m.mu.Unlock()
	return m.HealthErr
}

func (m *Mock) Close() error {
	m.mu.Lock()
	m.count("Close")
	m.mu.Unlock()
	return nil
}

func (m *Mock) count(method string) {
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

// CallCount returns how often method was invoked.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Requests returns every chat request seen, oldest first.
func (m *Mock) Requests() []*ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ChatRequest(nil), m.requests...)
}

// LastRequest returns the most recent chat request, or nil.
func (m *Mock) LastRequest() *ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// Reset forgets recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.requests = nil
}

var _ Provider = (*Mock)(nil)
