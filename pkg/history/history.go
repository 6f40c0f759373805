// Package history keeps the per-character conversation log.
//
// A History is an ordered list of role-tagged messages. Index 0 is the
// character's system personality message and survives truncation; once the
// list grows past its maximum the oldest entries after it are dropped.
package history

import "sync"

// Role tags a message's author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultMaxLength is used when a character does not configure one.
const DefaultMaxLength = 100

// MinMaxLength is the smallest usable maximum: the system message plus one entry.
const MinMaxLength = 2

// Message is one history entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// History is safe for concurrent use. The owning character appends its own
// turns while other characters' turns append broadcast copies.
type History struct {
	mu   sync.Mutex
	max  int
	msgs []Message
}

// New creates an empty history. max <= 0 selects DefaultMaxLength.
func New(max int) *History {
	if max <= 0 {
		max = DefaultMaxLength
	}
	if max < MinMaxLength {
		max = MinMaxLength
	}
	return &History{max: max}
}

// Max returns the effective maximum length.
func (h *History) Max() int {
	return h.max
}

// Seed discards everything and starts over with the system message.
func (h *History) Seed(system string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = []Message{System(system)}
}

// Replace swaps in a restored message list, truncating it to the maximum.
func (h *History) Replace(msgs []Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append([]Message(nil), msgs...)
	h.truncateLocked()
}

// Append adds messages at the tail and truncates. It returns how many old
// entries were dropped.
func (h *History) Append(msgs ...Message) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msgs...)
	return h.truncateLocked()
}

// truncateLocked removes the oldest entries after index 0 until the list
// fits. The whole overflow is removed at once.
func (h *History) truncateLocked() int {
	over := len(h.msgs) - h.max
	if over <= 0 {
		return 0
	}
	h.msgs = append(h.msgs[:1], h.msgs[1+over:]...)
	return over
}

// Messages returns a copy of the current list.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Len returns the number of stored messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

// Last returns the newest message, if any.
func (h *History) Last() (Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.msgs) == 0 {
		return Message{}, false
	}
	return h.msgs[len(h.msgs)-1], true
}
