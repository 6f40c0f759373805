// Package chatfeed collects inbound audience messages that characters can
// react to: live Twitch chat and RSS/Atom feeds. Messages land in a bounded
// rolling Buffer from which the chat activation source samples.
package chatfeed

import (
	"math/rand/v2"
	"slices"
	"sync"
	"time"
)

// DefaultBufferLength is how many recent messages are remembered.
const DefaultBufferLength = 50

// FirstTimeTag prefixes prompts from first-time chatters.
const FirstTimeTag = "[First Time Chatter]"

// Message is one inbound chat message.
type Message struct {
	ID      string    `json:"id"`
	Source  string    `json:"source"`
	Author  string    `json:"author"`
	Content string    `json:"content"`
	First   bool      `json:"first"`
	At      time.Time `json:"at"`
}

// Prompt formats the message as character input.
func (m Message) Prompt() string {
	if m.First {
		return FirstTimeTag + "\n" + m.Content
	}
	return m.Content
}

// Buffer is a bounded, time-ordered window of recent messages.
type Buffer struct {
	mu   sync.Mutex
	max  int
	msgs []Message
	intn func(n int) int
}

// NewBuffer creates a buffer. max <= 0 selects DefaultBufferLength.
func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = DefaultBufferLength
	}
	return &Buffer{max: max, intn: rand.IntN}
}

// SetRand replaces the random index source, for deterministic tests.
func (b *Buffer) SetRand(intn func(n int) int) {
	b.mu.Lock()
	b.intn = intn
	b.mu.Unlock()
}

// Push appends m, dropping the oldest message when full.
func (b *Buffer) Push(m Message) {
	if m.At.IsZero() {
		m.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, m)
	if over := len(b.msgs) - b.max; over > 0 {
		b.msgs = append(b.msgs[:0], b.msgs[over:]...)
	}
}

// TakeRandom picks a message uniformly at random. When remove is set the
// message is dropped so it cannot be picked again.
func (b *Buffer) TakeRandom(remove bool) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.msgs) == 0 {
		return Message{}, false
	}
	i := b.intn(len(b.msgs))
	m := b.msgs[i]
	if remove {
		b.msgs = append(b.msgs[:i], b.msgs[i+1:]...)
	}
	return m, true
}

// Restore puts back a message taken with TakeRandom, in time order. If the
// buffer filled up in the meantime and m is the oldest, it is dropped.
func (b *Buffer) Restore(m Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := len(b.msgs)
	for i > 0 && b.msgs[i-1].At.After(m.At) {
		i--
	}
	if len(b.msgs) >= b.max && i == 0 {
		return
	}
	b.msgs = slices.Insert(b.msgs, i, m)
	if over := len(b.msgs) - b.max; over > 0 {
		b.msgs = append(b.msgs[:0], b.msgs[over:]...)
	}
}

// Len returns the number of buffered messages.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

// Snapshot returns a copy of the buffered messages, oldest first.
func (b *Buffer) Snapshot() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.msgs...)
}
