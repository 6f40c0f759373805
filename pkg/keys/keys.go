// Package keys delivers named key-release events to the activation sources.
//
// Board is an in-process keyboard: anything that can name a key (the
// overlay HTTP API, a terminal, a stream deck bridge) calls Release and every
// goroutine blocked in WaitRelease for that key wakes up.
package keys

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

// Listener blocks until a key is released.
type Listener interface {
	WaitRelease(ctx context.Context, key string) error
}

// Normalize folds key names so "F4", "f4" and "Key.f4" are the same key.
func Normalize(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	return strings.TrimPrefix(k, "key.")
}

// Board is a virtual keyboard. The zero value is not usable; call NewBoard.
type Board struct {
	mu      sync.Mutex
	waiters map[string][]chan struct{}
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{waiters: make(map[string][]chan struct{})}
}

// WaitRelease blocks until key is released or ctx is done.
func (b *Board) WaitRelease(ctx context.Context, key string) error {
	k := Normalize(key)
	ch := make(chan struct{})

	b.mu.Lock()
	b.waiters[k] = append(b.waiters[k], ch)
	b.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		b.remove(k, ch)
		return ctx.Err()
	}
}

func (b *Board) remove(k string, ch chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.waiters[k]
	for i, w := range list {
		if w == ch {
			b.waiters[k] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.waiters[k]) == 0 {
		delete(b.waiters, k)
	}
}

// Release wakes every waiter of key and returns how many there were.
func (b *Board) Release(key string) int {
	k := Normalize(key)

	b.mu.Lock()
	list := b.waiters[k]
	delete(b.waiters, k)
	b.mu.Unlock()

	for _, ch := range list {
		close(ch)
	}
	return len(list)
}

// Waiting reports how many goroutines wait on key.
func (b *Board) Waiting(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters[Normalize(key)])
}

// ReadLines releases one key per non-empty input line until r is exhausted
// or ctx is done.
func (b *Board) ReadLines(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if line := strings.TrimSpace(sc.Text()); line != "" {
			b.Release(line)
		}
	}
	return sc.Err()
}
