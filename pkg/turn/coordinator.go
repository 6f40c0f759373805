// Package turn serializes the characters' turns.
//
// A Coordinator owns the shared coordination state: the FIFO activation
// queue, the microphone recording flag, the screenshot toggle and the last
// transcribed input. Activation sources feed it concurrently; a single
// Dispatcher drains it and runs one complete turn at a time.
package turn

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-commander/pkg/character"
)

var (
	// ErrRecording is returned by Enqueue while the microphone is recording.
	ErrRecording = errors.New("turn: microphone recording in progress")
	// ErrBusy is returned by EnqueueIfQuiet when the queue is not empty.
	ErrBusy = errors.New("turn: activation queue not empty")
)

// Source identifies where an activation came from.
type Source string

const (
	SourceHotkey     Source = "hotkey"
	SourceMicrophone Source = "microphone"
	SourceChat       Source = "chat"
	SourceTrigger    Source = "trigger"
	SourceAPI        Source = "api"
)

// Input is the text a character responds to and who said it.
type Input struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker,omitempty"`
}

// Activation places a character in the queue.
type Activation struct {
	ID        uuid.UUID
	Character *character.Character
	Source    Source
	Input     *Input // overrides the shared last input when set
	At        time.Time
}

// Pending describes a queued activation.
type Pending struct {
	ID        string    `json:"id"`
	Character string    `json:"character"`
	Source    Source    `json:"source"`
	At        time.Time `json:"at"`
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	logger *slog.Logger

	mu        sync.Mutex
	queue     []Activation
	recording bool
	lastInput *Input
	wake      chan struct{} // closed and replaced on every queue or flag change

	screenshot atomic.Bool
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		logger: logger.With("component", "turn.coordinator"),
		wake:   make(chan struct{}),
	}
}

func (c *Coordinator) notifyLocked() {
	close(c.wake)
	c.wake = make(chan struct{})
}

// Enqueue appends an activation for ch. While recording it is rejected with
// ErrRecording and nothing changes.
func (c *Coordinator) Enqueue(ch *character.Character, src Source, in *Input) (Activation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording {
		c.logger.Warn("activation rejected while recording",
			"character", ch.Name(),
			"source", src,
		)
		return Activation{}, ErrRecording
	}
	return c.enqueueLocked(ch, src, in), nil
}

// EnqueueIfQuiet appends an activation for ch only if the queue is empty and
// nobody is recording, checked and applied under one lock. It returns
// ErrRecording or ErrBusy otherwise.
func (c *Coordinator) EnqueueIfQuiet(ch *character.Character, src Source, in *Input) (Activation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.recording:
		return Activation{}, ErrRecording
	case len(c.queue) > 0:
		return Activation{}, ErrBusy
	}
	return c.enqueueLocked(ch, src, in), nil
}

func (c *Coordinator) enqueueLocked(ch *character.Character, src Source, in *Input) Activation {
	act := Activation{
		ID:        uuid.New(),
		Character: ch,
		Source:    src,
		Input:     in,
		At:        time.Now(),
	}
	c.queue = append(c.queue, act)
	c.notifyLocked()

	c.logger.Debug("activation queued",
		"character", ch.Name(),
		"source", src,
		"queue_len", len(c.queue),
	)
	return act
}

// Next blocks until an activation is available and no recording is active,
// then removes and returns the head of the queue.
func (c *Coordinator) Next(ctx context.Context) (Activation, error) {
	for {
		c.mu.Lock()
		if !c.recording && len(c.queue) > 0 {
			act := c.queue[0]
			c.queue[0] = Activation{}
			c.queue = c.queue[1:]
			c.notifyLocked()
			c.mu.Unlock()
			return act, nil
		}
		wake := c.wake
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return Activation{}, ctx.Err()
		case <-wake:
		}
	}
}

// BeginRecording claims the microphone. It returns false if a recording is
// already in progress.
func (c *Coordinator) BeginRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording {
		return false
	}
	c.recording = true
	c.notifyLocked()
	return true
}

// EndRecording releases the microphone and lets the queue drain again.
func (c *Coordinator) EndRecording() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording = false
	c.notifyLocked()
}

// Recording reports whether the microphone is in use.
func (c *Coordinator) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Quiet reports whether the queue is empty and nobody is recording.
func (c *Coordinator) Quiet() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.recording && len(c.queue) == 0
}

// Len returns the number of queued activations.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Pending lists the queued activations in service order.
func (c *Coordinator) Pending() []Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Pending, len(c.queue))
	for i, a := range c.queue {
		out[i] = Pending{ID: a.ID.String(), Character: a.Character.Name(), Source: a.Source, At: a.At}
	}
	return out
}

// SetLastInput stores the most recent transcription.
func (c *Coordinator) SetLastInput(in Input) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastInput = &in
}

// TakeLastInput returns and clears the stored input.
func (c *Coordinator) TakeLastInput() (Input, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastInput == nil {
		return Input{}, false
	}
	in := *c.lastInput
	c.lastInput = nil
	return in, true
}

// ToggleScreenshot flips screenshot inclusion and returns the new value.
func (c *Coordinator) ToggleScreenshot() bool {
	for {
		old := c.screenshot.Load()
		if c.screenshot.CompareAndSwap(old, !old) {
			c.logger.Info("screenshot toggled", "enabled", !old)
			return !old
		}
	}
}

// ScreenshotEnabled reports whether turns should include a screenshot.
func (c *Coordinator) ScreenshotEnabled() bool {
	return c.screenshot.Load()
}
