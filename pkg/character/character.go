// Package character models the on-screen characters: their static
// configuration, the conversational state machine and the display fields
// the overlay renders.
//
// Every state change goes through a method on Character. Invalid moves are
// rejected with ErrInvalidTransition and leave the character untouched.
// Observers receive an immutable Snapshot after each change.
package character

import (
	"sync"

	"github.com/teslashibe/go-commander/pkg/history"
)

// Snapshot is a point-in-time copy of a character's display state.
type Snapshot struct {
	Name          string         `json:"name"`
	DisplayName   string         `json:"display_name"`
	State         State          `json:"state"`
	Subtitles     string         `json:"subtitles,omitempty"`
	SubtitleColor string         `json:"subtitle_color,omitempty"`
	VoiceStyle    string         `json:"voice_style,omitempty"`
	VoiceImage    string         `json:"voice_image,omitempty"`
	Image         string         `json:"image,omitempty"`
	Hidden        bool           `json:"hidden"`
	Layout        Layout         `json:"layout"`
	Subtitle      SubtitleConfig `json:"subtitle_style"`
}

// Layout places the character image on screen.
type Layout struct {
	Alignment string `json:"alignment"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
}

// Observer is notified after every change, outside the character's lock.
type Observer func(Snapshot)

// Character is the runtime form of a Config.
type Character struct {
	cfg     Config
	history *history.History

	mu            sync.Mutex
	state         State
	subtitles     string
	subtitleColor string
	voiceStyle    string
	voiceImage    string
	observers     []Observer
}

// New builds a character in the idle state with an empty history.
func New(cfg Config) *Character {
	cfg.Normalize()
	return &Character{
		cfg:     cfg,
		history: history.New(cfg.History.MaxLength),
		state:   StateIdle,
	}
}

// Name returns the identifier used in triggers, keys and file names.
func (c *Character) Name() string { return c.cfg.Name }

// DisplayName returns the name shown to other characters.
func (c *Character) DisplayName() string { return c.cfg.DisplayName }

// Config returns the static configuration.
func (c *Character) Config() *Config { return &c.cfg }

// History returns the character's conversation history.
func (c *Character) History() *history.History { return c.history }

// Observe registers fn for change notifications.
func (c *Character) Observe(fn Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// State returns the current state.
func (c *Character) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the current display state.
func (c *Character) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Character) snapshotLocked() Snapshot {
	image := c.cfg.ImageFor(c.state)
	if c.state == StateTalking && c.voiceImage != "" {
		image = c.voiceImage
	}
	v := c.cfg.Visuals
	return Snapshot{
		Name:          c.cfg.Name,
		DisplayName:   c.cfg.DisplayName,
		State:         c.state,
		Subtitles:     c.subtitles,
		SubtitleColor: c.subtitleColor,
		VoiceStyle:    c.voiceStyle,
		VoiceImage:    c.voiceImage,
		Image:         image,
		Hidden:        c.state == StateIdle && v.HideWhenIdle(),
		Layout:        Layout{Alignment: v.ImageAlignment, X: v.ImageX, Y: v.ImageY},
		Subtitle:      v.Subtitles,
	}
}

// update runs fn under the lock and notifies observers if it succeeds.
func (c *Character) update(fn func() error) error {
	c.mu.Lock()
	if err := fn(); err != nil {
		c.mu.Unlock()
		return err
	}
	snap := c.snapshotLocked()
	observers := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	for _, o := range observers {
		o(snap)
	}
	return nil
}

func (c *Character) transitionLocked(next State) error {
	if !c.state.CanTransition(next) {
		return &TransitionError{Character: c.cfg.Name, From: c.state, To: next}
	}
	c.state = next
	return nil
}

// Transition moves to next without touching display fields.
func (c *Character) Transition(next State) error {
	return c.update(func() error { return c.transitionLocked(next) })
}

// Think marks the start of a turn.
func (c *Character) Think() error {
	return c.Transition(StateThinking)
}

// Listen moves to listening and clears the subtitle. Used for microphone
// capture and for partners of the active speaker.
func (c *Character) Listen() error {
	return c.update(func() error {
		if err := c.transitionLocked(StateListening); err != nil {
			return err
		}
		c.subtitles = ""
		c.subtitleColor = ""
		return nil
	})
}

// Speak moves to talking and shows text with the resolved style and image.
func (c *Character) Speak(text, style, image string) error {
	return c.update(func() error {
		if err := c.transitionLocked(StateTalking); err != nil {
			return err
		}
		c.subtitles = text
		c.subtitleColor = c.cfg.Visuals.Subtitles.CharacterTextColor
		c.voiceStyle = style
		c.voiceImage = image
		return nil
	})
}

// Finish returns to idle. Characters hidden when idle lose their subtitle.
func (c *Character) Finish() error {
	return c.update(func() error {
		if err := c.transitionLocked(StateIdle); err != nil {
			return err
		}
		c.voiceStyle = ""
		c.voiceImage = ""
		if c.cfg.Visuals.HideWhenIdle() {
			c.subtitles = ""
			c.subtitleColor = ""
		}
		return nil
	})
}

// Fail marks the current turn as failed.
func (c *Character) Fail() error {
	return c.update(func() error {
		if err := c.transitionLocked(StateError); err != nil {
			return err
		}
		c.voiceStyle = ""
		c.voiceImage = ""
		return nil
	})
}

// ShowUserText displays what the user is saying, in the user's color.
func (c *Character) ShowUserText(text string) {
	c.update(func() error {
		c.subtitles = text
		c.subtitleColor = c.cfg.Visuals.Subtitles.UserTextColor
		return nil
	})
}

// ClearSubtitles removes the displayed text.
func (c *Character) ClearSubtitles() {
	c.update(func() error {
		c.subtitles = ""
		c.subtitleColor = ""
		return nil
	})
}

// ResetVoiceImage drops the current voice image, e.g. when it fails to load.
func (c *Character) ResetVoiceImage() {
	c.update(func() error {
		c.voiceImage = ""
		return nil
	})
}
