package character

import (
	"errors"
	"fmt"
)

// State is a character's conversational state.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateThinking  State = "thinking"
	StateTalking   State = "talking"
	StateError     State = "error"
)

// States lists every state in display order.
var States = []State{StateIdle, StateListening, StateThinking, StateTalking, StateError}

// ErrInvalidTransition is returned when a state change is not allowed.
// The character's state is left untouched.
var ErrInvalidTransition = errors.New("character: invalid state transition")

// transitions holds the allowed moves. Listening may be re-entered so
// repeated microphone sessions and partner forcing are idempotent.
var transitions = map[State][]State{
	StateIdle:      {StateListening, StateThinking},
	StateListening: {StateListening, StateThinking, StateIdle},
	StateThinking:  {StateTalking, StateError, StateIdle},
	StateTalking:   {StateIdle, StateError},
	StateError:     {StateIdle, StateListening, StateThinking},
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is allowed.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionError describes a rejected state change.
type TransitionError struct {
	Character string
	From, To  State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("character %s: cannot go from %s to %s", e.Character, e.From, e.To)
}

// Unwrap lets callers match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
