// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

import (
	"encoding/json"
	"time"
)

// Message is an encoded frame queued for every client.
type Message struct {
	Data []byte
}

// Event is the envelope every overlay feed uses.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Encode wraps data in an Event of the given type.
func Encode(kind string, data any) (Message, error) {
	b, err := json.Marshal(Event{Type: kind, At: time.Now(), Data: data})
	if err != nil {
		return Message{}, err
	}
	return Message{Data: b}, nil
}
