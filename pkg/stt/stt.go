// Package stt turns one push-to-talk capture into text.
package stt

import (
	"context"
	"errors"
)

var (
	// ErrNoAPIKey is returned when a hosted transcriber has no credentials.
	ErrNoAPIKey = errors.New("stt: API key required")

	// ErrNoRecorder is returned when the capture command is empty.
	ErrNoRecorder = errors.New("stt: record command required")

	// ErrClosed is returned once the console input has ended.
	ErrClosed = errors.New("stt: input closed")
)

// Transcriber captures speech until stop is closed and returns the text.
// partial, when non-nil, receives the running transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, stop <-chan struct{}, partial func(string)) (string, error)
}
