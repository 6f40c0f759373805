package stt

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Console treats each line read from r as a recognized segment. It stands
// in for a microphone when running from a terminal.
type Console struct {
	lines chan string
	done  chan struct{}
}

// NewConsole starts reading r. Lines that arrive while no capture is active
// are kept for the next one.
func NewConsole(r io.Reader) *Console {
	c := &Console{lines: make(chan string, 64), done: make(chan struct{})}
	go func() {
		defer close(c.done)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				c.lines <- line
			}
		}
	}()
	return c
}

// Transcribe collects lines until stop and joins them with spaces.
func (c *Console) Transcribe(ctx context.Context, stop <-chan struct{}, partial func(string)) (string, error) {
	var segments []string
	for {
		select {
		case line := <-c.lines:
			segments = append(segments, line)
			if partial != nil {
				partial(strings.Join(segments, " "))
			}
		case <-stop:
			return strings.Join(segments, " "), nil
		case <-c.done:
			if len(c.lines) > 0 {
				continue
			}
			if len(segments) == 0 {
				return "", ErrClosed
			}
			return strings.Join(segments, " "), nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
