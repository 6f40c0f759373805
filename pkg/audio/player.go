// Package audio plays synthesized speech through an external player
// process. Play blocks until playback has finished, so a character stays in
// the talking state for exactly as long as it is heard.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-commander/pkg/tts"
)

// DefaultCommand plays stdin with ffplay. {input} expands to the decoder
// arguments for raw PCM and to nothing for self-describing formats.
const DefaultCommand = "ffplay -nodisp -autoexit -loglevel error {input} -i -"

// ErrNoCommand is returned when the player command is empty.
var ErrNoCommand = errors.New("audio: player command required")

// Speaker plays a synthesized clip to completion.
type Speaker interface {
	Play(ctx context.Context, clip *tts.AudioResult) error
}

// Player pipes audio into a command such as ffplay or aplay. Only one clip
// plays at a time; concurrent calls queue on the output.
type Player struct {
	args   []string
	logger *slog.Logger

	// OnPlaybackStart and OnPlaybackEnd are called around each clip.
	OnPlaybackStart func()
	OnPlaybackEnd   func()

	mu      sync.Mutex // serializes clips
	cmu     sync.Mutex
	cancel  context.CancelFunc
	playing atomic.Bool
}

// NewPlayer parses a command template. Besides {input}, arguments may use
// {format} (s16le, mp3 or wav), {rate} and {channels}.
func NewPlayer(command string, logger *slog.Logger) (*Player, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	args := strings.Fields(command)
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{args: args, logger: logger.With("component", "audio.player")}, nil
}

// NewPlayerArgs uses args verbatim as the command line template.
func NewPlayerArgs(args []string, logger *slog.Logger) (*Player, error) {
	if len(args) == 0 {
		return nil, ErrNoCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{args: append([]string(nil), args...), logger: logger.With("component", "audio.player")}, nil
}

// Command expands the template for a clip's format.
func (p *Player) Command(format tts.AudioFormat) []string {
	rate := format.SampleRate
	if rate == 0 {
		rate = tts.SampleRateFromEncoding(format.Encoding)
	}
	channels := format.Channels
	if channels == 0 {
		channels = 1
	}
	name := formatName(format.Encoding)
	repl := strings.NewReplacer(
		"{format}", name,
		"{rate}", strconv.Itoa(rate),
		"{channels}", strconv.Itoa(channels),
	)

	var out []string
	for _, a := range p.args {
		if a == "{input}" {
			if format.Encoding.IsPCM() {
				out = append(out, "-f", name, "-ar", strconv.Itoa(rate), "-ac", strconv.Itoa(channels))
			}
			continue
		}
		out = append(out, repl.Replace(a))
	}
	return out
}

// Play writes clip to the player and waits for it to exit.
func (p *Player) Play(ctx context.Context, clip *tts.AudioResult) error {
	if clip == nil || len(clip.Audio) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.cmu.Lock()
	p.cancel = cancel
	p.cmu.Unlock()
	defer func() {
		p.cmu.Lock()
		p.cancel = nil
		p.cmu.Unlock()
		cancel()
	}()

	argv := p.Command(clip.Format)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(clip.Audio)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	p.playing.Store(true)
	if p.OnPlaybackStart != nil {
		p.OnPlaybackStart()
	}
	err := cmd.Run()
	p.playing.Store(false)
	if p.OnPlaybackEnd != nil {
		p.OnPlaybackEnd()
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("audio: %s: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
	}
	p.logger.Debug("clip played",
		"bytes", len(clip.Audio),
		"encoding", clip.Format.Encoding,
		"expected_ms", clip.Duration.Milliseconds(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Cancel stops the clip that is currently playing, if any.
func (p *Player) Cancel() {
	p.cmu.Lock()
	defer p.cmu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// IsPlaying reports whether a clip is being played.
func (p *Player) IsPlaying() bool {
	return p.playing.Load()
}

func formatName(enc tts.Encoding) string {
	switch {
	case enc.IsPCM():
		return "s16le"
	case enc == tts.EncodingWAV:
		return "wav"
	default:
		return "mp3"
	}
}

var _ Speaker = (*Player)(nil)
