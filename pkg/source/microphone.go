package source

import (
	"context"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-commander/pkg/character"
	"github.com/teslashibe/go-commander/pkg/keys"
	"github.com/teslashibe/go-commander/pkg/turn"
)

// RetryPrompt is shown when a recording produced no speech.
const RetryPrompt = "Didn't catch that. Press the mic key and try again."

// Transcriber captures speech until stop is closed. partial receives the
// running transcript as it grows.
type Transcriber interface {
	Transcribe(ctx context.Context, stop <-chan struct{}, partial func(string)) (string, error)
}

// Microphone is the shared speech input. One recording runs at a time and
// blocks all enqueues while it lasts.
type Microphone struct {
	coord    *turn.Coordinator
	cast     *character.Cast
	keys     keys.Listener
	stt      Transcriber
	startKey string
	stopKey  string
	logger   *slog.Logger
}

// NewMicrophone creates the microphone source. An empty stopKey means the
// start key also stops the recording.
func NewMicrophone(coord *turn.Coordinator, cast *character.Cast, l keys.Listener, stt Transcriber, startKey, stopKey string, logger *slog.Logger) *Microphone {
	if stopKey == "" {
		stopKey = startKey
	}
	return &Microphone{
		coord:    coord,
		cast:     cast,
		keys:     l,
		stt:      stt,
		startKey: startKey,
		stopKey:  stopKey,
		logger:   componentLogger(logger, "microphone"),
	}
}

// Run waits for the start key and records until ctx is done.
func (m *Microphone) Run(ctx context.Context) error {
	m.logger.Info("microphone armed", "start_key", m.startKey, "stop_key", m.stopKey)
	for {
		if err := m.keys.WaitRelease(ctx, m.startKey); err != nil {
			return nil
		}
		m.Record(ctx)
	}
}

// Record performs one capture session and stores the transcript as the last
// input. It returns the transcript, empty when nothing was recognized.
func (m *Microphone) Record(ctx context.Context) string {
	if !m.coord.BeginRecording() {
		m.logger.Warn("recording already in progress")
		return ""
	}
	defer m.coord.EndRecording()

	for _, ch := range m.cast.All() {
		ch.ClearSubtitles()
		if err := ch.Listen(); err != nil {
			m.logger.Debug("character not listening", "character", ch.Name(), "error", err)
		}
	}

	stop := make(chan struct{})
	stopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if m.keys.WaitRelease(stopCtx, m.stopKey) == nil {
			close(stop)
		}
	}()

	m.logger.Info("recording started")
	text, err := m.stt.Transcribe(ctx, stop, m.showAll)
	text = strings.TrimSpace(text)
	if err != nil {
		m.logger.Error("transcription failed", "error", err)
	}
	if text == "" {
		m.logger.Warn("no speech recognized, retry")
		m.showAll(RetryPrompt)
		return ""
	}

	m.coord.SetLastInput(turn.Input{Text: text})
	m.showAll(text)
	m.logger.Info("recording finished", "chars", len(text))
	return text
}

func (m *Microphone) showAll(text string) {
	for _, ch := range m.cast.All() {
		ch.ShowUserText(text)
	}
}
