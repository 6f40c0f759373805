package turn

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-commander/pkg/character"
	"github.com/teslashibe/go-commander/pkg/directive"
	"github.com/teslashibe/go-commander/pkg/history"
)

// DefaultPrompt is sent when a character is activated without any input.
const DefaultPrompt = "Continue."

// ErrEmptyReply is reported when the chat step returns no text.
var ErrEmptyReply = errors.New("turn: empty reply")

// ChatRequest is everything the chat step gets for one turn.
type ChatRequest struct {
	Character  *character.Character
	Prompt     string
	Speaker    string
	Screenshot []byte
	History    []history.Message // speaker's own, already holding the prompt
}

// ChatCompleter produces a character's reply.
type ChatCompleter interface {
	Complete(ctx context.Context, req *ChatRequest) (string, error)
}

// Synthesizer speaks text in a character's voice and returns when playback
// has finished.
type Synthesizer interface {
	Speak(ctx context.Context, ch *character.Character, text, style string) error
}

// ScreenCapturer grabs a screenshot of a monitor.
type ScreenCapturer interface {
	Capture(ctx context.Context, monitor int) ([]byte, error)
}

// HistorySaver persists a character's history.
type HistorySaver interface {
	Save(name string, msgs []history.Message) error
}

// EventKind classifies turn events.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventReplied  EventKind = "replied"
	EventFinished EventKind = "finished"
	EventFailed   EventKind = "failed"
)

// Event reports turn progress to observers such as the overlay.
type Event struct {
	TurnID    string    `json:"turn_id"`
	Kind      EventKind `json:"kind"`
	Character string    `json:"character"`
	Source    Source    `json:"source"`
	Speaker   string    `json:"speaker,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Text      string    `json:"text,omitempty"`
	Style     string    `json:"style,omitempty"`
	Triggered []string  `json:"triggered,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Options wires a Dispatcher's collaborators. Chat is required.
type Options struct {
	Chat    ChatCompleter
	Voice   Synthesizer
	Screen  ScreenCapturer
	Store   HistorySaver
	Logger  *slog.Logger
	OnEvent func(Event)
}

// Dispatcher is the single consumer of a Coordinator's queue.
type Dispatcher struct {
	coord  *Coordinator
	cast   *character.Cast
	opts   Options
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher for cast.
func NewDispatcher(coord *Coordinator, cast *character.Cast, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		coord:  coord,
		cast:   cast,
		opts:   opts,
		logger: logger.With("component", "turn.dispatcher"),
	}
}

// Run services activations one full turn at a time until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started", "characters", d.cast.Len())
	for {
		act, err := d.coord.Next(ctx)
		if err != nil {
			return err
		}
		d.runTurn(ctx, act)
	}
}

func (d *Dispatcher) emit(ev Event) {
	if d.opts.OnEvent == nil {
		return
	}
	ev.At = time.Now()
	d.opts.OnEvent(ev)
}

// runTurn drives one character from thinking back to idle or error.
func (d *Dispatcher) runTurn(ctx context.Context, act Activation) {
	ch := act.Character
	cfg := ch.Config()
	logger := d.logger.With("turn", act.ID.String(), "character", ch.Name(), "source", act.Source)
	base := Event{TurnID: act.ID.String(), Character: ch.Name(), Source: act.Source}

	if err := ch.Think(); err != nil {
		logger.Warn("turn skipped", "error", err)
		return
	}

	in := d.resolveInput(act, cfg.UsersName)
	started := base
	started.Kind, started.Speaker, started.Prompt = EventStarted, in.Speaker, in.Text
	d.emit(started)
	logger.Info("turn started", "speaker", in.Speaker, "prompt", in.Text)

	start := time.Now()
	reply, err := d.chat(ctx, ch, in, d.screenshot(ctx, ch, logger))
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		d.fail(ch, base, logger, "chat failed", err)
		return
	}
	logger.Debug("chat reply", "latency_ms", time.Since(start).Milliseconds(), "chars", len(reply))

	peers := d.cast.Others(ch)
	history.Broadcaster{Own: ch.History(), Peers: histories(peers)}.Reply(ch.DisplayName(), reply)
	d.persist(append([]*character.Character{ch}, peers...), logger)

	text := directive.Replace(reply, cfg.MessageReplacements)
	res := directive.Parse(text, cfg.Visuals.Prefixes, cfg.StyleImage, func(name string) bool {
		partner, ok := d.cast.Partner(ch, name)
		if !ok {
			return false
		}
		if _, err := d.coord.Enqueue(partner, SourceTrigger, nil); err != nil {
			logger.Warn("trigger not queued", "partner", partner.Name(), "error", err)
		}
		return true
	})
	if len(res.Unknown) > 0 {
		logger.Warn("unknown trigger names", "names", res.Unknown)
	}

	for _, p := range d.cast.Partners(ch) {
		if err := p.Listen(); err != nil {
			logger.Debug("partner not forced to listening", "partner", p.Name(), "error", err)
		}
	}
	if err := ch.Speak(res.Text, res.Style, res.Image); err != nil {
		logger.Error("cannot enter talking", "error", err)
		return
	}

	replied := base
	replied.Kind, replied.Text, replied.Style, replied.Triggered = EventReplied, res.Text, res.Style, res.Triggered
	d.emit(replied)

	if res.Text != "" && d.opts.Voice != nil {
		if err := d.opts.Voice.Speak(ctx, ch, res.Text, res.Style); err != nil {
			d.fail(ch, base, logger, "speech failed", err)
			return
		}
	}

	if err := ch.Finish(); err != nil {
		logger.Error("cannot return to idle", "error", err)
		return
	}
	finished := base
	finished.Kind = EventFinished
	d.emit(finished)
	logger.Info("turn finished", "duration_ms", time.Since(start).Milliseconds())
}

// resolveInput picks the turn's input: the activation's own, else the
// shared last input, else DefaultPrompt from the user.
func (d *Dispatcher) resolveInput(act Activation, usersName string) Input {
	var in Input
	if act.Input != nil {
		in = *act.Input
	} else if last, ok := d.coord.TakeLastInput(); ok {
		in = last
	}
	if strings.TrimSpace(in.Text) == "" {
		in.Text = DefaultPrompt
	}
	if in.Speaker == "" {
		in.Speaker = usersName
	}
	return in
}

// screenshot captures the character's monitor when the toggle is on.
// Capture failures are logged and the turn continues without an image.
func (d *Dispatcher) screenshot(ctx context.Context, ch *character.Character, logger *slog.Logger) []byte {
	monitor := ch.Config().MonitorToScreenshot
	if d.opts.Screen == nil || monitor <= 0 || !d.coord.ScreenshotEnabled() {
		return nil
	}
	img, err := d.opts.Screen.Capture(ctx, monitor)
	if err != nil {
		logger.Warn("screenshot failed", "monitor", monitor, "error", err)
		return nil
	}
	return img
}

// chat records the input in every history, then asks for a reply.
func (d *Dispatcher) chat(ctx context.Context, ch *character.Character, in Input, shot []byte) (string, error) {
	if d.opts.Chat == nil {
		return "", errors.New("turn: no chat completer configured")
	}
	history.Broadcaster{Own: ch.History(), Peers: histories(d.cast.Others(ch))}.Input(in.Speaker, in.Text)

	return d.opts.Chat.Complete(ctx, &ChatRequest{
		Character:  ch,
		Prompt:     in.Text,
		Speaker:    in.Speaker,
		Screenshot: shot,
		History:    ch.History().Messages(),
	})
}

func (d *Dispatcher) persist(chars []*character.Character, logger *slog.Logger) {
	if d.opts.Store == nil {
		return
	}
	for _, c := range chars {
		if err := d.opts.Store.Save(c.Name(), c.History().Messages()); err != nil {
			logger.Error("history not saved", "target", c.Name(), "error", err)
		}
	}
}

func (d *Dispatcher) fail(ch *character.Character, base Event, logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	if ferr := ch.Fail(); ferr != nil {
		logger.Error("cannot enter error state", "error", ferr)
	}
	ev := base
	ev.Kind, ev.Error = EventFailed, err.Error()
	d.emit(ev)
}

func histories(chars []*character.Character) []*history.History {
	out := make([]*history.History, len(chars))
	for i, c := range chars {
		out[i] = c.History()
	}
	return out
}
