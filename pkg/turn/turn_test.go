package turn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-commander/internal/log"
	"github.com/teslashibe/go-commander/pkg/character"
	"github.com/teslashibe/go-commander/pkg/history"
)

func newCharacter(name string, mod ...func(*character.Config)) *character.Character {
	cfg := character.Config{
		Name:               name,
		DisplayName:        name + "!",
		Voice:              character.VoiceConfig{Provider: character.VoiceAzure},
		FirstSystemMessage: character.SystemMessage{Content: []string{"you are " + name}},
	}
	for _, m := range mod {
		m(&cfg)
	}
	ch := character.New(cfg)
	ch.History().Seed(cfg.FirstSystemMessage.String())
	return ch
}

func newCast(t *testing.T, chars ...*character.Character) *character.Cast {
	t.Helper()
	cast, err := character.NewCast(chars...)
	require.NoError(t, err)
	return cast
}

type chatFunc func(ctx context.Context, req *ChatRequest) (string, error)

func (f chatFunc) Complete(ctx context.Context, req *ChatRequest) (string, error) { return f(ctx, req) }

type spoken struct {
	Character, Text, Style string
}

type fakeVoice struct {
	mu    sync.Mutex
	calls []spoken
	fn    func(ch *character.Character) error
}

func (v *fakeVoice) Speak(ctx context.Context, ch *character.Character, text, style string) error {
	v.mu.Lock()
	v.calls = append(v.calls, spoken{ch.Name(), text, style})
	v.mu.Unlock()
	if v.fn != nil {
		return v.fn(ch)
	}
	return nil
}

func (v *fakeVoice) Calls() []spoken {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]spoken(nil), v.calls...)
}

type fakeStore struct {
	mu    sync.Mutex
	saved map[string][]history.Message
}

func (s *fakeStore) Save(name string, msgs []history.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = map[string][]history.Message{}
	}
	s.saved[name] = msgs
	return nil
}

type fakeScreen struct{ monitor int }

func (s *fakeScreen) Capture(ctx context.Context, monitor int) ([]byte, error) {
	s.monitor = monitor
	return []byte("png"), nil
}

// harness runs a dispatcher and collects its events.
type harness struct {
	coord  *Coordinator
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
}

func startDispatcher(t *testing.T, cast *character.Cast, opts Options) *harness {
	t.Helper()
	h := &harness{
		coord:  NewCoordinator(log.Discard()),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	opts.Logger = log.Discard()
	opts.OnEvent = func(ev Event) { h.events <- ev }

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	d := NewDispatcher(h.coord, cast, opts)
	go func() {
		defer close(h.done)
		d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

// waitTurns collects events until n turns have ended.
func (h *harness) waitTurns(t *testing.T, n int) []Event {
	t.Helper()
	var out []Event
	ended := 0
	timeout := time.After(2 * time.Second)
	for ended < n {
		select {
		case ev := <-h.events:
			out = append(out, ev)
			if ev.Kind == EventFinished || ev.Kind == EventFailed {
				ended++
			}
		case <-timeout:
			t.Fatalf("timed out after %d of %d turns", ended, n)
		}
	}
	return out
}

func TestCoordinatorFIFO(t *testing.T) {
	c := NewCoordinator(log.Discard())
	a, b := newCharacter("a"), newCharacter("b")

	for _, ch := range []*character.Character{a, b, a} {
		_, err := c.Enqueue(ch, SourceHotkey, nil)
		require.NoError(t, err)
	}
	require.Len(t, c.Pending(), 3)

	ctx := context.Background()
	for _, want := range []string{"a", "b", "a"} {
		act, err := c.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, act.Character.Name())
	}
	assert.True(t, c.Quiet())
}

func TestEnqueueRejectedWhileRecording(t *testing.T) {
	c := NewCoordinator(log.Discard())
	a := newCharacter("a")

	require.True(t, c.BeginRecording())
	assert.False(t, c.BeginRecording(), "microphone is exclusive")

	for _, src := range []Source{SourceHotkey, SourceTrigger, SourceChat} {
		_, err := c.Enqueue(a, src, nil)
		assert.True(t, errors.Is(err, ErrRecording))
	}
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, character.StateIdle, a.State())

	c.EndRecording()
	_, err := c.Enqueue(a, SourceHotkey, nil)
	assert.NoError(t, err)
}

func TestEnqueueIfQuiet(t *testing.T) {
	c := NewCoordinator(log.Discard())
	a, b := newCharacter("a"), newCharacter("b")

	_, err := c.EnqueueIfQuiet(a, SourceChat, &Input{Text: "hi"})
	require.NoError(t, err)

	_, err = c.EnqueueIfQuiet(b, SourceChat, &Input{Text: "yo"})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, c.Len())

	_, err = c.Next(context.Background())
	require.NoError(t, err)

	require.True(t, c.BeginRecording())
	_, err = c.EnqueueIfQuiet(b, SourceChat, &Input{Text: "yo"})
	assert.ErrorIs(t, err, ErrRecording)
	assert.Equal(t, 0, c.Len())
}

func TestEnqueueIfQuietAdmitsOneOfMany(t *testing.T) {
	c := NewCoordinator(log.Discard())
	chars := []*character.Character{newCharacter("a"), newCharacter("b"), newCharacter("c"), newCharacter("d")}

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		start    = make(chan struct{})
	)
	for _, ch := range chars {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := c.EnqueueIfQuiet(ch, SourceChat, nil); err == nil {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, 1, c.Len())
}

func TestNextWaitsForRecording(t *testing.T) {
	c := NewCoordinator(log.Discard())
	_, err := c.Enqueue(newCharacter("a"), SourceHotkey, nil)
	require.NoError(t, err)
	require.True(t, c.BeginRecording())

	got := make(chan Activation, 1)
	go func() {
		act, err := c.Next(context.Background())
		if err == nil {
			got <- act
		}
	}()

	select {
	case <-got:
		t.Fatal("activation popped during recording")
	case <-time.After(50 * time.Millisecond):
	}

	c.EndRecording()
	select {
	case act := <-got:
		assert.Equal(t, "a", act.Character.Name())
	case <-time.After(time.Second):
		t.Fatal("activation not released after recording ended")
	}
}

func TestNextHonorsContext(t *testing.T) {
	c := NewCoordinator(log.Discard())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Next(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestLastInputIsConsumed(t *testing.T) {
	c := NewCoordinator(log.Discard())
	_, ok := c.TakeLastInput()
	assert.False(t, ok)

	c.SetLastInput(Input{Text: "hello"})
	in, ok := c.TakeLastInput()
	require.True(t, ok)
	assert.Equal(t, "hello", in.Text)

	_, ok = c.TakeLastInput()
	assert.False(t, ok)
}

func TestToggleScreenshot(t *testing.T) {
	c := NewCoordinator(log.Discard())
	assert.False(t, c.ScreenshotEnabled())
	assert.True(t, c.ToggleScreenshot())
	assert.True(t, c.ScreenshotEnabled())
	assert.False(t, c.ToggleScreenshot())
}

func TestDispatcherSerializesTurnsInOrder(t *testing.T) {
	a, b, c := newCharacter("a"), newCharacter("b"), newCharacter("c")
	cast := newCast(t, a, b, c)

	var inflight, maxInflight int32
	var mu sync.Mutex
	var order []string
	chat := chatFunc(func(ctx context.Context, req *ChatRequest) (string, error) {
		n := atomic.AddInt32(&inflight, 1)
		defer atomic.AddInt32(&inflight, -1)
		for {
			m := atomic.LoadInt32(&maxInflight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInflight, m, n) {
				break
			}
		}
		mu.Lock()
		order = append(order, req.Character.Name())
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return "reply from " + req.Character.Name(), nil
	})

	h := startDispatcher(t, cast, Options{Chat: chat, Voice: &fakeVoice{}})
	for _, ch := range []*character.Character{c, a, b} {
		_, err := h.coord.Enqueue(ch, SourceHotkey, nil)
		require.NoError(t, err)
	}
	h.waitTurns(t, 3)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"c", "a", "b"}, order)
	assert.EqualValues(t, 1, atomic.LoadInt32(&maxInflight), "chat calls never overlap")
}

func TestDispatcherChatFailure(t *testing.T) {
	a, b := newCharacter("a"), newCharacter("b")
	cast := newCast(t, a, b)
	voice := &fakeVoice{}

	chat := chatFunc(func(ctx context.Context, req *ChatRequest) (string, error) {
		switch req.Character.Name() {
		case "a":
			return "", errors.New("boom")
		default:
			return "   ", nil
		}
	})

	h := startDispatcher(t, cast, Options{Chat: chat, Voice: voice})
	h.coord.Enqueue(a, SourceHotkey, nil)
	h.coord.Enqueue(b, SourceHotkey, nil)
	events := h.waitTurns(t, 2)

	var failed []string
	for _, ev := range events {
		if ev.Kind == EventFailed {
			failed = append(failed, ev.Character)
		}
	}
	assert.Equal(t, []string{"a", "b"}, failed, "errors and empty replies both fail")
	assert.Equal(t, character.StateError, a.State())
	assert.Equal(t, character.StateError, b.State())
	assert.Empty(t, voice.Calls(), "no synthesis after a failed chat step")
}

func TestDispatcherDirectivesAndTriggers(t *testing.T) {
	a := newCharacter("a", func(c *character.Config) {
		c.Visuals.Prefixes = character.PrefixTable{{Token: "(cheerful)", Style: "excited"}}
		c.MessageReplacements = []character.Replacement{{ToReplace: "Hullo", ReplaceWith: "Hello"}}
	})
	bob := newCharacter("Bob")
	cast := newCast(t, a, bob)
	voice := &fakeVoice{}

	var prompts []string
	chat := chatFunc(func(ctx context.Context, req *ChatRequest) (string, error) {
		prompts = append(prompts, req.Prompt)
		if req.Character == a {
			return "(cheerful)[trigger]Bob[/trigger]Hullo there", nil
		}
		return "hi a", nil
	})

	h := startDispatcher(t, cast, Options{Chat: chat, Voice: voice})
	h.coord.Enqueue(a, SourceHotkey, &Input{Text: "say hi to bob", Speaker: "viewer"})
	events := h.waitTurns(t, 2)

	assert.Equal(t, []spoken{
		{"a", "Hello there", "excited"},
		{"Bob", "hi a", ""},
	}, voice.Calls())
	assert.Equal(t, []string{"say hi to bob", DefaultPrompt}, prompts)

	var bobStart Event
	for _, ev := range events {
		if ev.Character == "Bob" && ev.Kind == EventStarted {
			bobStart = ev
		}
	}
	assert.Equal(t, SourceTrigger, bobStart.Source)

	last, ok := a.History().Last()
	require.True(t, ok)
	assert.Equal(t, history.User("\n[Bob!]\nhi a"), last)
}

func TestDispatcherForcesPartnersToListening(t *testing.T) {
	a := newCharacter("a", func(c *character.Config) { c.ScenePartners = []string{"b"} })
	b, c := newCharacter("b"), newCharacter("c")
	cast := newCast(t, a, b, c)

	var during []character.Snapshot
	voice := &fakeVoice{fn: func(ch *character.Character) error {
		during = append(during, b.Snapshot(), c.Snapshot(), a.Snapshot())
		return nil
	}}
	b.ShowUserText("stale")

	h := startDispatcher(t, cast, Options{Chat: chatFunc(func(ctx context.Context, req *ChatRequest) (string, error) {
		return "hello", nil
	}), Voice: voice})
	h.coord.Enqueue(a, SourceHotkey, nil)
	h.waitTurns(t, 1)

	require.Len(t, during, 3)
	assert.Equal(t, character.StateListening, during[0].State)
	assert.Empty(t, during[0].Subtitles)
	assert.Equal(t, character.StateIdle, during[1].State, "non-partners are untouched")
	assert.Equal(t, character.StateTalking, during[2].State)
	assert.Equal(t, "hello", during[2].Subtitles)

	assert.Equal(t, character.StateIdle, a.State())
	assert.Equal(t, character.StateListening, b.State(), "partner stays listening after the turn")
}

func TestDispatcherBroadcastsAndPersists(t *testing.T) {
	a, b := newCharacter("a"), newCharacter("b")
	cast := newCast(t, a, b)
	store := &fakeStore{}

	var (
		req      *ChatRequest
		peerSeen []history.Message
	)
	h := startDispatcher(t, cast, Options{
		Chat: chatFunc(func(ctx context.Context, r *ChatRequest) (string, error) {
			req = r
			peerSeen = b.History().Messages()
			return "T", nil
		}),
		Store: store,
	})
	h.coord.SetLastInput(Input{Text: "what's up"})
	h.coord.Enqueue(a, SourceMicrophone, nil)
	h.waitTurns(t, 1)

	require.NotNil(t, req)
	assert.Equal(t, history.User("\n[Player]\nwhat's up"), req.History[len(req.History)-1], "input is recorded before the call")
	assert.Equal(t, history.User("\n[Player]\nwhat's up"), peerSeen[len(peerSeen)-1], "partners hear the input before the reply")

	assert.Equal(t, []history.Message{
		history.System("you are a"),
		history.User("\n[Player]\nwhat's up"),
		history.Assistant("T"),
	}, a.History().Messages())
	assert.Equal(t, []history.Message{
		history.System("you are b"),
		history.User("\n[Player]\nwhat's up"),
		history.User("\n[a!]\nT"),
	}, b.History().Messages())

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, a.History().Messages(), store.saved["a"])
	assert.Equal(t, b.History().Messages(), store.saved["b"])

	_, ok := h.coord.TakeLastInput()
	assert.False(t, ok, "the turn consumed the last input")
}

func TestDispatcherTruncatesHistory(t *testing.T) {
	a := newCharacter("a", func(c *character.Config) { c.History.MaxLength = 3 })
	cast := newCast(t, a)
	h := startDispatcher(t, cast, Options{Chat: chatFunc(func(ctx context.Context, r *ChatRequest) (string, error) {
		assert.LessOrEqual(t, len(r.History), 3, "truncation happens before sending")
		return "ok", nil
	})})

	for i := 0; i < 4; i++ {
		h.coord.Enqueue(a, SourceHotkey, nil)
	}
	h.waitTurns(t, 4)

	msgs := a.History().Messages()
	assert.LessOrEqual(t, len(msgs), 3)
	assert.Equal(t, history.System("you are a"), msgs[0])
}

func TestDispatcherScreenshot(t *testing.T) {
	a := newCharacter("a", func(c *character.Config) { c.MonitorToScreenshot = 2 })
	cast := newCast(t, a)
	screen := &fakeScreen{}

	shots := make(chan []byte, 2)
	h := startDispatcher(t, cast, Options{
		Screen: screen,
		Chat: chatFunc(func(ctx context.Context, r *ChatRequest) (string, error) {
			shots <- r.Screenshot
			return "ok", nil
		}),
	})

	h.coord.Enqueue(a, SourceHotkey, nil)
	h.waitTurns(t, 1)
	assert.Nil(t, <-shots, "toggle is off by default")

	h.coord.ToggleScreenshot()
	h.coord.Enqueue(a, SourceHotkey, nil)
	h.waitTurns(t, 1)
	assert.Equal(t, []byte("png"), <-shots)
	assert.Equal(t, 2, screen.monitor)
}

func TestDispatcherSpeechFailure(t *testing.T) {
	a := newCharacter("a")
	cast := newCast(t, a)
	voice := &fakeVoice{fn: func(*character.Character) error { return errors.New("canceled") }}

	h := startDispatcher(t, cast, Options{Chat: chatFunc(func(ctx context.Context, r *ChatRequest) (string, error) {
		return "hi", nil
	}), Voice: voice})
	h.coord.Enqueue(a, SourceHotkey, nil)
	events := h.waitTurns(t, 1)

	assert.Equal(t, EventFailed, events[len(events)-1].Kind)
	assert.Equal(t, character.StateError, a.State())
}
