package overlay

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-commander/internal/log"
	"github.com/teslashibe/go-commander/pkg/character"
	"github.com/teslashibe/go-commander/pkg/history"
	"github.com/teslashibe/go-commander/pkg/hub"
	"github.com/teslashibe/go-commander/pkg/keys"
	"github.com/teslashibe/go-commander/pkg/turn"
)

type fixture struct {
	srv    *Server
	cast   *character.Cast
	coord  *turn.Coordinator
	board  *keys.Board
	assets string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	var chars []*character.Character
	for _, name := range []string{"alpha", "beta"} {
		ch := character.New(character.Config{
			Name:        name,
			DisplayName: strings.ToUpper(name),
			Voice:       character.VoiceConfig{Provider: character.VoiceAzure},
		})
		ch.History().Seed("you are " + name)
		chars = append(chars, ch)
	}
	cast, err := character.NewCast(chars...)
	require.NoError(t, err)

	assets := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(assets, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(assets, "images", "happy.png"), []byte("png"), 0o644))

	f := &fixture{cast: cast, coord: turn.NewCoordinator(log.Discard()), board: keys.NewBoard(), assets: assets}
	f.srv = New(Options{
		AssetsDir: assets,
		Cast:      cast,
		Coord:     f.coord,
		Keys:      f.board,
		Logger:    log.Discard(),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.srv.App().Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestCharacters(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/characters", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snaps []character.Snapshot
	require.NoError(t, json.Unmarshal(body, &snaps))
	require.Len(t, snaps, 2)
	assert.Equal(t, "alpha", snaps[0].Name)
	assert.Equal(t, character.StateIdle, snaps[0].State)
}

func TestActivate(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/activate/beta", `{"text":"hi there","speaker":"tester"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	act, err := f.coord.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "beta", act.Character.Name())
	assert.Equal(t, turn.SourceAPI, act.Source)
	require.NotNil(t, act.Input)
	assert.Equal(t, "hi there", act.Input.Text)

	resp, _ = f.do(t, http.MethodPost, "/api/activate/alpha", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	act, err = f.coord.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, act.Input)

	resp, _ = f.do(t, http.MethodPost, "/api/activate/nobody", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActivateWhileRecording(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.coord.BeginRecording())

	resp, _ := f.do(t, http.MethodPost, "/api/activate/alpha", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Zero(t, f.coord.Len())

	resp, body := f.do(t, http.MethodGet, "/api/queue", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var q QueueStatus
	require.NoError(t, json.Unmarshal(body, &q))
	assert.True(t, q.Recording)
	assert.Empty(t, q.Pending)
}

func TestQueueListsPending(t *testing.T) {
	f := newFixture(t)
	alpha, _ := f.cast.Get("alpha")
	_, err := f.coord.Enqueue(alpha, turn.SourceHotkey, nil)
	require.NoError(t, err)

	_, body := f.do(t, http.MethodGet, "/api/queue", "")
	var q QueueStatus
	require.NoError(t, json.Unmarshal(body, &q))
	require.Len(t, q.Pending, 1)
	assert.Equal(t, "alpha", q.Pending[0].Character)
	assert.Equal(t, turn.SourceHotkey, q.Pending[0].Source)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	alpha, _ := f.cast.Get("alpha")
	alpha.History().Append(history.User("hello"))

	resp, body := f.do(t, http.MethodGet, "/api/history/alpha", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msgs []history.Message
	require.NoError(t, json.Unmarshal(body, &msgs))
	assert.Equal(t, []history.Message{history.System("you are alpha"), history.User("hello")}, msgs)

	resp, _ = f.do(t, http.MethodGet, "/api/history/nobody", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestKeysAndScreenshot(t *testing.T) {
	f := newFixture(t)

	woke := make(chan error, 1)
	go func() { woke <- f.board.WaitRelease(context.Background(), "f5") }()
	require.Eventually(t, func() bool { return f.board.Waiting("f5") == 1 }, time.Second, time.Millisecond)

	resp, body := f.do(t, http.MethodPost, "/api/keys/F5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"woken":1`)
	select {
	case err := <-woke:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("key waiter not released")
	}

	_, body = f.do(t, http.MethodPost, "/api/screenshot", "")
	assert.JSONEq(t, `{"enabled":true}`, string(body))
	assert.True(t, f.coord.ScreenshotEnabled())
	_, body = f.do(t, http.MethodPost, "/api/screenshot", "")
	assert.JSONEq(t, `{"enabled":false}`, string(body))
}

func TestTranscript(t *testing.T) {
	f := newFixture(t)
	f.srv.opts.TranscriptLength = 2
	for _, kind := range []turn.EventKind{turn.EventStarted, turn.EventReplied, turn.EventFinished} {
		f.srv.RecordTurn(turn.Event{Kind: kind, Character: "alpha"})
	}

	_, body := f.do(t, http.MethodGet, "/api/transcript", "")
	var events []turn.Event
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 2)
	assert.Equal(t, turn.EventReplied, events[0].Kind)
	assert.Equal(t, turn.EventFinished, events[1].Kind)
}

func TestAssetsServed(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/assets/images/happy.png", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "png", string(body))
}

func TestMissingVoiceImageIsReset(t *testing.T) {
	f := newFixture(t)
	alpha, _ := f.cast.Get("alpha")
	require.NoError(t, alpha.Think())

	require.NoError(t, alpha.Speak("hi", "(sad)", "images/sad.png"))
	assert.Empty(t, alpha.Snapshot().VoiceImage)
	assert.Equal(t, character.StateTalking, alpha.State())

	require.NoError(t, alpha.Finish())
	require.NoError(t, alpha.Think())
	require.NoError(t, alpha.Speak("hi", "(happy)", "images/happy.png"))
	assert.Equal(t, "images/happy.png", alpha.Snapshot().VoiceImage)
}

func TestStateFeed(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- f.srv.Serve(ctx, ln) }()

	var conn *gorilla.Conn
	require.Eventually(t, func() bool {
		conn, _, err = gorilla.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/state", nil)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	defer conn.Close()

	read := func() hub.Event {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev hub.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	}

	first, second := read(), read()
	assert.Equal(t, EventSnapshot, first.Type)
	assert.Equal(t, "alpha", first.Data.(map[string]any)["name"])
	assert.Equal(t, "beta", second.Data.(map[string]any)["name"])

	require.Eventually(t, func() bool { return f.srv.stateHub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	beta, _ := f.cast.Get("beta")
	beta.ShowUserText("typing")

	ev := read()
	data := ev.Data.(map[string]any)
	assert.Equal(t, "beta", data["name"])
	assert.Equal(t, "typing", data["subtitles"])

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
