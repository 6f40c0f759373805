package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-commander/internal/log"
	"github.com/teslashibe/go-commander/pkg/tts"
)

func pcmClip(data string) *tts.AudioResult {
	return &tts.AudioResult{
		Audio:  []byte(data),
		Format: tts.AudioFormat{Encoding: tts.EncodingPCM24, SampleRate: 24000, Channels: 1, BitDepth: 16},
	}
}

func TestCommandExpandsPCMInput(t *testing.T) {
	p, err := NewPlayer("", log.Discard())
	require.NoError(t, err)

	got := p.Command(tts.AudioFormat{Encoding: tts.EncodingPCM24})
	assert.Equal(t, []string{
		"ffplay", "-nodisp", "-autoexit", "-loglevel", "error",
		"-f", "s16le", "-ar", "24000", "-ac", "1", "-i", "-",
	}, got)
}

func TestCommandDropsInputForMP3(t *testing.T) {
	p, err := NewPlayer("", log.Discard())
	require.NoError(t, err)

	got := p.Command(tts.AudioFormat{Encoding: tts.EncodingMP3})
	assert.Equal(t, []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "error", "-i", "-"}, got)
}

func TestCommandPlaceholders(t *testing.T) {
	p, err := NewPlayer("aplay -t raw -f S16_LE -r {rate} -c {channels} --name={format}", log.Discard())
	require.NoError(t, err)

	got := p.Command(tts.AudioFormat{Encoding: tts.EncodingPCM16, Channels: 2})
	assert.Equal(t, []string{"aplay", "-t", "raw", "-f", "S16_LE", "-r", "16000", "-c", "2", "--name=s16le"}, got)
}

func TestNewPlayerArgsRequiresCommand(t *testing.T) {
	_, err := NewPlayerArgs(nil, nil)
	assert.ErrorIs(t, err, ErrNoCommand)
}

func TestPlayPipesAudio(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.raw")
	p, err := NewPlayerArgs([]string{"sh", "-c", "cat > " + out}, log.Discard())
	require.NoError(t, err)

	var started, ended bool
	p.OnPlaybackStart = func() { started = true }
	p.OnPlaybackEnd = func() { ended = true }

	require.NoError(t, p.Play(context.Background(), pcmClip("hello audio")))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello audio", string(data))
	assert.True(t, started)
	assert.True(t, ended)
	assert.False(t, p.IsPlaying())
}

func TestPlaySkipsEmptyClip(t *testing.T) {
	p, err := NewPlayerArgs([]string{"false"}, log.Discard())
	require.NoError(t, err)

	assert.NoError(t, p.Play(context.Background(), nil))
	assert.NoError(t, p.Play(context.Background(), &tts.AudioResult{}))
}

func TestPlayReportsFailure(t *testing.T) {
	p, err := NewPlayerArgs([]string{"sh", "-c", "cat >/dev/null; echo broken >&2; exit 3"}, log.Discard())
	require.NoError(t, err)

	err = p.Play(context.Background(), pcmClip("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestCancelStopsPlayback(t *testing.T) {
	p, err := NewPlayerArgs([]string{"sleep", "10"}, log.Discard())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), pcmClip("x")) }()

	require.Eventually(t, p.IsPlaying, time.Second, 5*time.Millisecond)
	p.Cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("playback not canceled")
	}
}

func TestMockRecordsPlays(t *testing.T) {
	m := NewMock()
	clip := pcmClip("a")
	require.NoError(t, m.Play(context.Background(), clip))
	assert.Equal(t, []*tts.AudioResult{clip}, m.Plays())
}
