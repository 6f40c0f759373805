package chatfeed

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessagePrompt(t *testing.T) {
	assert.Equal(t, "hello", Message{Content: "hello"}.Prompt())
	assert.Equal(t, "[First Time Chatter]\nhello", Message{Content: "hello", First: true}.Prompt())
}

func TestBufferRollsOver(t *testing.T) {
	b := NewBuffer(3)
	for i := range 5 {
		b.Push(Message{ID: fmt.Sprint(i)})
	}
	require.Equal(t, 3, b.Len())
	snap := b.Snapshot()
	assert.Equal(t, "2", snap[0].ID)
	assert.Equal(t, "4", snap[2].ID)
	assert.False(t, snap[0].At.IsZero())
}

func TestBufferDefaultLength(t *testing.T) {
	b := NewBuffer(0)
	for range DefaultBufferLength + 10 {
		b.Push(Message{})
	}
	assert.Equal(t, DefaultBufferLength, b.Len())
}

func TestTakeRandom(t *testing.T) {
	b := NewBuffer(10)
	_, ok := b.TakeRandom(true)
	assert.False(t, ok)

	b.Push(Message{ID: "a"})
	b.Push(Message{ID: "b"})
	b.Push(Message{ID: "c"})
	b.SetRand(func(n int) int { return 1 })

	m, ok := b.TakeRandom(false)
	require.True(t, ok)
	assert.Equal(t, "b", m.ID)
	assert.Equal(t, 3, b.Len())

	m, ok = b.TakeRandom(true)
	require.True(t, ok)
	assert.Equal(t, "b", m.ID)
	assert.Equal(t, 2, b.Len())

	m, _ = b.TakeRandom(true)
	assert.Equal(t, "c", m.ID)
	assert.Equal(t, "a", b.Snapshot()[0].ID)
}

func TestRestore(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBuffer(3)
	b.Push(Message{ID: "a", At: t0})
	b.Push(Message{ID: "b", At: t0.Add(time.Second)})
	b.Push(Message{ID: "c", At: t0.Add(2 * time.Second)})
	b.SetRand(func(n int) int { return 1 })

	m, ok := b.TakeRandom(true)
	require.True(t, ok)
	b.Restore(m)
	ids := func() []string {
		var out []string
		for _, m := range b.Snapshot() {
			out = append(out, m.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids())

	b.SetRand(func(n int) int { return 0 })
	m, _ = b.TakeRandom(true)
	b.Push(Message{ID: "d", At: t0.Add(3 * time.Second)})
	b.Restore(m)
	assert.Equal(t, []string{"b", "c", "d"}, ids(), "oldest is not restored into a full buffer")
}
