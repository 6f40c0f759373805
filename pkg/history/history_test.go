package history

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMaxLength(t *testing.T) {
	assert.Equal(t, DefaultMaxLength, New(0).Max())
	assert.Equal(t, MinMaxLength, New(1).Max())
	assert.Equal(t, 7, New(7).Max())
}

func TestAppendPreservesSystemMessage(t *testing.T) {
	for max := MinMaxLength; max <= 6; max++ {
		for extra := 0; extra < 12; extra++ {
			t.Run(fmt.Sprintf("max=%d/extra=%d", max, extra), func(t *testing.T) {
				h := New(max)
				h.Seed("you are a pirate")
				for i := 0; i < extra; i++ {
					h.Append(User(fmt.Sprintf("m%d", i)))
				}

				msgs := h.Messages()
				require.NotEmpty(t, msgs)
				assert.LessOrEqual(t, len(msgs), max)
				assert.Equal(t, System("you are a pirate"), msgs[0])
				if extra > 0 {
					assert.Equal(t, fmt.Sprintf("m%d", extra-1), msgs[len(msgs)-1].Content)
				}
			})
		}
	}
}

func TestAppendDropsWholeOverflow(t *testing.T) {
	h := New(4)
	h.Seed("sys")
	h.Append(User("a"), Assistant("b"))

	removed := h.Append(User("c"), User("d"), User("e"))

	assert.Equal(t, 2, removed)
	assert.Equal(t, []Message{System("sys"), User("c"), User("d"), User("e")}, h.Messages())
}

func TestReplaceTruncates(t *testing.T) {
	h := New(3)
	h.Replace([]Message{System("s"), User("1"), User("2"), User("3")})
	assert.Equal(t, []Message{System("s"), User("2"), User("3")}, h.Messages())

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "3", last.Content)
}

func TestConcurrentAppend(t *testing.T) {
	h := New(1000)
	h.Seed("s")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Append(User("x"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 501, h.Len())
}

func TestBroadcaster(t *testing.T) {
	own, bob, cat := New(10), New(10), New(10)
	own.Seed("alice")
	bob.Seed("bob")
	cat.Seed("cat")

	b := Broadcaster{Own: own, Peers: []*History{bob, cat}}
	b.Input("Player", "hi all")
	b.Reply("Alice", "ahoy")

	assert.Equal(t, []Message{
		System("alice"),
		User("\n[Player]\nhi all"),
		Assistant("ahoy"),
	}, own.Messages())

	for _, peer := range []*History{bob, cat} {
		msgs := peer.Messages()
		require.Len(t, msgs, 3)
		assert.Equal(t, User("\n[Player]\nhi all"), msgs[1])
		assert.Equal(t, User("\n[Alice]\nahoy"), msgs[2])
	}
}

func TestStore(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	t.Run("load missing", func(t *testing.T) {
		_, ok, err := store.Load("ghost")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("save overwrites", func(t *testing.T) {
		require.NoError(t, store.Save("alice", []Message{System("s"), User("1")}))
		require.NoError(t, store.Save("alice", []Message{System("s")}))

		msgs, ok, err := store.Load("alice")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []Message{System("s")}, msgs)

		_, err = os.Stat(store.Path("alice") + ".tmp")
		assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
	})

	t.Run("restore loads saved history", func(t *testing.T) {
		require.NoError(t, store.Save("bob", []Message{System("old"), User("hello")}))
		h := New(10)

		loaded, err := store.Restore("bob", h, "new", true)
		require.NoError(t, err)
		assert.True(t, loaded)
		assert.Equal(t, 2, h.Len())
	})

	t.Run("restore disabled seeds and resets", func(t *testing.T) {
		require.NoError(t, store.Save("cat", []Message{System("old"), User("hello")}))
		h := New(10)

		loaded, err := store.Restore("cat", h, "new", false)
		require.NoError(t, err)
		assert.False(t, loaded)
		assert.Equal(t, []Message{System("new")}, h.Messages())

		_, ok, err := store.Load("cat")
		require.NoError(t, err)
		assert.False(t, ok, "reset document is empty")
	})
}

func TestRestoreCorruptDocument(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path("dan"), []byte("{not json"), 0o644))

	h := New(10)
	loaded, err := store.Restore("dan", h, "fresh", true)

	assert.Error(t, err)
	assert.False(t, loaded)
	assert.Equal(t, []Message{System("fresh")}, h.Messages())
}
