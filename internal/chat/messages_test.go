package chat

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"kvchat/internal/kv"
)

func TestAppendAndRead(t *testing.T) {
	forEachMode(t, func(t *testing.T, _ *kv.MemoryStore, newClient func(string) *Client) {
		ctx := context.Background()
		alice := newClient("alice")
		require.NoError(t, alice.CreateRoom(ctx, "alice", "lobby"))

		const n = 10
		for i := 0; i < n; i++ {
			index, err := alice.Append(ctx, "lobby", "alice", fmt.Sprintf("message %d", i))
			require.NoError(t, err)
			assert.Equal(t, i, index)
		}

		count, err := alice.Count(ctx, "lobby")
		require.NoError(t, err)
		assert.Equal(t, n, count)

		for i := 0; i < n; i++ {
			msg, err := alice.Read(ctx, "lobby", i)
			require.NoError(t, err)
			assert.Equal(t, "lobby", msg.Room)
			assert.Equal(t, i, msg.Index)
			assert.Equal(t, "alice", msg.Author)
			assert.Equal(t, fmt.Sprintf("message %d", i), msg.Text)
			assert.NotZero(t, msg.Timestamp)
		}

		for _, i := range []int{-1, n, n + 1} {
			_, err := alice.Read(ctx, "lobby", i)
			require.ErrorIs(t, err, ErrMessageNotFound, "index %d", i)
		}
	})
}

func TestAppendLargeAndEmptyMessages(t *testing.T) {
	ctx := context.Background()
	alice := newTestClient(t, kv.NewMemoryStore(), "alice")
	require.NoError(t, alice.CreateRoom(ctx, "alice", "lobby"))

	large := make([]byte, 64*1024)
	for i := range large {
		large[i] = byte('a' + i%26)
	}
	for _, text := range []string{"", string(large), "emoji 🎉 and ünïcode"} {
		index, err := alice.Append(ctx, "lobby", "alice", text)
		require.NoError(t, err)
		msg, err := alice.Read(ctx, "lobby", index)
		require.NoError(t, err)
		assert.Equal(t, text, msg.Text)
	}
}

func TestCountUnknownRoom(t *testing.T) {
	alice := newTestClient(t, kv.NewMemoryStore(), "alice")
	count, err := alice.Count(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = alice.Append(context.Background(), "nowhere", "alice", "hi")
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestReadWithoutRoomKey(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	alice, eve := newTestClient(t, store, "alice"), newTestClient(t, store, "eve")
	require.NoError(t, alice.CreateRoom(ctx, "alice", "lobby"))
	_, err := alice.Append(ctx, "lobby", "alice", "secret")
	require.NoError(t, err)

	_, err = eve.Read(ctx, "lobby", 0)
	require.ErrorIs(t, err, ErrKeyUnavailable)

	// writing only needs the public key
	index, err := eve.Append(ctx, "lobby", "eve", "let me in")
	require.NoError(t, err)
	msg, err := alice.Read(ctx, "lobby", index)
	require.NoError(t, err)
	assert.Equal(t, "let me in", msg.Text)
}

func TestTamperDetection(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	alice := newTestClient(t, store, "alice")
	require.NoError(t, alice.CreateRoom(ctx, "alice", "lobby"))
	_, err := alice.Append(ctx, "lobby", "alice", "attack at dawn")
	require.NoError(t, err)

	original, _, err := store.Get(ctx, "chats/lobby/0")
	require.NoError(t, err)

	for i := 0; i < len(original); i += 7 {
		require.NoError(t, store.Put(ctx, "chats/lobby/0", flipHexDigit(original, i)))
		_, err := alice.Read(ctx, "lobby", 0)
		require.ErrorIs(t, err, ErrDecryptionIntegrity, "digit %d", i)
	}

	require.NoError(t, store.Put(ctx, "chats/lobby/0", "not hex"))
	_, err = alice.Read(ctx, "lobby", 0)
	require.ErrorIs(t, err, ErrDecryptionIntegrity)

	require.NoError(t, store.Put(ctx, "chats/lobby/0", original))
	msg, err := alice.Read(ctx, "lobby", 0)
	require.NoError(t, err)
	assert.Equal(t, "attack at dawn", msg.Text)
}

func TestConcurrentAppendsClaimDistinctIndices(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	alice := newTestClient(t, store, "alice", WithCommitRetries(1000))
	require.NoError(t, alice.CreateRoom(ctx, "alice", "lobby"))

	const (
		senders = 4
		each    = 10
	)
	indices := make(chan int, senders*each)
	var g errgroup.Group
	for s := 0; s < senders; s++ {
		s := s
		c := newTestClient(t, store, fmt.Sprintf("sender%d", s), WithCommitRetries(1000))
		g.Go(func() error {
			for i := 0; i < each; i++ {
				index, err := c.Append(ctx, "lobby", fmt.Sprintf("sender%d", s), fmt.Sprintf("%d-%d", s, i))
				if err != nil {
					return err
				}
				indices <- index
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(indices)

	var got []int
	for i := range indices {
		got = append(got, i)
	}
	sort.Ints(got)
	for i := range got {
		assert.Equal(t, i, got[i])
	}

	count, err := alice.Count(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, senders*each, count)

	texts := map[string]bool{}
	for i := 0; i < count; i++ {
		msg, err := alice.Read(ctx, "lobby", i)
		require.NoError(t, err)
		texts[msg.Text] = true
	}
	assert.Len(t, texts, senders*each)
}
