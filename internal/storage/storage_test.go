package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvchat/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenHistory(filepath.Join(t.TempDir(), "alice", HistoryFile))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func message(room string, index int) models.Message {
	return models.Message{
		Room:      room,
		Index:     index,
		Author:    "alice",
		Text:      fmt.Sprintf("%s message %d", room, index),
		Timestamp: int64(1000 + index),
	}
}

func TestStoreSaveAndQuery(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.LatestIndex(ctx, "lobby")
	require.ErrorIs(t, err, ErrNoRows)

	var msgs []models.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, message("lobby", i))
	}
	require.NoError(t, store.SaveMessages(ctx, msgs...))
	require.NoError(t, store.SaveMessages(ctx, message("dev", 0)))

	idx, err := store.LatestIndex(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, 4, idx)

	got, err := store.MessagesSince(ctx, "lobby", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, msgs[2:], got)

	got, err = store.MessagesSince(ctx, "lobby", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, msgs[:2], got)

	got, err = store.LatestMessages(ctx, "lobby", 3)
	require.NoError(t, err)
	assert.Equal(t, msgs[2:], got)
}

func TestStoreIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	first := message("lobby", 0)
	require.NoError(t, store.SaveMessages(ctx, first))
	dup := first
	dup.Text = "rewritten"
	require.NoError(t, store.SaveMessages(ctx, dup, message("lobby", 1)))

	got, err := store.MessagesSince(ctx, "lobby", 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.Text, got[0].Text)
}

func TestStoreDeleteRoom(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, store.SaveMessages(ctx, message("lobby", 0), message("lobby", 1), message("dev", 0)))

	n, err := store.DeleteRoom(ctx, "lobby")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = store.LatestIndex(ctx, "lobby")
	require.ErrorIs(t, err, ErrNoRows)
	idx, err := store.LatestIndex(ctx, "dev")
	require.NoError(t, err)
	assert.Zero(t, idx)
}

func TestStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), HistoryFile)
	store, err := OpenHistory(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveMessages(ctx, message("lobby", 0)))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.LatestIndex(ctx, "lobby")
	require.ErrorIs(t, err, ErrDBNotConnected)

	store, err = OpenHistory(path)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.MessagesSince(ctx, "lobby", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []models.Message{message("lobby", 0)}, got)
}

func TestStoreFirstMissingIndex(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	idx, err := s.FirstMissingIndex(ctx, "lobby")
	require.NoError(t, err)
	assert.Zero(t, idx, "empty room")

	require.NoError(t, s.SaveMessages(ctx, message("lobby", 1), message("lobby", 2)))
	idx, err = s.FirstMissingIndex(ctx, "lobby")
	require.NoError(t, err)
	assert.Zero(t, idx, "index 0 missing")

	require.NoError(t, s.SaveMessages(ctx, message("lobby", 0), message("lobby", 4), message("other", 3)))
	idx, err = s.FirstMissingIndex(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, 3, idx)

	got, err := s.IndicesSince(ctx, "lobby", 3)
	require.NoError(t, err)
	assert.Equal(t, map[int]struct{}{4: {}}, got)
}
