package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"kvchat/internal/kv"
	"kvchat/internal/models"
)

// startPoller runs p in the background and returns a stop function that
// cancels it and waits for the event channel to close.
func startPoller(ctx context.Context, p *Poller) func() {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()
	return func() {
		cancel()
		for range p.Events() {
		}
		wg.Wait()
	}
}

func nextEvent(t *testing.T, p *Poller, kinds ...models.EventKind) models.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-p.Events():
			require.True(t, ok, "poller stopped")
			for _, k := range kinds {
				if ev.Kind == k {
					return ev
				}
			}
		case <-timeout:
			t.Fatalf("no %v event within timeout", kinds)
		}
	}
}

func TestPollerDeliversExistingAndNewMessages(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	alice := newTestClient(t, kv.NewMemoryStore(), "alice")
	require.NoError(t, alice.CreateRoom(ctx, "alice", "lobby"))
	_, err := alice.Append(ctx, "lobby", "alice", "first")
	require.NoError(t, err)

	p := alice.NewPoller("lobby")
	stop := startPoller(ctx, p)
	defer stop()

	ev := nextEvent(t, p, models.EventMessage)
	assert.Equal(t, 0, ev.Index)
	assert.Equal(t, "first", ev.Message.Text)

	_, err = alice.Append(ctx, "lobby", "alice", "second")
	require.NoError(t, err)
	ev = nextEvent(t, p, models.EventMessage)
	assert.Equal(t, 1, ev.Index)
	assert.Equal(t, "second", ev.Message.Text)
	assert.Equal(t, "alice", ev.Message.Author)
}

func TestPollerStartIndex(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	alice := newTestClient(t, kv.NewMemoryStore(), "alice")
	require.NoError(t, alice.CreateRoom(ctx, "alice", "lobby"))
	for _, text := range []string{"a", "b", "c"} {
		_, err := alice.Append(ctx, "lobby", "alice", text)
		require.NoError(t, err)
	}

	p := alice.NewPoller("lobby", WithStartIndex(2))
	stop := startPoller(ctx, p)
	defer stop()

	ev := nextEvent(t, p, models.EventMessage)
	assert.Equal(t, 2, ev.Index)
	assert.Equal(t, "c", ev.Message.Text)
}

func TestPollerStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	alice := newTestClient(t, kv.NewMemoryStore(), "alice")
	require.NoError(t, alice.CreateRoom(context.Background(), "alice", "lobby"))

	ctx, cancel := context.WithCancel(context.Background())
	p := alice.NewPoller("lobby", WithEventBuffer(0))
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	// nobody reads events, so the poller must still honour cancellation
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
	_, ok := <-p.Events()
	assert.False(t, ok)
}

func TestPollerReportsUndecryptableAndContinues(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	store := kv.NewMemoryStore()
	alice := newTestClient(t, store, "alice")
	require.NoError(t, alice.CreateRoom(ctx, "alice", "lobby"))
	_, err := alice.Append(ctx, "lobby", "alice", "doomed")
	require.NoError(t, err)
	_, err = alice.Append(ctx, "lobby", "alice", "fine")
	require.NoError(t, err)

	v, _, err := store.Get(ctx, "chats/lobby/0")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "chats/lobby/0", flipHexDigit(v, len(v)-1)))

	p := alice.NewPoller("lobby")
	stop := startPoller(ctx, p)
	defer stop()

	ev := nextEvent(t, p, models.EventUndecryptable, models.EventMessage)
	assert.Equal(t, models.EventUndecryptable, ev.Kind)
	assert.Equal(t, 0, ev.Index)
	require.ErrorIs(t, ev.Err, ErrDecryptionIntegrity)

	ev = nextEvent(t, p, models.EventMessage)
	assert.Equal(t, 1, ev.Index)
	assert.Equal(t, "fine", ev.Message.Text)
}

func TestPollerSurvivesStoreOutage(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	store := &flakyStore{Store: kv.NewMemoryStore()}
	alice := newTestClient(t, store, "alice")
	require.NoError(t, alice.CreateRoom(ctx, "alice", "lobby"))

	p := alice.NewPoller("lobby")
	stop := startPoller(ctx, p)
	defer stop()

	store.down.Store(true)
	ev := nextEvent(t, p, models.EventError)
	require.ErrorIs(t, ev.Err, ErrStoreUnavailable)

	store.down.Store(false)
	_, err := alice.Append(ctx, "lobby", "alice", "back online")
	require.NoError(t, err)
	ev = nextEvent(t, p, models.EventMessage)
	assert.Equal(t, "back online", ev.Message.Text)
}

func TestPollerWithoutRoomKeyDoesNotSkip(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	store := kv.NewMemoryStore()
	alice, bob := newTestClient(t, store, "alice"), newTestClient(t, store, "bob")
	require.NoError(t, alice.CreateRoom(ctx, "alice", "lobby"))
	_, err := alice.Append(ctx, "lobby", "alice", "before bob")
	require.NoError(t, err)
	require.NoError(t, bob.RequestJoin(ctx, "bob", "lobby"))

	p := bob.NewPoller("lobby", WithAnnounceJoins(false))
	stop := startPoller(ctx, p)
	defer stop()

	ev := nextEvent(t, p, models.EventError, models.EventMessage)
	assert.Equal(t, models.EventError, ev.Kind)
	require.ErrorIs(t, ev.Err, ErrKeyUnavailable)

	// once approved, the message that failed earlier is delivered
	require.NoError(t, alice.Approve(ctx, "bob", "lobby"))
	result, err := bob.AwaitGrant(ctx, "bob", "lobby")
	require.NoError(t, err)
	require.Equal(t, models.Granted, result)

	ev = nextEvent(t, p, models.EventMessage)
	assert.Equal(t, 0, ev.Index)
	assert.Equal(t, "before bob", ev.Message.Text)
}

// TestLobbyScenario walks the full flow: alice creates a room, bob asks to
// join, alice's poller announces him, alice approves, bob receives the room
// key and writes a message that alice's poller decrypts.
func TestLobbyScenario(t *testing.T) {
	defer goleak.VerifyNone(t)
	forEachMode(t, func(t *testing.T, store *kv.MemoryStore, newClient func(string) *Client) {
		ctx := context.Background()
		alice, bob := newClient("alice"), newClient("bob")

		require.NoError(t, alice.CreateRoom(ctx, "alice", "lobby"))
		n, err := alice.MemberCount(ctx, "lobby")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		p := alice.NewPoller("lobby")
		stop := startPoller(ctx, p)
		defer stop()

		// let the poller take its member baseline before bob shows up
		require.Eventually(t, func() bool { return p.primed.Load() }, 5*time.Second, 5*time.Millisecond)

		joinCtx, cancelJoin := context.WithTimeout(ctx, 10*time.Second)
		defer cancelJoin()
		grant := make(chan models.GrantResult, 1)
		joinErr := make(chan error, 1)
		go func() {
			result, err := bob.Join(joinCtx, "bob", "lobby")
			grant <- result
			joinErr <- err
		}()

		ev := nextEvent(t, p, models.EventMemberJoined)
		assert.Equal(t, "bob", ev.Member)

		members, err := alice.ListMembers(ctx, "lobby")
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob"}, members)
		assert.Equal(t, "4e554c4c", store.Snapshot()["meta/lobby/bob/encrypted_private_key"])

		ev = nextEvent(t, p, models.EventMessage)
		assert.Equal(t, models.AdminAuthor, ev.Message.Author)
		assert.Equal(t, `User bob would like to join! Please type "!bob" to accept`, ev.Message.Text)

		listed, err := alice.ApproveListed(ctx, "alice", "bob", "lobby")
		require.NoError(t, err)
		require.True(t, listed)

		require.Equal(t, models.Granted, <-grant)
		require.NoError(t, <-joinErr)

		ev = nextEvent(t, p, models.EventMessage)
		assert.Equal(t, "User bob accepted by alice.", ev.Message.Text)

		index, err := bob.Append(ctx, "lobby", "bob", "hi")
		require.NoError(t, err)
		ev = nextEvent(t, p, models.EventMessage)
		assert.Equal(t, index, ev.Index)
		assert.Equal(t, "bob", ev.Message.Author)
		assert.Equal(t, "hi", ev.Message.Text)

		// bob reads the whole history, including what predates his approval
		for i := 0; i <= index; i++ {
			_, err := bob.Read(ctx, "lobby", i)
			require.NoError(t, err)
		}
	})
}

func TestPollerReportsJoinOnceWhenAnnouncementFails(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	shared := kv.NewMemoryStore()
	store := &flakyStore{Store: shared}
	alice := newTestClient(t, store, "alice")
	bob := newTestClient(t, shared, "bob")
	require.NoError(t, alice.CreateRoom(ctx, "alice", "lobby"))

	p := alice.NewPoller("lobby")
	stop := startPoller(ctx, p)
	defer stop()
	require.Eventually(t, func() bool { return p.primed.Load() }, 5*time.Second, 5*time.Millisecond)

	store.readOnly.Store(true)
	require.NoError(t, bob.RequestJoin(ctx, "bob", "lobby"))

	// several cycles fail to write the announcement
	joined := 0
	for i := 0; i < 3; i++ {
		ev := nextEvent(t, p, models.EventError, models.EventMemberJoined)
		if ev.Kind == models.EventMemberJoined {
			joined++
		}
	}
	assert.Zero(t, joined)

	store.readOnly.Store(false)
	ev := nextEvent(t, p, models.EventMemberJoined)
	assert.Equal(t, "bob", ev.Member)
	ev = nextEvent(t, p, models.EventMessage, models.EventMemberJoined)
	require.Equal(t, models.EventMessage, ev.Kind)
	assert.Equal(t, JoinRequestText("bob"), ev.Message.Text)

	// no repeated report once the announcement is in the log
	timeout := time.After(100 * time.Millisecond)
	for {
		select {
		case ev := <-p.Events():
			assert.NotEqual(t, models.EventMemberJoined, ev.Kind)
		case <-timeout:
			return
		}
	}
}
