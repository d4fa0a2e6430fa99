package kv

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// testStoreContract exercises the behaviour every backend must share.
func testStoreContract(t *testing.T, store Store, prefix string) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		v, ok, err := store.Get(ctx, prefix+"missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, prefix+"a", "1"))
		v, ok, err := store.Get(ctx, prefix+"a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "1", v)

		require.NoError(t, store.Put(ctx, prefix+"a", "2"))
		v, _, err = store.Get(ctx, prefix+"a")
		require.NoError(t, err)
		assert.Equal(t, "2", v)
	})

	t.Run("empty value is present", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, prefix+"empty", ""))
		_, ok, err := store.Get(ctx, prefix+"empty")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	txn, ok := store.(Txn)
	if !ok {
		return
	}

	t.Run("commit on absent key", func(t *testing.T) {
		key := prefix + "txn/absent"
		ok, err := txn.CommitIf(ctx, Absent(key), KeyValue{key, "x"}, KeyValue{prefix + "txn/side", "y"})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = txn.CommitIf(ctx, Absent(key), KeyValue{key, "z"})
		require.NoError(t, err)
		assert.False(t, ok)

		v, _, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "x", v)
		v, _, err = store.Get(ctx, prefix+"txn/side")
		require.NoError(t, err)
		assert.Equal(t, "y", v)
	})

	t.Run("commit on value", func(t *testing.T) {
		key := prefix + "txn/counter"
		require.NoError(t, store.Put(ctx, key, "0"))

		ok, err := txn.CommitIf(ctx, Equals(key, "1"), KeyValue{key, "2"})
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = txn.CommitIf(ctx, Equals(key, "0"), KeyValue{key, "1"})
		require.NoError(t, err)
		assert.True(t, ok)

		v, _, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "1", v)
	})

	t.Run("concurrent increments do not lose updates", func(t *testing.T) {
		key := prefix + "txn/race"
		require.NoError(t, store.Put(ctx, key, "0"))

		const workers = 8
		var g errgroup.Group
		for i := 0; i < workers; i++ {
			g.Go(func() error {
				for {
					cur, _, err := store.Get(ctx, key)
					if err != nil {
						return err
					}
					var n int
					if _, err := fmt.Sscanf(cur, "%d", &n); err != nil {
						return err
					}
					ok, err := txn.CommitIf(ctx, Equals(key, cur), KeyValue{key, fmt.Sprint(n + 1)})
					if err != nil {
						return err
					}
					if ok {
						return nil
					}
				}
			})
		}
		require.NoError(t, g.Wait())

		v, _, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(workers), v)
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	testStoreContract(t, store, "")
	require.NoError(t, store.Close())

	_, _, err := store.Get(context.Background(), "a")
	require.ErrorIs(t, err, ErrNotConnected)
	require.ErrorIs(t, store.Put(context.Background(), "a", "b"), ErrNotConnected)
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.Get(ctx, "a")
	require.ErrorIs(t, err, context.Canceled)
	_, err = store.CommitIf(ctx, Absent("a"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			for j := 0; j < 50; j++ {
				assert.NoError(t, store.Put(ctx, key, fmt.Sprint(j)))
				_, _, err := store.Get(ctx, key)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 16, store.Len())
}

func TestWithoutTxn(t *testing.T) {
	store := WithoutTxn(NewMemoryStore())
	_, ok := store.(Txn)
	assert.False(t, ok)
	testStoreContract(t, store, "")
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var config Config
		config.Sanitize()
		assert.Equal(t, BackendEtcd, config.Backend)
		assert.Equal(t, DefaultDialTimeout, config.DialTimeout)
		assert.Equal(t, DefaultRequestTimeout, config.RequestTimeout)
		assert.Equal(t, 1, config.ConnectRetries)
		require.Error(t, config.Validate())
	})

	t.Run("namespace gets a separator", func(t *testing.T) {
		config := Config{Namespace: "team-a"}
		config.Sanitize()
		assert.Equal(t, "team-a/", config.Namespace)
	})

	t.Run("unknown backend", func(t *testing.T) {
		config := Config{Backend: "Zookeeper", Endpoints: []string{"x"}}
		config.Sanitize()
		require.ErrorIs(t, config.Validate(), ErrUnknownBackend)
	})

	t.Run("blank endpoint", func(t *testing.T) {
		config := Config{Backend: BackendRedis, Endpoints: []string{" "}}
		require.Error(t, config.Validate())
	})

	t.Run("memory needs no endpoint", func(t *testing.T) {
		config := Config{Backend: BackendMemory}
		require.NoError(t, config.Validate())
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, Config{Backend: BackendMemory, Transactions: true}, nil)
	require.NoError(t, err)
	_, ok := store.(Txn)
	assert.True(t, ok)

	store, err = Open(ctx, Config{Backend: BackendMemory}, nil)
	require.NoError(t, err)
	_, ok = store.(Txn)
	assert.False(t, ok)

	_, err = Open(ctx, Config{Backend: "zookeeper", Endpoints: []string{"x"}}, nil)
	require.ErrorIs(t, err, ErrUnknownBackend)
}

func TestOpenUnreachable(t *testing.T) {
	config := Config{
		Backend:        BackendRedis,
		Endpoints:      []string{"127.0.0.1:1"},
		DialTimeout:    200 * time.Millisecond,
		ConnectRetries: 2,
	}
	_, err := Open(context.Background(), config, nil)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestDialEach(t *testing.T) {
	ctx := context.Background()
	var tried []string
	connect := func(_ context.Context, endpoint string) (string, error) {
		tried = append(tried, endpoint)
		if endpoint == "up:2379" {
			return "client@" + endpoint, nil
		}
		return "", fmt.Errorf("connection refused")
	}

	got, err := dialEach(ctx, []string{"down:2379", "up:2379", "later:2379"}, connect)
	require.NoError(t, err)
	assert.Equal(t, "client@up:2379", got)
	assert.Equal(t, []string{"down:2379", "up:2379"}, tried)

	tried = nil
	_, err = dialEach(ctx, []string{"a:1", "b:1"}, connect)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a:1")
	assert.Contains(t, err.Error(), "b:1")
	assert.Equal(t, []string{"a:1", "b:1"}, tried)

	_, err = dialEach(ctx, nil, connect)
	require.Error(t, err)
}
