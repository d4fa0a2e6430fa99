package chat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kvchat/internal/crypto"
	"kvchat/internal/kv"
	"kvchat/internal/profile"
)

var testEngine = func() *crypto.Engine {
	engine, err := crypto.NewEngine(crypto.SchemeRSA, crypto.MinRSABits)
	if err != nil {
		panic(err)
	}
	return engine
}()

type mode struct {
	name string
	opts []Option
}

var modes = []mode{
	{name: "transactional"},
	{name: "ordered", opts: []Option{WithoutTransactions()}},
}

// newTestClient builds a client for user against store, with local state in
// a fresh directory.
func newTestClient(t *testing.T, store kv.Store, user string, opts ...Option) *Client {
	t.Helper()
	keys, err := profile.Open(t.TempDir(), user, "")
	require.NoError(t, err)
	opts = append([]Option{
		WithJoinPollInterval(10 * time.Millisecond),
		WithPollInterval(10 * time.Millisecond),
	}, opts...)
	return NewClient(store, testEngine, keys, opts...)
}

func forEachMode(t *testing.T, fn func(t *testing.T, store *kv.MemoryStore, newClient func(user string) *Client)) {
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			store := kv.NewMemoryStore()
			fn(t, store, func(user string) *Client {
				return newTestClient(t, store, user, m.opts...)
			})
		})
	}
}

var errInjected = errors.New("connection refused")

// flakyStore fails every call while down is set, and every write while
// readOnly is set. It hides Txn.
type flakyStore struct {
	kv.Store
	down     atomic.Bool
	readOnly atomic.Bool
}

func (f *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.down.Load() {
		return "", false, errInjected
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyStore) Put(ctx context.Context, key, value string) error {
	if f.down.Load() || f.readOnly.Load() {
		return errInjected
	}
	return f.Store.Put(ctx, key, value)
}
