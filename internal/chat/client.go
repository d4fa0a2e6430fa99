// Package chat implements the room protocol on top of a shared key-value
// store: the room registry, the join/approve handshake, the encrypted message
// log and the poller that watches a room for changes.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"kvchat/internal/crypto"
	"kvchat/internal/kv"
	"kvchat/internal/profile"
)

const (
	DefaultJoinPollInterval = time.Second
	DefaultPollInterval     = 500 * time.Millisecond
	DefaultCommitRetries    = 16
)

// Client runs protocol operations for the user owning keys. A Client is safe
// for concurrent use by the interactive path and room pollers.
type Client struct {
	store  kv.Store
	txn    kv.Txn
	engine *crypto.Engine
	keys   *profile.KeyStore
	logger *zap.Logger

	joinPollInterval time.Duration
	pollInterval     time.Duration
	commitRetries    int

	mu         sync.RWMutex
	publicKeys map[string]crypto.PublicKey
}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithJoinPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.joinPollInterval = d
		}
	}
}

// WithPollInterval sets the default cycle length of pollers created by the
// client.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func WithCommitRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.commitRetries = n
		}
	}
}

// WithoutTransactions makes the client use ordered single-key writes even
// when the store supports transactions.
func WithoutTransactions() Option {
	return func(c *Client) {
		c.txn = nil
	}
}

func NewClient(store kv.Store, engine *crypto.Engine, keys *profile.KeyStore, opts ...Option) *Client {
	c := &Client{
		store:            store,
		engine:           engine,
		keys:             keys,
		logger:           zap.NewNop(),
		joinPollInterval: DefaultJoinPollInterval,
		pollInterval:     DefaultPollInterval,
		commitRetries:    DefaultCommitRetries,
		publicKeys:       make(map[string]crypto.PublicKey),
	}
	if txn, ok := store.(kv.Txn); ok {
		c.txn = txn
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("chat")
	return c
}

// Username is the local user, owner of the key store.
func (c *Client) Username() string {
	return c.keys.Username()
}

// Transactional reports whether multi-key updates are committed atomically.
func (c *Client) Transactional() bool {
	return c.txn != nil
}

func (c *Client) get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return "", false, ErrStoreUnavailable.WithDetails("get " + key).Wrap(err)
	}
	return v, ok, nil
}

func (c *Client) put(ctx context.Context, key, value string) error {
	if err := c.store.Put(ctx, key, value); err != nil {
		return ErrStoreUnavailable.WithDetails("put " + key).Wrap(err)
	}
	return nil
}

// putAll writes in order, stopping at the first failure.
func (c *Client) putAll(ctx context.Context, puts ...kv.KeyValue) error {
	for _, p := range puts {
		if err := c.put(ctx, p.Key, p.Value); err != nil {
			return err
		}
	}
	return nil
}

// commitLoop retries attempt until it commits. attempt reads whatever it
// needs, returns the condition guarding its reads and the puts to apply, or
// an error that aborts the loop.
func (c *Client) commitLoop(ctx context.Context, op string, attempt func() (kv.Condition, []kv.KeyValue, error)) error {
	for i := 0; i < c.commitRetries; i++ {
		cond, puts, err := attempt()
		if err != nil {
			return err
		}
		ok, err := c.txn.CommitIf(ctx, cond, puts...)
		if err != nil {
			return ErrStoreUnavailable.WithDetails("commit " + cond.Key).Wrap(err)
		}
		if ok {
			return nil
		}
		c.logger.Debug("Commit conflict, retrying",
			zap.String("op", op),
			zap.String("key", cond.Key),
			zap.Int("attempt", i+1))
	}
	return ErrConflict.WithDetails(op)
}

func (c *Client) checkLocalUser(user string) error {
	if err := validateName("username", user); err != nil {
		return err
	}
	if user != c.keys.Username() {
		return ErrInvalidName.WithDetails("key store belongs to " + c.keys.Username() + ", not " + user)
	}
	return nil
}

// roomPublicKey returns the room public key, fetching it once per room.
func (c *Client) roomPublicKey(ctx context.Context, room string) (crypto.PublicKey, error) {
	c.mu.RLock()
	pub, ok := c.publicKeys[room]
	c.mu.RUnlock()
	if ok {
		return pub, nil
	}

	key := roomPublicKeyKey(room)
	raw, ok, err := c.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRoomNotFound.WithDetails(room)
	}
	pub, err = crypto.ParsePublicKey(raw)
	if err != nil {
		return nil, ErrMalformedValue.WithDetails(key).Wrap(err)
	}
	c.cachePublicKey(room, pub)
	return pub, nil
}

func (c *Client) cachePublicKey(room string, pub crypto.PublicKey) {
	c.mu.Lock()
	c.publicKeys[room] = pub
	c.mu.Unlock()
}

func (c *Client) forgetPublicKey(room string) {
	c.mu.Lock()
	delete(c.publicKeys, room)
	c.mu.Unlock()
}

// roomPrivateKey maps a missing local key to ErrKeyUnavailable.
func (c *Client) roomPrivateKey(room string) (crypto.PrivateKey, error) {
	priv, err := c.keys.RoomKey(room)
	if errors.Is(err, profile.ErrKeyNotFound) {
		return nil, ErrKeyUnavailable.WithDetails(room)
	}
	if err != nil {
		return nil, ErrKeyUnavailable.WithDetails(room).Wrap(err)
	}
	return priv, nil
}

// HasRoomKey reports whether the local user can read room.
func (c *Client) HasRoomKey(room string) bool {
	return c.keys.HasRoomKey(room)
}
