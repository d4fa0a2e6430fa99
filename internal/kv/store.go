// Package kv is the client side of the shared key-value store that holds all
// chat state. The protocol needs only linearizable get/put per key; backends
// that can also commit several keys atomically implement Txn.
package kv

import (
	"context"

	"kvchat/internal/utils"
)

// Store is a string-keyed, string-valued store with per-key linearizable
// reads and writes.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Close() error
}

// Condition guards a transactional commit on the current state of one key.
type Condition struct {
	Key     string
	Value   string
	Present bool
}

// Absent holds when key has never been written.
func Absent(key string) Condition {
	return Condition{Key: key}
}

// Equals holds when key exists and has exactly value.
func Equals(key, value string) Condition {
	return Condition{Key: key, Value: value, Present: true}
}

// Matches builds the condition that the key still has the value (or
// absence) observed by a previous Get.
func Matches(key, value string, present bool) Condition {
	return Condition{Key: key, Value: value, Present: present}
}

type KeyValue struct {
	Key   string
	Value string
}

// Txn is implemented by stores able to apply several puts atomically when a
// condition holds. CommitIf reports false, with a nil error, when the
// condition did not hold and nothing was written.
type Txn interface {
	CommitIf(ctx context.Context, cond Condition, puts ...KeyValue) (bool, error)
}

var (
	ErrUnknownBackend = utils.NewChatError("unknown store backend")
	ErrNotConnected   = utils.NewChatError("store not connected")
)

type plainStore struct {
	Store
}

// WithoutTxn hides the Txn capability of s, forcing callers onto ordered
// single-key writes.
func WithoutTxn(s Store) Store {
	return plainStore{Store: s}
}

func (c Condition) holds(value string, present bool) bool {
	if present != c.Present {
		return false
	}
	return !present || value == c.Value
}
