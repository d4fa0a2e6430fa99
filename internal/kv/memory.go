package kv

import (
	"context"
	"sync"
)

// MemoryStore keeps everything in process. It is shared by clients running
// in the same process, which is how tests and local demos simulate several
// users against one store.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Txn   = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrNotConnected
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Put(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotConnected
	}
	m.data[key] = value
	return nil
}

func (m *MemoryStore) CommitIf(ctx context.Context, cond Condition, puts ...KeyValue) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrNotConnected
	}
	v, ok := m.data[cond.Key]
	if !cond.holds(v, ok) {
		return false, nil
	}
	for _, kv := range puts {
		m.data[kv.Key] = kv.Value
	}
	return true, nil
}

// Len returns the number of keys held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Snapshot copies the current contents.
func (m *MemoryStore) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}
