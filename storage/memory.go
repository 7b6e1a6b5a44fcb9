package storage

import (
	"context"
	"sync"

	"github.com/loredeck/vkernel/errors"
)

// Memory is an in-process Store. It gives tests and ephemeral kernels
// the same write-through path as the durable backends without any
// disk state.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Put stores a single value.
func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	return m.PutAll(ctx, map[string][]byte{key: value})
}

// Get returns the value under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, errors.New("storage.get", errors.StorageFailed).Detail("store closed").Build()
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// PutAll stores every entry atomically.
func (m *Memory) PutAll(ctx context.Context, entries map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("storage.put", errors.StorageFailed).Detail("store closed").Build()
	}
	for k, v := range entries {
		m.data[k] = append([]byte(nil), v...)
	}
	return nil
}

// Close marks the store closed; subsequent operations fail.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
