package credstore

import (
	"context"
	"sync"
)

// MemoryBackend keeps values in process memory.
type MemoryBackend struct {
	values sync.Map
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Name implements Backend.
func (m *MemoryBackend) Name() string { return "memory" }

// Load implements Backend.
func (m *MemoryBackend) Load(_ context.Context, key string) ([]byte, error) {
	value, ok := m.values.Load(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value.([]byte)...), nil
}

// Save implements Backend.
func (m *MemoryBackend) Save(_ context.Context, key string, value []byte) error {
	m.values.Store(key, append([]byte(nil), value...))
	return nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.values.Delete(key)
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }

// Len returns the number of stored keys.
func (m *MemoryBackend) Len() int {
	count := 0
	m.values.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
