package cache

import (
	"context"
	"sync"
)

type memoryBackend struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewMemory returns a process-local cache.
func NewMemory(opts ...Option) *Cache {
	return newCache(&memoryBackend{entries: make(map[string][]byte)}, "memory", opts...)
}

func (b *memoryBackend) get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (b *memoryBackend) set(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = append([]byte(nil), value...)
	return nil
}

func (b *memoryBackend) del(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

func (b *memoryBackend) close() error { return nil }
