package backup

import (
	"context"
	"strings"
	"sync"
)

// MemoryTarget keeps backups in process memory.
type MemoryTarget struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ Target = (*MemoryTarget)(nil)

func NewMemoryTarget() *MemoryTarget {
	return &MemoryTarget{blobs: make(map[string][]byte)}
}

func (t *MemoryTarget) Put(_ context.Context, key string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (t *MemoryTarget) Get(key string) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	data, ok := t.blobs[key]
	return data, ok
}

func (t *MemoryTarget) List(_ context.Context, prefix string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var keys []string
	for k := range t.blobs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (t *MemoryTarget) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.blobs, key)
	return nil
}
