package storage

import (
	"context"
	"sync"
)

type memoryStorage struct {
	sync.RWMutex
	content map[string]string
}

// NewMemoryStorage returns a storage which keeps everything in memory; its
// content is lost when the process exits.
func NewMemoryStorage() *memoryStorage {
	return &memoryStorage{content: make(map[string]string)}
}

func (store *memoryStorage) Get(_ context.Context, key string) (string, error) {
	store.RLock()
	defer store.RUnlock()

	if v, ok := store.content[key]; ok {
		return v, nil
	}
	return "", ErrKeyNotFound
}

func (store *memoryStorage) Set(_ context.Context, key string, value string) error {
	store.Lock()
	defer store.Unlock()
	store.content[key] = value
	return nil
}

func (store *memoryStorage) Remove(_ context.Context, key string) error {
	store.Lock()
	defer store.Unlock()
	delete(store.content, key)
	return nil
}

func (store *memoryStorage) Close() error { return nil }
