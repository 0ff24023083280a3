package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mitchellh/go-homedir"
)

// fileStorage keeps all keys in a single JSON document on disk. The whole
// document is re-written after every mutation so that the file always
// reflects the latest state, even if the process is killed.
type fileStorage struct {
	sync.Mutex
	filePath string
	content  map[string]string
}

// NewFileStorage constructs a file backed storage, loading any existing
// content from the path provided (a leading '~' is expanded to the users
// home directory). A missing or malformed file is not an error: the
// storage simply starts empty and the file is overwritten on the
// first mutation.
func NewFileStorage(path string) (*fileStorage, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand storage path %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory for %s: %w", expanded, err)
	}

	store := &fileStorage{filePath: expanded, content: make(map[string]string)}
	if err := store.load(); err != nil {
		log.Warnf("Failed to load preexisting storage content from %s: %v. Defaulting to empty storage.\n", expanded, err)
		store.content = make(map[string]string)
	}

	return store, nil
}

func (store *fileStorage) Get(_ context.Context, key string) (string, error) {
	store.Lock()
	defer store.Unlock()

	if v, ok := store.content[key]; ok {
		return v, nil
	}
	return "", ErrKeyNotFound
}

func (store *fileStorage) Set(_ context.Context, key string, value string) error {
	store.Lock()
	defer store.Unlock()

	previous, existed := store.content[key]
	store.content[key] = value
	if err := store.save(); err != nil {
		if existed {
			store.content[key] = previous
		} else {
			delete(store.content, key)
		}
		return err
	}

	return nil
}

func (store *fileStorage) Remove(_ context.Context, key string) error {
	store.Lock()
	defer store.Unlock()

	previous, existed := store.content[key]
	if !existed {
		return nil
	}

	delete(store.content, key)
	if err := store.save(); err != nil {
		store.content[key] = previous
		return err
	}

	return nil
}

func (store *fileStorage) Close() error { return nil }

// load reads the storage file and unmarshals it in to the content map. A
// file which does not exist yet is treated as empty storage.
func (store *fileStorage) load() error {
	raw, err := os.ReadFile(store.filePath)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}

	if len(raw) == 0 {
		return nil
	}

	return json.Unmarshal(raw, &store.content)
}

// save writes the content to a temporary file alongside the storage file,
// and then renames it over the top so a crash mid-write can not leave a
// truncated document behind.
func (store *fileStorage) save() error {
	cnt, err := json.Marshal(store.content)
	if err != nil {
		return err
	}

	tmp := store.filePath + ".tmp"
	if err := os.WriteFile(tmp, cnt, 0o600); err != nil {
		return fmt.Errorf("failed to write storage file: %w", err)
	}

	if err := os.Rename(tmp, store.filePath); err != nil {
		return fmt.Errorf("failed to replace storage file: %w", err)
	}

	return nil
}
