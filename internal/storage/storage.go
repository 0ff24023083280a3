// Package storage provides the durable key/value storage which Marquee
// uses to persist client state (favorites, last search, the logged in
// user) between runs. Several backends are available; which is used is
// decided by configuration.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hbomb79/Marquee/internal/database"
	"github.com/hbomb79/Marquee/pkg/logger"
)

var (
	ErrKeyNotFound = errors.New("storage key does not exist")

	log = logger.Get("Storage")
)

const (
	FileDriver     = "file"
	MemoryDriver   = "memory"
	PostgresDriver = "postgres"
	RedisDriver    = "redis"
)

type (
	// Storage is a string-keyed store of string values. Implementations must
	// be safe for concurrent use. Get returns ErrKeyNotFound for absent keys;
	// Remove of an absent key is not an error.
	Storage interface {
		Get(ctx context.Context, key string) (string, error)
		Set(ctx context.Context, key string, value string) error
		Remove(ctx context.Context, key string) error
		Close() error
	}

	Config struct {
		Driver   string                  `yaml:"driver" env:"STORAGE_DRIVER" env-default:"file"`
		FilePath string                  `yaml:"file_path" env:"STORAGE_FILE_PATH" env-default:"~/.config/marquee/storage.json"`
		Database database.DatabaseConfig `yaml:"database"`
		Redis    RedisConfig             `yaml:"redis"`
	}
)

// New opens the storage backend selected by the config provided.
func New(config Config) (Storage, error) {
	log.Emit(logger.NEW, "Opening %s storage backend\n", config.Driver)
	switch config.Driver {
	case FileDriver, "":
		return NewFileStorage(config.FilePath)
	case MemoryDriver:
		return NewMemoryStorage(), nil
	case PostgresDriver:
		return NewPostgresStorage(config.Database)
	case RedisDriver:
		return NewRedisStorage(config.Redis)
	default:
		return nil, fmt.Errorf("unknown storage driver '%s' (expected one of %s, %s, %s, %s)", config.Driver, FileDriver, MemoryDriver, PostgresDriver, RedisDriver)
	}
}
