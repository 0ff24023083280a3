package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/hbomb79/Marquee/internal/database"
	"github.com/jmoiron/sqlx"
)

const storageTable = "client_storage"

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// postgresStorage persists keys as rows of the client_storage table, which
// is created by the database package migrations.
type postgresStorage struct {
	manager database.Manager
}

// NewPostgresStorage connects to the database described by the config and
// ensures the schema is migrated before returning.
func NewPostgresStorage(config database.DatabaseConfig) (*postgresStorage, error) {
	manager := database.New()
	if err := manager.Connect(config); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres storage: %w", err)
	}

	return &postgresStorage{manager}, nil
}

func (store *postgresStorage) Get(ctx context.Context, key string) (string, error) {
	query, args, err := psql.Select("value").From(storageTable).Where(squirrel.Eq{"key": key}).ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to construct storage select query: %w", err)
	}

	var value string
	if err := store.manager.GetSqlxDb().GetContext(ctx, &value, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrKeyNotFound
		}

		return "", fmt.Errorf("failed to read storage key %s: %w", key, err)
	}

	return value, nil
}

func (store *postgresStorage) Set(ctx context.Context, key string, value string) error {
	query, args, err := psql.
		Insert(storageTable).
		Columns("key", "value", "updated_at").
		Values(key, value, squirrel.Expr("current_timestamp")).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to construct storage upsert query: %w", err)
	}

	return store.manager.WrapTx(func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to write storage key %s: %w", key, err)
		}
		return nil
	})
}

func (store *postgresStorage) Remove(ctx context.Context, key string) error {
	query, args, err := psql.Delete(storageTable).Where(squirrel.Eq{"key": key}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to construct storage delete query: %w", err)
	}

	if _, err := store.manager.GetSqlxDb().ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to remove storage key %s: %w", key, err)
	}

	return nil
}

func (store *postgresStorage) Close() error { return store.manager.Close() }
