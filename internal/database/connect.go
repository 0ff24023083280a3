package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/hbomb79/Marquee/pkg/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	sqldblogger "github.com/simukti/sqldb-logger"
)

const (
	SqlDialect          = "postgres"
	SqlConnectionString = "host=%s user=%s password=%s dbname=%s port=%s sslmode=%s"
)

var (
	//go:embed migrations/*.sql
	migrations embed.FS

	dbLogger = logger.Get("DB")
)

type (
	// DatabaseConfig is a subset of the configuration focusing solely
	// on database connection items
	DatabaseConfig struct {
		User           string        `yaml:"username" env:"DB_USERNAME" env-default:"postgres"`
		Password       string        `yaml:"password" env:"DB_PASSWORD"`
		Name           string        `yaml:"name" env:"DB_NAME" env-default:"MARQUEE_DB"`
		Host           string        `yaml:"host" env:"DB_HOST" env-default:"0.0.0.0"`
		Port           string        `yaml:"port" env:"DB_PORT" env-default:"5432"`
		SslMode        string        `yaml:"ssl_mode" env:"DB_SSL_MODE" env-default:"disable"`
		ConnectRetries int           `yaml:"connect_retries" env:"DB_CONNECT_RETRIES" env-default:"5"`
		RetryInterval  time.Duration `yaml:"retry_interval" env:"DB_RETRY_INTERVAL" env-default:"3s"`
	}

	SqlLogger struct {
		logger logger.Logger
	}

	Manager interface {
		Connect(DatabaseConfig) error
		GetSqlxDb() *sqlx.DB
		WrapTx(func(*sqlx.Tx) error) error
		Close() error
	}

	manager struct {
		rawDb *sql.DB
		db    *sqlx.DB
	}
)

func New() *manager {
	return &manager{}
}

// DSN formats the config in to a lib/pq connection string.
func (config DatabaseConfig) DSN() string {
	return fmt.Sprintf(SqlConnectionString, config.Host, config.User, config.Password, config.Name, config.Port, config.SslMode)
}

// Connect opens the connection to the database, retrying the initial ping
// a configurable number of times (the database may still be starting), and
// then executes any pending migrations.
func (db *manager) Connect(config DatabaseConfig) error {
	dsn := config.DSN()
	sql, err := sql.Open(SqlDialect, dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	sql = sqldblogger.OpenDriver(dsn, sql.Driver(), &SqlLogger{dbLogger})

	retries := max(config.ConnectRetries, 1)
	attempt := 1
	for {
		err := sql.Ping()
		if err != nil {
			if attempt >= retries {
				dbLogger.Emit(logger.ERROR, "All attempts FAILED!\n")
				return err
			}

			dbLogger.Emit(logger.WARNING, "Attempt (%v/%v) failed... Retrying in %s\n", attempt, retries, config.RetryInterval)
			attempt++
			time.Sleep(config.RetryInterval)
			continue
		}

		db.rawDb = sql
		db.db = sqlx.NewDb(sql, SqlDialect)

		break
	}

	if err := db.ExecuteMigrations(); err != nil {
		return err
	}

	dbLogger.Emit(logger.SUCCESS, "Database connection complete!\n")
	return nil
}

// ExecuteMigrations uses the comp-time embedded SQL migrations (found in the 'migrations'
// dir in this package) and runs them against the current DB instance.
//
// Note that this method must only be called following a successful DB connection.
func (db *manager) ExecuteMigrations() error {
	rawDb := db.rawDb
	if rawDb == nil {
		return fmt.Errorf("cannot execute migrations when DB manager has not yet connected")
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(dbLogger)
	if err := goose.SetDialect(SqlDialect); err != nil {
		return fmt.Errorf("failed to set dialect for DB migration: %w", err)
	}

	dbLogger.Emit(logger.INFO, "Checking for pending DB migrations...\n")
	if err := goose.Up(rawDb, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate DB: %w", err)
	}

	dbLogger.Emit(logger.SUCCESS, "DB Goose migration complete!\n")
	return nil
}

// GetSqlxDb returns the sqlx database connection if
// one has been opened using 'Connect'. Otherwise, nil is returned
func (db *manager) GetSqlxDb() *sqlx.DB {
	return db.db
}

// WrapTx is a convinience method around the top-level WrapTx, which simply
// uses the managers DB instance as the first argument.
func (db *manager) WrapTx(f func(tx *sqlx.Tx) error) error {
	if db.db == nil {
		return errors.New("DB manager has not yet connected")
	}

	return WrapTx(db.db, f)
}

func (db *manager) Close() error {
	if db.db == nil {
		return nil
	}

	return db.db.Close()
}

func (l *SqlLogger) Log(_ context.Context, level sqldblogger.Level, msg string, data map[string]any) {
	template := "%s - %v\n"
	switch level {
	case sqldblogger.LevelTrace:
		l.logger.Verbosef(template, msg, data)
	case sqldblogger.LevelDebug, sqldblogger.LevelInfo:
		duration := data["duration"]
		query, ok := data["query"]
		if ok {
			l.logger.Debugf("%s [%.2fms] -- %s\n", msg, duration, query)
		} else {
			l.logger.Debugf("%s [%.2fms]\n", msg, duration)
		}
	case sqldblogger.LevelError:
		l.logger.Errorf(template, msg, data)
	}
}

// WrapTx starts a transaction against the provided DB, and then calls the user
// provided function. If this function errors, the transaction is rolled back - otherwise
// the transaction is committed.
func WrapTx(db *sqlx.DB, f func(tx *sqlx.Tx) error) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := f(tx); err != nil {
		dbLogger.Errorf("Transaction failed... rolling back. Error: %s\n", err.Error())
		return err
	}

	return tx.Commit()
}
