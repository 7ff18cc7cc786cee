package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/webpilot-ai/webpilot/internal/types"
)

// DB wraps the SQLite connection used for durable engine state. WAL mode and
// foreign keys are mandatory; Open fails rather than run without them.
type DB struct {
	conn *sql.DB
	path string
}

// DBConfig holds connection settings for the engine database.
type DBConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// DefaultDBConfig returns connection defaults for a database at path.
func DefaultDBConfig(path string) DBConfig {
	return DBConfig{
		Path:            path,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     5 * time.Second,
	}
}

// Open opens the database at path with default settings.
func Open(path string) (*DB, error) {
	return OpenWithConfig(DefaultDBConfig(path))
}

// OpenWithConfig opens the database with explicit settings and verifies the
// required pragmas took effect.
func OpenWithConfig(cfg DBConfig) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d",
		cfg.Path,
		int(cfg.BusyTimeout.Milliseconds()),
	)

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(types.STORE_OPEN_FAILED, "open database", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, types.WrapError(types.STORE_OPEN_FAILED, "ping database", err)
	}

	var journalMode string
	if err := conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		conn.Close()
		return nil, types.WrapError(types.STORE_OPEN_FAILED, "verify journal mode", err)
	}
	// The in-memory database used by tests cannot use WAL; memory mode is the
	// only accepted alternative.
	if journalMode != "wal" && journalMode != "memory" {
		conn.Close()
		return nil, types.NewError(types.STORE_OPEN_FAILED,
			fmt.Sprintf("WAL mode not enabled (got %s)", journalMode))
	}

	var foreignKeys int
	if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		conn.Close()
		return nil, types.WrapError(types.STORE_OPEN_FAILED, "verify foreign keys", err)
	}
	if foreignKeys != 1 {
		conn.Close()
		return nil, types.NewError(types.STORE_OPEN_FAILED, "foreign keys not enabled")
	}

	return &DB{conn: conn, path: cfg.Path}, nil
}

// Close closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Health verifies the connection is alive and queryable.
func (db *DB) Health(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return types.WrapError(types.STORE_READ_FAILED, "ping failed", err)
	}
	var result int
	if err := db.conn.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return types.WrapError(types.STORE_READ_FAILED, "probe query failed", err)
	}
	return nil
}

// WithTx runs fn inside a transaction, rolling back on error or panic.
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return types.WrapError(types.STORE_WRITE_FAILED, "begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return types.WrapError(types.STORE_WRITE_FAILED,
				fmt.Sprintf("transaction failed, rollback also failed: %v", rbErr), err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return types.WrapError(types.STORE_WRITE_FAILED, "commit transaction", err)
	}
	return nil
}

// Checkpoint moves WAL contents into the main database file.
func (db *DB) Checkpoint(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return types.WrapError(types.STORE_WRITE_FAILED, "checkpoint failed", err)
	}
	return nil
}

func (db *DB) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

func (db *DB) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

func (db *DB) queryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}
