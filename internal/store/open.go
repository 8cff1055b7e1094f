package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const defaultBusyTimeout = 5000

// Config selects and configures the database driver.
type Config struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string `yaml:"driver"`

	// DSN is a file path for SQLite or a go-sql-driver DSN for MySQL.
	DSN string `yaml:"dsn"`

	// BusyTimeout is the SQLite busy timeout in milliseconds.
	BusyTimeout int `yaml:"busy_timeout"`
}

// Open opens the configured database.
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	switch Dialect(cfg.Driver) {
	case "", SQLite:
		return OpenSQLite(ctx, cfg.DSN, cfg.BusyTimeout)
	case MySQL:
		return OpenMySQL(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// OpenSQLite opens a SQLite database at path with WAL mode and a single
// connection.
func OpenSQLite(ctx context.Context, path string, busyTimeout int) (*SQLStore, error) {
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("store: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}
	return New(db, SQLite), nil
}

// OpenMySQL opens a MySQL database from a go-sql-driver DSN.
func OpenMySQL(ctx context.Context, dsn string) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(10)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping mysql: %w", err)
	}
	return New(db, MySQL), nil
}
