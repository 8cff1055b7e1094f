// Package store gives modules and the manager a small relational database
// capability. SQLite (modernc.org/sqlite) is the default driver and MySQL
// is supported for shared deployments.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ErrUnsafeIdentifier is returned for table names outside [A-Za-z0-9_-].
var ErrUnsafeIdentifier = errors.New("store: unsafe identifier")

// Dialect names a supported SQL driver.
type Dialect string

// Supported dialects.
const (
	SQLite Dialect = "sqlite"
	MySQL  Dialect = "mysql"
)

// Store is the database capability handed to modules and used by the
// manager to clean up module-owned tables.
type Store interface {
	DB() *sql.DB
	Dialect() Dialect
	TableExists(ctx context.Context, name string) (bool, error)
	// Tables lists tables whose name starts with prefix, sorted.
	Tables(ctx context.Context, prefix string) ([]string, error)
	DropTable(ctx context.Context, name string) error
	Close() error
}

var identPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// SQLStore implements Store on top of database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// Compile-time interface guard.
var _ Store = (*SQLStore)(nil)

// New wraps an already opened database.
func New(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// DB returns the underlying handle.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Dialect returns the driver dialect.
func (s *SQLStore) Dialect() Dialect { return s.dialect }

// Quote validates and quotes a table identifier for the store's dialect.
func (s *SQLStore) Quote(name string) (string, error) {
	return quote(s.dialect, name)
}

func quote(d Dialect, name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeIdentifier, name)
	}
	if d == MySQL {
		return "`" + name + "`", nil
	}
	return `"` + name + `"`, nil
}

// TableExists reports whether a table with the exact name exists.
func (s *SQLStore) TableExists(ctx context.Context, name string) (bool, error) {
	tables, err := s.Tables(ctx, name)
	if err != nil {
		return false, err
	}
	return slices.Contains(tables, name), nil
}

// Tables lists tables whose name starts with prefix.
func (s *SQLStore) Tables(ctx context.Context, prefix string) ([]string, error) {
	var query string
	switch s.dialect {
	case MySQL:
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name LIKE ? ESCAPE '!'"
	default:
		query = "SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ? ESCAPE '!'"
	}

	rows, err := s.db.QueryContext(ctx, query, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("store: list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("store: scan table name: %w", err)
		}
		// LIKE is case-insensitive on both drivers.
		if strings.HasPrefix(name, prefix) {
			tables = append(tables, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list tables: %w", err)
	}
	slices.Sort(tables)
	return tables, nil
}

// DropTable drops the named table if it exists.
func (s *SQLStore) DropTable(ctx context.Context, name string) error {
	q, err := s.Quote(name)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+q); err != nil {
		return fmt.Errorf("store: drop table %s: %w", name, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(prefix) + "%"
}
