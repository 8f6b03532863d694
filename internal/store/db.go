// Package store persists the classifier state (taxonomy, training
// examples, models, reports and training runs) in SQLite or DuckDB, and
// serves the examples back as a training set.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Driver names a database backend.
type Driver string

const (
	DriverSQLite Driver = "sqlite"
	DriverDuckDB Driver = "duckdb"
)

// ParseDriver maps a configured name to a Driver.
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(s) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "duckdb":
		return DriverDuckDB, nil
	default:
		return "", fmt.Errorf("store: unknown driver %q", s)
	}
}

// Database is the common surface of the SQLite and DuckDB backends.
type Database interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
	Begin() (*sql.Tx, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
	Path() string
	Driver() Driver
	GetVersion() (int, error)
	GetDB() *sql.DB
}

var (
	_ Database = (*SQLite)(nil)
	_ Database = (*DuckDB)(nil)
)

// Open opens or creates the database at path with the given driver and
// applies the schema.
func Open(driver Driver, path string) (Database, error) {
	switch driver {
	case DriverDuckDB:
		return OpenDuckDB(path)
	case DriverSQLite, "":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store: create directory: %w", err)
	}
	return nil
}

func getVersion(d Database) (int, error) {
	var version int
	err := d.QueryRow(`SELECT CAST(value AS INTEGER) FROM metadata WHERE key = 'schema_version'`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func setMeta(d interface {
	Exec(string, ...any) (sql.Result, error)
}, key, value string) error {
	_, err := d.Exec(`
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
