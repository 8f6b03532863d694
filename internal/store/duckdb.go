package store

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// Same tables as SQLite with DuckDB column types. Tables rewritten by
// delete-then-insert inside one transaction carry no primary key: DuckDB
// checks unique indexes eagerly within a transaction.
const duckDBSchema = `
CREATE TABLE IF NOT EXISTS metadata (
    key VARCHAR PRIMARY KEY,
    value VARCHAR
);

CREATE TABLE IF NOT EXISTS concepts (
    id VARCHAR NOT NULL
);

CREATE TABLE IF NOT EXISTS concept_broader (
    concept_id VARCHAR NOT NULL,
    broader_id VARCHAR NOT NULL
);

CREATE TABLE IF NOT EXISTS examples (
    id VARCHAR PRIMARY KEY,
    seq BIGINT NOT NULL,
    text VARCHAR,
    features VARCHAR
);

CREATE TABLE IF NOT EXISTS example_concepts (
    example_id VARCHAR NOT NULL,
    concept_id VARCHAR NOT NULL
);

CREATE TABLE IF NOT EXISTS concept_changes (
    concept_id VARCHAR PRIMARY KEY,
    changed_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS models (
    concept_id VARCHAR NOT NULL,
    kind VARCHAR NOT NULL,
    version BIGINT NOT NULL,
    params BLOB,
    dirty INTEGER DEFAULT 0,
    positives INTEGER DEFAULT 0,
    negatives INTEGER DEFAULT 0,
    trained_at BIGINT
);

CREATE TABLE IF NOT EXISTS reports (
    concept_id VARCHAR NOT NULL,
    body VARCHAR NOT NULL,
    updated_at BIGINT
);

CREATE TABLE IF NOT EXISTS runs (
    id VARCHAR PRIMARY KEY,
    kind VARCHAR NOT NULL,
    incremental INTEGER DEFAULT 0,
    refit INTEGER DEFAULT 0,
    skipped INTEGER DEFAULT 0,
    error VARCHAR,
    started_at BIGINT,
    finished_at BIGINT
);
`

// DuckDB is the analytical backend; handy for querying reports and runs.
type DuckDB struct {
	*sql.DB
	path string
}

// OpenDuckDB opens or creates a DuckDB database at path.
func OpenDuckDB(path string) (*DuckDB, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("store: open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: connect duckdb: %w", err)
	}

	d := &DuckDB{DB: db, path: path}
	if err := d.Init(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Init applies the schema and records its version.
func (d *DuckDB) Init() error {
	if _, err := d.Exec(duckDBSchema); err != nil {
		return fmt.Errorf("store: apply duckdb schema: %w", err)
	}
	if err := setMeta(d, "schema_version", strconv.Itoa(schemaVersion)); err != nil {
		return fmt.Errorf("store: record schema version: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (d *DuckDB) Path() string { return d.path }

// Driver returns DriverDuckDB.
func (d *DuckDB) Driver() Driver { return DriverDuckDB }

// GetVersion returns the schema version.
func (d *DuckDB) GetVersion() (int, error) { return getVersion(d) }

// GetDB returns the underlying sql.DB.
func (d *DuckDB) GetDB() *sql.DB { return d.DB }
