package store

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

const schemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT
);

CREATE TABLE IF NOT EXISTS concepts (
    id TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS concept_broader (
    concept_id TEXT NOT NULL,
    broader_id TEXT NOT NULL,
    PRIMARY KEY (concept_id, broader_id)
);

CREATE TABLE IF NOT EXISTS examples (
    id TEXT PRIMARY KEY,
    seq INTEGER NOT NULL,
    text TEXT,
    features TEXT
);

CREATE TABLE IF NOT EXISTS example_concepts (
    example_id TEXT NOT NULL,
    concept_id TEXT NOT NULL,
    PRIMARY KEY (example_id, concept_id)
);

CREATE INDEX IF NOT EXISTS idx_example_concepts_concept ON example_concepts(concept_id);

CREATE TABLE IF NOT EXISTS concept_changes (
    concept_id TEXT PRIMARY KEY,
    changed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS models (
    concept_id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    version INTEGER NOT NULL,
    params BLOB,
    dirty INTEGER DEFAULT 0,
    positives INTEGER DEFAULT 0,
    negatives INTEGER DEFAULT 0,
    trained_at INTEGER
);

CREATE TABLE IF NOT EXISTS reports (
    concept_id TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    updated_at INTEGER
);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    incremental INTEGER DEFAULT 0,
    refit INTEGER DEFAULT 0,
    skipped INTEGER DEFAULT 0,
    error TEXT,
    started_at INTEGER,
    finished_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// SQLite is the default backend.
type SQLite struct {
	*sql.DB
	path string
}

// OpenSQLite opens or creates a SQLite database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: connect sqlite: %w", err)
	}

	d := &SQLite{DB: db, path: path}
	if err := d.Init(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Init applies the schema and records its version.
func (d *SQLite) Init() error {
	if _, err := d.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("store: apply sqlite schema: %w", err)
	}
	if err := setMeta(d, "schema_version", strconv.Itoa(schemaVersion)); err != nil {
		return fmt.Errorf("store: record schema version: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (d *SQLite) Path() string { return d.path }

// Driver returns DriverSQLite.
func (d *SQLite) Driver() Driver { return DriverSQLite }

// GetVersion returns the schema version.
func (d *SQLite) GetVersion() (int, error) { return getVersion(d) }

// GetDB returns the underlying sql.DB.
func (d *SQLite) GetDB() *sql.DB { return d.DB }
