// Package index persists the entity graph of a workspace in SQLite: one row
// per file, one per entity and one per outbound reference.
package index

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	path         TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	checksum     TEXT NOT NULL DEFAULT '',
	valid        INTEGER NOT NULL DEFAULT 1,
	error        TEXT NOT NULL DEFAULT '',
	entity_count INTEGER NOT NULL DEFAULT 0,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entities (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	path          TEXT NOT NULL,
	list_sequence INTEGER,
	schema_id     TEXT NOT NULL DEFAULT '',
	valid         INTEGER NOT NULL DEFAULT 1,
	error_count   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS refs (
	source_id TEXT NOT NULL,
	file_path TEXT NOT NULL,
	target_id TEXT NOT NULL,
	pointer   TEXT NOT NULL DEFAULT '',
	UNIQUE(source_id, target_id, pointer)
);

CREATE INDEX IF NOT EXISTS idx_entities_path ON entities(path);
CREATE INDEX IF NOT EXISTS idx_entities_schema ON entities(schema_id);
CREATE INDEX IF NOT EXISTS idx_refs_target ON refs(target_id);
CREATE INDEX IF NOT EXISTS idx_refs_file ON refs(file_path);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if strings.Contains(dsn, ":memory:") {
		// every connection would get its own empty database
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
