package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens the journal database at path with WAL, busy timeout and foreign keys.
// PRE: path is a writable file path or ":memory:"
// POST: Returns a migrated database
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	if path == ":memory:" {
		dsn = path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal database unreachable: %w", err)
	}
	if err := InitDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InitDB initializes the database schema.
// PRE: db is a valid database connection
// POST: All tables are created
func InitDB(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS journal_entry (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		alias TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		matched INTEGER NOT NULL,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_entry_run ON journal_entry(run_id, seq);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}
