// Package store provides the SQLite implementation of the persistence
// boundary. The engine treats it as an opaque collection store; everything
// here is plain database/sql on modernc.org/sqlite.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Config locates the embedded database.
type Config struct {
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Path == "" {
		c.Path = "medbox.db"
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS plans (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    status TEXT NOT NULL,
    scheduled_at INTEGER NOT NULL,
    time_of_day TEXT NOT NULL DEFAULT '',
    recurring_days TEXT NOT NULL DEFAULT '[]',
    items TEXT NOT NULL,
    dispensed_at INTEGER,
    last_dispensed_at INTEGER,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plans_due ON plans(status, scheduled_at);
CREATE TABLE IF NOT EXISTS history (
    id TEXT PRIMARY KEY,
    ts INTEGER NOT NULL,
    origin TEXT NOT NULL,
    outcome TEXT NOT NULL,
    record TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_ts ON history(ts);
CREATE TABLE IF NOT EXISTS commands (
    id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    requester TEXT NOT NULL DEFAULT '',
    items TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS magazines (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT '',
    percentage INTEGER NOT NULL DEFAULT 0,
    color TEXT NOT NULL DEFAULT ''
);`

// DB wraps one SQLite database holding every collection.
type DB struct {
	db       *sql.DB
	commands *CommandStore
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &DB{db: db, commands: newCommandStore(db)}, nil
}

// Plans returns the plan collection.
func (d *DB) Plans() *PlanStore { return &PlanStore{db: d.db} }

// History returns the history collection.
func (d *DB) History() *HistoryStore { return &HistoryStore{db: d.db} }

// Commands returns the ad-hoc command collection.
func (d *DB) Commands() *CommandStore { return d.commands }

// Magazines returns the magazine collection.
func (d *DB) Magazines() *MagazineStore { return &MagazineStore{db: d.db} }

// Close closes the underlying database.
func (d *DB) Close() error { return d.db.Close() }
