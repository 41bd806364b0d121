// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation and initialization
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS local_events (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	date TEXT NOT NULL,
	time TEXT,
	all_day INTEGER NOT NULL DEFAULT 0,
	category TEXT NOT NULL DEFAULT 'other',
	description TEXT,
	created_by TEXT,
	created_by_name TEXT,
	origin TEXT NOT NULL CHECK(origin IN ('local', 'synced')),
	remote_id TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_local_events_user_id ON local_events(user_id);
CREATE INDEX IF NOT EXISTS idx_local_events_date ON local_events(user_id, date);
CREATE INDEX IF NOT EXISTS idx_local_events_remote_id ON local_events(user_id, remote_id);

CREATE TABLE IF NOT EXISTS oauth_tokens (
	user_id TEXT PRIMARY KEY,
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	token_type TEXT NOT NULL DEFAULT 'Bearer',
	expiry DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
