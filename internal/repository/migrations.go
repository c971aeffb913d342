package repository

// migration is one schema step for the SQL backends driven by sqlx.
type migration struct {
	version int
	sql     string
}

// migrations must be ordered with versions starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	device_id       TEXT NOT NULL DEFAULT '',
	persistent_uuid TEXT NOT NULL,
	session_id      TEXT NOT NULL,
	ip_address      TEXT NOT NULL DEFAULT '',
	last_accessed   INTEGER NOT NULL,
	created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_device ON sessions(device_id, last_accessed);
CREATE INDEX IF NOT EXISTS idx_sessions_persistent ON sessions(persistent_uuid, last_accessed);
CREATE INDEX IF NOT EXISTS idx_sessions_token ON sessions(session_id, last_accessed);

CREATE TABLE IF NOT EXISTS requests (
	identity      TEXT NOT NULL,
	request_date  TEXT NOT NULL,
	request_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (identity, request_date)
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
