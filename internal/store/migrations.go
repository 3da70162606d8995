package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoints (
	folder       TEXT NOT NULL,
	uid_validity INTEGER NOT NULL,
	last_uid     INTEGER NOT NULL DEFAULT 0,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (folder, uid_validity)
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS listen_sessions (
	id         TEXT PRIMARY KEY,
	folder     TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	ended_at   DATETIME,
	delivered  INTEGER NOT NULL DEFAULT 0 CHECK(delivered >= 0)
);

CREATE INDEX IF NOT EXISTS idx_listen_sessions_started ON listen_sessions(started_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
