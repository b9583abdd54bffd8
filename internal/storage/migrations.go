package storage

type migration struct {
	version int
	sql     string
}

// migrations must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notices (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	subject_id  TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	due_date    TEXT NOT NULL,
	created_by  INTEGER,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notices_due_date ON notices(due_date);
CREATE INDEX IF NOT EXISTS idx_notices_subject ON notices(subject_id, due_date);

CREATE TABLE IF NOT EXISTS subscribers (
	user_id       INTEGER PRIMARY KEY,
	first_name    TEXT NOT NULL DEFAULT '',
	handle        TEXT,
	is_subscribed INTEGER NOT NULL DEFAULT 1,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit (
	id             TEXT PRIMARY KEY,
	at             TEXT NOT NULL,
	actor_id       INTEGER NOT NULL,
	actor_username TEXT,
	chat_id        INTEGER NOT NULL DEFAULT 0,
	action         TEXT NOT NULL,
	target         TEXT NOT NULL DEFAULT '',
	ok             INTEGER NOT NULL DEFAULT 0,
	fail           INTEGER NOT NULL DEFAULT 0,
	err            TEXT,
	took_ms        INTEGER NOT NULL DEFAULT 0,
	meta           TEXT
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
