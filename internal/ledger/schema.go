package ledger

// Schema creates the runs table. One row per account run.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	username     TEXT NOT NULL,
	run_date     TEXT NOT NULL,
	attempt      INTEGER NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	entries      INTEGER NOT NULL DEFAULT 0,
	new_entries  INTEGER NOT NULL DEFAULT 0,
	resolved     INTEGER NOT NULL DEFAULT 0,
	downloaded   INTEGER NOT NULL DEFAULT 0,
	mismatch     INTEGER NOT NULL DEFAULT 0,
	truncated    INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	started_at   INTEGER NOT NULL,
	finished_at  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_user ON runs(username, started_at);
`
