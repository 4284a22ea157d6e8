package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "runs and match results",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    days_back INTEGER NOT NULL DEFAULT 0,
    strategy TEXT NOT NULL DEFAULT 'substring',
    max_entities INTEGER NOT NULL DEFAULT 0,
    vocabulary TEXT NOT NULL,
    roster_size INTEGER NOT NULL DEFAULT 0,
    sources TEXT NOT NULL DEFAULT '[]',
    result_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS match_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    source_id TEXT NOT NULL,
    source_name TEXT,
    source_rank INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    title TEXT NOT NULL,
    link TEXT,
    published TEXT,
    published_at TEXT,
    summary TEXT,
    summary_excerpt TEXT,
    normalized_text TEXT NOT NULL,
    matched_terms TEXT NOT NULL,
    matched_entities TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_match_results_run ON match_results(run_id, source_rank, seq);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
