package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

const timeLayout = time.RFC3339Nano

var runColumns = []string{
	"id", "started_at", "finished_at", "days_back", "strategy", "max_entities",
	"vocabulary", "roster_size", "sources", "result_count",
}

// CreateRun inserts a run header. An empty ID is filled with a new run ID.
func (db *DB) CreateRun(run *Run) error {
	if run.ID == "" {
		run.ID = db.NewRunID()
	}
	vocabJSON, err := json.Marshal(nonNil(run.Vocabulary))
	if err != nil {
		return fmt.Errorf("encoding vocabulary: %w", err)
	}
	sourcesJSON, err := json.Marshal(nonNilSources(run.Sources))
	if err != nil {
		return fmt.Errorf("encoding sources: %w", err)
	}

	query, args, err := sq.Insert("runs").Columns(runColumns...).Values(
		run.ID,
		run.StartedAt.UTC().Format(timeLayout),
		formatTime(run.FinishedAt),
		run.DaysBack,
		run.Strategy,
		run.MaxEntities,
		string(vocabJSON),
		run.RosterSize,
		string(sourcesJSON),
		run.ResultCount,
	).ToSql()
	if err != nil {
		return err
	}
	if _, err := db.conn.Exec(query, args...); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// FinishRun stores the source outcomes and result count of a run.
func (db *DB) FinishRun(runID string, finishedAt time.Time, sources []SourceOutcome, resultCount int) error {
	sourcesJSON, err := json.Marshal(nonNilSources(sources))
	if err != nil {
		return fmt.Errorf("encoding sources: %w", err)
	}
	query, args, err := sq.Update("runs").
		Set("finished_at", finishedAt.UTC().Format(timeLayout)).
		Set("sources", string(sourcesJSON)).
		Set("result_count", resultCount).
		Where(sq.Eq{"id": runID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := db.conn.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun returns a run by ID.
func (db *DB) GetRun(runID string) (*Run, error) {
	query, args, err := sq.Select(runColumns...).From("runs").Where(sq.Eq{"id": runID}).ToSql()
	if err != nil {
		return nil, err
	}
	run, err := scanRun(db.conn.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// GetLatestRun returns the most recently started run.
func (db *DB) GetLatestRun() (*Run, error) {
	query, args, err := sq.Select(runColumns...).From("runs").
		OrderBy("started_at DESC", "id DESC").Limit(1).ToSql()
	if err != nil {
		return nil, err
	}
	run, err := scanRun(db.conn.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// ListRuns returns runs newest first. limit <= 0 returns all runs.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	b := sq.Select(runColumns...).From("runs").OrderBy("started_at DESC", "id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its stored results.
func (db *DB) DeleteRun(runID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query, args, err := sq.Delete("match_results").Where(sq.Eq{"run_id": runID}).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("deleting results: %w", err)
	}

	query, args, err = sq.Delete("runs").Where(sq.Eq{"id": runID}).ToSql()
	if err != nil {
		return err
	}
	res, err := tx.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return tx.Commit()
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM runs").Scan(&s.Runs); err != nil {
		return nil, err
	}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM match_results").Scan(&s.MatchResults); err != nil {
		return nil, err
	}

	latest, err := db.GetLatestRun()
	switch {
	case errors.Is(err, ErrRunNotFound):
	case err != nil:
		return nil, err
	default:
		s.LastRunID = latest.ID
		at := latest.StartedAt
		s.LastRunAt = &at
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r           Run
		startedAt   string
		finishedAt  sql.NullString
		vocabJSON   string
		sourcesJSON string
	)
	err := row.Scan(&r.ID, &startedAt, &finishedAt, &r.DaysBack, &r.Strategy, &r.MaxEntities,
		&vocabJSON, &r.RosterSize, &sourcesJSON, &r.ResultCount)
	if err != nil {
		return nil, err
	}

	if r.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("run %s: parsing started_at: %w", r.ID, err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("run %s: parsing finished_at: %w", r.ID, err)
		}
		r.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(vocabJSON), &r.Vocabulary); err != nil {
		return nil, fmt.Errorf("run %s: decoding vocabulary: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &r.Sources); err != nil {
		return nil, fmt.Errorf("run %s: decoding sources: %w", r.ID, err)
	}
	return &r, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timeLayout)
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilSources(s []SourceOutcome) []SourceOutcome {
	if s == nil {
		return []SourceOutcome{}
	}
	return s
}
