package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/TobiSchelling/mediawatch/internal/match"
	"github.com/TobiSchelling/mediawatch/internal/normalize"
	"github.com/TobiSchelling/mediawatch/internal/roster"
)

var resultColumns = []string{
	"run_id", "source_id", "source_name", "source_rank", "seq", "title", "link",
	"published", "published_at", "summary", "summary_excerpt", "normalized_text",
	"matched_terms", "matched_entities",
}

// SaveMatchResults appends the results of a run in one transaction.
func (db *DB) SaveMatchResults(runID string, results []match.Result) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, res := range results {
		termsJSON, err := json.Marshal(nonNil(res.MatchedTerms))
		if err != nil {
			return fmt.Errorf("encoding terms: %w", err)
		}
		entities := res.MatchedEntities
		if entities == nil {
			entities = []roster.Entity{}
		}
		entitiesJSON, err := json.Marshal(entities)
		if err != nil {
			return fmt.Errorf("encoding entities: %w", err)
		}

		item := res.Item
		query, args, err := sq.Insert("match_results").Columns(resultColumns...).Values(
			runID, item.SourceID, item.SourceName, item.SourceRank, item.Seq, item.Title, item.Link,
			item.PublishedRaw, formatTime(item.PublishedAt), item.Summary, item.SummaryExcerpt,
			item.NormalizedText, string(termsJSON), string(entitiesJSON),
		).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("inserting result: %w", err)
		}
	}
	return tx.Commit()
}

// LoadMatchResults returns the stored results of a run in source-then-entry
// order.
func (db *DB) LoadMatchResults(runID string) ([]match.Result, error) {
	query, args, err := sq.Select(resultColumns[1:]...).From("match_results").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("source_rank", "seq", "id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []match.Result
	for rows.Next() {
		var (
			item         normalize.Item
			sourceName   sql.NullString
			link         sql.NullString
			published    sql.NullString
			publishedAt  sql.NullString
			summary      sql.NullString
			excerpt      sql.NullString
			termsJSON    string
			entitiesJSON string
		)
		if err := rows.Scan(&item.SourceID, &sourceName, &item.SourceRank, &item.Seq, &item.Title,
			&link, &published, &publishedAt, &summary, &excerpt, &item.NormalizedText,
			&termsJSON, &entitiesJSON); err != nil {
			return nil, err
		}
		item.SourceName = sourceName.String
		item.Link = link.String
		item.PublishedRaw = published.String
		item.Summary = summary.String
		item.SummaryExcerpt = excerpt.String
		if publishedAt.Valid {
			t, err := time.Parse(timeLayout, publishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing published_at: %w", err)
			}
			item.PublishedAt = &t
		}

		res := match.Result{Item: item}
		if err := json.Unmarshal([]byte(termsJSON), &res.MatchedTerms); err != nil {
			return nil, fmt.Errorf("decoding terms: %w", err)
		}
		if err := json.Unmarshal([]byte(entitiesJSON), &res.MatchedEntities); err != nil {
			return nil, fmt.Errorf("decoding entities: %w", err)
		}
		if len(res.MatchedEntities) == 0 {
			res.MatchedEntities = nil
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
