package database

import "time"

// Run describes one search run.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  *time.Time
	DaysBack    int
	Strategy    string
	MaxEntities int
	Vocabulary  []string
	RosterSize  int
	Sources     []SourceOutcome
	ResultCount int
}

// SourceOutcome records what a source yielded during a run.
type SourceOutcome struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Kind    string `json:"kind"`
	Entries int    `json:"entries"`
	Error   string `json:"error,omitempty"`
}

// Failed reports whether the source could not be retrieved.
func (s SourceOutcome) Failed() bool {
	return s.Error != ""
}

// Stats contains aggregate database statistics.
type Stats struct {
	Runs         int
	MatchResults int
	LastRunID    string
	LastRunAt    *time.Time
}
