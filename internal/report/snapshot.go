package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/TobiSchelling/mediawatch/internal/aggregate"
)

// Snapshot is the machine-readable form of a report. Sets are emitted as
// ordered lists and maps keep their aggregation order.
type Snapshot struct {
	Generated         string                                                              `json:"generated"`
	RunID             string                                                              `json:"run_id,omitempty"`
	Keywords          []string                                                            `json:"keywords"`
	Summary           SnapshotSummary                                                     `json:"summary"`
	KeywordMetrics    *orderedmap.OrderedMap[string, KeywordMetric]                       `json:"keyword_metrics"`
	SourceMetrics     *orderedmap.OrderedMap[string, SourceMetric]                        `json:"source_metrics"`
	Timeline          *orderedmap.OrderedMap[string, *orderedmap.OrderedMap[string, int]] `json:"timeline"`
	ContactVisibility *orderedmap.OrderedMap[string, ContactVisibility]                   `json:"contact_visibility"`
}

// SnapshotSummary holds run totals.
type SnapshotSummary struct {
	TotalArticles        int `json:"total_articles"`
	TotalSources         int `json:"total_sources"`
	TotalContactMentions int `json:"total_contact_mentions"`
}

// KeywordMetric is the per-term entry of a snapshot.
type KeywordMetric struct {
	Count   int      `json:"count"`
	Sources []string `json:"sources"`
}

// SourceMetric is the per-source entry of a snapshot.
type SourceMetric struct {
	TotalArticles   int      `json:"total_articles"`
	KeywordsCovered []string `json:"keywords_covered"`
}

// ContactVisibility is the per-entity entry of a snapshot.
type ContactVisibility struct {
	MentionCount int      `json:"mention_count"`
	Sources      []string `json:"sources"`
}

// BuildSnapshot materializes a report into its serializable form.
func BuildSnapshot(rep *aggregate.Report, meta Meta) *Snapshot {
	s := &Snapshot{
		Generated: meta.GeneratedAt.Format(time.RFC3339),
		RunID:     meta.RunID,
		Keywords:  rep.Vocabulary().Terms(),
		Summary: SnapshotSummary{
			TotalArticles:        rep.TotalArticles(),
			TotalSources:         rep.TotalSources(),
			TotalContactMentions: rep.TotalEntityMentions(),
		},
		KeywordMetrics:    orderedmap.New[string, KeywordMetric](),
		SourceMetrics:     orderedmap.New[string, SourceMetric](),
		Timeline:          orderedmap.New[string, *orderedmap.OrderedMap[string, int]](),
		ContactVisibility: orderedmap.New[string, ContactVisibility](),
	}
	if s.Keywords == nil {
		s.Keywords = []string{}
	}

	labels := sourceLabels(rep)
	for _, ts := range rep.Terms() {
		s.KeywordMetrics.Set(ts.Term, KeywordMetric{
			Count:   ts.Count,
			Sources: labels.of(ts.Sources.Values()),
		})
	}
	for _, src := range rep.Sources() {
		s.SourceMetrics.Set(labels[src.SourceID], SourceMetric{
			TotalArticles:   src.Count,
			KeywordsCovered: src.Terms.Values(),
		})
	}
	for _, day := range rep.Timeline() {
		s.Timeline.Set(day.Date, day.Counts)
	}
	for _, es := range rep.Entities() {
		key := es.DisplayName
		if _, taken := s.ContactVisibility.Get(key); taken {
			key = fmt.Sprintf("%s (%s)", es.DisplayName, es.EntityID)
		}
		s.ContactVisibility.Set(key, ContactVisibility{
			MentionCount: es.Count(),
			Sources:      labels.of(es.Sources.Values()),
		})
	}
	return s
}

type labelMap map[string]string

// sourceLabels keys sources by display name. A name already taken by an
// earlier source gets " (id)" appended so distinct sources never merge.
func sourceLabels(rep *aggregate.Report) labelMap {
	labels := make(labelMap)
	taken := make(map[string]bool)
	for _, src := range rep.Sources() {
		label := src.Name
		if taken[label] {
			label = fmt.Sprintf("%s (%s)", src.Name, src.SourceID)
		}
		taken[label] = true
		labels[src.SourceID] = label
	}
	return labels
}

func (l labelMap) of(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = l[id]
	}
	return out
}

// WriteSnapshot writes the snapshot as indented JSON.
func WriteSnapshot(w io.Writer, rep *aggregate.Report, meta Meta) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildSnapshot(rep, meta))
}
