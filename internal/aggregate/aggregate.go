// Package aggregate derives cross-cutting statistics from match results.
//
// A Report is recomputed from the full set of results on every call and holds
// nothing that cannot be rebuilt by replaying them.
package aggregate

import (
	"slices"
	"sort"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/TobiSchelling/mediawatch/internal/match"
	"github.com/TobiSchelling/mediawatch/internal/vocab"
)

// DateLayout formats timeline buckets.
const DateLayout = "2006-01-02"

// Set is an insertion-ordered set of strings.
type Set struct {
	m *orderedmap.OrderedMap[string, struct{}]
}

func newSet() *Set {
	return &Set{m: orderedmap.New[string, struct{}]()}
}

// Add inserts v if absent.
func (s *Set) Add(v string) {
	if _, ok := s.m.Get(v); !ok {
		s.m.Set(v, struct{}{})
	}
}

// Has reports membership.
func (s *Set) Has(v string) bool {
	_, ok := s.m.Get(v)
	return ok
}

// Len returns the number of members.
func (s *Set) Len() int {
	return s.m.Len()
}

// Values returns members in insertion order.
func (s *Set) Values() []string {
	out := make([]string, 0, s.m.Len())
	for p := s.m.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

// TermStats counts the articles mentioning a term and the sources carrying them.
type TermStats struct {
	Term    string
	Count   int
	Sources *Set // source IDs
}

// SourceStats counts matched articles per source and the terms they covered.
type SourceStats struct {
	SourceID string
	Name     string
	Count    int
	Terms    *Set // term display forms
}

// EntityStats collects the results mentioning a roster entity in encounter order.
type EntityStats struct {
	EntityID    string
	DisplayName string
	Sources     *Set
	Mentions    []match.Result
}

// Count is the number of mentioning articles.
func (e *EntityStats) Count() int {
	return len(e.Mentions)
}

// DayBucket holds per-term counts for one publication date.
type DayBucket struct {
	Date   string
	Counts *orderedmap.OrderedMap[string, int]
}

// Page is a truncated ranked view. Overflow counts the entries left out.
type Page[T any] struct {
	Items    []T
	Overflow int
}

// Paginate keeps the first n entries and counts the rest as overflow.
// n <= 0 keeps everything.
func Paginate[T any](all []T, n int) Page[T] {
	if n <= 0 || len(all) <= n {
		return Page[T]{Items: all}
	}
	return Page[T]{Items: all[:n], Overflow: len(all) - n}
}

// Report is the aggregate view over a run's results.
type Report struct {
	vocabulary *vocab.Vocabulary
	display    map[string]string // term key -> first-declared form
	results    []match.Result
	terms      *orderedmap.OrderedMap[string, *TermStats]
	sources    *orderedmap.OrderedMap[string, *SourceStats]
	entities   *orderedmap.OrderedMap[string, *EntityStats]
	timeline   map[string]*orderedmap.OrderedMap[string, int]
}

// Aggregate builds a report. Results are first put into source-then-entry
// order so the outcome does not depend on retrieval timing; the input slice
// is not modified.
func Aggregate(results []match.Result, v *vocab.Vocabulary) *Report {
	sorted := slices.Clone(results)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Item, sorted[j].Item
		if a.SourceRank != b.SourceRank {
			return a.SourceRank < b.SourceRank
		}
		return a.Seq < b.Seq
	})

	r := &Report{
		vocabulary: v,
		display:    make(map[string]string),
		results:    sorted,
		terms:      orderedmap.New[string, *TermStats](),
		sources:    orderedmap.New[string, *SourceStats](),
		entities:   orderedmap.New[string, *EntityStats](),
		timeline:   make(map[string]*orderedmap.OrderedMap[string, int]),
	}
	for _, t := range v.Unique() {
		r.display[vocab.Key(t)] = t
	}

	for _, res := range sorted {
		r.add(res)
	}
	return r
}

func (r *Report) add(res match.Result) {
	item := res.Item

	src, ok := r.sources.Get(item.SourceID)
	if !ok {
		name := item.SourceName
		if name == "" {
			name = item.SourceID
		}
		src = &SourceStats{SourceID: item.SourceID, Name: name, Terms: newSet()}
		r.sources.Set(item.SourceID, src)
	}
	src.Count++

	var day *orderedmap.OrderedMap[string, int]
	if item.PublishedAt != nil {
		date := item.PublishedAt.UTC().Format(DateLayout)
		if day, ok = r.timeline[date]; !ok {
			day = orderedmap.New[string, int]()
			r.timeline[date] = day
		}
	}

	seen := make(map[string]struct{}, len(res.MatchedTerms))
	for _, term := range res.MatchedTerms {
		key := vocab.Key(term)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		term = r.termDisplay(key, term)

		ts, ok := r.terms.Get(key)
		if !ok {
			ts = &TermStats{Term: term, Sources: newSet()}
			r.terms.Set(key, ts)
		}
		ts.Count++
		ts.Sources.Add(item.SourceID)
		src.Terms.Add(term)

		if day != nil {
			n, _ := day.Get(term)
			day.Set(term, n+1)
		}
	}

	for _, e := range res.MatchedEntities {
		es, ok := r.entities.Get(e.ID)
		if !ok {
			es = &EntityStats{EntityID: e.ID, DisplayName: e.DisplayName, Sources: newSet()}
			r.entities.Set(e.ID, es)
		}
		es.Mentions = append(es.Mentions, res)
		es.Sources.Add(item.SourceID)
	}
}

func (r *Report) termDisplay(key, fallback string) string {
	if d, ok := r.display[key]; ok {
		return d
	}
	return fallback
}

// Vocabulary returns the vocabulary the report was built against.
func (r *Report) Vocabulary() *vocab.Vocabulary {
	return r.vocabulary
}

// Results returns the results in source-then-entry order.
func (r *Report) Results() []match.Result {
	return r.results
}

// TotalArticles is the number of matched articles.
func (r *Report) TotalArticles() int {
	return len(r.results)
}

// TotalSources is the number of sources with at least one matched article.
func (r *Report) TotalSources() int {
	return r.sources.Len()
}

// TotalEntityMentions sums mentions over all entities.
func (r *Report) TotalEntityMentions() int {
	total := 0
	for p := r.entities.Oldest(); p != nil; p = p.Next() {
		total += p.Value.Count()
	}
	return total
}

// SourceName returns the display name of a source seen in the results.
func (r *Report) SourceName(id string) string {
	if s, ok := r.sources.Get(id); ok {
		return s.Name
	}
	return id
}

// SourceNames maps source IDs to display names.
func (r *Report) SourceNames(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = r.SourceName(id)
	}
	return out
}

// Terms returns per-term stats in first-encountered order.
func (r *Report) Terms() []*TermStats {
	out := make([]*TermStats, 0, r.terms.Len())
	for p := r.terms.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

// Term returns the stats for a term, matched case-insensitively.
func (r *Report) Term(term string) (*TermStats, bool) {
	return r.terms.Get(vocab.Key(term))
}

// Sources returns per-source stats in source declaration order.
func (r *Report) Sources() []*SourceStats {
	out := make([]*SourceStats, 0, r.sources.Len())
	for p := r.sources.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

// Entities returns per-entity stats in first-encountered order.
func (r *Report) Entities() []*EntityStats {
	out := make([]*EntityStats, 0, r.entities.Len())
	for p := r.entities.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

// TopTerms ranks terms by article count, ties kept in first-encountered order.
// n <= 0 returns every term.
func (r *Report) TopTerms(n int) Page[*TermStats] {
	all := r.Terms()
	sort.SliceStable(all, func(i, j int) bool { return all[i].Count > all[j].Count })
	return Paginate(all, n)
}

// TopEntities ranks entities by mention count, ties kept in first-encountered
// order. n <= 0 returns every entity.
func (r *Report) TopEntities(n int) Page[*EntityStats] {
	all := r.Entities()
	sort.SliceStable(all, func(i, j int) bool { return all[i].Count() > all[j].Count() })
	return Paginate(all, n)
}

// NotFound lists the vocabulary terms with no matches, in declaration order,
// each distinct term once.
func (r *Report) NotFound() []string {
	var out []string
	for _, t := range r.vocabulary.Unique() {
		if _, ok := r.terms.Get(vocab.Key(t)); !ok {
			out = append(out, t)
		}
	}
	return out
}

// Timeline returns per-date term counts in ascending date order. Results
// without a parseable publish date are not included.
func (r *Report) Timeline() []DayBucket {
	dates := make([]string, 0, len(r.timeline))
	for d := range r.timeline {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	out := make([]DayBucket, 0, len(dates))
	for _, d := range dates {
		out = append(out, DayBucket{Date: d, Counts: r.timeline[d]})
	}
	return out
}

// Window returns the earliest and latest bucketed publish dates.
func (r *Report) Window() (from, to time.Time, ok bool) {
	tl := r.Timeline()
	if len(tl) == 0 {
		return time.Time{}, time.Time{}, false
	}
	from, _ = time.Parse(DateLayout, tl[0].Date)
	to, _ = time.Parse(DateLayout, tl[len(tl)-1].Date)
	return from, to, true
}
