// Package match finds vocabulary terms and roster entities in normalized items.
package match

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/TobiSchelling/mediawatch/internal/normalize"
	"github.com/TobiSchelling/mediawatch/internal/roster"
	"github.com/TobiSchelling/mediawatch/internal/vocab"
)

// Strategy selects how a term or name is located in the text.
type Strategy string

const (
	// Substring matches anywhere, including inside longer words.
	Substring Strategy = "substring"
	// WordBoundary requires the phrase to be delimited by non-alphanumerics.
	WordBoundary Strategy = "word_boundary"
)

// ParseStrategy validates a strategy name. Empty means Substring.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Substring:
		return Substring, nil
	case WordBoundary:
		return WordBoundary, nil
	}
	return "", fmt.Errorf("unknown match strategy %q (want %s or %s)", s, Substring, WordBoundary)
}

// DefaultMaxEntities bounds the roster scan when no cap is configured.
const DefaultMaxEntities = 1000

// Options configures a Matcher.
type Options struct {
	MaxEntities int // <= 0 scans the whole roster
	Strategy    Strategy
}

// Result is the outcome of matching one item. It is never mutated after
// creation.
type Result struct {
	Item            normalize.Item  `json:"item"`
	MatchedTerms    []string        `json:"matched_terms"`
	MatchedEntities []roster.Entity `json:"matched_entities"`
}

// HasEntityMention reports whether any roster entity was found.
func (r Result) HasEntityMention() bool {
	return len(r.MatchedEntities) > 0
}

type termPattern struct {
	term string
	find func(text string) bool
}

type entityPattern struct {
	entity roster.Entity
	find   func(text string) bool
}

// Matcher holds the compiled vocabulary and the capped, eligible roster slice.
// It is safe for concurrent use.
type Matcher struct {
	strategy Strategy
	terms    []termPattern
	entities []entityPattern
}

// New compiles a matcher. A nil roster disables entity matching.
func New(v *vocab.Vocabulary, r *roster.Roster, opts Options) *Matcher {
	if opts.Strategy == "" {
		opts.Strategy = Substring
	}
	m := &Matcher{strategy: opts.Strategy}

	for _, term := range v.Terms() {
		m.terms = append(m.terms, termPattern{term: term, find: finder(vocab.Key(term), opts.Strategy)})
	}
	for _, e := range r.Eligible(opts.MaxEntities) {
		m.entities = append(m.entities, entityPattern{entity: e, find: finder(e.CanonicalMatchName, opts.Strategy)})
	}
	return m
}

// Strategy returns the strategy the matcher was compiled with.
func (m *Matcher) Strategy() Strategy {
	return m.strategy
}

// EntitiesScanned returns how many roster entities take part in matching.
func (m *Matcher) EntitiesScanned() int {
	return len(m.entities)
}

// Match checks every term and every scanned entity against the item's
// normalized text. It returns false when no term matched; entity hits alone
// never produce a result.
func (m *Matcher) Match(item normalize.Item) (Result, bool) {
	text := item.NormalizedText

	var terms []string
	for _, tp := range m.terms {
		if tp.find(text) {
			terms = append(terms, tp.term)
		}
	}
	if len(terms) == 0 {
		return Result{}, false
	}

	var entities []roster.Entity
	for _, ep := range m.entities {
		if ep.find(text) {
			entities = append(entities, ep.entity)
		}
	}
	return Result{Item: item, MatchedTerms: terms, MatchedEntities: entities}, true
}

// MatchAll matches items in order and keeps only those with a term hit.
func (m *Matcher) MatchAll(items []normalize.Item) []Result {
	var out []Result
	for _, item := range items {
		if res, ok := m.Match(item); ok {
			out = append(out, res)
		}
	}
	return out
}

func finder(needle string, s Strategy) func(string) bool {
	if s == WordBoundary {
		re := regexp.MustCompile(`(?:^|[^\p{L}\p{N}])` + regexp.QuoteMeta(needle) + `(?:$|[^\p{L}\p{N}])`)
		return re.MatchString
	}
	return func(text string) bool {
		return strings.Contains(text, needle)
	}
}
