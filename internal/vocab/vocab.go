package vocab

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Vocabulary is an ordered list of case-insensitive phrase terms.
// Duplicates are kept as declared; callers that count terms key on Key(term).
type Vocabulary struct {
	terms []string
}

// Duplicate describes a term declared more than once.
type Duplicate struct {
	Term      string
	Key       string
	Positions []int
}

// New creates a Vocabulary from the given terms. Blank entries are dropped,
// surrounding whitespace is trimmed, everything else is kept verbatim.
func New(terms []string) *Vocabulary {
	v := &Vocabulary{terms: make([]string, 0, len(terms))}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		v.terms = append(v.terms, t)
	}
	return v
}

// Key returns the matching/aggregation key for a term.
func Key(term string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(term)))
}

// Terms returns the terms in declaration order.
func (v *Vocabulary) Terms() []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

// Len returns the number of declared terms, duplicates included.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.terms)
}

// UniqueLen returns the number of distinct term keys.
func (v *Vocabulary) UniqueLen() int {
	return len(v.Unique())
}

// Unique returns the first-declared form of each distinct key, in order.
func (v *Vocabulary) Unique() []string {
	if v == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(v.terms))
	out := make([]string, 0, len(v.terms))
	for _, t := range v.terms {
		k := Key(t)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Duplicates reports every key declared more than once, ordered by first
// occurrence. Nothing is removed.
func (v *Vocabulary) Duplicates() []Duplicate {
	if v == nil {
		return nil
	}
	index := make(map[string]int)
	var dups []Duplicate
	for i, t := range v.terms {
		k := Key(t)
		if j, ok := index[k]; ok {
			dups[j].Positions = append(dups[j].Positions, i)
			continue
		}
		index[k] = len(dups)
		dups = append(dups, Duplicate{Term: t, Key: k, Positions: []int{i}})
	}

	out := dups[:0]
	for _, d := range dups {
		if len(d.Positions) > 1 {
			out = append(out, d)
		}
	}
	return out
}

// LoadFile reads terms from a YAML list (.yaml/.yml) or a plain text file
// with one term per line. Lines starting with '#' are ignored in text files.
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc struct {
			Terms []string `yaml:"terms"`
		}
		if err := yaml.Unmarshal(data, &doc); err == nil && len(doc.Terms) > 0 {
			return doc.Terms, nil
		}
		var terms []string
		if err := yaml.Unmarshal(data, &terms); err != nil {
			return nil, fmt.Errorf("parsing vocabulary %s: %w", path, err)
		}
		return terms, nil
	}

	var terms []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning vocabulary %s: %w", path, err)
	}
	return terms, nil
}
