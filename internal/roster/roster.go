package roster

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MinMatchLength is the shortest canonical name that takes part in matching.
// Shorter names match fragments of unrelated words.
const MinMatchLength = 4

// Entity is a named individual from the roster.
type Entity struct {
	ID                 string `json:"id" yaml:"id"`
	DisplayName        string `json:"display_name" yaml:"name"`
	CanonicalMatchName string `json:"canonical_match_name" yaml:"-"`
	Title              string `json:"title,omitempty" yaml:"title,omitempty"`
	Account            string `json:"account,omitempty" yaml:"account,omitempty"`
	Email              string `json:"email,omitempty" yaml:"email,omitempty"`
}

// Eligible reports whether the entity's canonical name is long enough to match.
func (e Entity) Eligible() bool {
	return utf8.RuneCountInString(e.CanonicalMatchName) >= MinMatchLength
}

// Record is a validated roster row handed over by a loader.
type Record struct {
	ID          string
	DisplayName string
	MatchName   string // optional; derived from DisplayName when empty
	Title       string
	Account     string
	Email       string
}

// Roster is an ordered, read-only set of entities.
type Roster struct {
	entities []Entity
}

// Stats summarises a loaded roster.
type Stats struct {
	Total          int
	Eligible       int
	WithEmail      int
	WithTitle      int
	UniqueAccounts int
}

// CanonicalName lowercases and collapses whitespace.
func CanonicalName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(name))), " ")
}

// New builds a roster from records, deriving each canonical match name once.
// Records without a display name are skipped. Entity IDs are unique: missing
// IDs are generated around the explicit ones and a repeated explicit ID gets
// a numeric suffix.
func New(records []Record) *Roster {
	r := &Roster{entities: make([]Entity, 0, len(records))}

	taken := make(map[string]bool, len(records))
	for _, rec := range records {
		if id := strings.TrimSpace(rec.ID); id != "" {
			taken[id] = false
		}
	}
	next := 0
	for _, rec := range records {
		display := strings.Join(strings.Fields(rec.DisplayName), " ")
		if display == "" {
			continue
		}
		match := rec.MatchName
		if strings.TrimSpace(match) == "" {
			match = display
		}
		id := strings.TrimSpace(rec.ID)
		if id == "" {
			id = nextFreeID(taken, &next)
		} else if taken[id] {
			base := id
			for n := 2; ; n++ {
				id = fmt.Sprintf("%s-%d", base, n)
				if _, exists := taken[id]; !exists {
					break
				}
			}
		}
		taken[id] = true
		r.entities = append(r.entities, Entity{
			ID:                 id,
			DisplayName:        display,
			CanonicalMatchName: CanonicalName(match),
			Title:              strings.TrimSpace(rec.Title),
			Account:            strings.TrimSpace(rec.Account),
			Email:              strings.TrimSpace(rec.Email),
		})
	}
	return r
}

// nextFreeID returns the first "entity-N" not reserved by an explicit ID.
func nextFreeID(taken map[string]bool, next *int) string {
	for {
		*next++
		id := fmt.Sprintf("entity-%d", *next)
		if _, reserved := taken[id]; !reserved {
			return id
		}
	}
}

// Empty returns a roster with no entities.
func Empty() *Roster {
	return &Roster{}
}

// Len returns the number of entities.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entities)
}

// Entities returns all entities in roster order.
func (r *Roster) Entities() []Entity {
	if r == nil {
		return nil
	}
	out := make([]Entity, len(r.entities))
	copy(out, r.entities)
	return out
}

// Eligible applies the scan cap to the roster order and then drops entities
// whose canonical name is too short. max <= 0 means no cap.
func (r *Roster) Eligible(max int) []Entity {
	if r == nil {
		return nil
	}
	scan := r.entities
	if max > 0 && len(scan) > max {
		scan = scan[:max]
	}
	out := make([]Entity, 0, len(scan))
	for _, e := range scan {
		if e.Eligible() {
			out = append(out, e)
		}
	}
	return out
}

// Stats returns summary counts for logging.
func (r *Roster) Stats() Stats {
	var s Stats
	if r == nil {
		return s
	}
	accounts := make(map[string]struct{})
	for _, e := range r.entities {
		s.Total++
		if e.Eligible() {
			s.Eligible++
		}
		if e.Email != "" {
			s.WithEmail++
		}
		if e.Title != "" {
			s.WithTitle++
		}
		if e.Account != "" {
			accounts[strings.ToLower(e.Account)] = struct{}{}
		}
	}
	s.UniqueAccounts = len(accounts)
	return s
}
