package match

import (
	"reflect"
	"testing"

	"github.com/TobiSchelling/mediawatch/internal/normalize"
	"github.com/TobiSchelling/mediawatch/internal/roster"
	"github.com/TobiSchelling/mediawatch/internal/vocab"
)

func item(text string) normalize.Item {
	return normalize.Item{SourceID: "test", Title: text, NormalizedText: text}
}

func entityNames(es []roster.Entity) []string {
	var out []string
	for _, e := range es {
		out = append(out, e.DisplayName)
	}
	return out
}

func TestMatchSingleTerm(t *testing.T) {
	m := New(vocab.New([]string{"Arrested"}), nil, Options{})
	res, ok := m.Match(item("local man arrested yesterday"))
	if !ok {
		t.Fatal("expected a match")
	}
	if !reflect.DeepEqual(res.MatchedTerms, []string{"Arrested"}) {
		t.Errorf("expected [Arrested], got %v", res.MatchedTerms)
	}
	if res.HasEntityMention() {
		t.Error("expected no entities without a roster")
	}
}

func TestNoTermMatchDiscardsItem(t *testing.T) {
	m := New(vocab.New([]string{"Fired"}), nil, Options{})
	if _, ok := m.Match(item("company hires new ceo")); ok {
		t.Error("expected no result")
	}
}

func TestMatchTermAndEntity(t *testing.T) {
	r := roster.New([]roster.Record{{DisplayName: "Jane Doe"}})
	m := New(vocab.New([]string{"Arrested"}), r, Options{})
	res, ok := m.Match(item("jane doe was arrested"))
	if !ok {
		t.Fatal("expected a match")
	}
	if !reflect.DeepEqual(res.MatchedTerms, []string{"Arrested"}) {
		t.Errorf("unexpected terms %v", res.MatchedTerms)
	}
	if !reflect.DeepEqual(entityNames(res.MatchedEntities), []string{"Jane Doe"}) {
		t.Errorf("unexpected entities %v", entityNames(res.MatchedEntities))
	}
}

func TestEntityOnlyMatchNeverSurfaces(t *testing.T) {
	r := roster.New([]roster.Record{{DisplayName: "Jane Doe"}})
	m := New(vocab.New([]string{"Arrested"}), r, Options{})
	if _, ok := m.Match(item("jane doe opens a bakery")); ok {
		t.Error("expected entity-only hit to be discarded")
	}
}

func TestTermOrderFollowsVocabulary(t *testing.T) {
	m := New(vocab.New([]string{"Fraud", "Allegation", "Crime", "Allegation"}), nil, Options{})
	res, _ := m.Match(item("crime and fraud allegation"))
	want := []string{"Fraud", "Allegation", "Crime", "Allegation"}
	if !reflect.DeepEqual(res.MatchedTerms, want) {
		t.Errorf("expected %v, got %v", want, res.MatchedTerms)
	}
}

func TestShortNamesNeverMatch(t *testing.T) {
	r := roster.New([]roster.Record{{DisplayName: "Abc"}, {DisplayName: "Abcd"}})
	m := New(vocab.New([]string{"Crime"}), r, Options{})
	res, _ := m.Match(item("crime abcd abc"))
	if !reflect.DeepEqual(entityNames(res.MatchedEntities), []string{"Abcd"}) {
		t.Errorf("expected only the 4-character name, got %v", entityNames(res.MatchedEntities))
	}
}

func TestMaxEntitiesCap(t *testing.T) {
	r := roster.New([]roster.Record{
		{DisplayName: "Jane Doe"},
		{DisplayName: "John Roe"},
		{DisplayName: "Mary Major"},
	})
	m := New(vocab.New([]string{"Crime"}), r, Options{MaxEntities: 2})
	if m.EntitiesScanned() != 2 {
		t.Fatalf("expected 2 scanned entities, got %d", m.EntitiesScanned())
	}
	res, _ := m.Match(item("crime: jane doe, john roe and mary major"))
	if !reflect.DeepEqual(entityNames(res.MatchedEntities), []string{"Jane Doe", "John Roe"}) {
		t.Errorf("expected capped entities, got %v", entityNames(res.MatchedEntities))
	}
}

func TestSubstringVersusWordBoundary(t *testing.T) {
	v := vocab.New([]string{"Fired", "H.L. Mencken Club"})
	text := item("staff misfired at the h.l. mencken club event")

	sub := New(v, nil, Options{Strategy: Substring})
	res, _ := sub.Match(text)
	if !reflect.DeepEqual(res.MatchedTerms, []string{"Fired", "H.L. Mencken Club"}) {
		t.Errorf("substring: unexpected terms %v", res.MatchedTerms)
	}

	wb := New(v, nil, Options{Strategy: WordBoundary})
	res, _ = wb.Match(text)
	if !reflect.DeepEqual(res.MatchedTerms, []string{"H.L. Mencken Club"}) {
		t.Errorf("word boundary: unexpected terms %v", res.MatchedTerms)
	}
	if _, ok := wb.Match(item("she was fired.")); !ok {
		t.Error("word boundary: expected punctuation-delimited match")
	}
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{"": Substring, "Substring": Substring, " word_boundary ": WordBoundary} {
		got, err := ParseStrategy(in)
		if err != nil || got != want {
			t.Errorf("ParseStrategy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseStrategy("regex"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestMatchAllKeepsOrder(t *testing.T) {
	m := New(vocab.New([]string{"Crime"}), nil, Options{})
	results := m.MatchAll([]normalize.Item{item("crime one"), item("nothing"), item("crime two")})
	if len(results) != 2 || results[0].Item.Title != "crime one" || results[1].Item.Title != "crime two" {
		t.Errorf("unexpected results %+v", results)
	}
}
