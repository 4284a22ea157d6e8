package aggregate

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/TobiSchelling/mediawatch/internal/match"
	"github.com/TobiSchelling/mediawatch/internal/normalize"
	"github.com/TobiSchelling/mediawatch/internal/roster"
	"github.com/TobiSchelling/mediawatch/internal/vocab"
)

func result(source string, rank, seq int, published *time.Time, terms []string, entities ...roster.Entity) match.Result {
	return match.Result{
		Item: normalize.Item{
			SourceID:    source,
			SourceName:  source + " News",
			SourceRank:  rank,
			Seq:         seq,
			Title:       fmt.Sprintf("%s-%d", source, seq),
			PublishedAt: published,
		},
		MatchedTerms:    terms,
		MatchedEntities: entities,
	}
}

func at(s string) *time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return &t
}

func TestTermCountsAcrossSources(t *testing.T) {
	v := vocab.New([]string{"Crime", "Fraud"})
	rep := Aggregate([]match.Result{
		result("cnn", 0, 0, nil, []string{"Crime"}),
		result("fox", 1, 0, nil, []string{"Crime"}),
	}, v)

	ts, ok := rep.Term("crime")
	if !ok {
		t.Fatal("expected stats for Crime")
	}
	if ts.Count != 2 || ts.Sources.Len() != 2 {
		t.Errorf("expected count 2 across 2 sources, got %d / %d", ts.Count, ts.Sources.Len())
	}
	if rep.TotalArticles() != 2 || rep.TotalSources() != 2 {
		t.Errorf("unexpected totals: %d articles, %d sources", rep.TotalArticles(), rep.TotalSources())
	}
	if !reflect.DeepEqual(rep.NotFound(), []string{"Fraud"}) {
		t.Errorf("expected [Fraud] not found, got %v", rep.NotFound())
	}
}

func TestSameSourceCountsOnceInBreadth(t *testing.T) {
	v := vocab.New([]string{"Crime"})
	rep := Aggregate([]match.Result{
		result("cnn", 0, 0, nil, []string{"Crime"}),
		result("cnn", 0, 1, nil, []string{"Crime"}),
	}, v)
	ts, _ := rep.Term("Crime")
	if ts.Count != 2 || ts.Sources.Len() != 1 {
		t.Errorf("expected depth 2 breadth 1, got %d / %d", ts.Count, ts.Sources.Len())
	}
	src := rep.Sources()[0]
	if src.Count != 2 || src.Name != "cnn News" {
		t.Errorf("unexpected source stats %+v", src)
	}
}

func TestDuplicateVocabularyCountsOnce(t *testing.T) {
	v := vocab.New([]string{"Allegation", "Crime", "allegation"})
	rep := Aggregate([]match.Result{
		result("cnn", 0, 0, nil, []string{"Allegation", "allegation"}),
	}, v)
	ts, _ := rep.Term("ALLEGATION")
	if ts.Count != 1 || ts.Term != "Allegation" {
		t.Errorf("expected single count under first-declared form, got %+v", ts)
	}
	if len(rep.Terms()) != 1 {
		t.Errorf("expected one term key, got %d", len(rep.Terms()))
	}
	if !reflect.DeepEqual(rep.NotFound(), []string{"Crime"}) {
		t.Errorf("unexpected not-found %v", rep.NotFound())
	}
}

func TestTopTermsOverflow(t *testing.T) {
	var terms []string
	for i := 0; i < 30; i++ {
		terms = append(terms, fmt.Sprintf("term%02d", i))
	}
	v := vocab.New(terms)
	rep := Aggregate([]match.Result{result("cnn", 0, 0, nil, terms[:25])}, v)

	page := rep.TopTerms(20)
	if len(page.Items) != 20 || page.Overflow != 5 {
		t.Errorf("expected 20 items and 5 overflow, got %d / %d", len(page.Items), page.Overflow)
	}
	if all := rep.TopTerms(0); len(all.Items) != 25 || all.Overflow != 0 {
		t.Errorf("expected all 25 terms without overflow, got %d / %d", len(all.Items), all.Overflow)
	}
}

func TestPaginate(t *testing.T) {
	all := []string{"a", "b", "c", "d", "e"}
	page := Paginate(all, 3)
	if !reflect.DeepEqual(page.Items, []string{"a", "b", "c"}) || page.Overflow != 2 {
		t.Errorf("unexpected page %+v", page)
	}
	if page := Paginate(all, 5); len(page.Items) != 5 || page.Overflow != 0 {
		t.Errorf("expected no overflow at exact size, got %+v", page)
	}
	if page := Paginate(all, 0); len(page.Items) != 5 || page.Overflow != 0 {
		t.Errorf("expected everything for n <= 0, got %+v", page)
	}
}

func TestRankingTiesKeepEncounterOrder(t *testing.T) {
	v := vocab.New([]string{"Alpha", "Beta", "Gamma"})
	rep := Aggregate([]match.Result{
		result("a", 0, 0, nil, []string{"Gamma"}),
		result("a", 0, 1, nil, []string{"Beta", "Alpha"}),
		result("b", 1, 0, nil, []string{"Alpha"}),
	}, v)
	var got []string
	for _, ts := range rep.TopTerms(0).Items {
		got = append(got, ts.Term)
	}
	want := []string{"Alpha", "Gamma", "Beta"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestEntityMentionsInEncounterOrder(t *testing.T) {
	jane := roster.Entity{ID: "1", DisplayName: "Jane Doe"}
	john := roster.Entity{ID: "2", DisplayName: "John Roe"}
	v := vocab.New([]string{"Crime"})
	rep := Aggregate([]match.Result{
		result("b", 1, 0, nil, []string{"Crime"}, john, jane),
		result("a", 0, 0, nil, []string{"Crime"}, jane),
		result("a", 0, 1, nil, []string{"Crime"}, jane),
	}, v)

	top := rep.TopEntities(1)
	if len(top.Items) != 1 || top.Overflow != 1 {
		t.Fatalf("unexpected page %+v", top)
	}
	es := top.Items[0]
	if es.DisplayName != "Jane Doe" || es.Count() != 3 || es.Sources.Len() != 2 {
		t.Errorf("unexpected entity stats: %s %d %d", es.DisplayName, es.Count(), es.Sources.Len())
	}
	if es.Mentions[0].Item.Title != "a-0" || es.Mentions[2].Item.Title != "b-0" {
		t.Errorf("expected mentions in source order, got %s .. %s", es.Mentions[0].Item.Title, es.Mentions[2].Item.Title)
	}
	if rep.TotalEntityMentions() != 4 {
		t.Errorf("expected 4 mentions, got %d", rep.TotalEntityMentions())
	}
}

func TestTimelineSkipsUndated(t *testing.T) {
	v := vocab.New([]string{"Crime", "Fraud"})
	rep := Aggregate([]match.Result{
		result("a", 0, 0, at("2024-03-09T23:30:00-05:00"), []string{"Crime"}),
		result("a", 0, 1, at("2024-03-08T10:00:00Z"), []string{"Crime", "Fraud"}),
		result("a", 0, 2, nil, []string{"Fraud"}),
	}, v)

	tl := rep.Timeline()
	if len(tl) != 2 || tl[0].Date != "2024-03-08" || tl[1].Date != "2024-03-10" {
		t.Fatalf("unexpected buckets %+v", tl)
	}
	if n, _ := tl[0].Counts.Get("Fraud"); n != 1 {
		t.Errorf("expected Fraud=1 on 2024-03-08, got %d", n)
	}
	ts, _ := rep.Term("Fraud")
	if ts.Count != 2 {
		t.Errorf("undated result must still count, got %d", ts.Count)
	}
	from, to, ok := rep.Window()
	if !ok || from.Format(DateLayout) != "2024-03-08" || to.Format(DateLayout) != "2024-03-10" {
		t.Errorf("unexpected window %v %v", from, to)
	}
}

func TestNotFoundPartitionsVocabulary(t *testing.T) {
	v := vocab.New([]string{"A1", "B2", "C3", "D4", "b2"})
	rep := Aggregate([]match.Result{result("a", 0, 0, nil, []string{"B2", "D4"})}, v)

	found := make(map[string]bool)
	for _, ts := range rep.Terms() {
		found[vocab.Key(ts.Term)] = true
	}
	for _, nf := range rep.NotFound() {
		if found[vocab.Key(nf)] {
			t.Errorf("%s is both found and not found", nf)
		}
		found[vocab.Key(nf)] = true
	}
	if len(found) != v.UniqueLen() {
		t.Errorf("expected %d keys covered, got %d", v.UniqueLen(), len(found))
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	v := vocab.New([]string{"Crime", "Fraud", "Arrested"})
	jane := roster.Entity{ID: "1", DisplayName: "Jane Doe"}
	base := []match.Result{
		result("a", 0, 0, at("2024-03-08T10:00:00Z"), []string{"Crime"}, jane),
		result("a", 0, 1, nil, []string{"Fraud"}),
		result("b", 1, 0, at("2024-03-09T10:00:00Z"), []string{"Arrested", "Crime"}),
		result("c", 2, 0, nil, []string{"Fraud"}, jane),
	}

	snapshot := func(rep *Report) string {
		s := fmt.Sprint(rep.NotFound())
		for _, ts := range rep.TopTerms(2).Items {
			s += fmt.Sprintf("|%s:%d:%v", ts.Term, ts.Count, ts.Sources.Values())
		}
		for _, es := range rep.TopEntities(0).Items {
			s += fmt.Sprintf("|%s:%d", es.DisplayName, es.Count())
		}
		for _, src := range rep.Sources() {
			s += fmt.Sprintf("|%s:%v", src.SourceID, src.Terms.Values())
		}
		return s
	}

	want := snapshot(Aggregate(base, v))
	if again := snapshot(Aggregate(base, v)); again != want {
		t.Errorf("second aggregation differs:\n%s\n%s", want, again)
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		shuffled := append([]match.Result(nil), base...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := snapshot(Aggregate(shuffled, v)); got != want {
			t.Errorf("shuffle %d differs:\n%s\n%s", i, want, got)
		}
	}
}

func TestAggregateDoesNotReorderInput(t *testing.T) {
	v := vocab.New([]string{"Crime"})
	in := []match.Result{
		result("b", 1, 0, nil, []string{"Crime"}),
		result("a", 0, 0, nil, []string{"Crime"}),
	}
	Aggregate(in, v)
	if in[0].Item.SourceID != "b" {
		t.Error("expected input slice untouched")
	}
}
