package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/TobiSchelling/mediawatch/internal/aggregate"
	"github.com/TobiSchelling/mediawatch/internal/match"
	"github.com/TobiSchelling/mediawatch/internal/normalize"
	"github.com/TobiSchelling/mediawatch/internal/roster"
	"github.com/TobiSchelling/mediawatch/internal/vocab"
)

var testMeta = Meta{
	RunID:           "01HTEST",
	GeneratedAt:     time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	SourcesSearched: 3,
	RosterSize:      2,
	Limits:          Limits{TopTerms: 20, NotFound: 2, ArticlesPerSource: 2, MentionsPerEntity: 1},
}

func testReport() *aggregate.Report {
	jane := roster.Entity{ID: "1", DisplayName: "Jane Doe"}
	published := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)
	mk := func(source, name string, rank, seq int, terms []string, entities ...roster.Entity) match.Result {
		return match.Result{
			Item: normalize.Item{
				SourceID:       source,
				SourceName:     name,
				SourceRank:     rank,
				Seq:            seq,
				Title:          fmt.Sprintf("%s story %d", name, seq),
				Link:           fmt.Sprintf("https://%s.example.com/%d", source, seq),
				PublishedRaw:   "Sat, 09 Mar 2024 08:00:00 GMT",
				PublishedAt:    &published,
				SummaryExcerpt: "summary...",
			},
			MatchedTerms:    terms,
			MatchedEntities: entities,
		}
	}
	v := vocab.New([]string{"Crime", "Fraud", "Arrested", "Lawsuit", "Scandal", "Indicted"})
	return aggregate.Aggregate([]match.Result{
		mk("cnn", "CNN", 0, 0, []string{"Crime"}, jane),
		mk("cnn", "CNN", 0, 1, []string{"Crime", "Fraud"}),
		mk("cnn", "CNN", 0, 2, []string{"Crime"}, jane),
		mk("fox", "Fox News", 1, 0, []string{"Fraud"}),
	}, v)
}

func TestRenderMarkdownCountsDuplicateTermsOnce(t *testing.T) {
	v := vocab.New([]string{"Allegation", "Crime", "allegation"})
	out := RenderMarkdown(aggregate.Aggregate(nil, v), testMeta)
	if !strings.Contains(out, "**Total keywords monitored:** 2") || !strings.Contains(out, "- Keywords tracked: 2") {
		t.Errorf("expected duplicates counted once:\n%s", out)
	}
	if !strings.Contains(out, "(2 total)") {
		t.Errorf("expected both distinct terms not found:\n%s", out)
	}
}

func TestRenderMarkdown(t *testing.T) {
	out := RenderMarkdown(testReport(), testMeta)

	for _, want := range []string{
		"# Media Coverage Analysis",
		"- Total articles found: 4",
		"- Media outlets searched: 3",
		"- Keywords tracked: 6",
		"- Contact mentions found: 2",
		"**Crime**\n- Articles found: 3\n- Media outlets covering: 1\n- Outlets: CNN",
		"- Outlets: CNN, Fox News",
		"### Keywords Not Found in Recent Coverage (4 total)",
		"Arrested, Lawsuit\n",
		"... and 2 more",
		"### CNN\n*3 articles found*",
		"*... and 1 more articles*",
		"- Contacts mentioned: Jane Doe",
		"### Jane Doe\n*Mentioned in 2 articles*",
		"- **CNN story 0** (CNN)",
		"- *... and 1 more mentions*",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected markdown to contain %q", want)
		}
	}
	if strings.Index(out, "### CNN") > strings.Index(out, "### Fox News") {
		t.Error("expected outlets in declaration order")
	}
	if strings.Contains(out, "**CNN story 2**") {
		t.Error("expected third CNN article to be truncated from the outlet listing")
	}
}

func TestRenderMarkdownEscapesFeedText(t *testing.T) {
	rep := aggregate.Aggregate([]match.Result{{
		Item: normalize.Item{
			SourceID:     "wire",
			SourceName:   "Wire_Service #1",
			Title:        "Fraud *inquiry* [update] `x` <b>bold</b>",
			Link:         "https://wire.example.com/a b",
			PublishedRaw: "Unknown",
		},
		MatchedTerms:    []string{"Fraud"},
		MatchedEntities: []roster.Entity{{ID: "1", DisplayName: "Jane_Doe"}},
	}}, vocab.New([]string{"Fraud"}))

	out := RenderMarkdown(rep, testMeta)
	for _, want := range []string{
		"**Fraud \\*inquiry\\* \\[update\\] \\`x\\` \\<b\\>bold\\</b\\>**",
		"### Wire\\_Service \\#1",
		"### Jane\\_Doe",
		"- [Link](<https://wire.example.com/a%20b>)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}

	html, err := RenderHTMLFragment(rep, testMeta)
	if err != nil {
		t.Fatalf("rendering html: %v", err)
	}
	if strings.Contains(html, "<em>inquiry") || strings.Contains(html, "<b>") || strings.Contains(html, "<code>") {
		t.Errorf("feed markup leaked into html:\n%s", html)
	}
	if !strings.Contains(html, "*inquiry* [update]") || !strings.Contains(html, "&lt;b&gt;bold") {
		t.Errorf("expected literal title text in html:\n%s", html)
	}
}

func TestRenderMarkdownIsStable(t *testing.T) {
	a := RenderMarkdown(testReport(), testMeta)
	b := RenderMarkdown(testReport(), testMeta)
	if a != b {
		t.Error("expected identical output for identical input")
	}
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, testReport(), testMeta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<h1>Media Coverage Analysis") || !strings.Contains(out, `<a href="https://cnn.example.com/0">Link</a>`) {
		t.Errorf("unexpected html:\n%s", out)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(Columns, ",") {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[2][5] != "Crime, Fraud" || rows[2][7] != "2" || rows[2][8] != "false" {
		t.Errorf("unexpected second row %v", rows[2])
	}
	if rows[1][6] != "Jane Doe" || rows[1][8] != "true" {
		t.Errorf("unexpected first row %v", rows[1])
	}
	if rows[4][0] != "Fox News" {
		t.Errorf("expected source display name, got %q", rows[4][0])
	}
}

func TestBuildSnapshot(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, testReport(), testMeta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded struct {
		Generated string   `json:"generated"`
		Keywords  []string `json:"keywords"`
		Summary   struct {
			TotalArticles        int `json:"total_articles"`
			TotalSources         int `json:"total_sources"`
			TotalContactMentions int `json:"total_contact_mentions"`
		} `json:"summary"`
		KeywordMetrics    map[string]KeywordMetric     `json:"keyword_metrics"`
		SourceMetrics     map[string]SourceMetric      `json:"source_metrics"`
		Timeline          map[string]map[string]int    `json:"timeline"`
		ContactVisibility map[string]ContactVisibility `json:"contact_visibility"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if decoded.Generated != "2024-03-10T12:00:00Z" || len(decoded.Keywords) != 6 {
		t.Errorf("unexpected header fields: %s %v", decoded.Generated, decoded.Keywords)
	}
	if decoded.Summary.TotalArticles != 4 || decoded.Summary.TotalSources != 2 || decoded.Summary.TotalContactMentions != 2 {
		t.Errorf("unexpected summary %+v", decoded.Summary)
	}
	fraud := decoded.KeywordMetrics["Fraud"]
	if fraud.Count != 2 || strings.Join(fraud.Sources, ",") != "CNN,Fox News" {
		t.Errorf("unexpected Fraud metric %+v", fraud)
	}
	if got := decoded.SourceMetrics["CNN"].KeywordsCovered; strings.Join(got, ",") != "Crime,Fraud" {
		t.Errorf("unexpected CNN keywords %v", got)
	}
	if decoded.Timeline["2024-03-09"]["Crime"] != 3 {
		t.Errorf("unexpected timeline %v", decoded.Timeline)
	}
	if decoded.ContactVisibility["Jane Doe"].MentionCount != 2 {
		t.Errorf("unexpected contact visibility %v", decoded.ContactVisibility)
	}

	out := buf.String()
	if strings.Index(out, `"Crime": {`) > strings.Index(out, `"Fraud": {`) {
		t.Error("expected keyword metrics in aggregation order")
	}
}

func TestSnapshotKeepsSourcesWithSharedName(t *testing.T) {
	mk := func(source string, rank, seq int) match.Result {
		return match.Result{
			Item: normalize.Item{
				SourceID:   source,
				SourceName: "Reuters",
				SourceRank: rank,
				Seq:        seq,
				Title:      fmt.Sprintf("%s %d", source, seq),
			},
			MatchedTerms: []string{"Crime"},
		}
	}
	rep := aggregate.Aggregate([]match.Result{
		mk("reuters-world", 0, 0),
		mk("reuters-world", 0, 1),
		mk("reuters-us", 1, 0),
	}, vocab.New([]string{"Crime"}))

	snap := BuildSnapshot(rep, testMeta)
	if snap.SourceMetrics.Len() != snap.Summary.TotalSources {
		t.Fatalf("expected %d source entries, got %d", snap.Summary.TotalSources, snap.SourceMetrics.Len())
	}
	total := 0
	for p := snap.SourceMetrics.Oldest(); p != nil; p = p.Next() {
		total += p.Value.TotalArticles
	}
	if total != snap.Summary.TotalArticles {
		t.Errorf("source metrics cover %d articles, summary has %d", total, snap.Summary.TotalArticles)
	}
	if _, ok := snap.SourceMetrics.Get("Reuters (reuters-us)"); !ok {
		t.Errorf("expected suffixed key for second source")
	}
	crime, _ := snap.KeywordMetrics.Get("Crime")
	if strings.Join(crime.Sources, ",") != "Reuters,Reuters (reuters-us)" {
		t.Errorf("unexpected Crime sources %v", crime.Sources)
	}
}

func TestEmitAllFormats(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := Emit(dir, AllFormats, testReport(), testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 5 {
		t.Fatalf("expected 5 artifacts, got %v", paths)
	}
	for _, name := range []string{MarkdownFile, HTMLFile, CSVFile, XLSXFile, SnapshotFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}

	f, err := excelize.OpenFile(filepath.Join(dir, XLSXFile))
	if err != nil {
		t.Fatalf("opening workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(resultsSheet)
	if err != nil {
		t.Fatalf("reading sheet: %v", err)
	}
	if len(rows) != 5 || rows[0][0] != "source" || rows[1][1] != "CNN story 0" {
		t.Errorf("unexpected workbook rows %v", rows)
	}
}

func TestEmitSkipsEmptyTabularExports(t *testing.T) {
	dir := t.TempDir()
	empty := aggregate.Aggregate(nil, vocab.New([]string{"Crime"}))
	paths, err := Emit(dir, []string{FormatMarkdown, FormatCSV, FormatXLSX}, empty, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 1 {
		t.Errorf("expected only the markdown report, got %v", paths)
	}
}

func TestParseFormats(t *testing.T) {
	got, err := ParseFormats([]string{"MD", "csv", "markdown", "excel"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, ",") != "markdown,csv,xlsx" {
		t.Errorf("unexpected formats %v", got)
	}
	if _, err := ParseFormats([]string{"pdf"}); err == nil {
		t.Error("expected error for unknown format")
	}
	if all, _ := ParseFormats(nil); len(all) != len(AllFormats) {
		t.Error("expected all formats by default")
	}
}
