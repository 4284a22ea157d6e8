// Package report renders an aggregate report into Markdown, HTML, CSV, XLSX
// and a JSON snapshot.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TobiSchelling/mediawatch/internal/aggregate"
)

// Output formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatCSV      = "csv"
	FormatXLSX     = "xlsx"
	FormatJSON     = "json"
)

// Artifact file names.
const (
	MarkdownFile = "media_keyword_analysis.md"
	HTMLFile     = "media_keyword_analysis.html"
	CSVFile      = "media_search_results.csv"
	XLSXFile     = "media_search_results.xlsx"
	SnapshotFile = "keyword_dashboard_data.json"
)

// AllFormats lists every supported format in emission order.
var AllFormats = []string{FormatMarkdown, FormatHTML, FormatCSV, FormatXLSX, FormatJSON}

// Limits truncate the listings in the Markdown report.
type Limits struct {
	TopTerms          int
	NotFound          int
	ArticlesPerSource int
	MentionsPerEntity int
}

// DefaultLimits returns the standard listing sizes.
func DefaultLimits() Limits {
	return Limits{TopTerms: 20, NotFound: 20, ArticlesPerSource: 5, MentionsPerEntity: 3}
}

// Meta describes the run a report belongs to.
type Meta struct {
	RunID           string
	GeneratedAt     time.Time
	DaysBack        int
	Strategy        string
	SourcesSearched int
	RosterSize      int
	Limits          Limits
}

// ParseFormats validates a list of format names. An empty list means all.
func ParseFormats(names []string) ([]string, error) {
	if len(names) == 0 {
		return AllFormats, nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		switch n {
		case "md":
			n = FormatMarkdown
		case "excel":
			n = FormatXLSX
		}
		switch n {
		case FormatMarkdown, FormatHTML, FormatCSV, FormatXLSX, FormatJSON:
		default:
			return nil, fmt.Errorf("unknown report format %q", n)
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}

// Emit writes the requested formats into dir and returns the written paths.
// Tabular exports are skipped when there are no results.
func Emit(dir string, formats []string, rep *aggregate.Report, meta Meta) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	var written []string
	for _, f := range formats {
		if (f == FormatCSV || f == FormatXLSX) && rep.TotalArticles() == 0 {
			slog.Info("no results to export", "format", f)
			continue
		}
		path, err := emitOne(dir, f, rep, meta)
		if err != nil {
			return written, err
		}
		slog.Info("report written", "format", f, "path", path)
		written = append(written, path)
	}
	return written, nil
}

func emitOne(dir, format string, rep *aggregate.Report, meta Meta) (string, error) {
	var (
		path string
		err  error
	)
	switch format {
	case FormatMarkdown:
		path = filepath.Join(dir, MarkdownFile)
		err = writeFile(path, func(w io.Writer) error { return WriteMarkdown(w, rep, meta) })
	case FormatHTML:
		path = filepath.Join(dir, HTMLFile)
		err = writeFile(path, func(w io.Writer) error { return WriteHTML(w, rep, meta) })
	case FormatCSV:
		path = filepath.Join(dir, CSVFile)
		err = writeFile(path, func(w io.Writer) error { return WriteCSV(w, rep) })
	case FormatXLSX:
		path = filepath.Join(dir, XLSXFile)
		err = WriteXLSX(path, rep)
	case FormatJSON:
		path = filepath.Join(dir, SnapshotFile)
		err = writeFile(path, func(w io.Writer) error { return WriteSnapshot(w, rep, meta) })
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
