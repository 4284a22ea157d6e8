package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/TobiSchelling/mediawatch/internal/aggregate"
	"github.com/TobiSchelling/mediawatch/internal/match"
)

// Columns of the tabular export.
var Columns = []string{
	"source", "title", "url", "published", "summary",
	"keywords_found", "contacts_mentioned", "num_keywords", "has_contact_mention",
}

const resultsSheet = "Results"

func entityNames(res match.Result) []string {
	names := make([]string, len(res.MatchedEntities))
	for i, e := range res.MatchedEntities {
		names[i] = e.DisplayName
	}
	return names
}

func row(rep *aggregate.Report, res match.Result) []string {
	return []string{
		rep.SourceName(res.Item.SourceID),
		res.Item.Title,
		res.Item.Link,
		res.Item.PublishedRaw,
		res.Item.SummaryExcerpt,
		strings.Join(res.MatchedTerms, ", "),
		strings.Join(entityNames(res), ", "),
		strconv.Itoa(len(res.MatchedTerms)),
		strconv.FormatBool(res.HasEntityMention()),
	}
}

// WriteCSV writes one row per match result.
func WriteCSV(w io.Writer, rep *aggregate.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, res := range rep.Results() {
		if err := cw.Write(row(rep, res)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the same rows as WriteCSV into a workbook at path, with
// numeric and boolean columns typed.
func WriteXLSX(path string, rep *aggregate.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetList()[0], resultsSheet); err != nil {
		return err
	}

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(Columns), 1)
	if err := f.SetCellStyle(resultsSheet, "A1", last, bold); err != nil {
		return err
	}

	for i, res := range rep.Results() {
		cells := row(rep, res)
		values := make([]any, len(cells))
		for j, c := range cells {
			values[j] = c
		}
		values[7] = len(res.MatchedTerms)
		values[8] = res.HasEntityMention()

		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(resultsSheet, cell, &values); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(resultsSheet, "B", "B", 60); err != nil {
		return err
	}
	return f.SaveAs(path)
}
