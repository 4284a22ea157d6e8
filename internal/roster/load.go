package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// ErrRosterLoad marks a roster that could not be read or understood.
// Callers continue with an empty roster.
var ErrRosterLoad = errors.New("roster load failed")

// Options controls how a roster file is read.
type Options struct {
	Path            string
	Format          string // csv, yaml, xlsx; inferred from the extension when empty
	Sheet           string // xlsx only; first sheet when empty
	SkipRows        int    // rows before the header row
	NameColumn      string
	FirstNameColumn string
	LastNameColumn  string
}

var (
	nameHeaders    = []string{"full name", "full_name", "name", "contact name"}
	firstHeaders   = []string{"first name", "firstname", "first_name"}
	lastHeaders    = []string{"last name", "lastname", "last_name"}
	titleHeaders   = []string{"title", "job title"}
	accountHeaders = []string{"account name", "account_name", "account", "organization", "company"}
	emailHeaders   = []string{"email", "e-mail", "email address"}
	idHeaders      = []string{"id", "contact id", "contact_id"}
)

// LoadFile reads a roster file. Any failure is wrapped in ErrRosterLoad and
// no partial roster is returned.
func LoadFile(opts Options) (*Roster, error) {
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(opts.Path)), ".")
	}

	var (
		records []Record
		err     error
	)
	switch format {
	case "csv":
		records, err = loadCSV(opts)
	case "yaml", "yml":
		records, err = loadYAML(opts.Path)
	case "xlsx":
		records, err = loadXLSX(opts)
	default:
		err = fmt.Errorf("unsupported roster format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRosterLoad, opts.Path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s: no named rows", ErrRosterLoad, opts.Path)
	}
	return New(records), nil
}

func loadCSV(opts Options) ([]Record, error) {
	f, err := os.Open(opts.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	return recordsFromRows(rows, opts)
}

func loadXLSX(opts Options) ([]Record, error) {
	f, err := excelize.OpenFile(opts.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	return recordsFromRows(rows, opts)
}

type yamlContact struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	MatchName string `yaml:"match_name"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Title     string `yaml:"title"`
	Account   string `yaml:"account"`
	Email     string `yaml:"email"`
}

func loadYAML(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var contacts []yamlContact
	var doc struct {
		Contacts []yamlContact `yaml:"contacts"`
	}
	if err := yaml.Unmarshal(data, &doc); err == nil && len(doc.Contacts) > 0 {
		contacts = doc.Contacts
	} else if err := yaml.Unmarshal(data, &contacts); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	records := make([]Record, 0, len(contacts))
	for _, c := range contacts {
		name := c.Name
		if name == "" {
			name = joinName(c.FirstName, c.LastName)
		}
		if strings.TrimSpace(name) == "" {
			continue
		}
		records = append(records, Record{
			ID:          c.ID,
			DisplayName: name,
			MatchName:   c.MatchName,
			Title:       c.Title,
			Account:     c.Account,
			Email:       c.Email,
		})
	}
	return records, nil
}

// recordsFromRows turns a header row plus data rows into records.
func recordsFromRows(rows [][]string, opts Options) ([]Record, error) {
	if opts.SkipRows > 0 {
		if opts.SkipRows >= len(rows) {
			return nil, fmt.Errorf("skip_rows %d leaves no header", opts.SkipRows)
		}
		rows = rows[opts.SkipRows:]
	}
	if len(rows) == 0 {
		return nil, errors.New("no header row")
	}

	header := rows[0]
	cols := columnIndex(header)

	nameCol := pick(cols, opts.NameColumn, nameHeaders)
	firstCol := pick(cols, opts.FirstNameColumn, firstHeaders)
	lastCol := pick(cols, opts.LastNameColumn, lastHeaders)
	if opts.FirstNameColumn != "" || opts.LastNameColumn != "" {
		nameCol = -1
	}
	if nameCol < 0 && firstCol < 0 && lastCol < 0 {
		return nil, fmt.Errorf("no name column in header %v", header)
	}
	titleCol := pick(cols, "", titleHeaders)
	accountCol := pick(cols, "", accountHeaders)
	emailCol := pick(cols, "", emailHeaders)
	idCol := pick(cols, "", idHeaders)

	var records []Record
	for _, row := range rows[1:] {
		if sameRow(row, header) {
			continue
		}
		var name string
		if nameCol >= 0 {
			name = cell(row, nameCol)
		} else {
			name = joinName(cell(row, firstCol), cell(row, lastCol))
		}
		if name == "" {
			continue
		}
		records = append(records, Record{
			ID:          cell(row, idCol),
			DisplayName: name,
			Title:       cell(row, titleCol),
			Account:     cell(row, accountCol),
			Email:       cell(row, emailCol),
		})
	}
	return records, nil
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if key == "" {
			continue
		}
		if _, ok := cols[key]; !ok {
			cols[key] = i
		}
	}
	return cols
}

func pick(cols map[string]int, explicit string, candidates []string) int {
	if explicit != "" {
		if i, ok := cols[strings.ToLower(strings.TrimSpace(explicit))]; ok {
			return i
		}
		return -1
	}
	for _, c := range candidates {
		if i, ok := cols[c]; ok {
			return i
		}
	}
	return -1
}

// cell returns a trimmed cell value; spreadsheet exports write "nan" for
// empty cells, which is treated as empty.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[i])
	if strings.EqualFold(v, "nan") {
		return ""
	}
	return v
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

func sameRow(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(strings.TrimSpace(a[i]), strings.TrimSpace(b[i])) {
			return false
		}
	}
	return true
}
