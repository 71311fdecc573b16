package loader

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/dashnote/internal/models"
	"github.com/ternarybob/dashnote/internal/services/stats"
)

// Table is a raw header + rows view of an uploaded file
type Table struct {
	Name    string
	Sheet   string
	Headers []string
	Rows    [][]string
}

// Cols returns the column count, taken from the header row
func (t *Table) Cols() int {
	return len(t.Headers)
}

// Cell returns the trimmed value at row r, column c or "" when the row is short
func (t *Table) Cell(r, c int) string {
	if r < 0 || r >= len(t.Rows) || c < 0 || c >= len(t.Rows[r]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[r][c])
}

// Column returns every cell of column c
func (t *Table) Column(c int) []string {
	out := make([]string, len(t.Rows))
	for r := range t.Rows {
		out[r] = t.Cell(r, c)
	}
	return out
}

// NumericColumns returns every fully numeric column for reporting
func (t *Table) NumericColumns() []stats.Column {
	var cols []stats.Column
	for c := 0; c < t.Cols(); c++ {
		cells := t.Column(c)
		if !isNumericColumn(cells) {
			continue
		}
		col := stats.Column{Name: t.Headers[c]}
		for _, cell := range cells {
			if v, ok := parseNumeric(cell); ok {
				col.Values = append(col.Values, v)
			}
		}
		cols = append(cols, col)
	}
	return cols
}

// readDelimited reads csv/txt with a sniffed delimiter
func readDelimited(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	first, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}

	r := csv.NewReader(br)
	r.Comma = sniffDelimiter(string(first))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	t := &Table{}
	for _, rec := range records {
		if isBlankRecord(rec) {
			continue
		}
		if t.Headers == nil {
			t.Headers = trimAll(rec)
			continue
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// readSpreadsheet selects the first sheet with at least two columns whose
// second column is numeric. Sheets are tried in file order.
func readSpreadsheet(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, err
		}

		t := &Table{Sheet: sheet}
		for _, rec := range rows {
			if isBlankRecord(rec) {
				continue
			}
			if t.Headers == nil {
				t.Headers = trimAll(rec)
				continue
			}
			t.Rows = append(t.Rows, rec)
		}

		if len(t.Rows) == 0 || t.Cols() < 2 {
			continue
		}
		if isNumericColumn(t.Column(1)) {
			return t, nil
		}
	}

	return nil, models.NewInputError(models.InputNoNumeric, "No sheet in the spreadsheet has a numeric second column.")
}

// sniffDelimiter picks the most frequent candidate separator in the first line
func sniffDelimiter(sample string) rune {
	line := sample
	if i := strings.IndexAny(sample, "\r\n"); i >= 0 {
		line = sample[:i]
	}
	best, bestCount := ',', 0
	for _, sep := range []rune{',', ';', '\t', '|'} {
		if n := strings.Count(line, string(sep)); n > bestCount {
			best, bestCount = sep, n
		}
	}
	return best
}

func isBlankRecord(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func trimAll(rec []string) []string {
	out := make([]string, len(rec))
	for i, cell := range rec {
		out[i] = strings.TrimSpace(strings.TrimPrefix(cell, "\ufeff"))
	}
	return out
}
