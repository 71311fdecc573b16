// Package loader validates uploaded tabular files and resolves them into a
// (date, value) time series.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/models"
)

// Policy selects how tables with more than two columns are treated
type Policy string

const (
	// PolicyStrict requires exactly two columns
	PolicyStrict Policy = "strict"
	// PolicyFallback takes column 0 as the date axis and the first numeric
	// column after it as the value axis
	PolicyFallback Policy = "fallback"
)

// AllowedDataExtensions lists the accepted tabular file extensions
var AllowedDataExtensions = map[string]bool{
	".csv":  true,
	".txt":  true,
	".xlsx": true,
}

// Loader reads tables and resolves their column roles
type Loader struct {
	logger arbor.ILogger
	policy Policy
}

// New creates a Loader. An empty policy means PolicyStrict.
func New(logger arbor.ILogger, policy Policy) *Loader {
	if policy == "" {
		policy = PolicyStrict
	}
	return &Loader{logger: logger, policy: policy}
}

// Policy returns the configured column policy
func (l *Loader) Policy() Policy {
	return l.policy
}

// Load reads path and resolves it into a TimeSeries. Every failure is an
// *models.InputError carrying a short reason.
func (l *Loader) Load(path string) (*models.TimeSeries, error) {
	table, err := l.ReadTable(path)
	if err != nil {
		return nil, err
	}
	return l.Resolve(table)
}

// ReadTable reads a delimited or spreadsheet file into a Table
func (l *Loader) ReadTable(path string) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !AllowedDataExtensions[ext] {
		return nil, models.NewInputError(models.InputUnsupported, "Unsupported data file format: %s", extLabel(ext))
	}

	if _, err := os.Stat(path); err != nil {
		return nil, &models.InputError{Kind: models.InputUnreadable, Reason: "The data file could not be read.", Err: err}
	}

	var (
		table *Table
		err   error
	)
	if ext == ".xlsx" {
		table, err = readSpreadsheet(path)
	} else {
		table, err = readDelimited(path)
	}
	if err != nil {
		if _, ok := models.AsInputError(err); ok {
			return nil, err
		}
		l.logger.Warn().Err(err).Str("path", path).Msg("Failed to read data file")
		return nil, &models.InputError{Kind: models.InputUnreadable, Reason: "The data file could not be read.", Err: err}
	}

	table.Name = filepath.Base(path)
	l.logger.Debug().
		Str("file", table.Name).
		Str("sheet", table.Sheet).
		Int("columns", table.Cols()).
		Int("rows", len(table.Rows)).
		Msg("Data file read")

	return table, nil
}

// Resolve validates the table and determines the date and value columns
func (l *Loader) Resolve(table *Table) (*models.TimeSeries, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, models.NewInputError(models.InputEmpty, "The data table is empty.")
	}

	cols := table.Cols()
	switch {
	case cols == 2:
		return l.resolveTwoColumns(table)
	case cols > 2 && l.policy == PolicyFallback:
		return l.resolveFirstNumeric(table)
	default:
		return nil, models.NewInputError(models.InputColumnCount,
			"Expected exactly two columns (date and value), found %d.", cols)
	}
}

// resolveTwoColumns tries A=date/B=value, then the swapped arrangement
func (l *Loader) resolveTwoColumns(table *Table) (*models.TimeSeries, error) {
	a, b := table.Column(0), table.Column(1)

	// Two columns of bare 1000-2999 integers fit both arrangements
	if isYearColumn(a) && isYearColumn(b) {
		if yearAxisScore(table.Headers[1], b) > yearAxisScore(table.Headers[0], a) {
			l.logger.Debug().
				Str("date_column", table.Headers[1]).
				Str("value_column", table.Headers[0]).
				Msg("Both columns look like years, taking the second as the date axis")
			return build(table, 1, 0, true)
		}
		return build(table, 0, 1, false)
	}

	if isDateColumn(a) && isNumericColumn(b) {
		return build(table, 0, 1, false)
	}
	if isDateColumn(b) && isNumericColumn(a) {
		l.logger.Debug().
			Str("date_column", table.Headers[1]).
			Str("value_column", table.Headers[0]).
			Msg("Swapping columns so the date axis is first")
		return build(table, 1, 0, true)
	}

	return nil, models.NewInputError(models.InputAmbiguousRoles,
		"Could not tell which column holds dates and which holds values (%q, %q).", table.Headers[0], table.Headers[1])
}

// resolveFirstNumeric takes column 0 as the date axis and the first numeric
// column after it as the value axis
func (l *Loader) resolveFirstNumeric(table *Table) (*models.TimeSeries, error) {
	for c := 1; c < table.Cols(); c++ {
		if !isNumericColumn(table.Column(c)) {
			continue
		}
		l.logger.Debug().Str("value_column", table.Headers[c]).Msg("Selected value column")
		return build(table, 0, c, false)
	}
	return nil, &models.InputError{
		Kind:   models.InputNoNumeric,
		Reason: "No numeric value column was found (excluding the date column).",
		Err:    models.ErrNoNumericData,
	}
}

// build assembles the series, substituting ordinals for unparseable dates.
// Rows with an empty value cell are skipped.
func build(table *Table, dateCol, valueCol int, swapped bool) (*models.TimeSeries, error) {
	ts := &models.TimeSeries{
		Name:        table.Name,
		Sheet:       table.Sheet,
		DateColumn:  table.Headers[dateCol],
		ValueColumn: table.Headers[valueCol],
		Swapped:     swapped,
	}

	for r := range table.Rows {
		v, ok := parseNumeric(table.Cell(r, valueCol))
		if !ok {
			continue
		}
		p := models.Point{Value: v}
		if d, ok := parseDate(table.Cell(r, dateCol)); ok {
			p.Date, p.HasDate = d, true
		} else {
			p.Label = fmt.Sprintf("record %d", len(ts.Points))
		}
		ts.Points = append(ts.Points, p)
	}

	if len(ts.Points) == 0 {
		return nil, &models.InputError{Kind: models.InputNoNumeric, Reason: "The data table has no numeric values.", Err: models.ErrNoNumericData}
	}
	return ts, nil
}

// IsNoNumericData reports whether err means the table had no usable numbers
func IsNoNumericData(err error) bool {
	return errors.Is(err, models.ErrNoNumericData)
}

func extLabel(ext string) string {
	if ext == "" {
		return "(none)"
	}
	return ext
}
