package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/dashnote/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func requireInputError(t *testing.T, err error, kind models.InputErrorKind) {
	t.Helper()
	require.Error(t, err)
	ie, ok := models.AsInputError(err)
	require.True(t, ok, "expected InputError, got %T: %v", err, err)
	assert.Equal(t, kind, ie.Kind)
	assert.NotEmpty(t, ie.Reason)
}

func TestLoad_CanonicalLayout(t *testing.T) {
	l := New(arbor.NewLogger(), PolicyStrict)
	path := writeFile(t, "prices.csv", "Date,Close\n2024-01-02,10.5\n2024-01-03,11\n2024-01-04,9.75\n")

	ts, err := l.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Date", ts.DateColumn)
	assert.Equal(t, "Close", ts.ValueColumn)
	assert.False(t, ts.Swapped)
	assert.Equal(t, []float64{10.5, 11, 9.75}, ts.Values())
	assert.True(t, ts.HasDateAxis())
	assert.Equal(t, "2 January 2024", ts.DateLabel(0))
}

func TestLoad_SwappedLayoutMatchesCanonical(t *testing.T) {
	l := New(arbor.NewLogger(), PolicyStrict)
	canonical := writeFile(t, "a.csv", "Date,Close\n2024-01-02,10.5\n2024-01-03,11\n2024-01-04,9.75\n")
	swapped := writeFile(t, "b.csv", "Close,Date\n10.5,2024-01-02\n11,2024-01-03\n9.75,2024-01-04\n")

	want, err := l.Load(canonical)
	require.NoError(t, err)
	got, err := l.Load(swapped)
	require.NoError(t, err)

	assert.True(t, got.Swapped)
	assert.Equal(t, want.DateColumn, got.DateColumn)
	assert.Equal(t, want.ValueColumn, got.ValueColumn)
	assert.Equal(t, want.Points, got.Points)
}

func TestLoad_Failures(t *testing.T) {
	l := New(arbor.NewLogger(), PolicyStrict)

	tests := []struct {
		name    string
		file    string
		content string
		kind    models.InputErrorKind
	}{
		{"unsupported extension", "chart.json", `{"a":1}`, models.InputUnsupported},
		{"header only", "empty.csv", "Date,Close\n", models.InputEmpty},
		{"three columns", "wide.csv", "Date,Open,Close\n2024-01-02,1,2\n2024-01-03,2,3\n", models.InputColumnCount},
		{"one column", "narrow.csv", "Close\n1\n2\n", models.InputColumnCount},
		{"ambiguous roles", "text.csv", "Name,Sector\nAcme,Retail\nGlobex,Finance\n", models.InputAmbiguousRoles},
		{"two numeric columns", "nums.csv", "A,B\n0.5,1.5\n0.7,2.5\n", models.InputAmbiguousRoles},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(writeFile(t, tt.file, tt.content))
			requireInputError(t, err, tt.kind)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := l.Load(filepath.Join(t.TempDir(), "missing.csv"))
		requireInputError(t, err, models.InputUnreadable)
	})
}

func TestLoad_FallbackPolicy(t *testing.T) {
	l := New(arbor.NewLogger(), PolicyFallback)

	t.Run("picks first numeric column after the date", func(t *testing.T) {
		path := writeFile(t, "wide.csv", "Date,Ticker,Close,Volume\n2024-01-02,ABC,10,100\n2024-01-03,ABC,12,90\n")
		ts, err := l.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "Close", ts.ValueColumn)
		assert.Equal(t, []float64{10, 12}, ts.Values())
	})

	t.Run("no numeric column", func(t *testing.T) {
		path := writeFile(t, "wide.csv", "Date,Ticker,Sector\n2024-01-02,ABC,Tech\n")
		_, err := l.Load(path)
		requireInputError(t, err, models.InputNoNumeric)
		assert.True(t, IsNoNumericData(err))
	})

	t.Run("unparseable dates become ordinals", func(t *testing.T) {
		path := writeFile(t, "wide.csv", "Period,Region,Sales\nQ1,North,5\nQ2,North,7\n")
		ts, err := l.Load(path)
		require.NoError(t, err)
		assert.False(t, ts.HasDateAxis())
		assert.Equal(t, "record 1", ts.DateLabel(1))
	})

	t.Run("two columns still use role detection", func(t *testing.T) {
		path := writeFile(t, "b.csv", "Close,Date\n10.5,2024-01-02\n11,2024-01-03\n")
		ts, err := l.Load(path)
		require.NoError(t, err)
		assert.True(t, ts.Swapped)
	})
}

func TestLoad_YearColumnAndDelimiters(t *testing.T) {
	l := New(arbor.NewLogger(), PolicyStrict)

	ts, err := l.Load(writeFile(t, "gold.txt", "Year;Price\n1999;278,5\n2000;279,1\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{278.5, 279.1}, ts.Values())
	assert.Equal(t, "in 1999", ts.DateLabel(0))
}

func TestLoad_YearLikeValues(t *testing.T) {
	l := New(arbor.NewLogger(), PolicyStrict)

	tests := []struct {
		name      string
		content   string
		dateCol   string
		valueCol  string
		swapped   bool
		values    []float64
		firstDate string
	}{
		{"year header second", "Close,Year\n1500,2019\n1600,2020\n", "Year", "Close", true, []float64{1500, 1600}, "in 2019"},
		{"year header first", "Year,Close\n2019,1500\n2020,1600\n", "Year", "Close", false, []float64{1500, 1600}, "in 2019"},
		{"monotonic column wins without headers", "A,B\n1500,2019\n1400,2020\n1600,2021\n", "B", "A", true, []float64{1500, 1400, 1600}, "in 2019"},
		{"tie keeps first arrangement", "A,B\n2019,1500\n2020,1600\n", "A", "B", false, []float64{1500, 1600}, "in 2019"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := l.Load(writeFile(t, "years.csv", tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.dateCol, ts.DateColumn)
			assert.Equal(t, tt.valueCol, ts.ValueColumn)
			assert.Equal(t, tt.swapped, ts.Swapped)
			assert.Equal(t, tt.values, ts.Values())
			assert.Equal(t, tt.firstDate, ts.DateLabel(0))
		})
	}
}

func TestYearAxisScore(t *testing.T) {
	assert.Equal(t, 3, yearAxisScore("Year", []string{"2019", "2020"}))
	assert.Equal(t, 2, yearAxisScore("fiscal_year", []string{"2020", "2019", "2021"}))
	assert.Equal(t, 1, yearAxisScore("Close", []string{"1500", "1600"}))
	assert.Equal(t, 0, yearAxisScore("Close", []string{"1500", "1400", "1600"}))
	assert.False(t, isYearColumn([]string{"2019", "12.5"}))
	assert.True(t, isYearColumn([]string{"2019", "", "2020"}))
}

func TestLoad_Spreadsheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Notes"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Comment"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "draft"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "not numeric"))

	_, err := f.NewSheet("Prices")
	require.NoError(t, err)
	rows := [][]interface{}{{"Date", "Close"}, {"2024-01-02", 10.5}, {"2024-01-03", 12.25}}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Prices", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	ts, err := New(arbor.NewLogger(), PolicyStrict).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Prices", ts.Sheet)
	assert.Equal(t, []float64{10.5, 12.25}, ts.Values())
}

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"10", 10, true},
		{"1,234.5", 1234.5, true},
		{"1.234,5", 1234.5, true},
		{"278,5", 278.5, true},
		{"1,234", 1234, true},
		{"$99.90", 99.9, true},
		{"12%", 12, true},
		{"2024-01-02", 0, false},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseNumeric(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestNumericColumns(t *testing.T) {
	l := New(arbor.NewLogger(), PolicyFallback)
	table, err := l.ReadTable(writeFile(t, "wide.csv", "Date,Open,Ticker,Close\n2024-01-02,1,A,2\n2024-01-03,2,A,3\n"))
	require.NoError(t, err)

	cols := table.NumericColumns()
	require.Len(t, cols, 2)
	assert.Equal(t, "Open", cols[0].Name)
	assert.Equal(t, "Close", cols[1].Name)
}
