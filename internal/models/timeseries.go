package models

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Point is one row of a time series. When the date axis could not be
// parsed, HasDate is false and Label carries the ordinal.
type Point struct {
	Date    time.Time `json:"date,omitempty"`
	HasDate bool      `json:"has_date"`
	Label   string    `json:"label"`
	Value   float64   `json:"value"`
}

// TimeSeries is a validated (date, value) table. The date axis is always
// column 0 after role resolution.
type TimeSeries struct {
	Name        string  `json:"name"`
	Sheet       string  `json:"sheet,omitempty"`
	DateColumn  string  `json:"date_column"`
	ValueColumn string  `json:"value_column"`
	Swapped     bool    `json:"swapped"`
	Points      []Point `json:"points"`
}

// Len returns the number of points
func (ts *TimeSeries) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.Points)
}

// Values returns the numeric column in row order
func (ts *TimeSeries) Values() []float64 {
	if ts == nil {
		return nil
	}
	values := make([]float64, len(ts.Points))
	for i, p := range ts.Points {
		values[i] = p.Value
	}
	return values
}

// HasDateAxis reports whether any row carries a parsed date
func (ts *TimeSeries) HasDateAxis() bool {
	if ts == nil {
		return false
	}
	for _, p := range ts.Points {
		if p.HasDate {
			return true
		}
	}
	return false
}

// DateLabel returns the human-readable date of row i
func (ts *TimeSeries) DateLabel(i int) string {
	if ts == nil || i < 0 || i >= len(ts.Points) {
		return Unknown
	}
	p := ts.Points[i]
	if p.HasDate {
		return HumanDate(p.Date)
	}
	if p.Label != "" {
		return p.Label
	}
	return fmt.Sprintf("record %d", i)
}

// Head returns a copy of the first n points
func (ts *TimeSeries) Head(n int) []Point {
	if ts == nil {
		return nil
	}
	if n <= 0 || n > len(ts.Points) {
		n = len(ts.Points)
	}
	return append([]Point(nil), ts.Points[:n]...)
}

// ExcerptCSV renders at most n rows as Date,Value CSV for outbound requests.
func (ts *TimeSeries) ExcerptCSV(n int) string {
	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write([]string{"Date", "Value"})
	for i, p := range ts.Head(n) {
		_ = w.Write([]string{ts.DateLabel(i), strconv.FormatFloat(p.Value, 'f', -1, 64)})
	}
	w.Flush()
	return b.String()
}

// HumanDate formats a date for annotations. January 1 is treated as a
// year-only value.
func HumanDate(t time.Time) string {
	if t.Month() == time.January && t.Day() == 1 {
		return fmt.Sprintf("in %d", t.Year())
	}
	return t.Format("2 January 2006")
}
