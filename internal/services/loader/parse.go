package loader

import (
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
	"01-02-06",
	"02.01.2006",
	"2-Jan-2006",
	"2-Jan-06",
	"Jan 2, 2006",
	"2 January 2006",
	"January 2006",
	"Jan 2006",
	"2006-01",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
}

// parseDate accepts the common layouts and bare four-digit years
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if year, ok := parseYear(s); ok {
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseYear treats integer cells between 1000 and 2999 as years
func parseYear(s string) (int, bool) {
	s = strings.TrimSuffix(s, ".0")
	if len(s) != 4 {
		return 0, false
	}
	year, err := strconv.Atoi(s)
	if err != nil || year < 1000 || year > 2999 {
		return 0, false
	}
	return year, true
}

// isYearColumn reports whether every non-empty cell is a bare year
func isYearColumn(cells []string) bool {
	seen := false
	for _, cell := range cells {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if _, ok := parseYear(cell); !ok {
			return false
		}
		seen = true
	}
	return seen
}

var dateHeaderWords = []string{"year", "date", "time", "period", "fy"}

// yearAxisScore ranks a year-like column as the date axis. A date-like
// header counts for more than a strictly monotonic run of distinct years.
func yearAxisScore(header string, cells []string) int {
	score := 0
	h := strings.ToLower(strings.TrimSpace(header))
	for _, word := range dateHeaderWords {
		if h == word || strings.HasPrefix(h, word) || strings.HasSuffix(h, word) {
			score += 2
			break
		}
	}

	var years []int
	for _, cell := range cells {
		if y, ok := parseYear(strings.TrimSpace(cell)); ok {
			years = append(years, y)
		}
	}
	if strictlyMonotonic(years) {
		score++
	}
	return score
}

func strictlyMonotonic(values []int) bool {
	if len(values) < 2 {
		return false
	}
	up, down := true, true
	for i := 1; i < len(values); i++ {
		if values[i] <= values[i-1] {
			up = false
		}
		if values[i] >= values[i-1] {
			down = false
		}
	}
	return up || down
}

// parseNumeric parses a number, detecting the decimal separator from the
// position of the last comma and dot.
func parseNumeric(s string) (float64, bool) {
	raw := strings.TrimSpace(s)
	raw = strings.ReplaceAll(raw, "\u00a0", "")
	raw = strings.ReplaceAll(raw, " ", "")
	raw = strings.TrimSuffix(raw, "%")
	raw = strings.TrimLeft(raw, "$€£")
	if raw == "" {
		return 0, false
	}

	cpos := strings.LastIndex(raw, ",")
	dpos := strings.LastIndex(raw, ".")
	switch {
	case cpos >= 0 && dpos >= 0 && cpos > dpos:
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.Replace(raw, ",", ".", 1)
	case cpos >= 0 && dpos >= 0:
		raw = strings.ReplaceAll(raw, ",", "")
	case cpos >= 0:
		// a single comma followed by exactly three digits is a thousands separator
		if strings.Count(raw, ",") == 1 && len(raw)-cpos-1 != 3 {
			raw = strings.Replace(raw, ",", ".", 1)
		} else {
			raw = strings.ReplaceAll(raw, ",", "")
		}
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// isDateColumn reports whether at least one cell parses as a date
func isDateColumn(cells []string) bool {
	for _, cell := range cells {
		if _, ok := parseDate(cell); ok {
			return true
		}
	}
	return false
}

// isNumericColumn reports whether every non-empty cell is numeric and at
// least one is present
func isNumericColumn(cells []string) bool {
	seen := false
	for _, cell := range cells {
		if cell == "" {
			continue
		}
		if _, ok := parseNumeric(cell); !ok {
			return false
		}
		seen = true
	}
	return seen
}
