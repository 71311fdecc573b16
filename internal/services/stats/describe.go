package stats

import (
	"fmt"
	"math"
	"strings"
)

// Summary is the count/mean/std/quartile description of a column
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// Describe summarises values. Std is the sample standard deviation.
func Describe(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	sorted := sortedCopy(values)
	m := mean(values)

	std := 0.0
	if len(values) > 1 {
		ss := 0.0
		for _, v := range values {
			ss += (v - m) * (v - m)
		}
		std = math.Sqrt(ss / float64(len(values)-1))
	}

	return Summary{
		Count:  len(values),
		Mean:   m,
		Std:    std,
		Min:    sorted[0],
		Q1:     Quantile(sorted, 0.25),
		Median: Quantile(sorted, 0.5),
		Q3:     Quantile(sorted, 0.75),
		Max:    sorted[len(sorted)-1],
	}
}

// Column is a named numeric column
type Column struct {
	Name   string
	Values []float64
}

// Report renders the basic statistics and the IQR bounds of every column
func Report(columns []Column, multiplier float64) string {
	if multiplier <= 0 {
		multiplier = DefaultIQRMultiplier
	}

	var b strings.Builder
	b.WriteString("=== SUMMARY STATISTICS ===\n")
	for _, col := range columns {
		s := Describe(col.Values)
		fmt.Fprintf(&b, "%s: count=%d mean=%.2f std=%.2f min=%.2f q1=%.2f median=%.2f q3=%.2f max=%.2f\n",
			col.Name, s.Count, s.Mean, s.Std, s.Min, s.Q1, s.Median, s.Q3, s.Max)
	}

	if len(columns) == 0 {
		b.WriteString("no numeric columns\n")
		return b.String()
	}

	b.WriteString("\n=== POTENTIAL ANOMALIES ===\n")
	for _, col := range columns {
		fences := TukeyFences(col.Values, multiplier)
		count := 0
		for _, v := range col.Values {
			if fences.Outside(v) {
				count++
			}
		}
		fmt.Fprintf(&b, "\nColumn '%s':\n", col.Name)
		fmt.Fprintf(&b, "Bounds: [%.2f, %.2f]\n", fences.Lower, fences.Upper)
		fmt.Fprintf(&b, "Anomalies found: %d\n", count)
	}
	return b.String()
}
