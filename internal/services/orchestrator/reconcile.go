package orchestrator

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/dashnote/internal/models"
)

// Finding compares one reading taken from the chart with the same reading
// computed from the data. Neither side is preferred.
type Finding struct {
	Field    string // trend, minimum or maximum
	Visual   string
	Computed string
	Agree    bool
}

// Note is the sentence the annotation carries for the finding
func (f Finding) Note() string {
	if f.Field == "trend" {
		if f.Agree {
			return fmt.Sprintf("The chart and the data agree that the trend is %s.", f.Computed)
		}
		return fmt.Sprintf("The chart suggests the trend is %s, while the data computes it as %s.", f.Visual, f.Computed)
	}
	if f.Agree {
		return fmt.Sprintf("The chart and the data agree on a %s of %s.", f.Field, f.Computed)
	}
	return fmt.Sprintf("The chart reads the %s as %s, while the data gives %s.", f.Field, f.Visual, f.Computed)
}

// Reconcile compares the visual reading with the series reading. Only
// readings present on both sides produce a finding.
func Reconcile(visual, series *models.FeatureSet) []Finding {
	if visual == nil || series == nil || visual.HasError() {
		return nil
	}

	var findings []Finding
	if !models.IsUnknown(visual.Trend) && !models.IsUnknown(series.Trend) {
		findings = append(findings, Finding{
			Field:    "trend",
			Visual:   visual.Trend,
			Computed: series.Trend,
			Agree:    strings.EqualFold(visual.Trend, series.Trend),
		})
	}
	if f, ok := compareExtremum("minimum", visual.MinValue, series.MinValue); ok {
		findings = append(findings, f)
	}
	if f, ok := compareExtremum("maximum", visual.MaxValue, series.MaxValue); ok {
		findings = append(findings, f)
	}
	return findings
}

func compareExtremum(field string, visual, computed *models.Extremum) (Finding, bool) {
	if visual == nil || computed == nil || !visual.Known || !computed.Known {
		return Finding{}, false
	}
	return Finding{
		Field:    field,
		Visual:   visual.String(),
		Computed: computed.String(),
		Agree:    sameValue(visual.Value, computed.Value),
	}, true
}

// Disagreements returns the notes of the findings that disagree
func Disagreements(findings []Finding) []string {
	var out []string
	for _, f := range findings {
		if !f.Agree {
			out = append(out, f.Note())
		}
	}
	return out
}

// Notes returns the note of every finding
func Notes(findings []Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Note())
	}
	return out
}

// EnsureReadings appends the note of every disagreement whose two readings
// the text does not already state.
func EnsureReadings(text string, findings []Finding) string {
	lower := strings.ToLower(text)
	var missing []string
	for _, f := range findings {
		if f.Agree {
			continue
		}
		visual, computed := f.Visual, f.Computed
		if f.Field != "trend" {
			visual, computed = leadingValue(visual), leadingValue(computed)
		}
		if !mentions(lower, strings.ToLower(visual)) || !mentions(lower, strings.ToLower(computed)) {
			missing = append(missing, f.Note())
		}
	}
	if len(missing) == 0 {
		return text
	}
	return strings.TrimSpace(text) + " " + strings.Join(missing, " ")
}

// mentions reports whether text states reading as a whole token. "500"
// is not stated by "1500", "1,500" or "500.5".
func mentions(text, reading string) bool {
	if reading == "" {
		return false
	}
	quoted := regexp.QuoteMeta(reading)
	var pattern string
	if _, err := strconv.ParseFloat(reading, 64); err == nil {
		pattern = `(?:^|[^\d.,])` + quoted + `(?:$|[^\d.,]|[.,](?:$|[^\d]))`
	} else {
		pattern = `\b` + quoted + `\b`
	}
	return regexp.MustCompile(pattern).MatchString(text)
}

// MergeSeriesFeatures builds the time-series FeatureSet from the
// mathematical result and the optional narrative one. Numbers come from the
// mathematical side; the narrative side supplies descriptive text.
func MergeSeriesFeatures(mathematical, narrative *models.FeatureSet) *models.FeatureSet {
	merged := mathematical.Clone()
	merged.Source = models.SourceTimeSeries
	merged.Mathematical = mathematical.Clone()

	if narrative == nil {
		return merged
	}
	merged.LLM = narrative.Clone()
	if narrative.HasError() {
		return merged
	}

	if !models.IsUnknown(narrative.Hypotheses) {
		merged.Hypotheses = narrative.Hypotheses
	}
	if strings.TrimSpace(narrative.AnomaliesDescription) != "" {
		merged.AnomaliesDescription = narrative.AnomaliesDescription
	}
	if merged.GraphType == "" {
		merged.GraphType = narrative.GraphType
	}
	for i, a := range merged.Anomalies {
		for _, n := range narrative.Anomalies {
			if sameValue(a.Value, n.Value) && n.Description != "" {
				merged.Anomalies[i].Description = n.Description
				break
			}
		}
	}
	return merged
}

// ExtremaDrift reports where the narrative reading moved away from the
// computed extrema it was given as a hint.
func ExtremaDrift(mathematical, narrative *models.FeatureSet) []Finding {
	if mathematical == nil || narrative == nil || narrative.HasError() {
		return nil
	}
	var out []Finding
	if f, ok := compareExtremum("minimum", narrative.MinValue, mathematical.MinValue); ok && !f.Agree {
		out = append(out, f)
	}
	if f, ok := compareExtremum("maximum", narrative.MaxValue, mathematical.MaxValue); ok && !f.Agree {
		out = append(out, f)
	}
	return out
}

func sameValue(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// leadingValue keeps the number of an extremum reading ("500 in 1999")
func leadingValue(reading string) string {
	if v, ok := models.ParseReading(reading); ok {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return reading
}
