package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Categorical readings shared by every extractor
const (
	Unknown = "unknown"

	TrendUpward   = "upward"
	TrendDownward = "downward"
	TrendStable   = "stable"

	SeasonalityPresent     = "present"
	SeasonalityNotDetected = "not detected"
)

// FeatureSource identifies which extraction method produced a FeatureSet
type FeatureSource string

const (
	SourceVisual      FeatureSource = "visual"
	SourceDomain      FeatureSource = "domain"
	SourceStatistical FeatureSource = "statistical"
	SourceNarrative   FeatureSource = "narrative"
	SourceTimeSeries  FeatureSource = "timeseries"
	SourceMerged      FeatureSource = "merged"
)

// Anomaly is a value that fell outside the expected range of its series.
type Anomaly struct {
	Value       float64 `json:"value"`
	Date        string  `json:"date"`
	Description string  `json:"description,omitempty"`
}

// Extremum is a min or max reading. Reading keeps the collaborator's
// free-text form ("500 on 1 May 1999") when one was supplied.
type Extremum struct {
	Value   float64 `json:"value"`
	Date    string  `json:"date"`
	Reading string  `json:"reading,omitempty"`
	Known   bool    `json:"known"`
}

var leadingNumber = regexp.MustCompile(`[-+]?\d[\d,]*(?:\.\d+)?`)

// UnmarshalJSON accepts a number, a free-text reading or an object.
func (e *Extremum) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*e = Extremum{}
		return nil
	}

	switch trimmed[0] {
	case '{':
		var raw struct {
			Value interface{} `json:"value"`
			Date  string      `json:"date"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*e = Extremum{Date: raw.Date}
		switch v := raw.Value.(type) {
		case float64:
			e.Value, e.Known = v, true
		case string:
			e.Value, e.Known = ParseReading(v)
			e.Reading = v
		}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = Extremum{Reading: s}
		if !IsUnknown(s) {
			e.Value, e.Known = ParseReading(s)
		}
		return nil
	default:
		v, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return fmt.Errorf("invalid extremum %s: %w", trimmed, err)
		}
		*e = Extremum{Value: v, Known: true}
		return nil
	}
}

// ParseReading extracts the leading number from a free-text reading.
func ParseReading(s string) (float64, bool) {
	match := leadingNumber.FindString(s)
	if match == "" {
		return 0, false
	}
	cleaned := strings.ReplaceAll(match, ",", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// String renders the extremum for prompts and annotations
func (e *Extremum) String() string {
	if e == nil || !e.Known {
		if e != nil && e.Reading != "" {
			return e.Reading
		}
		return Unknown
	}
	value := strconv.FormatFloat(e.Value, 'f', -1, 64)
	if e.Date == "" || e.Date == Unknown {
		return value
	}
	if strings.HasPrefix(e.Date, "in ") || strings.HasPrefix(e.Date, "record ") {
		return value + " " + e.Date
	}
	return value + " on " + e.Date
}

// FeatureSet is a flat summary of a series or chart produced by one
// extraction method. FeatureSets are never edited after they are returned;
// Merge and Clone build new values.
type FeatureSet struct {
	Source               FeatureSource `json:"source,omitempty"`
	Metric               string        `json:"metric"`
	Domain               string        `json:"domain"`
	GraphType            string        `json:"graph_type,omitempty"`
	Trend                string        `json:"trend"`
	Seasonality          string        `json:"seasonality"`
	MinValue             *Extremum     `json:"min_value,omitempty"`
	MaxValue             *Extremum     `json:"max_value,omitempty"`
	Anomalies            []Anomaly     `json:"anomalies"`
	AnomaliesDescription string        `json:"anomalies_description,omitempty"`
	Hypotheses           string        `json:"hypotheses,omitempty"`
	Support              *float64      `json:"support,omitempty"`
	Resistance           *float64      `json:"resistance,omitempty"`
	Slope                *float64      `json:"slope,omitempty"`
	Autocorrelation      *float64      `json:"autocorrelation,omitempty"`

	// Mathematical and LLM hold the two sub-results of time-series analysis.
	Mathematical *FeatureSet `json:"mathematical,omitempty"`
	LLM          *FeatureSet `json:"llm,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// DefaultFeatureSet returns a FeatureSet with every reading set to unknown
func DefaultFeatureSet(source FeatureSource) FeatureSet {
	return FeatureSet{
		Source:      source,
		Metric:      Unknown,
		Domain:      Unknown,
		Trend:       Unknown,
		Seasonality: Unknown,
		Anomalies:   []Anomaly{},
	}
}

// HasError reports whether the FeatureSet carries an error marker
func (f *FeatureSet) HasError() bool {
	return f != nil && f.Error != ""
}

// Clone returns a deep copy
func (f *FeatureSet) Clone() *FeatureSet {
	if f == nil {
		return nil
	}
	c := *f
	c.Anomalies = append([]Anomaly(nil), f.Anomalies...)
	if c.Anomalies == nil {
		c.Anomalies = []Anomaly{}
	}
	c.MinValue = cloneExtremum(f.MinValue)
	c.MaxValue = cloneExtremum(f.MaxValue)
	c.Support = cloneFloat(f.Support)
	c.Resistance = cloneFloat(f.Resistance)
	c.Slope = cloneFloat(f.Slope)
	c.Autocorrelation = cloneFloat(f.Autocorrelation)
	c.Mathematical = f.Mathematical.Clone()
	c.LLM = f.LLM.Clone()
	return &c
}

// HasRequiredKeys reports whether the set carries the readings needed to
// write an annotation. Unknown values count as present.
func (f *FeatureSet) HasRequiredKeys() bool {
	if f == nil {
		return false
	}
	return f.Metric != "" && f.Domain != "" && f.Trend != "" && f.Seasonality != ""
}

// JSON renders the set for embedding in a prompt
func (f *FeatureSet) JSON() string {
	data, err := json.Marshal(f)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// IsUnknown reports whether a reading is empty or the unknown sentinel
func IsUnknown(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "" || s == Unknown || s == "n/a" || s == "none"
}

func cloneExtremum(e *Extremum) *Extremum {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
