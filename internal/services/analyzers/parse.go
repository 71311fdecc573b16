package analyzers

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/dashnote/internal/models"
)

// ErrNoStructuredBlock is returned when a response holds no JSON object
var ErrNoStructuredBlock = errors.New("no structured block in response")

// jsonFencePattern matches a ```json fenced block anywhere in the text
var jsonFencePattern = regexp.MustCompile("(?s)```(?:json|JSON)\\s*\\n?(.*?)\\n?\\s*```")

// anyFencePattern matches an untagged fenced block
var anyFencePattern = regexp.MustCompile("(?s)```\\s*\\n?(.*?)\\n?\\s*```")

// rawFeatures is the loose shape collaborators return. Fields accept the
// aliases and value types seen in practice.
type rawFeatures struct {
	Metric               string            `json:"metric"`
	MainMetric           string            `json:"main_metric"`
	Domain               string            `json:"domain"`
	GraphType            string            `json:"graph_type"`
	Trend                flexString        `json:"trend"`
	Seasonality          flexString        `json:"seasonality"`
	MinValue             *models.Extremum  `json:"min_value"`
	MaxValue             *models.Extremum  `json:"max_value"`
	Anomalies            []json.RawMessage `json:"anomalies"`
	AnomaliesDescription flexString        `json:"anomalies_description"`
	Hypotheses           flexString        `json:"hypotheses"`
}

// flexString accepts a string, a list of strings or a number
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = flexString(strings.Join(list, " "))
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*s = flexString(strconv.FormatFloat(num, 'f', -1, 64))
		return nil
	}
	*s = ""
	return nil
}

// ExtractStructuredBlock returns the JSON object text inside raw: a ```json
// fence first, then any fence, then the outermost braces.
func ExtractStructuredBlock(raw string) (string, bool) {
	if m := jsonFencePattern.FindStringSubmatch(raw); len(m) > 1 {
		return strings.TrimSpace(m[1]), true
	}
	if m := anyFencePattern.FindStringSubmatch(raw); len(m) > 1 && strings.HasPrefix(strings.TrimSpace(m[1]), "{") {
		return strings.TrimSpace(m[1]), true
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], true
	}
	return "", false
}

// ParseStructuredResponse parses a collaborator response into a FeatureSet.
// It never fails without a result: on error the returned set holds the
// defaults for every field that could not be read, and the error is a
// parse CollaboratorError.
func ParseStructuredResponse(raw string) (models.FeatureSet, error) {
	fs := models.DefaultFeatureSet("")

	block, ok := ExtractStructuredBlock(raw)
	if !ok {
		return fs, &models.CollaboratorError{Kind: models.CollaboratorParse, Err: ErrNoStructuredBlock}
	}

	var r rawFeatures
	if err := json.Unmarshal([]byte(block), &r); err != nil {
		return fs, &models.CollaboratorError{Kind: models.CollaboratorParse, Err: fmt.Errorf("invalid structured block: %w", err)}
	}

	fs.Metric = firstKnown(r.Metric, r.MainMetric)
	fs.Domain = firstKnown(r.Domain)
	fs.GraphType = strings.TrimSpace(r.GraphType)
	fs.Trend = firstKnown(string(r.Trend))
	fs.Seasonality = firstKnown(string(r.Seasonality))
	fs.MinValue = r.MinValue
	fs.MaxValue = r.MaxValue
	fs.AnomaliesDescription = strings.TrimSpace(string(r.AnomaliesDescription))
	fs.Hypotheses = strings.TrimSpace(string(r.Hypotheses))

	for _, item := range r.Anomalies {
		if a, ok := parseAnomaly(item); ok {
			fs.Anomalies = append(fs.Anomalies, a)
		}
	}

	return fs, nil
}

// parseAnomaly reads an anomaly object, tolerating string values. Entries
// without a readable value are dropped.
func parseAnomaly(data json.RawMessage) (models.Anomaly, bool) {
	var obj struct {
		Value       interface{} `json:"value"`
		Date        string      `json:"date"`
		Description string      `json:"description"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return models.Anomaly{}, false
	}

	a := models.Anomaly{Date: obj.Date, Description: strings.TrimSpace(obj.Description)}
	if a.Date == "" {
		a.Date = models.Unknown
	}
	switch v := obj.Value.(type) {
	case float64:
		a.Value = v
	case string:
		parsed, ok := models.ParseReading(v)
		if !ok {
			return models.Anomaly{}, false
		}
		a.Value = parsed
	default:
		return models.Anomaly{}, false
	}
	return a, true
}

// firstKnown returns the first value that is not empty or unknown
func firstKnown(values ...string) string {
	for _, v := range values {
		if !models.IsUnknown(v) {
			return strings.TrimSpace(v)
		}
	}
	return models.Unknown
}

// NormalizeTrend maps a free-text trend reading onto upward, downward,
// stable or unknown
func NormalizeTrend(s string) string {
	t := strings.ToLower(strings.TrimSpace(s))
	switch {
	case models.IsUnknown(t):
		return models.Unknown
	case t == models.TrendUpward || t == models.TrendDownward || t == models.TrendStable:
		return t
	case containsAny(t, "upward", "increas", "rising", "rise", "grow", "bullish", "up"):
		return models.TrendUpward
	case containsAny(t, "downward", "decreas", "declin", "falling", "fall", "bearish", "down"):
		return models.TrendDownward
	case containsAny(t, "stable", "flat", "sideways", "steady", "unchanged"):
		return models.TrendStable
	}
	return models.Unknown
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
