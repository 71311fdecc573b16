// Package stats computes the descriptive features of a numeric series:
// trend direction, lag-1 seasonality, Tukey outliers, support and
// resistance, and extrema. Everything here is deterministic and makes no
// external calls.
package stats

import (
	"fmt"
	"math"
	"sort"

	"github.com/ternarybob/dashnote/internal/models"
)

// Defaults used when Options fields are zero
const (
	DefaultSeasonalityThreshold = 0.3
	DefaultIQRMultiplier        = 1.5
)

// Options tunes the extractor
type Options struct {
	SeasonalityThreshold float64
	IQRMultiplier        float64
}

func (o Options) withDefaults() Options {
	if o.SeasonalityThreshold <= 0 {
		o.SeasonalityThreshold = DefaultSeasonalityThreshold
	}
	if o.IQRMultiplier <= 0 {
		o.IQRMultiplier = DefaultIQRMultiplier
	}
	return o
}

// Extract computes the statistical FeatureSet of a series. A series with no
// points returns models.ErrNoNumericData.
func Extract(ts *models.TimeSeries, opts Options) (models.FeatureSet, error) {
	if ts.Len() == 0 {
		return models.FeatureSet{}, models.ErrNoNumericData
	}
	opts = opts.withDefaults()
	values := ts.Values()

	fs := models.DefaultFeatureSet(models.SourceStatistical)
	fs.Metric = ts.ValueColumn
	if fs.Metric == "" {
		fs.Metric = models.Unknown
	}

	slope, trend := Trend(values)
	fs.Slope = models.Float(slope)
	fs.Trend = trend

	r, seasonality := Seasonality(values, opts.SeasonalityThreshold)
	fs.Autocorrelation = models.Float(r)
	fs.Seasonality = seasonality

	fs.MinValue, fs.MaxValue = Extrema(ts)
	fs.Anomalies = Anomalies(ts, opts.IQRMultiplier)
	fs.AnomaliesDescription = describeAnomalies(fs.Anomalies)

	support, resistance := SupportResistance(values)
	fs.Support = models.Float(support)
	fs.Resistance = models.Float(resistance)

	return fs, nil
}

// Trend returns the least-squares slope of value against row index and its
// direction. Any nonzero slope is directional.
func Trend(values []float64) (float64, string) {
	slope := Slope(values)
	switch {
	case slope > 0:
		return slope, models.TrendUpward
	case slope < 0:
		return slope, models.TrendDownward
	default:
		return 0, models.TrendStable
	}
}

// Slope is the OLS slope of values against 0..n-1
func Slope(values []float64) float64 {
	n := len(values)
	if n < 2 || isConstant(values) {
		return 0
	}

	meanX := float64(n-1) / 2
	meanY := mean(values)

	num, den := 0.0, 0.0
	for i, y := range values {
		dx := float64(i) - meanX
		num += dx * (y - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// Seasonality returns the lag-1 autocorrelation and whether its magnitude
// exceeds threshold. Series shorter than two points are never seasonal.
func Seasonality(values []float64, threshold float64) (float64, string) {
	if len(values) < 2 {
		return 0, models.SeasonalityNotDetected
	}
	r := Autocorrelation(values, 1)
	if math.Abs(r) > threshold {
		return r, models.SeasonalityPresent
	}
	return r, models.SeasonalityNotDetected
}

// Autocorrelation is the Pearson correlation of the series with itself
// shifted by lag.
func Autocorrelation(values []float64, lag int) float64 {
	if lag <= 0 || lag >= len(values) {
		return 0
	}
	return pearson(values[:len(values)-lag], values[lag:])
}

// Quantile returns the q-th quantile of sorted using linear interpolation
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// Fences holds the Tukey bounds of a series
type Fences struct {
	Q1    float64
	Q3    float64
	IQR   float64
	Lower float64
	Upper float64
}

// Outside reports whether v lies strictly beyond the fences
func (f Fences) Outside(v float64) bool {
	return v < f.Lower || v > f.Upper
}

// TukeyFences computes Q1/Q3 and the fences at multiplier·IQR
func TukeyFences(values []float64, multiplier float64) Fences {
	sorted := sortedCopy(values)
	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	iqr := q3 - q1
	return Fences{
		Q1:    q1,
		Q3:    q3,
		IQR:   iqr,
		Lower: q1 - multiplier*iqr,
		Upper: q3 + multiplier*iqr,
	}
}

// Anomalies returns the rows of ts whose value falls outside the Tukey
// fences, in row order.
func Anomalies(ts *models.TimeSeries, multiplier float64) []models.Anomaly {
	anomalies := []models.Anomaly{}
	if ts.Len() == 0 {
		return anomalies
	}
	if multiplier <= 0 {
		multiplier = DefaultIQRMultiplier
	}

	fences := TukeyFences(ts.Values(), multiplier)
	for i, p := range ts.Points {
		if !fences.Outside(p.Value) {
			continue
		}
		desc := fmt.Sprintf("above the upper bound %.2f", fences.Upper)
		if p.Value < fences.Lower {
			desc = fmt.Sprintf("below the lower bound %.2f", fences.Lower)
		}
		anomalies = append(anomalies, models.Anomaly{
			Value:       p.Value,
			Date:        ts.DateLabel(i),
			Description: desc,
		})
	}
	return anomalies
}

// SupportResistance returns Q1 and Q3 rounded to two decimals
func SupportResistance(values []float64) (float64, float64) {
	sorted := sortedCopy(values)
	return Round2(Quantile(sorted, 0.25)), Round2(Quantile(sorted, 0.75))
}

// Extrema returns the first minimum and first maximum of ts with their dates
func Extrema(ts *models.TimeSeries) (*models.Extremum, *models.Extremum) {
	if ts.Len() == 0 {
		return nil, nil
	}
	minIdx, maxIdx := 0, 0
	for i, p := range ts.Points {
		if p.Value < ts.Points[minIdx].Value {
			minIdx = i
		}
		if p.Value > ts.Points[maxIdx].Value {
			maxIdx = i
		}
	}
	return &models.Extremum{Value: ts.Points[minIdx].Value, Date: ts.DateLabel(minIdx), Known: true},
		&models.Extremum{Value: ts.Points[maxIdx].Value, Date: ts.DateLabel(maxIdx), Known: true}
}

// Round2 rounds to two decimal places
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func describeAnomalies(anomalies []models.Anomaly) string {
	switch len(anomalies) {
	case 0:
		return "no values outside the interquartile fences"
	case 1:
		return "1 value outside the interquartile fences"
	default:
		return fmt.Sprintf("%d values outside the interquartile fences", len(anomalies))
	}
}

func pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}
	mx, my := mean(x), mean(y)
	num, sx, sy := 0.0, 0.0, 0.0
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		num += dx * dy
		sx += dx * dx
		sy += dy * dy
	}
	den := math.Sqrt(sx * sy)
	if den == 0 {
		return 0
	}
	return num / den
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func isConstant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

func sortedCopy(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted
}
