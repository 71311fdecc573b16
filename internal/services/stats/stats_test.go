package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/dashnote/internal/models"
)

func seriesOf(values ...float64) *models.TimeSeries {
	ts := &models.TimeSeries{DateColumn: "Date", ValueColumn: "Close"}
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		ts.Points = append(ts.Points, models.Point{
			Date:    start.AddDate(0, 0, i),
			HasDate: true,
			Value:   v,
		})
	}
	return ts
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   string
	}{
		{"strictly increasing", []float64{1, 2, 3, 4, 5}, models.TrendUpward},
		{"strictly decreasing", []float64{9, 7, 4, 2, -1}, models.TrendDownward},
		{"constant", []float64{3.3, 3.3, 3.3, 3.3}, models.TrendStable},
		{"constant fractional", []float64{0.1, 0.1, 0.1}, models.TrendStable},
		{"single point", []float64{42}, models.TrendStable},
		{"empty", nil, models.TrendStable},
		// No magnitude threshold: a tiny rise still flips the direction
		{"tiny rise", []float64{100, 100, 100, 100.0001}, models.TrendUpward},
		{"tiny fall", []float64{100, 100, 100, 99.9999}, models.TrendDownward},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := Trend(tt.values)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlope(t *testing.T) {
	assert.InDelta(t, 2.0, Slope([]float64{1, 3, 5, 7}), 1e-12)
	assert.InDelta(t, -0.5, Slope([]float64{2, 1.5, 1, 0.5}), 1e-12)
}

func TestSeasonality(t *testing.T) {
	t.Run("short series is not detected", func(t *testing.T) {
		for _, values := range [][]float64{nil, {5}} {
			r, got := Seasonality(values, DefaultSeasonalityThreshold)
			assert.Equal(t, models.SeasonalityNotDetected, got)
			assert.Zero(t, r)
		}
	})

	t.Run("two points has zero variance on each side", func(t *testing.T) {
		_, got := Seasonality([]float64{1, 2}, DefaultSeasonalityThreshold)
		assert.Equal(t, models.SeasonalityNotDetected, got)
	})

	t.Run("alternating series is strongly autocorrelated", func(t *testing.T) {
		r, got := Seasonality([]float64{1, 10, 1, 10, 1, 10, 1, 10}, DefaultSeasonalityThreshold)
		assert.Equal(t, models.SeasonalityPresent, got)
		assert.Less(t, r, -0.3)
	})

	t.Run("smooth ramp is present", func(t *testing.T) {
		_, got := Seasonality([]float64{1, 2, 3, 4, 5, 6, 7, 8}, DefaultSeasonalityThreshold)
		assert.Equal(t, models.SeasonalityPresent, got)
	})

	t.Run("threshold is strict", func(t *testing.T) {
		values := []float64{1, 10, 1, 10, 1, 10}
		r := Autocorrelation(values, 1)
		_, got := Seasonality(values, -r)
		assert.Equal(t, models.SeasonalityNotDetected, got, "|r| equal to threshold is not seasonal")
	})
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 100}
	assert.Equal(t, 2.0, Quantile(sorted, 0.25))
	assert.Equal(t, 4.0, Quantile(sorted, 0.75))
	assert.Equal(t, 3.0, Quantile(sorted, 0.5))
	assert.InDelta(t, 1.75, Quantile([]float64{1, 2, 3, 4}, 0.25), 1e-12)
	assert.Zero(t, Quantile(nil, 0.5))
}

func TestAnomalies(t *testing.T) {
	t.Run("flags the outlier", func(t *testing.T) {
		ts := seriesOf(1, 2, 3, 4, 100)
		anomalies := Anomalies(ts, DefaultIQRMultiplier)
		require.Len(t, anomalies, 1)
		assert.Equal(t, 100.0, anomalies[0].Value)
		assert.Equal(t, "5 March 2024", anomalies[0].Date)
		assert.Contains(t, anomalies[0].Description, "above")
	})

	t.Run("flags nothing in a clean series", func(t *testing.T) {
		assert.Empty(t, Anomalies(seriesOf(1, 2, 3, 4, 5), DefaultIQRMultiplier))
	})

	t.Run("low outlier", func(t *testing.T) {
		anomalies := Anomalies(seriesOf(-100, 10, 11, 12, 13), DefaultIQRMultiplier)
		require.Len(t, anomalies, 1)
		assert.Contains(t, anomalies[0].Description, "below")
	})

	t.Run("ordinal label when no dates", func(t *testing.T) {
		ts := &models.TimeSeries{Points: []models.Point{
			{Label: "record 0", Value: 1}, {Label: "record 1", Value: 2}, {Label: "record 2", Value: 3},
			{Label: "record 3", Value: 4}, {Label: "record 4", Value: 100},
		}}
		anomalies := Anomalies(ts, DefaultIQRMultiplier)
		require.Len(t, anomalies, 1)
		assert.Equal(t, "record 4", anomalies[0].Date)
	})
}

func TestSupportResistance(t *testing.T) {
	support, resistance := SupportResistance([]float64{10.123, 11.456, 12.789, 13.012})
	assert.Equal(t, 11.12, support)
	assert.Equal(t, 12.84, resistance)
}

func TestExtract(t *testing.T) {
	t.Run("no numeric data", func(t *testing.T) {
		_, err := Extract(&models.TimeSeries{}, Options{})
		assert.ErrorIs(t, err, models.ErrNoNumericData)
	})

	t.Run("full feature set", func(t *testing.T) {
		fs, err := Extract(seriesOf(1, 2, 3, 4, 100), Options{})
		require.NoError(t, err)

		assert.Equal(t, models.SourceStatistical, fs.Source)
		assert.Equal(t, "Close", fs.Metric)
		assert.Equal(t, models.TrendUpward, fs.Trend)
		require.NotNil(t, fs.MinValue)
		require.NotNil(t, fs.MaxValue)
		assert.Equal(t, 1.0, fs.MinValue.Value)
		assert.Equal(t, "in 2024", models.HumanDate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
		assert.Equal(t, "1 March 2024", fs.MinValue.Date)
		assert.Equal(t, 100.0, fs.MaxValue.Value)
		assert.Len(t, fs.Anomalies, 1)
		assert.Equal(t, 2.0, *fs.Support)
		assert.Equal(t, 4.0, *fs.Resistance)
	})
}

func TestReport(t *testing.T) {
	report := Report([]Column{{Name: "Close", Values: []float64{1, 2, 3, 4, 100}}}, 0)
	assert.Contains(t, report, "Column 'Close'")
	assert.Contains(t, report, "Bounds: [-1.00, 7.00]")
	assert.Contains(t, report, "Anomalies found: 1")

	assert.Contains(t, Report(nil, 0), "no numeric columns")
}

func TestDescribe(t *testing.T) {
	s := Describe([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 8, s.Count)
	assert.Equal(t, 5.0, s.Mean)
	assert.InDelta(t, 2.138, s.Std, 1e-3)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
}
