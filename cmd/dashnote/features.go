package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ternarybob/dashnote/internal/models"
	"github.com/ternarybob/dashnote/internal/services/loader"
	"github.com/ternarybob/dashnote/internal/services/stats"
)

func featuresCmd() *cobra.Command {
	var (
		dataPath string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "features",
		Short: "Compute the statistical features of a data file",
		Long: `Compute the statistical features of a data file without calling any
analysis service: trend, seasonality, extrema with dates, interquartile
anomalies, support and resistance, followed by summary statistics of every
numeric column.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, logger, err := loadConfig(true)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			ld := loader.New(logger, loader.Policy(config.Analysis.ColumnPolicy))
			table, err := ld.ReadTable(dataPath)
			if err != nil {
				return err
			}
			series, err := ld.Resolve(table)
			if err != nil {
				return err
			}

			opts := stats.Options{
				SeasonalityThreshold: config.Analysis.SeasonalityThreshold,
				IQRMultiplier:        config.Analysis.IQRMultiplier,
			}
			features, err := stats.Extract(series, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(features)
			}

			if err := printFeatures(out, series, features); err != nil {
				return fmt.Errorf("error writing features table: %w", err)
			}
			fmt.Fprintln(out)
			fmt.Fprint(out, stats.Report(table.NumericColumns(), config.Analysis.IQRMultiplier))
			return nil
		},
	}

	cmd.Flags().StringVarP(&dataPath, "data", "d", "", "Data file (csv, txt, xlsx)")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	cmd.MarkFlagRequired("data")
	return cmd
}

func printFeatures(w io.Writer, series *models.TimeSeries, f models.FeatureSet) error {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(w, "%s %s (%d rows, value column %q)\n\n", bold("Features of"), series.Name, series.Len(), series.ValueColumn)

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Feature", "Value"})

	rows := [][]string{
		{"Trend", colorTrend(f.Trend)},
		{"Seasonality", f.Seasonality},
		{"Minimum", extremum(f.MinValue)},
		{"Maximum", extremum(f.MaxValue)},
		{"Support", optional(f.Support)},
		{"Resistance", optional(f.Resistance)},
		{"Slope", optional(f.Slope)},
		{"Lag-1 autocorrelation", optional(f.Autocorrelation)},
		{"Anomalies", f.AnomaliesDescription},
	}
	for _, a := range f.Anomalies {
		rows = append(rows, []string{"", color.New(color.FgRed).Sprintf("%s on %s", formatNumber(a.Value), a.Date)})
	}

	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func colorTrend(trend string) string {
	switch trend {
	case models.TrendUpward:
		return color.New(color.FgGreen).Sprint(trend)
	case models.TrendDownward:
		return color.New(color.FgRed).Sprint(trend)
	default:
		return trend
	}
}

func extremum(e *models.Extremum) string {
	if e == nil || !e.Known {
		return models.Unknown
	}
	return e.String()
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatNumber(*v)
}

func formatNumber(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}
