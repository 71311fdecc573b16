package main

import (
	"fmt"
	"strings"

	"github.com/ternarybob/dashnote/internal/models"
)

// formatState renders a finished run as markdown
func formatState(state models.AgentState) string {
	var b strings.Builder
	b.WriteString(state.Output())

	if state.Agent != "" {
		fmt.Fprintf(&b, "\n\n_Answered by the %s analysis._", state.Agent)
	}
	if len(state.Discrepancies) > 0 {
		b.WriteString("\n\n**Chart and data disagree:**\n")
		for _, d := range state.Discrepancies {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}
	return b.String()
}

// formatFeatures renders the statistical features and the column report
func formatFeatures(series *models.TimeSeries, f models.FeatureSet, report string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Features of %s\n\n", series.Name)
	fmt.Fprintf(&b, "Value column: %s (%d rows)\n\n", series.ValueColumn, series.Len())

	b.WriteString("| Feature | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Trend | %s |\n", f.Trend)
	fmt.Fprintf(&b, "| Seasonality | %s |\n", f.Seasonality)
	fmt.Fprintf(&b, "| Minimum | %s |\n", f.MinValue.String())
	fmt.Fprintf(&b, "| Maximum | %s |\n", f.MaxValue.String())
	if f.Support != nil && f.Resistance != nil {
		fmt.Fprintf(&b, "| Support | %g |\n| Resistance | %g |\n", *f.Support, *f.Resistance)
	}
	fmt.Fprintf(&b, "| Anomalies | %s |\n", f.AnomaliesDescription)

	if len(f.Anomalies) > 0 {
		b.WriteString("\n## Anomalies\n\n")
		for _, a := range f.Anomalies {
			fmt.Fprintf(&b, "- %g on %s\n", a.Value, a.Date)
		}
	}

	b.WriteString("\n```\n")
	b.WriteString(report)
	b.WriteString("```\n")
	return b.String()
}

