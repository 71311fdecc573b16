package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createAnnotateDashboardTool returns the annotate_dashboard tool definition
func createAnnotateDashboardTool() mcp.Tool {
	return mcp.NewTool("annotate_dashboard",
		mcp.WithDescription("Write a one-paragraph annotation of a dashboard chart and/or its underlying data"),
		mcp.WithString("image_path",
			mcp.Description("Path to the chart image (png, jpg, jpeg, gif)"),
		),
		mcp.WithString("data_path",
			mcp.Description("Path to the data file with a date and a value column (csv, txt, xlsx)"),
		),
	)
}

// createAskDashboardTool returns the ask_dashboard tool definition
func createAskDashboardTool() mcp.Tool {
	return mcp.NewTool("ask_dashboard",
		mcp.WithDescription("Answer a question about a dashboard chart and/or its data. Trend, seasonality, anomaly and extremum questions go to the time-series analysis."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithString("image_path",
			mcp.Description("Path to the chart image"),
		),
		mcp.WithString("data_path",
			mcp.Description("Path to the data file"),
		),
	)
}

// createExtractFeaturesTool returns the extract_features tool definition
func createExtractFeaturesTool() mcp.Tool {
	return mcp.NewTool("extract_features",
		mcp.WithDescription("Compute statistical features of a data file (trend, seasonality, extrema, interquartile anomalies) without calling any model"),
		mcp.WithString("data_path",
			mcp.Required(),
			mcp.Description("Path to the data file (csv, txt, xlsx)"),
		),
	)
}
