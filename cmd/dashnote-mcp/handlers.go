package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/common"
	"github.com/ternarybob/dashnote/internal/models"
	"github.com/ternarybob/dashnote/internal/services/loader"
	"github.com/ternarybob/dashnote/internal/services/stats"
)

// annotator is the graph surface the tools call
type annotator interface {
	Annotate(ctx context.Context, imagePath, dataPath string) (models.AgentState, error)
	Ask(ctx context.Context, imagePath, dataPath, query string, history []models.ChatMessage) (models.AgentState, error)
}

// featureExtractor loads a data file and returns its features and report
type featureExtractor func(path string) (*models.TimeSeries, models.FeatureSet, string, error)

func newFeatureExtractor(config *common.Config, logger arbor.ILogger) featureExtractor {
	ld := loader.New(logger, loader.Policy(config.Analysis.ColumnPolicy))
	opts := stats.Options{
		SeasonalityThreshold: config.Analysis.SeasonalityThreshold,
		IQRMultiplier:        config.Analysis.IQRMultiplier,
	}

	return func(path string) (*models.TimeSeries, models.FeatureSet, string, error) {
		table, err := ld.ReadTable(path)
		if err != nil {
			return nil, models.FeatureSet{}, "", err
		}
		series, err := ld.Resolve(table)
		if err != nil {
			return nil, models.FeatureSet{}, "", err
		}
		features, err := stats.Extract(series, opts)
		if err != nil {
			return nil, models.FeatureSet{}, "", err
		}
		return series, features, stats.Report(table.NumericColumns(), opts.IQRMultiplier), nil
	}
}

// handleAnnotateDashboard implements the annotate_dashboard tool
func handleAnnotateDashboard(a annotator, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		imagePath := request.GetString("image_path", "")
		dataPath := request.GetString("data_path", "")

		state, err := a.Annotate(ctx, imagePath, dataPath)
		if err != nil {
			logger.Error().Err(err).Msg("Annotation failed")
			return errorResult("The annotation did not finish: %v", err), nil
		}
		return stateResult(state), nil
	}
}

// handleAskDashboard implements the ask_dashboard tool
func handleAskDashboard(a annotator, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := request.RequireString("question")
		if err != nil || question == "" {
			return errorResult("Error: question parameter is required"), nil
		}

		state, err := a.Ask(ctx, request.GetString("image_path", ""), request.GetString("data_path", ""), question, nil)
		if err != nil {
			logger.Error().Err(err).Msg("Question failed")
			return errorResult("The answer did not finish: %v", err), nil
		}
		return stateResult(state), nil
	}
}

// handleExtractFeatures implements the extract_features tool
func handleExtractFeatures(extract featureExtractor, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("data_path")
		if err != nil || path == "" {
			return errorResult("Error: data_path parameter is required"), nil
		}

		series, features, report, err := extract(path)
		if err != nil {
			if ie, ok := models.AsInputError(err); ok {
				return errorResult("%s", ie.Reason), nil
			}
			logger.Error().Err(err).Str("path", path).Msg("Feature extraction failed")
			return errorResult("Feature extraction failed: %v", err), nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(formatFeatures(series, features, report)),
			},
		}, nil
	}
}

func stateResult(state models.AgentState) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(formatState(state)),
		},
		IsError: state.Outcome == models.OutcomeInputError,
	}
}

func errorResult(format string, args ...interface{}) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf(format, args...)),
		},
		IsError: true,
	}
}
