package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/dashnote/internal/app"
	"github.com/ternarybob/dashnote/internal/common"
)

func main() {
	var paths []string
	if configPath := os.Getenv("DASHNOTE_CONFIG"); configPath != "" {
		paths = append(paths, configPath)
	} else if _, err := os.Stat("dashnote.toml"); err == nil {
		paths = append(paths, "dashnote.toml")
	}

	config, err := common.LoadFromFiles(paths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Console only at warn level so stdio stays clean for the protocol
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	pipeline, err := app.NewPipeline(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize annotation pipeline")
	}
	defer pipeline.Close()

	mcpServer := server.NewMCPServer(
		"dashnote",
		common.Version,
		server.WithToolCapabilities(true),
	)

	features := newFeatureExtractor(config, logger)
	mcpServer.AddTool(createAnnotateDashboardTool(), handleAnnotateDashboard(pipeline.Orchestrator, logger))
	mcpServer.AddTool(createAskDashboardTool(), handleAskDashboard(pipeline.Orchestrator, logger))
	mcpServer.AddTool(createExtractFeaturesTool(), handleExtractFeatures(features, logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
