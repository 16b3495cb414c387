package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/veritas/internal/app"
	"github.com/ternarybob/veritas/internal/common"
)

func main() {
	configPath := os.Getenv("QUAERO_CONFIG")
	if configPath == "" {
		configPath = "quaero.toml"
		if _, err := os.Stat(configPath); err != nil {
			configPath = ""
		}
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout is reserved for JSON-RPC framing; the console writer must only
	// ever reach stderr, and at a level quiet enough not to interleave with it.
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString(config.Logging.Level)

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}
	defer application.Close()

	mcpServer := server.NewMCPServer(
		"quaero",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createIngestDocumentTool(), handleIngestDocument(application, logger))
	mcpServer.AddTool(createFindOverlapsTool(), handleFindOverlaps(application, logger))
	mcpServer.AddTool(createConsolidateDocumentsTool(), handleConsolidateDocuments(application, logger))
	mcpServer.AddTool(createGetSourceOfTruthTool(), handleGetSourceOfTruth(application, logger))
	mcpServer.AddTool(createDeprecateDocumentTool(), handleDeprecateDocument(application, logger))

	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
