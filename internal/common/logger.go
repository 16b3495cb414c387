package common

import (
	"sync"

	"github.com/ternarybob/arbor"
	arborcommon "github.com/ternarybob/arbor/common"
	"github.com/ternarybob/arbor/models"
)

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

// GetLogger returns the global logger instance. If InitLogger() hasn't been
// called yet, returns a fallback console logger.
func GetLogger() arbor.ILogger {
	loggerMutex.RLock()
	if globalLogger != nil {
		loggerMutex.RUnlock()
		return globalLogger
	}
	loggerMutex.RUnlock()

	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithConsoleWriter(createWriterConfig(nil))
		globalLogger.Warn().Msg("Using fallback logger - InitLogger() should be called during startup")
	}
	return globalLogger
}

// InitLogger stores the provided logger as the global singleton instance.
func InitLogger(logger arbor.ILogger) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	globalLogger = logger
}

// SetupLogger builds the process-wide logger. The tool server owns stdout
// for JSON-RPC framing, so only a console writer is attached —
// arbor's console writer targets stderr — at the configured level
// (default "warn" in MCP mode, see cmd/quaero-mcp/main.go).
func SetupLogger(config *Config) arbor.ILogger {
	logger := arbor.NewLogger().
		WithConsoleWriter(createWriterConfig(config)).
		WithLevelFromString(config.Logging.Level)

	InitLogger(logger)
	return logger
}

func createWriterConfig(config *Config) models.WriterConfiguration {
	timeFormat := "15:04:05.000"
	return models.WriterConfiguration{
		Type:             models.LogWriterTypeConsole,
		TimeFormat:       timeFormat,
		DisableTimestamp: false,
	}
}

// Stop flushes any remaining context logs before application shutdown.
// Safe to call multiple times (arbor's Stop is idempotent).
func Stop() {
	arborcommon.Stop()
}
