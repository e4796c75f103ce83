package logging

import "log/slog"

// SetupMCPMode configures logging for the stdio MCP server: file only, debug
// level, nothing on stdout or stderr. The transport owns stdout for JSON-RPC,
// and clients treat stray stderr output as a broken connection.
func SetupMCPMode() (func(), error) {
	cfg := Config{
		Level:     "debug",
		FilePath:  MCPLogPath(),
		MaxSizeMB: 10,
		MaxFiles:  5,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	slog.Info("mcp logging initialized", slog.String("log_file", cfg.FilePath))
	return cleanup, nil
}
