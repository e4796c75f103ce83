package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir is ~/.vidfuse/logs, falling back to the temp dir when no home
// directory exists (containers, CI).
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".vidfuse", "logs")
	}
	return filepath.Join(home, ".vidfuse", "logs")
}

// DefaultLogPath is the HTTP server and CLI log file.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// MCPLogPath is the MCP server log file. MCP keeps stdout exclusively for
// JSON-RPC, so its diagnostics land in a separate file.
func MCPLogPath() string {
	return filepath.Join(DefaultLogDir(), "mcp.log")
}

// LogSource selects which log files the viewer reads.
type LogSource string

const (
	LogSourceServer LogSource = "server"
	LogSourceMCP    LogSource = "mcp"
	LogSourceAll    LogSource = "all"
)

// ParseLogSource maps a flag value to a LogSource, defaulting to server.
func ParseLogSource(s string) LogSource {
	switch s {
	case "mcp":
		return LogSourceMCP
	case "all":
		return LogSourceAll
	}
	return LogSourceServer
}

// candidates lists the log files a source could cover, in display order.
func (s LogSource) candidates() ([]string, error) {
	switch s {
	case LogSourceServer:
		return []string{DefaultLogPath()}, nil
	case LogSourceMCP:
		return []string{MCPLogPath()}, nil
	case LogSourceAll:
		return []string{DefaultLogPath(), MCPLogPath()}, nil
	}
	return nil, fmt.Errorf("unknown log source: %s (use: server, mcp, all)", s)
}

func (s LogSource) hint() string {
	switch s {
	case LogSourceMCP:
		return "To generate MCP server logs:\n  vidfuse mcp"
	case LogSourceAll:
		return "To generate logs:\n  Server: vidfuse --debug serve\n  MCP:    vidfuse mcp"
	}
	return "To generate server logs:\n  vidfuse --debug serve"
}

// FindLogFileBySource resolves the log files to view. An explicit path wins;
// otherwise every existing candidate for the source is returned.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, fmt.Errorf("log file not found: %s", explicit)
		}
		return []string{explicit}, nil
	}

	checked, err := source.candidates()
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, p := range checked {
		if _, err := os.Stat(p); err == nil {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no log files found for source '%s'.\nChecked: %v\n\n%s", source, checked, source.hint())
	}
	return paths, nil
}

// EnsureLogDir creates the log directory.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
