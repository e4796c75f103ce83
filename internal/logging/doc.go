// Package logging wires slog to rotating JSON log files under
// ~/.vidfuse/logs and backs the vidfuse-logs viewer command.
//
// The HTTP server logs to server.log and mirrors to stderr; the MCP server
// logs to mcp.log only, since its stdout carries JSON-RPC.
package logging
