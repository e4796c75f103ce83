package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelFromString("debug"))
	assert.Equal(t, slog.LevelInfo, LevelFromString("info"))
	assert.Equal(t, slog.LevelWarn, LevelFromString("warn"))
	assert.Equal(t, slog.LevelWarn, LevelFromString("warning"))
	assert.Equal(t, slog.LevelError, LevelFromString("ERROR"))
	assert.Equal(t, slog.LevelInfo, LevelFromString(""))
	assert.Equal(t, slog.LevelInfo, LevelFromString("nonsense"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, DefaultLogPath(), cfg.FilePath)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.True(t, cfg.WriteToStderr)

	debug := DebugConfig()
	assert.Equal(t, "debug", debug.Level)
	assert.Equal(t, cfg.FilePath, debug.FilePath)
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	cfg := Config{Level: "debug", FilePath: path, MaxSizeMB: 10, MaxFiles: 3}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)

	logger.Info("query fused", "modalities", 3)
	logger.Debug("anchor routing", "temperature", 0.07)
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"query fused"`)
	assert.Contains(t, string(data), `"modalities":3`)
	assert.Contains(t, string(data), `"msg":"anchor routing"`)
}

func TestSetup_LevelFiltersOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path, MaxSizeMB: 10, MaxFiles: 3})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestPaths(t *testing.T) {
	assert.True(t, strings.HasSuffix(DefaultLogPath(), filepath.Join("logs", "server.log")))
	assert.True(t, strings.HasSuffix(MCPLogPath(), filepath.Join("logs", "mcp.log")))
	assert.Equal(t, filepath.Dir(DefaultLogPath()), DefaultLogDir())
}

func TestParseLogSource(t *testing.T) {
	assert.Equal(t, LogSourceServer, ParseLogSource("server"))
	assert.Equal(t, LogSourceMCP, ParseLogSource("mcp"))
	assert.Equal(t, LogSourceAll, ParseLogSource("all"))
	assert.Equal(t, LogSourceServer, ParseLogSource(""))
	assert.Equal(t, LogSourceServer, ParseLogSource("bogus"))
}

func TestFindLogFileBySource_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.log")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	paths, err := FindLogFileBySource(LogSourceServer, path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, paths)
}

func TestFindLogFileBySource_ExplicitMissing(t *testing.T) {
	_, err := FindLogFileBySource(LogSourceServer, filepath.Join(t.TempDir(), "nope.log"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log file not found")
}

func TestFindLogFileBySource_UnknownSource(t *testing.T) {
	_, err := FindLogFileBySource(LogSource("bogus"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log source")
}

func writeLogLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func logLine(ts, level, msg string) string {
	return fmt.Sprintf(`{"time":"%s","level":"%s","msg":"%s"}`, ts, level, msg)
}

func TestViewer_ParseLine(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	entry := v.parseLine(`{"time":"2026-08-31T10:00:00.5Z","level":"INFO","msg":"search complete","elapsed_ms":12}`)
	require.True(t, entry.IsValid)
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "search complete", entry.Msg)
	assert.Equal(t, 2026, entry.Time.Year())
	assert.Equal(t, float64(12), entry.Attrs["elapsed_ms"])

	invalid := v.parseLine("panic: not json at all")
	assert.False(t, invalid.IsValid)
	assert.Equal(t, "panic: not json at all", invalid.Raw)
}

func TestViewer_ParseLineWithSource(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	// Fallback applies only when the line carries no source of its own.
	entry := v.parseLineWithSource(logLine("2026-08-31T10:00:00Z", "INFO", "hi"), "mcp")
	assert.Equal(t, "mcp", entry.Source)

	tagged := v.parseLineWithSource(`{"time":"2026-08-31T10:00:00Z","level":"INFO","msg":"hi","source":"server"}`, "mcp")
	assert.Equal(t, "server", tagged.Source)
}

func TestViewer_Matches(t *testing.T) {
	errOnly := NewViewer(ViewerConfig{Level: "error"}, &bytes.Buffer{})
	assert.False(t, errOnly.matches(LogEntry{Level: "INFO", IsValid: true}))
	assert.True(t, errOnly.matches(LogEntry{Level: "ERROR", IsValid: true}))

	pattern := NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`fusion`)}, &bytes.Buffer{})
	assert.True(t, pattern.matches(LogEntry{Raw: `{"msg":"fusion done"}`}))
	assert.False(t, pattern.matches(LogEntry{Raw: `{"msg":"index built"}`}))
}

func TestViewer_FormatEntry(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})

	entry := LogEntry{
		Time:    time.Date(2026, 8, 31, 14, 30, 5, 120_000_000, time.UTC),
		Level:   "INFO",
		Msg:     "query fused",
		Attrs:   map[string]interface{}{"hits": float64(7)},
		IsValid: true,
	}
	out := v.FormatEntry(entry)
	assert.Contains(t, out, "14:30:05.120")
	assert.Contains(t, out, "INFO ")
	assert.Contains(t, out, "query fused")
	assert.Contains(t, out, "hits=7")

	// Invalid lines pass through untouched.
	raw := LogEntry{Raw: "not json"}
	assert.Equal(t, "not json", v.FormatEntry(raw))
}

func TestViewer_FormatEntry_SourceLabel(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true, ShowSource: true}, &bytes.Buffer{})
	entry := LogEntry{
		Time:    time.Now(),
		Level:   "INFO",
		Msg:     "hello",
		Source:  "mcp",
		IsValid: true,
	}
	assert.Contains(t, v.FormatEntry(entry), "[mcp]")
}

func TestViewer_FormatLevel(t *testing.T) {
	plain := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	assert.Equal(t, "INFO ", plain.formatLevel("info"))
	assert.Equal(t, "ERROR", plain.formatLevel("error"))
	assert.Equal(t, "WARNI", plain.formatLevel("warning"))

	colored := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	assert.Contains(t, colored.formatLevel("error"), "\033[31m")
}

func TestSourceFromPath(t *testing.T) {
	assert.Equal(t, "server", sourceFromPath("/var/log/server.log"))
	assert.Equal(t, "mcp", sourceFromPath("/var/log/mcp.log"))
	assert.Equal(t, "unknown", sourceFromPath("/var/log/other.log"))
}

func TestViewer_Tail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	writeLogLines(t, path,
		logLine("2026-08-31T10:00:01Z", "INFO", "one"),
		logLine("2026-08-31T10:00:02Z", "INFO", "two"),
		logLine("2026-08-31T10:00:03Z", "INFO", "three"),
	)

	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	entries, err := v.Tail(path, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "two", entries[0].Msg)
	assert.Equal(t, "three", entries[1].Msg)
}

func TestViewer_Tail_LevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	writeLogLines(t, path,
		logLine("2026-08-31T10:00:01Z", "DEBUG", "noise"),
		logLine("2026-08-31T10:00:02Z", "ERROR", "broken"),
	)

	v := NewViewer(ViewerConfig{Level: "error"}, &bytes.Buffer{})
	entries, err := v.Tail(path, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "broken", entries[0].Msg)
}

func TestViewer_Tail_MissingFile(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	_, err := v.Tail(filepath.Join(t.TempDir(), "absent.log"), 5)
	require.Error(t, err)
}

func TestViewer_TailMultiple_MergesChronologically(t *testing.T) {
	dir := t.TempDir()
	serverLog := filepath.Join(dir, "server.log")
	mcpLog := filepath.Join(dir, "mcp.log")
	writeLogLines(t, serverLog,
		logLine("2026-08-31T10:00:01Z", "INFO", "server first"),
		logLine("2026-08-31T10:00:03Z", "INFO", "server second"),
	)
	writeLogLines(t, mcpLog,
		logLine("2026-08-31T10:00:02Z", "INFO", "mcp between"),
	)

	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	entries, err := v.TailMultiple([]string{serverLog, mcpLog, filepath.Join(dir, "absent.log")}, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "server first", entries[0].Msg)
	assert.Equal(t, "mcp between", entries[1].Msg)
	assert.Equal(t, "server second", entries[2].Msg)
	assert.Equal(t, "mcp", entries[1].Source)
}

func TestViewer_Print(t *testing.T) {
	var buf bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &buf)
	v.Print([]LogEntry{
		{Time: time.Now(), Level: "INFO", Msg: "alpha", IsValid: true},
		{Time: time.Now(), Level: "WARN", Msg: "beta", IsValid: true},
	})

	out := buf.String()
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestViewer_Follow_StreamsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	writeLogLines(t, path, logLine("2026-08-31T10:00:00Z", "INFO", "old"))

	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()

	// Give the follower time to seek to the end before appending.
	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(logLine("2026-08-31T10:00:05Z", "INFO", "fresh") + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case entry := <-entries:
		assert.Equal(t, "fresh", entry.Msg)
	case <-ctx.Done():
		t.Fatal("no entry received before timeout")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestRotatingWriter_RotatesAtSizeLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	// MaxSizeMB 0 makes every write trigger rotation.
	w, err := NewRotatingWriter(path, 0, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	for i := 0; i < 3; i++ {
		_, err := w.Write([]byte(fmt.Sprintf("line %d\n", i)))
		require.NoError(t, err)
	}

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err, "rotated copy should exist")
}

func TestRotatingWriter_HonorsMaxFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(path, 0, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	for i := 0; i < 6; i++ {
		_, err := w.Write([]byte(fmt.Sprintf("line %d\n", i)))
		require.NoError(t, err)
	}

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 2)
	_, err = os.Stat(fmt.Sprintf("%s.%d", path, 3))
	assert.True(t, os.IsNotExist(err), "copies past maxFiles should be removed")
}

func TestRotatingWriter_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, []byte("existing\n"), 0o644))

	w, err := NewRotatingWriter(path, 10, 3)
	require.NoError(t, err)
	_, err = w.Write([]byte("appended\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "existing\nappended\n", string(data))
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(path, 10, 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = w.Write([]byte(fmt.Sprintf("writer %d line %d\n", n, j)))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 160, strings.Count(string(data), "\n"))
}
