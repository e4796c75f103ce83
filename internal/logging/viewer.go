package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogEntry is one parsed JSON log line.
type LogEntry struct {
	Time    time.Time              `json:"time"`
	Level   string                 `json:"level"`
	Msg     string                 `json:"msg"`
	Source  string                 `json:"source"`
	Attrs   map[string]interface{} `json:"-"`
	Raw     string                 `json:"-"`
	IsValid bool                   `json:"-"`
}

// ViewerConfig filters and styles viewer output.
type ViewerConfig struct {
	Level      string         // minimum level, empty admits everything
	Pattern    *regexp.Regexp // regex over the raw line
	NoColor    bool
	ShowSource bool // prefix entries with [server] / [mcp]
}

// Viewer tails and follows the JSON log files written by RotatingWriter.
type Viewer struct {
	config ViewerConfig
	out    io.Writer
}

func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	return &Viewer{config: cfg, out: out}
}

// scanLines reads every line of a log file. Lines can be long (a search
// response echoed at debug level), so the scanner buffer is 1MB.
func scanLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	const maxLine = 1024 * 1024
	scanner.Buffer(make([]byte, maxLine), maxLine)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	return lines, nil
}

func lastN(lines []string, n int) []string {
	if len(lines) > n {
		return lines[len(lines)-n:]
	}
	return lines
}

// Tail returns the last n matching entries of one log file.
func (v *Viewer) Tail(path string, n int) ([]LogEntry, error) {
	lines, err := scanLines(path)
	if err != nil {
		return nil, err
	}

	var entries []LogEntry
	for _, line := range lastN(lines, n) {
		if entry := v.parseLine(line); v.matches(entry) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// TailMultiple merges the last n entries of several log files into one
// timeline ordered by timestamp. Unreadable files are skipped so a missing
// mcp.log does not hide server.log.
func (v *Viewer) TailMultiple(paths []string, n int) ([]LogEntry, error) {
	var merged []LogEntry
	for _, path := range paths {
		lines, err := scanLines(path)
		if err != nil {
			continue
		}
		source := sourceFromPath(path)
		for _, line := range lastN(lines, n) {
			if entry := v.parseLineWithSource(line, source); v.matches(entry) {
				merged = append(merged, entry)
			}
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Time.Before(merged[j].Time)
	})
	if len(merged) > n {
		merged = merged[len(merged)-n:]
	}
	return merged, nil
}

// Follow streams new entries of one file into the channel until ctx ends.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- LogEntry) error {
	return v.followFile(ctx, path, sourceFromPath(path), entries)
}

// FollowMultiple follows several files concurrently into one channel.
func (v *Viewer) FollowMultiple(ctx context.Context, paths []string, entries chan<- LogEntry) error {
	var wg sync.WaitGroup
	for _, path := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			_ = v.followFile(ctx, p, sourceFromPath(p), entries)
		}(path)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// followFile polls the file for appended lines. Polling survives rotation
// better than inotify on the same descriptor and is cheap at 100ms.
func (v *Viewer) followFile(ctx context.Context, path, source string, entries chan<- LogEntry) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek %s: %w", path, err)
	}

	reader := bufio.NewReader(file)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				line, err := reader.ReadString('\n')
				if err != nil {
					break
				}
				line = strings.TrimSuffix(line, "\n")
				if line == "" {
					continue
				}
				entry := v.parseLineWithSource(line, source)
				if !v.matches(entry) {
					continue
				}
				select {
				case entries <- entry:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// Print writes formatted entries to the viewer output.
func (v *Viewer) Print(entries []LogEntry) {
	for _, entry := range entries {
		_, _ = fmt.Fprintln(v.out, v.FormatEntry(entry))
	}
}

// FormatEntry renders one entry as "15:04:05.000 LEVEL [source] msg k=v".
// Unparseable lines pass through raw.
func (v *Viewer) FormatEntry(entry LogEntry) string {
	if !entry.IsValid {
		return entry.Raw
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(v.formatLevel(entry.Level))
	b.WriteByte(' ')
	if v.config.ShowSource && entry.Source != "" {
		b.WriteString(v.formatSource(entry.Source))
		b.WriteByte(' ')
	}
	b.WriteString(entry.Msg)
	for k, val := range entry.Attrs {
		if k == "source" {
			continue
		}
		fmt.Fprintf(&b, " %s=%v", k, val)
	}
	return b.String()
}

func sourceFromPath(path string) string {
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "mcp"):
		return "mcp"
	case strings.HasPrefix(base, "server"):
		return "server"
	}
	return "unknown"
}

func (v *Viewer) parseLine(line string) LogEntry {
	entry := LogEntry{Raw: line}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return entry
	}
	entry.IsValid = true

	if t, ok := data["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			entry.Time = parsed
		}
	}
	entry.Level, _ = data["level"].(string)
	entry.Msg, _ = data["msg"].(string)
	entry.Source, _ = data["source"].(string)

	entry.Attrs = make(map[string]interface{})
	for k, val := range data {
		switch k {
		case "time", "level", "msg", "source":
		default:
			entry.Attrs[k] = val
		}
	}
	return entry
}

func (v *Viewer) parseLineWithSource(line, fallback string) LogEntry {
	entry := v.parseLine(line)
	if entry.Source == "" {
		entry.Source = fallback
	}
	return entry
}

func (v *Viewer) matches(entry LogEntry) bool {
	if v.config.Level != "" && LevelFromString(entry.Level) < LevelFromString(v.config.Level) {
		return false
	}
	if v.config.Pattern != nil && !v.config.Pattern.MatchString(entry.Raw) {
		return false
	}
	return true
}

const ansiReset = "\033[0m"

func (v *Viewer) formatLevel(level string) string {
	label := strings.ToUpper(level)
	if len(label) > 5 {
		label = label[:5]
	}
	label = fmt.Sprintf("%-5s", label)
	if v.config.NoColor {
		return label
	}

	switch strings.ToLower(level) {
	case "debug":
		return "\033[90m" + label + ansiReset
	case "info":
		return "\033[32m" + label + ansiReset
	case "warn", "warning":
		return "\033[33m" + label + ansiReset
	case "error":
		return "\033[31m" + label + ansiReset
	}
	return label
}

func (v *Viewer) formatSource(source string) string {
	label := "[" + source + "]"
	if v.config.NoColor {
		return label
	}

	switch source {
	case "server":
		return "\033[36m" + label + ansiReset
	case "mcp":
		return "\033[35m" + label + ansiReset
	}
	return "\033[90m" + label + ansiReset
}
