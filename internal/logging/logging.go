package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls where log output goes and how much of it there is.
type Config struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string
	// FilePath is the log file. Empty disables file logging.
	FilePath string
	// MaxSizeMB triggers rotation (default 10).
	MaxSizeMB int
	// MaxFiles is how many rotated files survive (default 5).
	MaxFiles int
	// WriteToStderr mirrors log lines to stderr for interactive runs.
	WriteToStderr bool
}

// DefaultConfig logs info and above to the vidfuse log file and stderr.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig is DefaultConfig at debug level, for the --debug flag.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup opens the rotating log file and returns a JSON slog logger plus a
// cleanup that flushes and closes the file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if err := EnsureLogDir(); err != nil {
		return nil, nil, err
	}

	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = writer
	if cfg.WriteToStderr {
		out = io.MultiWriter(writer, os.Stderr)
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: LevelFromString(cfg.Level),
	}))

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}
	return logger, cleanup, nil
}

// LevelFromString maps a config string to a slog.Level, defaulting to info.
func LevelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
