package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kingrea/agent-collab/internal/workflow"
)

// Logger appends structured lines to <workdir>/logs/agent-collab.log so the
// TUI can log without drawing over the screen.
type Logger struct {
	file *os.File
	zl   zerolog.Logger
}

// New creates (or reuses) the log file inside logsDir.
func New(logsDir string, level zerolog.Level) (*Logger, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logsDir, workflow.FileDebugLog)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{file: f, zl: newLogger(f, level)}, nil
}

// Console returns a logger writing human-readable lines to w, used by the
// non-interactive commands.
func Console(w io.Writer, level zerolog.Level) zerolog.Logger {
	return newLogger(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}, level)
}

// ParseLevel maps LOG_LEVEL style strings to zerolog levels.
func ParseLevel(value string, verbose bool) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Zerolog exposes the underlying structured logger.
func (l *Logger) Zerolog() zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return l.zl
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
