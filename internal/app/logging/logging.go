package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/lumberjack/v2"
)

// FileName is the rotating log file written under the configured directory.
const FileName = "canary_forwarder.log"

type Options struct {
	Level      string
	Dir        string // empty disables the file
	MaxSizeMB  int
	MaxBackups int
	Console    io.Writer
}

// Context is the process-wide logger. Close flushes and closes the log file.
type Context struct {
	Logger *slog.Logger
	file   *lumberjack.Logger
}

// New builds a text logger writing to the console and, when Dir is set, to a
// size-rotated file. An unknown level falls back to INFO with a warning.
func New(opts Options) (*Context, error) {
	level, levelErr := ParseLevel(opts.Level)
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	var (
		out  io.Writer = console
		file *lumberjack.Logger
	)
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		file = &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, FileName),
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		out = io.MultiWriter(console, file)
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	if levelErr != nil {
		logger.Warn("log_level_fallback", "level", opts.Level, "err", levelErr.Error())
	}
	return &Context{Logger: logger, file: file}, nil
}

func (c *Context) Close() error {
	if c == nil || c.file == nil {
		return nil
	}
	return c.file.Close()
}

// ParseLevel maps the LOGLEVEL names (DEBUG, INFO, WARNING, ERROR, CRITICAL)
// onto slog levels. Empty means INFO.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "INFO":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR", "CRITICAL", "FATAL":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("unknown log level " + s)
	}
}
