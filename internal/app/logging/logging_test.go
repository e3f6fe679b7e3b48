package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	lc, err := New(Options{Level: "debug", Dir: dir, MaxSizeMB: 1, MaxBackups: 1, Console: &console})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	lc.Logger.Debug("cycle_published", "count", 2)
	if err := lc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !strings.Contains(console.String(), "cycle_published") {
		t.Fatalf("expected console output, got %q", console.String())
	}
	raw, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), "count=2") {
		t.Fatalf("expected file output, got %q", raw)
	}
}

func TestNewConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	lc, err := New(Options{Level: "WARNING", Console: &console})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	lc.Logger.Info("hidden")
	lc.Logger.Warn("shown")
	if err := lc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if strings.Contains(console.String(), "hidden") || !strings.Contains(console.String(), "shown") {
		t.Fatalf("unexpected filtering: %q", console.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":         slog.LevelInfo,
		"debug":    slog.LevelDebug,
		"INFO":     slog.LevelInfo,
		"warning":  slog.LevelWarn,
		"CRITICAL": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %v, got %v (%v)", in, want, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected unknown level error")
	}
}

func TestNewUnknownLevelFallsBack(t *testing.T) {
	var console bytes.Buffer
	lc, err := New(Options{Level: "loud", Console: &console})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	lc.Logger.Debug("hidden")
	if !strings.Contains(console.String(), "log_level_fallback") || strings.Contains(console.String(), "hidden") {
		t.Fatalf("expected INFO fallback with a warning, got %q", console.String())
	}
}
