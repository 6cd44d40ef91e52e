package logger

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWriterNilWithoutDestination(t *testing.T) {
	if w := (Config{}).Writer(); w != nil {
		t.Fatal("expected nil writer when neither dir nor path is set")
	}
}

func TestWriterDefaultsFromDir(t *testing.T) {
	dir := t.TempDir()
	w := Config{Dir: dir}.Writer()
	if w == nil {
		t.Fatal("expected a writer")
	}
	ljw, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("expected lumberjack logger, got %T", w)
	}
	if ljw.Filename != filepath.Join(dir, "voxd.log") {
		t.Fatalf("unexpected filename %q", ljw.Filename)
	}
	if ljw.MaxSize != DefaultMaxSizeMB || ljw.MaxBackups != DefaultMaxBackups || ljw.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("unexpected rotation defaults %+v", ljw)
	}
}

func TestWriterExplicitPathWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.log")
	w := Config{Dir: "/ignored", Path: path, MaxSizeMB: 99}.Writer()
	ljw := w.(*lj.Logger)
	if ljw.Filename != path || ljw.MaxSize != 99 {
		t.Fatalf("unexpected writer config %+v", ljw)
	}
}

func TestColorTextHandlerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, false))

	log.Info("should be filtered")
	log.Warn("engine crashed", "pid", 42)

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Fatal("info line should be filtered at warn level")
	}
	if !strings.Contains(out, "engine crashed") || !strings.Contains(out, "pid=42") {
		t.Fatalf("unexpected output %q", out)
	}
}
