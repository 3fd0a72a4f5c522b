package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func TestWritersWithDirOnly(t *testing.T) {
	dir := t.TempDir()
	cfg := CaptureConfig{Dir: dir}
	outW, errW := cfg.Writers("demo")
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers non-nil when Dir is set")
	}
	_, _ = outW.Write([]byte("hello-out\n"))
	_, _ = errW.Write([]byte("hello-err\n"))
	closeIf(outW)
	closeIf(errW)
	if _, err := os.Stat(filepath.Join(dir, "demo.stdout.log")); err != nil {
		t.Fatalf("stdout log not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "demo.stderr.log")); err != nil {
		t.Fatalf("stderr log not created: %v", err)
	}
}

func TestWritersExplicitPathsBeatDir(t *testing.T) {
	dir := t.TempDir()
	sp := filepath.Join(dir, "s.out.log")
	cfg := CaptureConfig{Dir: dir, StdoutPath: sp}
	outW, errW := cfg.Writers("ignored-name")
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers")
	}
	_, _ = outW.Write([]byte("x"))
	closeIf(outW)
	closeIf(errW)
	if _, err := os.Stat(sp); err != nil {
		t.Fatalf("explicit stdout path not created: %v", err)
	}
}

func TestWritersNilWhenUnconfigured(t *testing.T) {
	outW, errW := CaptureConfig{}.Writers("n")
	if outW != nil || errW != nil {
		t.Fatalf("expected nil writers when no Dir or paths set")
	}
}

func TestWritersRotationDefaultsAndOverrides(t *testing.T) {
	cfg := CaptureConfig{StdoutPath: "x", StderrPath: "y"}
	outW, errW := cfg.Writers("n")
	ol, ok := outW.(*lj.Logger)
	if !ok {
		t.Fatalf("stdout writer is not lumberjack.Logger")
	}
	if ol.MaxSize != DefaultMaxSizeMB || ol.MaxBackups != DefaultMaxBackups || ol.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", ol.MaxSize, ol.MaxBackups, ol.MaxAge)
	}
	closeIf(outW)
	closeIf(errW)

	cfg = CaptureConfig{StdoutPath: "x2", StderrPath: "y2", MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true}
	outW, errW = cfg.Writers("n")
	ol = outW.(*lj.Logger)
	if ol.MaxSize != 1 || ol.MaxBackups != 9 || ol.MaxAge != 11 || !ol.Compress {
		t.Fatalf("overrides not applied: size=%d backups=%d age=%d compress=%t", ol.MaxSize, ol.MaxBackups, ol.MaxAge, ol.Compress)
	}
	closeIf(outW)
	closeIf(errW)
}

func TestSetupLevels(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		l := Setup(in, false)
		if !l.Enabled(nil, want) {
			t.Fatalf("level %q: expected %v enabled", in, want)
		}
		if want > slog.LevelDebug && l.Enabled(nil, want-4) {
			t.Fatalf("level %q: expected %v disabled", in, want-4)
		}
	}
}

func TestColorHandlerTagsLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
	l := slog.New(h)
	l.Warn("disk almost full", "free_mb", 42)
	out := buf.String()
	if !strings.Contains(out, "\033[33m") || !strings.Contains(out, "disk almost full") {
		t.Fatalf("expected colored WARN record, got %q", out)
	}
	if !strings.Contains(out, "free_mb=42") {
		t.Fatalf("attrs missing from record: %q", out)
	}
}

func TestColorHandlerWithAttrsKeepsColor(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, nil, false)
	l := slog.New(h).With("server_id", "files")
	l.Info("started")
	out := buf.String()
	if !strings.Contains(out, "\033[32m") {
		t.Fatalf("color lost after With: %q", out)
	}
	if !strings.Contains(out, "server_id=files") {
		t.Fatalf("bound attr missing: %q", out)
	}
}
