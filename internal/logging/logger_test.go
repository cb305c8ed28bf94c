package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Service: "gmm", Module: "train", Level: "info"}, &buf)

	logger.Debug("hidden")
	logger.Info("model trained", "classes", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (debug filtered), got %d: %q", len(lines), buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := rec["timestamp"]; !ok {
		t.Error("expected timestamp key")
	}
	if _, ok := rec["time"]; ok {
		t.Error("expected time key to be renamed")
	}
	if rec["service"] != "gmm" || rec["module"] != "train" {
		t.Errorf("expected service/module attrs, got %v", rec)
	}
	if rec["classes"] != float64(3) {
		t.Errorf("expected classes=3, got %v", rec["classes"])
	}
}

func TestNewWithWriterText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "debug", Format: "text"}, &buf)
	logger.Debug("fold scored", "fold", 1)

	if !strings.Contains(buf.String(), "fold=1") {
		t.Fatalf("expected text output, got %q", buf.String())
	}
}

func TestNewRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gmm.log")
	logger, closer := New(Config{File: path, MaxSize: 1})
	logger.Info("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Fatalf("expected message in file, got %q", data)
	}
}
