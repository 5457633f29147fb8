package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"Error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "json", "info"))
	logger.Info("release published", "version", "1.2.0")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput: %s", err, buf.String())
	}
	if record["msg"] != "release published" {
		t.Errorf("msg = %v, want release published", record["msg"])
	}
	if record["version"] != "1.2.0" {
		t.Errorf("version = %v, want 1.2.0", record["version"])
	}
}

func TestNewHandler_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "text", "info"))
	logger.Info("artifact stored", "sha256", "abc123")

	out := buf.String()
	if !strings.Contains(out, "artifact stored") {
		t.Errorf("text output missing message: %q", out)
	}
	if !strings.Contains(out, "sha256=abc123") {
		t.Errorf("text output missing attribute: %q", out)
	}
}

func TestNewHandler_UnknownFormatFallsBackToText(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "logfmt", "info"))
	logger.Info("hello")

	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("unknown format produced JSON: %q", buf.String())
	}
}

func TestNewHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "json", "warn"))
	logger.Info("too quiet")
	logger.Warn("loud enough")

	out := buf.String()
	if strings.Contains(out, "too quiet") {
		t.Error("info record appeared despite warn threshold")
	}
	if !strings.Contains(out, "loud enough") {
		t.Error("warn record was suppressed")
	}
}

func TestSetupLogger_NeverPanics(t *testing.T) {
	defer SetupLogger("text", "error") // quiet default for the rest of the binary

	for _, format := range []string{"json", "text", "", "unknown"} {
		for _, level := range []string{"debug", "info", "warn", "error", "", "unknown"} {
			func() {
				defer func() {
					if r := recover(); r != nil {
						t.Errorf("SetupLogger(%q, %q) panicked: %v", format, level, r)
					}
				}()
				SetupLogger(format, level)
			}()
		}
	}
}
