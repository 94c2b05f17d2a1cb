package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDecoderLevel(t *testing.T) {
	cases := map[string]int{"": 0, "info": 0, "error": 1, "warn": 2, "debug": 3}
	for in, want := range cases {
		if got := DecoderLevel(in); got != want {
			t.Fatalf("DecoderLevel(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestConfigure_JSONHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure(Options{Level: "warn", JSON: true, Output: &buf})
	t.Cleanup(func() { Configure(Options{}) })

	L().Info("dropped")
	L().Warn("kept", "k", 1)

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("want exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "kept" {
		t.Fatalf("unexpected record: %v", rec)
	}
}
