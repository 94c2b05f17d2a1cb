package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tsprobe.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func ptr[T any](v T) *T { return &v }

func TestLoad_FileDefaults(t *testing.T) {
	path := writeYAML(t, `schema_version: v1
source:
  kind: file
  path: in.ts
summary:
  enabled: true
  file: /tmp/summary.txt
`)
	cfg, err := Load(path, Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Capture.BufferSize != FileChunk {
		t.Fatalf("buffer size = %d, want %d", cfg.Capture.BufferSize, FileChunk)
	}
	if cfg.Summary.Period != time.Second || cfg.Summary.Mode != "bandwidth" || cfg.Summary.Format != "text" {
		t.Fatalf("unexpected summary defaults: %+v", cfg.Summary)
	}
	if cfg.Capture.RetryBackoff != 0 {
		t.Fatalf("retry backoff should default to busy poll, got %s", cfg.Capture.RetryBackoff)
	}
}

func TestLoad_NetworkChunkAndDurations(t *testing.T) {
	path := writeYAML(t, `source:
  kind: udp
  address: 239.1.1.1:1234
capture:
  retry_backoff: 5ms
summary:
  period: 250ms
`)
	cfg, err := Load(path, Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Capture.BufferSize != NetworkChunk {
		t.Fatalf("buffer size = %d, want %d", cfg.Capture.BufferSize, NetworkChunk)
	}
	if cfg.Capture.RetryBackoff != 5*time.Millisecond || cfg.Summary.Period != 250*time.Millisecond {
		t.Fatalf("durations not parsed: %+v %+v", cfg.Capture, cfg.Summary)
	}
}

func TestLoad_InvalidSchema(t *testing.T) {
	path := writeYAML(t, "schema_version: v999\nsource: { kind: file, path: x }\n")
	if _, err := Load(path, Flags{}); err == nil {
		t.Fatal("expected error for invalid schema_version")
	}
}

func TestLoad_MissingFileTolerated(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"), Flags{File: ptr("in.ts")})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Kind != "file" || cfg.Source.Path != "in.ts" {
		t.Fatalf("unexpected source %+v", cfg.Source)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeYAML(t, "source: { kind: file, path: a.ts }\ncapture: { buffer_size: 188 }\n")
	t.Setenv("TSPROBE_CAPTURE__BUFFER_SIZE", "376")
	t.Setenv("TSPROBE_SUMMARY__MODE", "table")

	cfg, err := Load(path, Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Capture.BufferSize != 376 {
		t.Fatalf("env did not override buffer size: %d", cfg.Capture.BufferSize)
	}
	if cfg.Summary.Mode != "table" {
		t.Fatalf("env did not override mode: %q", cfg.Summary.Mode)
	}
}

func TestLoad_FlagsWin(t *testing.T) {
	path := writeYAML(t, "source: { kind: file, path: a.ts }\nsummary: { period: 5s }\nlog: { level: error }\n")
	cfg, err := Load(path, Flags{
		Debug:         ptr("debug"),
		Address:       ptr("127.0.0.1:5000"),
		TCP:           true,
		Output:        ptr("out.ts"),
		Summary:       ptr("packet"),
		SummaryPeriod: ptr(int64(200)),
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Kind != "tcp" || cfg.Source.Address != "127.0.0.1:5000" {
		t.Fatalf("source = %+v", cfg.Source)
	}
	if cfg.Capture.BufferSize != NetworkChunk {
		t.Fatalf("buffer size = %d, want %d", cfg.Capture.BufferSize, NetworkChunk)
	}
	if cfg.Output.Kind != "file" || cfg.Output.Path != "out.ts" {
		t.Fatalf("output = %+v", cfg.Output)
	}
	if !cfg.Summary.Enabled || cfg.Summary.Mode != "packet" || cfg.Summary.Period != 200*time.Millisecond {
		t.Fatalf("summary = %+v", cfg.Summary)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level = %q", cfg.Log.Level)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := map[string]Flags{
		"no source":        {},
		"bad address":      {Address: ptr("no-port")},
		"tcp and udp":      {Address: ptr("h:1"), TCP: true, UDP: true},
		"bad summary mode": {File: ptr("a.ts"), Summary: ptr("histogram")},
		"zero period":      {File: ptr("a.ts"), SummaryPeriod: ptr(int64(0))},
		"stdout clash":     {File: ptr("a.ts"), Output: ptr("-"), Summary: ptr("bandwidth")},
	}
	for name, f := range cases {
		if _, err := Load("", f); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestYAML_RoundTripsAndMasksSecrets(t *testing.T) {
	cfg, err := Load("", Flags{File: ptr("in.ts")})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Source.Kafka.SASLPass = "hunter2"

	out, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	if strings.Contains(string(out), "hunter2") {
		t.Fatal("password leaked into dump")
	}
	var back Config
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if back.Summary.Period != cfg.Summary.Period || back.Capture.BufferSize != cfg.Capture.BufferSize {
		t.Fatalf("dump lost values: %+v", back)
	}
}
