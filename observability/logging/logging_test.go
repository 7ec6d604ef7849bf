package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestSetupRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(&buf, "esimd", "test", slog.LevelInfo)
	logger.Info("committed", "module", "market")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env", "module"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("missing key %q in %v", key, line)
		}
	}
	if line["severity"] != "INFO" || line["service"] != "esimd" {
		t.Fatalf("unexpected line %v", line)
	}
}

func TestSetupHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(&buf, "esimd", "", slog.LevelWarn)
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line should be filtered: %s", buf.String())
	}
}

func TestSetupRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(&buf, "esimd", "", slog.LevelInfo)
	logger.Info("configured",
		slog.String("jwtSecret", "hunter2"),
		slog.String("Authorization", "Bearer abc"),
		slog.String("webhookSecret", ""),
		slog.String("module", "market"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line["jwtSecret"] != RedactedValue || line["Authorization"] != RedactedValue {
		t.Fatalf("secrets leaked: %v", line)
	}
	if line["webhookSecret"] != "" || line["module"] != "market" {
		t.Fatalf("unexpected values: %v", line)
	}
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("bogus") != slog.LevelInfo {
		t.Fatalf("unexpected level parsing")
	}
}

func TestMaskDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://esim:pa55@db:5432/esim?sslmode=disable": "postgres://esim:xxxxx@db:5432/esim?sslmode=disable",
		"postgres://esim@db/esim":                           "postgres://esim@db/esim",
		"file:journal.db":                                   "file:journal.db",
	}
	for in, want := range cases {
		if got := MaskDSN(in); got != want {
			t.Fatalf("MaskDSN(%q) = %q, want %q", in, got, want)
		}
	}
}
