package cliutil

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewLogRecordInfersLevel(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected string
	}{
		{name: "uvicornInfo", message: "INFO:     Uvicorn running on http://127.0.0.1:8080", expected: "info"},
		{name: "uvicornWarning", message: "WARNING:  StatReload detected changes in 'app/main.py'. Reloading...", expected: "warn"},
		{name: "errorToken", message: "ERROR:    Exception in ASGI application", expected: "error"},
		{name: "criticalToken", message: "CRITICAL: worker died", expected: "error"},
		{name: "debugToken", message: "DEBUG: key pool refreshed", expected: "debug"},
		{name: "noTokenDefaults", message: "Traceback (most recent call last):", expected: "info"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			record := NewLogRecord("api", tc.message, time.Unix(0, 0))
			if record.Level != tc.expected {
				t.Fatalf("expected level %q, got %q", tc.expected, record.Level)
			}
			if record.Source != SourceFile {
				t.Fatalf("expected source %q, got %q", SourceFile, record.Source)
			}
		})
	}
}

func TestNewLogRecordRedactsSecrets(t *testing.T) {
	record := NewLogRecord("api", `sending ${API_TOKEN} OPENAI_API_KEY="super-secret" Authorization: Bearer abc.def-123 key=sk-abcdefghijklmnopqrstu`, time.Unix(0, 0))

	for _, leaked := range []string{"${API_TOKEN}", "super-secret", "abc.def-123", "sk-abcdefghijklmnopqrstu"} {
		if strings.Contains(record.Message, leaked) {
			t.Fatalf("expected %q to be redacted, got %q", leaked, record.Message)
		}
	}
	for _, marker := range []string{"${[redacted]}", `OPENAI_API_KEY="[redacted]"`, "Bearer [redacted]"} {
		if !strings.Contains(record.Message, marker) {
			t.Fatalf("expected marker %q, got %q", marker, record.Message)
		}
	}
}

func TestRedactSecretsLeavesPlainTextAlone(t *testing.T) {
	msg := "INFO:     127.0.0.1:51234 - \"POST /v1/chat/completions HTTP/1.1\" 200 OK"
	if got := RedactSecrets(msg); got != msg {
		t.Fatalf("unexpected redaction: %q", got)
	}
}

func TestLineEncoderBuffersPartialLines(t *testing.T) {
	var out bytes.Buffer
	var errBuf bytes.Buffer
	enc := NewLineEncoder("api", &out, &errBuf)
	enc.Now = func() time.Time { return time.Unix(10, 0).UTC() }

	if _, err := enc.Write([]byte("INFO: one\r\nWARN")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := enc.Write([]byte("ING: two\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if errBuf.Len() != 0 {
		t.Fatalf("unexpected stderr output: %s", errBuf.String())
	}

	dec := json.NewDecoder(&out)
	var records []LogRecord
	for dec.More() {
		var record LogRecord
		if err := dec.Decode(&record); err != nil {
			t.Fatalf("decode: %v", err)
		}
		records = append(records, record)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Message != "INFO: one" || records[0].Level != "info" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].Message != "WARNING: two" || records[1].Level != "warn" {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
	if records[1].Server != "api" || !records[1].Timestamp.Equal(time.Unix(10, 0)) {
		t.Fatalf("unexpected metadata: %+v", records[1])
	}
}
