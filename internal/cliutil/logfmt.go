package cliutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

// SourceFile marks records read back from the server log file.
const SourceFile = "file"

// LogRecord represents a server log line ready for JSON encoding.
type LogRecord struct {
	Timestamp time.Time `json:"ts"`
	Server    string    `json:"server"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
	Source    string    `json:"source"`
}

// NewLogRecord converts a raw log line into a structured record. The level is
// inferred from uvicorn-style prefixes and the message has secrets redacted.
func NewLogRecord(server, line string, ts time.Time) LogRecord {
	level := inferLogLevel(line)
	if level == "" {
		level = "info"
	}
	return LogRecord{
		Timestamp: ts,
		Server:    server,
		Level:     level,
		Message:   RedactSecrets(line),
		Source:    SourceFile,
	}
}

var levelTokenPattern = regexp.MustCompile(`(?i)\b(critical|error|warning|warn|info|debug|trace)\b`)

func inferLogLevel(message string) string {
	matches := levelTokenPattern.FindStringSubmatch(message)
	if len(matches) < 2 {
		return ""
	}
	switch strings.ToLower(matches[1]) {
	case "critical", "error":
		return "error"
	case "warning", "warn":
		return "warn"
	case "info":
		return "info"
	case "debug", "trace":
		return "debug"
	default:
		return ""
	}
}

// LineEncoder is an io.Writer that turns each complete line written to it into
// a JSON LogRecord on the underlying encoder.
type LineEncoder struct {
	Server string
	Now    func() time.Time

	enc     *json.Encoder
	stderr  io.Writer
	partial []byte
}

// NewLineEncoder wraps out. Encoding failures are reported on stderr.
func NewLineEncoder(server string, out, stderr io.Writer) *LineEncoder {
	return &LineEncoder{Server: server, Now: time.Now, enc: json.NewEncoder(out), stderr: stderr}
}

func (e *LineEncoder) Write(p []byte) (int, error) {
	data := append(e.partial, p...)
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		e.EncodeLine(string(bytes.TrimRight(data[:idx], "\r")))
		data = data[idx+1:]
	}
	e.partial = append([]byte(nil), data...)
	return len(p), nil
}

// EncodeLine writes a single record.
func (e *LineEncoder) EncodeLine(line string) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	record := NewLogRecord(e.Server, line, now())
	if err := e.enc.Encode(&record); err != nil {
		fmt.Fprintf(e.stderr, "error: encode log: %v\n", err)
	}
}
