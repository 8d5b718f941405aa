package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureConsole(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetConsoleOutput(&buf)
	t.Cleanup(func() { SetConsoleOutput(os.Stderr) })
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"", INFO, false},
		{" warning ", WARN, false},
		{"error", ERROR, false},
		{"verbose", INFO, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelFiltersConsole(t *testing.T) {
	buf := captureConsole(t)
	prev := GetLevel()
	SetLevel(WARN)
	t.Cleanup(func() { SetLevel(prev) })

	InfoC("test", "hidden line")
	WarnCF("test", "visible line", map[string]interface{}{"b": 2, "a": 1})

	out := buf.String()
	if strings.Contains(out, "hidden line") {
		t.Fatalf("info line should be filtered at WARN, got %q", out)
	}
	if !strings.Contains(out, "[WARN] test: visible line {a=1, b=2}") {
		t.Fatalf("unexpected console output: %q", out)
	}
}

func TestFileLoggingWritesJSONLines(t *testing.T) {
	captureConsole(t)
	path := filepath.Join(t.TempDir(), "logs", "wabridge.log")
	if err := EnableFileLogging(path); err != nil {
		t.Fatalf("enable file logging: %v", err)
	}
	t.Cleanup(DisableFileLogging)

	ErrorCF("relay", "webhook failed", map[string]interface{}{FieldError: "boom"})
	DisableFileLogging()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log file: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatalf("expected one log line")
	}
	var entry LogEntry
	if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.Level != "ERROR" || entry.Component != "relay" || entry.Message != "webhook failed" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Fields[FieldError] != "boom" {
		t.Fatalf("expected error field, got %#v", entry.Fields)
	}
}

func TestWhatsmeowLoggerSubModule(t *testing.T) {
	buf := captureConsole(t)

	WhatsmeowLogger("whatsmeow").Sub("Socket").Warnf("frame %d dropped", 7)

	if !strings.Contains(buf.String(), "whatsmeow/Socket: frame 7 dropped") {
		t.Fatalf("unexpected console output: %q", buf.String())
	}
}
