package observability

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "harvest.log")

	logger := NewLogger(LoggerOptions{
		LogPath:  logPath,
		LogLevel: "info",
		Console:  &console,
	})
	logger.Debug("hidden", "k", 1)
	logger.With("dataset", "data_drinks").Info("page persisted", "page", 3)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if strings.Contains(console.String(), "hidden") {
		t.Errorf("debug record leaked at info level: %s", console.String())
	}
	if !strings.Contains(console.String(), "dataset=data_drinks") {
		t.Errorf("console output missing fields: %s", console.String())
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"page persisted"`) || !strings.Contains(string(data), `"page":3`) {
		t.Errorf("file output not JSON with fields: %s", data)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.IncPage("x")
	m.AddRecords("x", "accepted", 3)
	m.ObserveFetch(time.Second)
	m.IncFetchError("x", "status")
	m.SetSnapshot("x", 1, time.Now())
	if err := m.WriteTextfile("ignored.prom"); err != nil {
		t.Fatalf("WriteTextfile on nil metrics = %v", err)
	}
}

func TestMetricsTextfile(t *testing.T) {
	m := NewMetrics()
	m.IncPage("data_drinks")
	m.IncPage("data_drinks")
	m.AddRecords("data_drinks", "accepted", 4)
	m.AddRecords("data_drinks", "rejected", 0)

	path := filepath.Join(t.TempDir(), "nested", "harvest.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `harvest_records_total{dataset="data_drinks",outcome="accepted"} 4`) {
		t.Errorf("textfile missing records counter:\n%s", data)
	}
	if !strings.Contains(string(data), `harvest_pages_total{dataset="data_drinks"} 2`) {
		t.Errorf("textfile missing pages counter:\n%s", data)
	}
}
