package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"DEBUG", DEBUG},
		{"debug", DEBUG},
		{" warn ", WARN},
		{"ERROR", ERROR},
		{"INFO", INFO},
		{"nonsense", INFO},
		{"", INFO},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFileSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telebot.log")
	if err := EnableFileLogging(path); err != nil {
		t.Fatalf("EnableFileLogging: %v", err)
	}
	defer DisableFileLogging()

	InfoCF("test", "hello", map[string]interface{}{"k": "v"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := strings.TrimSpace(string(data))

	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, line)
	}
	if entry.Message != "hello" || entry.Component != "test" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestShouldRotate(t *testing.T) {
	tests := []struct {
		name string
		sink fileSink
		want bool
	}{
		{name: "no triggers configured", sink: fileSink{currentSize: 1 << 30}},
		{name: "under size limit", sink: fileSink{maxSizeBytes: 100, currentSize: 99, lastRotation: time.Now()}},
		{name: "at size limit", sink: fileSink{maxSizeBytes: 100, currentSize: 100, lastRotation: time.Now()}, want: true},
		{name: "same day", sink: fileSink{maxAgeDays: 7, lastRotation: time.Now()}},
		{name: "previous day", sink: fileSink{maxAgeDays: 7, lastRotation: time.Now().AddDate(0, 0, -1)}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sink.shouldRotate(); got != tt.want {
				t.Errorf("shouldRotate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRotateMovesFileAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telebot.log")
	if err := os.WriteFile(path, []byte("old contents\n"), 0644); err != nil {
		t.Fatal(err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatal(err)
	}

	s := &fileSink{file: file, path: path, maxSizeBytes: 1, currentSize: 13}
	if err := s.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	defer s.file.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	rotated := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "telebot.log.") {
			rotated++
		}
	}
	if rotated != 1 {
		t.Errorf("expected 1 rotated file, found %d", rotated)
	}
	if s.currentSize != 0 {
		t.Errorf("currentSize not reset: %d", s.currentSize)
	}

	// The live path must exist again and be empty.
	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("live log file missing after rotation: %v", err)
	}
	if stat.Size() != 0 {
		t.Errorf("live log file not fresh: %d bytes", stat.Size())
	}
}
