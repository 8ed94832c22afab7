// Package logger is a small leveled logger with an optional JSON file sink.
// Console output stays human-readable; the file sink gets one JSON object per
// line so log shippers can pick it up, and can rotate by size or age.
package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	logLevelNames = map[LogLevel]string{
		DEBUG: "DEBUG",
		INFO:  "INFO",
		WARN:  "WARN",
		ERROR: "ERROR",
		FATAL: "FATAL",
	}

	currentLevel = INFO
	sink         fileSink
	mu           sync.RWMutex
)

type fileSink struct {
	file         *os.File
	path         string
	maxSizeBytes int64
	maxAgeDays   int
	currentSize  int64
	lastRotation time.Time
}

type logEntry struct {
	Level     string                 `json:"level"`
	Timestamp string                 `json:"timestamp"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
}

func ParseLevel(name string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// EnableFileLogging opens (or creates) filePath and mirrors every entry into
// it as JSON lines, without rotation.
func EnableFileLogging(filePath string) error {
	return EnableFileLoggingWithRotation(filePath, 0, 0)
}

// EnableFileLoggingWithRotation is EnableFileLogging plus rotation: the file
// is renamed aside once it exceeds maxSizeMB or once per calendar day when
// maxAgeDays > 0, and rotated files older than maxAgeDays are removed. Zero
// disables the respective trigger.
func EnableFileLoggingWithRotation(filePath string, maxSizeMB, maxAgeDays int) error {
	mu.Lock()
	defer mu.Unlock()

	if strings.HasPrefix(filePath, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			filePath = filepath.Join(home, filePath[2:])
		}
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	var currentSize int64
	if stat, serr := file.Stat(); serr == nil {
		currentSize = stat.Size()
	}

	if sink.file != nil {
		sink.file.Close()
	}
	sink = fileSink{
		file:         file,
		path:         filePath,
		maxSizeBytes: int64(maxSizeMB) * 1024 * 1024,
		maxAgeDays:   maxAgeDays,
		currentSize:  currentSize,
		lastRotation: time.Now(),
	}

	log.Println("File logging enabled:", filePath)
	if maxSizeMB > 0 || maxAgeDays > 0 {
		log.Printf("Log rotation enabled: max_size=%dMB, max_age=%d days", maxSizeMB, maxAgeDays)
	}
	return nil
}

func DisableFileLogging() {
	mu.Lock()
	defer mu.Unlock()
	if sink.file != nil {
		sink.file.Close()
		sink = fileSink{}
	}
}

func (s *fileSink) shouldRotate() bool {
	if s.maxSizeBytes > 0 && s.currentSize >= s.maxSizeBytes {
		return true
	}
	if s.maxAgeDays > 0 {
		now := time.Now()
		if now.YearDay() != s.lastRotation.YearDay() || now.Year() != s.lastRotation.Year() {
			return true
		}
	}
	return false
}

// rotate renames the live file aside with a timestamp suffix and reopens a
// fresh one. Called with mu held.
func (s *fileSink) rotate() error {
	s.file.Close()

	rotatedPath := fmt.Sprintf("%s.%s", s.path, time.Now().Format("20060102-150405"))
	if err := os.Rename(s.path, rotatedPath); err != nil {
		if file, openErr := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); openErr == nil {
			s.file = file
		}
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create new log file: %w", err)
	}
	s.file = file
	s.currentSize = 0
	s.lastRotation = time.Now()

	go cleanOldRotatedFiles(s.path, s.maxAgeDays)
	return nil
}

func cleanOldRotatedFiles(path string, maxAgeDays int) {
	if maxAgeDays <= 0 {
		return
	}

	dir := filepath.Dir(path)
	baseName := filepath.Base(path)
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), baseName+".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}

func logMessage(level LogLevel, component, message string, fields map[string]interface{}) {
	mu.Lock()
	skip := level < currentLevel
	if skip {
		mu.Unlock()
		return
	}

	entry := logEntry{
		Level:     logLevelNames[level],
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Component: component,
		Message:   message,
		Fields:    fields,
	}

	if sink.file != nil {
		if sink.shouldRotate() {
			if err := sink.rotate(); err != nil {
				log.Printf("Failed to rotate log file: %v", err)
			}
		}
		if data, err := json.Marshal(entry); err == nil {
			if n, werr := sink.file.Write(append(data, '\n')); werr == nil {
				sink.currentSize += int64(n)
			}
		}
	}
	mu.Unlock()

	var fieldStr string
	if len(fields) > 0 {
		parts := make([]string, 0, len(fields))
		for k, v := range fields {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
		fieldStr = fmt.Sprintf(" {%s}", strings.Join(parts, ", "))
	}

	comp := ""
	if component != "" {
		comp = fmt.Sprintf(" %s:", component)
	}

	log.Printf("[%s] [%s]%s %s%s", entry.Timestamp, entry.Level, comp, message, fieldStr)

	if level == FATAL {
		os.Exit(1)
	}
}

func DebugC(component, message string) { logMessage(DEBUG, component, message, nil) }
func InfoC(component, message string)  { logMessage(INFO, component, message, nil) }
func WarnC(component, message string)  { logMessage(WARN, component, message, nil) }
func ErrorC(component, message string) { logMessage(ERROR, component, message, nil) }
func FatalC(component, message string) { logMessage(FATAL, component, message, nil) }

func DebugCF(component, message string, fields map[string]interface{}) {
	logMessage(DEBUG, component, message, fields)
}

func InfoCF(component, message string, fields map[string]interface{}) {
	logMessage(INFO, component, message, fields)
}

func WarnCF(component, message string, fields map[string]interface{}) {
	logMessage(WARN, component, message, fields)
}

func ErrorCF(component, message string, fields map[string]interface{}) {
	logMessage(ERROR, component, message, fields)
}

func FatalCF(component, message string, fields map[string]interface{}) {
	logMessage(FATAL, component, message, fields)
}
