package core

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerTo(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug level", "debug", true, true},
		{"info level", "info", false, true},
		{"warn level", "warn", false, false},
		{"error level", "error", false, false},
		{"default level", "", false, true},
		{"unknown level", "invalid", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerTo(&buf, tt.level)

			logger.Debug("debug message")
			logger.Info("test message", "key", "value")

			output := buf.String()
			if got := strings.Contains(output, "debug message"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.Contains(output, "test message"); got != tt.wantInfo {
				t.Errorf("info logged = %v, want %v", got, tt.wantInfo)
			}

			if tt.wantInfo {
				lines := strings.Split(strings.TrimSpace(output), "\n")
				var logEntry map[string]interface{}
				if err := json.Unmarshal([]byte(lines[len(lines)-1]), &logEntry); err != nil {
					t.Fatalf("output is not JSON: %v", err)
				}
				if logEntry["msg"] != "test message" || logEntry["key"] != "value" {
					t.Errorf("unexpected entry %v", logEntry)
				}
			}
		})
	}
}

func TestLoggerMethods(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "debug")

	logger.Debug("debug message", "key", "debug")
	logger.Info("info message", "key", "info")
	logger.Warn("warn message", "key", "warn")
	logger.Error("error message", "key", "error")
	logger.With("conversation_id", "c1").Info("scoped message")

	output := buf.String()

	// Check that all messages were logged
	expectedMessages := []string{"debug message", "info message", "warn message", "error message", "scoped message", `"conversation_id":"c1"`}
	for _, msg := range expectedMessages {
		if !strings.Contains(output, msg) {
			t.Errorf("Expected to find message '%s' in output", msg)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("warn") != slog.LevelWarn {
		t.Error("warn should map to slog.LevelWarn")
	}
	if ParseLevel("DEBUG") != slog.LevelInfo {
		t.Error("level names are lower case; anything else is info")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Error("dropped")
	logger.With("k", "v").Info("dropped too")
}
