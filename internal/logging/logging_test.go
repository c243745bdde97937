package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, LevelInfo, cfg.Level)
	assert.Equal(t, FormatText, cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.False(t, cfg.AddSource)
	assert.False(t, cfg.Rotation.Enabled)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.level))
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("stdout text logger", func(t *testing.T) {
		logger, err := New(Config{Level: LevelInfo, Format: FormatText, Output: "stdout"})
		require.NoError(t, err)
		assert.NotNil(t, logger.Logger)
	})

	t.Run("file logger", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "labscan.log")
		logger, err := New(Config{Level: LevelInfo, Format: FormatText, Output: path})
		require.NoError(t, err)

		logger.Info("file message", "key", "value")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "file message")
		assert.Contains(t, string(data), "key=value")
	})

	t.Run("rotated file logger", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rotated.log")
		logger, err := New(Config{
			Level:    LevelInfo,
			Format:   FormatJSON,
			Output:   path,
			Rotation: RotationConfig{Enabled: true, MaxSizeMB: 1, MaxBackups: 1},
		})
		require.NoError(t, err)

		logger.Info("rotated message")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "rotated message")
	})
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelDebug, Format: FormatJSON}, &buf)

	logger.WithComponent("controller").InfoScan("Scan started", "10.0.0.5", "cycle", 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Scan started", entry["msg"])
	assert.Equal(t, "controller", entry["component"])
	assert.Equal(t, "10.0.0.5", entry["target"])
	assert.EqualValues(t, 1, entry["cycle"])
}

func TestLoggerWithMethods(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelDebug, Format: FormatText}, &buf)

	logger.WithScanID("abc").WithError(fmt.Errorf("boom")).Info("chained")

	out := buf.String()
	assert.Contains(t, out, "scan_id=abc")
	assert.Contains(t, out, "error=boom")
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelWarn, Format: FormatText}, &buf)

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("shown warn")
	logger.ErrorScan("shown error", "10.0.0.5", fmt.Errorf("nmap failed"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown warn")
	assert.Contains(t, out, "shown error")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestSetAndGetDefault(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	var buf bytes.Buffer
	SetDefault(NewWithWriter(Config{Level: LevelDebug, Format: FormatText}, &buf))

	Debug("global debug")
	Info("global info")
	Warn("global warn")
	Error("global error")

	out := buf.String()
	for _, msg := range []string{"global debug", "global info", "global warn", "global error"} {
		assert.Contains(t, out, msg)
	}
}
