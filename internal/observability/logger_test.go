// File: internal/observability/logger_test.go
package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/tabpilot/internal/config"
)

// memSink is an in-memory WriteSyncer for capturing console output.
type memSink struct {
	strings.Builder
}

func (s *memSink) Sync() error { return nil }

func initForTest(t *testing.T, cfg config.LoggerConfig) *memSink {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	sink := &memSink{}
	Initialize(cfg, zapcore.Lock(zapcore.AddSync(sink)))
	return sink
}

func TestInitializeConsoleLoggerWithColors(t *testing.T) {
	sink := initForTest(t, config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "TestService",
		Colors:      config.ColorConfig{Info: "green"},
	})

	GetLogger().Info("This is a test message.")

	output := sink.String()
	assert.Contains(t, output, "INFO", "output should contain the log level")
	assert.Contains(t, output, "This is a test message.")
	assert.Contains(t, output, colorGreen, "info level should be colorized green")
	assert.Contains(t, output, colorReset, "output should contain the reset code")
	assert.Contains(t, output, "TestService.", "named logger should appear with dot suffix")
}

func TestInitializeJSONLogger(t *testing.T) {
	sink := initForTest(t, config.LoggerConfig{
		Level:       "info",
		Format:      "json",
		ServiceName: "svc",
	})

	GetLogger().Info("structured entry", zap.String("component", "loop"))

	line := strings.TrimSpace(sink.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "structured entry", entry["msg"])
	assert.Equal(t, "loop", entry["component"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	sink := initForTest(t, config.LoggerConfig{
		Level:  "verbose-chatty",
		Format: "json",
	})

	GetLogger().Debug("should be suppressed")
	GetLogger().Info("should appear")

	output := sink.String()
	assert.NotContains(t, output, "should be suppressed")
	assert.Contains(t, output, "should appear")
}

func TestFileCoreWritesJSON(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "tabpilot.log")
	initForTest(t, config.LoggerConfig{
		Level:   "info",
		Format:  "console",
		LogFile: logFile,
		MaxSize: 1,
	})

	GetLogger().Info("file entry")
	Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "file entry", entry["msg"])
}

func TestGetLoggerBeforeInitializeReturnsFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	logger := GetLogger()
	require.NotNil(t, logger)
	// Must not panic when used.
	logger.Debug("fallback logger in use")
}
