package logger_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskgate/internal/config"
	"github.com/phrazzld/taskgate/internal/platform/logger"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"Warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, ok := logger.ParseLevel(tt.name)
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	buf := &logger.TestLogBuffer{}
	log := logger.New(buf, slog.LevelWarn)

	log.Info("dropped")
	log.Warn("kept", "task_id", 3)

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0]["msg"])
	logger.AssertLogField(t, buf, "task_id", float64(3))
}

func TestSetup(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	log, err := logger.Setup(config.LogConfig{Level: "debug"})
	require.NoError(t, err)
	require.NotNil(t, log)

	assert.Same(t, log, slog.Default())
	assert.True(t, log.Enabled(context.Background(), slog.LevelDebug))
}

func TestSetup_InvalidLevelFallsBackToInfo(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	log, err := logger.Setup(config.LogConfig{Level: "chatty"})
	require.NoError(t, err)

	assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, log.Enabled(context.Background(), slog.LevelInfo))
}

func TestSetupTestLogger(t *testing.T) {
	buffer, log, cleanup := logger.SetupTestLogger(t, nil)
	defer cleanup()

	log.Info("test message", "key", "value")
	slog.Debug("via default")

	logger.AssertLogContains(t, buffer, "test message")
	logger.AssertLogContains(t, buffer, "via default")
	logger.AssertLogField(t, buffer, "key", "value")

	buffer.Reset()
	assert.Empty(t, buffer.String())
}
