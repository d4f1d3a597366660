package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wp-autohealer/engine/internal/config"
)

func TestNewDefaultsToJSONOnStdout(t *testing.T) {
	logger := New(config.LogConfig{Level: "info", Format: "json", Output: "stdout"})
	assert.NotNil(t, logger)
}

func TestNewHonorsTextFormatAndLevel(t *testing.T) {
	logger := New(config.LogConfig{Level: "debug", Format: "text", Output: "stderr"})
	assert.NotNil(t, logger)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestNewRotatesToFileWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	logger := New(config.LogConfig{Level: "warn", Format: "json", Output: "file", Filename: dir + "/autohealer.log"})
	assert.NotNil(t, logger)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}
