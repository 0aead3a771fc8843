package cmd

import (
	"io"
	"log/slog"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/aether-labs/aether/internal/logging"
)

func TestApplyConfigChange(t *testing.T) {
	v := viper.New()
	logger := logging.New(logging.Config{Level: "info", Format: "text", Output: io.Discard})

	v.Set("log.level", "debug")
	applyConfigChange(v, logger, fsnotify.Event{Name: ".aether.yaml", Op: fsnotify.Chmod})
	assert.Equal(t, slog.LevelInfo, logger.Level(), "chmod must not reload")

	applyConfigChange(v, logger, fsnotify.Event{Name: ".aether.yaml", Op: fsnotify.Write})
	assert.Equal(t, slog.LevelDebug, logger.Level())

	v.Set("log.level", "error")
	applyConfigChange(v, logger, fsnotify.Event{Name: ".aether.yaml", Op: fsnotify.Create})
	assert.Equal(t, slog.LevelError, logger.Level())
}
