package cmd

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/aether-labs/aether/internal/logging"
)

// watchLogLevel applies log level edits in the config file to the running
// server. Other settings need a restart.
func watchLogLevel(v *viper.Viper, logger *logging.Logger) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		applyConfigChange(v, logger, e)
	})
	v.WatchConfig()
}

func applyConfigChange(v *viper.Viper, logger *logging.Logger, e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	level := v.GetString("log.level")
	if logging.ParseLevel(level) == logger.Level() {
		return
	}
	logger.SetLevel(level)
	logger.Info("log level changed", "file", e.Name, "level", level)
}
