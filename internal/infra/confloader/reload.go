package confloader

import (
	"github.com/statemesh/statemesh-go/internal/config"
	"github.com/statemesh/statemesh-go/internal/telemetry/logger"
)

// WatchLogLevel re-reads the configuration file whenever it changes and
// applies its log level to the global logger. Only the level is
// hot-reloaded; everything else requires a restart. The returned
// watcher is already running; the caller owns Stop.
func WatchLogLevel(path string, log logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.Default()
	}
	w, err := NewWatcher(log)
	if err != nil {
		return nil, err
	}
	w.OnChange(func(string) {
		cfg := config.Default()
		if err := New(WithConfigFile(path)).Load(cfg); err != nil {
			log.Error("config reload failed", "path", path, "error", err)
			return
		}
		logger.SetLevel(cfg.Log.Level)
		log.Info("log level reloaded", "level", cfg.Log.Level)
	})
	if err := w.Watch(path); err != nil {
		w.Stop()
		return nil, err
	}
	w.StartAsync()
	return w, nil
}
