package main

import (
	"fmt"

	"github.com/newthinker/rankfolio/internal/config"
	"github.com/newthinker/rankfolio/internal/logger"
	"github.com/newthinker/rankfolio/internal/recorder"
	"go.uber.org/zap"
)

// loadConfig reads --config, or falls back to defaults when it is unset.
func loadConfig() (*config.Config, bool, error) {
	if cfgFile == "" {
		return config.Defaults(), false, nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, false, fmt.Errorf("loading config: %w", err)
	}
	return cfg, true, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	return logger.NewAtLevel(debug || cfg.Log.Development, level)
}

func openRecorder(cfg *config.Config, log *zap.Logger) (recorder.Recorder, error) {
	if !cfg.Recorder.Enabled {
		return recorder.NewNoopRecorder(), nil
	}
	return recorder.NewSQLiteRecorder(cfg.Recorder.Path, log)
}
