package main

import (
	"github.com/septivank/meter-dashboard/internal/config"
	"github.com/septivank/meter-dashboard/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
}

// fallbackConfig names the logger used before the real configuration loads
func fallbackConfig() *config.Config {
	return &config.Config{ServiceName: "meter-dashboard", LogLevel: "info"}
}
