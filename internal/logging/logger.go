// Package logging adapts the typed, viper-loaded config into pkg/logger's
// Config so the CLI composition root never builds a slog.Handler by hand.
package logging

import (
	"log/slog"

	"github.com/wp-autohealer/engine/internal/config"
	"github.com/wp-autohealer/engine/pkg/logger"
)

// New builds the process-wide structured logger from cfg.
func New(cfg config.LogConfig) *slog.Logger {
	return logger.NewLogger(logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})
}
