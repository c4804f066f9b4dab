package logging

import (
	"io"
	"os"
	"path/filepath"

	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"

	"sitepulse/internal/config"
)

// SetupDefault installs the process-wide slog default logger. In production
// log lines are duplicated to a size-rotated file so packages that log via
// slog.Default() end up in the same place as the request logs.
func SetupDefault(cfg *config.Config) *slog.Logger {
	var out io.Writer = os.Stdout

	if cfg.IsProduction() && cfg.LogsDirectory != "" {
		rotated := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogsDirectory, cfg.AppName+".log"),
			MaxSize:    cfg.LogsMaxSizeInMb,
			MaxBackups: cfg.LogsMaxBackups,
			MaxAge:     cfg.LogsMaxAgeInDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotated)
	}

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case config.LogLevelDebug:
		level = slog.LevelDebug
	case config.LogLevelWarn:
		level = slog.LevelWarn
	case config.LogLevelError:
		level = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
