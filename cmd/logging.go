package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tagpipe-io/tagpipe/internal/config"
	"github.com/tagpipe-io/tagpipe/internal/logger"
)

// buildLogger constructs the process logger from config and flags. The
// returned closer is a no-op unless a log file was opened.
func buildLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	opts := []logger.Option{logger.WithFormat(cfg.LogFormat)}
	if cfg.Debug {
		opts = append(opts, logger.WithDebug())
	}
	if quiet {
		opts = append(opts, logger.WithQuiet())
	}

	closer := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.LogFile, err)
		}
		opts = append(opts, logger.WithLogFile(f))
		closer = func() {
			_ = f.Close()
		}
	}

	lg := logger.New(opts...)
	slog.SetDefault(lg)
	return lg, closer, nil
}
