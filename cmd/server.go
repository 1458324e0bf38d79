package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tagpipe-io/tagpipe/internal/config"
	"github.com/tagpipe-io/tagpipe/internal/dispatch"
	"github.com/tagpipe-io/tagpipe/internal/executor"
	"github.com/tagpipe-io/tagpipe/internal/fileutil"
	"github.com/tagpipe-io/tagpipe/internal/frontend"
	"github.com/tagpipe-io/tagpipe/internal/ingest"
	"github.com/tagpipe-io/tagpipe/internal/persistence/sqlite"
	"github.com/tagpipe-io/tagpipe/internal/scripts"
)

func serverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the engine and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if host, err := cmd.Flags().GetString("host"); err == nil && host != "" {
				cfg.Host = host
			}
			if port, err := cmd.Flags().GetInt("port"); err == nil && port != 0 {
				cfg.Port = port
			}
			return runServer(cfg)
		},
	}
	cmd.Flags().StringP("host", "s", "", "listen host")
	cmd.Flags().IntP("port", "p", 0, "listen port")
	return cmd
}

func runServer(cfg *config.Config) error {
	lg, closeLog, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	for _, dir := range []string{cfg.UploadsDir, cfg.ScriptsDir, cfg.OutputDir} {
		if err := fileutil.EnsureDir(dir); err != nil {
			return err
		}
	}

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Jobs left over from a previous process cannot be resumed.
	if n, err := store.SweepUnfinishedJobs(ctx, "engine restarted while job was in flight"); err != nil {
		lg.Error("failed to sweep unfinished jobs", "error", err)
	} else if n > 0 {
		lg.Warn("marked stale jobs as failed", "count", n)
	}

	scriptStore, err := scripts.New(cfg.ScriptsDir)
	if err != nil {
		return err
	}

	exec := executor.New(executor.Config{
		Interpreter: cfg.Interpreter,
		OutputDir:   cfg.OutputDir,
		Logger:      lg,
	})
	ingestor := ingest.New(ingest.Config{
		Store:      store,
		UploadsDir: cfg.UploadsDir,
		Logger:     lg,
	})
	dispatcher := dispatch.New(dispatch.Config{
		Store:             store,
		Scripts:           scriptStore,
		Runner:            exec,
		Ingestor:          ingestor,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		UploadsDir:        cfg.UploadsDir,
		Logger:            lg,
	})

	srv := frontend.New(frontend.Config{
		Addr:       cfg.Addr(),
		Store:      store,
		Scripts:    scriptStore,
		Dispatcher: dispatcher,
		UploadsDir: cfg.UploadsDir,
		Logger:     lg,
	})

	lg.Info("engine starting",
		"addr", cfg.Addr(),
		"database", cfg.DatabasePath,
		"max_concurrent_jobs", cfg.MaxConcurrentJobs)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	// Drain workers; running subprocesses finish on their own.
	dispatcher.Wait()
	lg.Info("engine stopped")
	return nil
}
