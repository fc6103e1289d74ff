package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/journalscope/internal/backup"
	"github.com/tinytelemetry/journalscope/internal/duckdb"
	"github.com/tinytelemetry/journalscope/internal/httpserver"
	"github.com/tinytelemetry/journalscope/internal/ingest"
	"github.com/tinytelemetry/journalscope/internal/spool"
	"github.com/tinytelemetry/journalscope/internal/watch"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and ingest journals from a watched directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := shutdownContext(cmd.Context(), cmd.OutOrStdout())
			defer stop()
			return runServer(ctx, a.cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int("api-port", defaultAPIPort, "HTTP API port")
	cmd.Flags().String("watch-dir", "", "directory to watch for new journals")
	cmd.Flags().Int("retention-days", 0, "delete journals decoded more than N days ago (0 disables)")
	bindFlag(a.v, cmd.Flags().Lookup("api-port"), "api-port")
	bindFlag(a.v, cmd.Flags().Lookup("watch-dir"), "watch-dir")
	bindFlag(a.v, cmd.Flags().Lookup("retention-days"), "retention-days")
	return cmd
}

// shutdownContext is cancelled on the first SIGINT or SIGTERM. A second
// signal, or a graceful shutdown that takes longer than ten seconds, exits
// the process. stop releases the signal handler.
func shutdownContext(parent context.Context, out io.Writer) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}
		fmt.Fprintln(out, "\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Fprintln(out, "\nForce shutdown.")
		case <-deadline.C:
			fmt.Fprintln(out, "Shutdown timed out, forcing exit.")
		case <-done:
			return
		}
		os.Exit(1)
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
			cancel()
		})
	}
}

// runServer runs storage, the HTTP API and directory ingestion until ctx
// is cancelled.
func runServer(ctx context.Context, cfg appConfig, out io.Writer) error {
	cleanupLogger := configureRuntimeLogger(cfg.LogFile)
	defer cleanupLogger()

	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	// Rows spooled by an earlier run are stored before new ones arrive.
	bufCfg := duckdb.InsertBufferConfig{
		BatchSize:      cfg.InsertBatchSize,
		FlushInterval:  cfg.InsertFlushInterval,
		FlushQueueSize: cfg.InsertFlushQueue,
	}
	if cfg.SpoolEnabled {
		sp, err := spool.Open(cfg.SpoolPath)
		if err != nil {
			return fmt.Errorf("failed to open ingest spool: %w", err)
		}
		if err := replayUncommittedSpool(sp, store, cfg.InsertBatchSize); err != nil {
			_ = sp.Close()
			return fmt.Errorf("failed to replay ingest spool: %w", err)
		}
		bufCfg.Spool = sp
	}

	insertBuffer := duckdb.NewInsertBuffer(store, bufCfg)
	defer insertBuffer.Stop()

	retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		RetentionDays: cfg.RetentionDays,
	})
	if retentionCleaner != nil {
		defer retentionCleaner.Stop()
	}

	backupManager, err := backup.NewManager(store, backup.Config{
		Enabled:  cfg.BackupEnabled,
		Interval: cfg.BackupInterval,
		LocalDir: cfg.BackupDir,
		KeepLast: cfg.BackupKeepLast,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}
	if backupManager != nil {
		defer backupManager.Stop()
	}

	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, store, httpserver.Options{
			MaxConcurrentQueries: int64(cfg.MaxConcurrentReads),
			Metrics:              true,
		})
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
		cfg.APIAddr = apiServer.Addr()
	}

	var watcher *watch.Watcher
	if cfg.WatchDir != "" {
		watcher, err = watch.New(cfg.WatchDir, watch.Options{
			Pattern:  cfg.WatchPattern,
			Debounce: cfg.WatchDebounce,
		})
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", cfg.WatchDir, err)
		}
		defer watcher.Stop()
	}

	printStartupBanner(out, cfg)

	g, gctx := errgroup.WithContext(ctx)

	if watcher != nil {
		watcher.Start(gctx)
		opts := []ingest.Option{ingest.WithMaxLineSize(cfg.MaxLineSize)}
		g.Go(func() error {
			for path := range watcher.Paths() {
				id, n, err := ingestPath(path, store, insertBuffer, opts...)
				if err != nil {
					log.Printf("watch: ingest %s: %v", path, err)
					continue
				}
				log.Printf("watch: ingested %s as %s (%d records)", path, id, n)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}
	return nil
}

func printStartupBanner(w io.Writer, cfg appConfig) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")
	status := func(on bool, label, value string) string {
		if on {
			return fmt.Sprintf("    %s  %-14s %s", check, label, cyan.Render(value))
		}
		return fmt.Sprintf("    %s  %-14s %s", dot, label, dim.Render("disabled"))
	}

	separator := dim.Render("    ─────────────────────────────────")

	var lines []string
	lines = append(lines, "")
	lines = append(lines, cyan.Bold(true).Render("    journalscope"))
	lines = append(lines, "    "+dim.Render("v"+version))
	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")
	lines = append(lines, status(cfg.APIEnabled, "HTTP API", cfg.APIAddr))
	lines = append(lines, status(cfg.APIEnabled, "Metrics", cfg.APIAddr+"/metrics"))
	lines = append(lines, status(cfg.WatchDir != "", "Watch", shortenPath(cfg.WatchDir)+" ("+cfg.WatchPattern+")"))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Storage"))
	lines = append(lines, "")
	lines = append(lines, status(true, "Storage", shortenPath(cfg.DBPath)))
	lines = append(lines, status(cfg.SpoolEnabled, "Spool", shortenPath(cfg.SpoolPath)))
	lines = append(lines, status(cfg.BackupEnabled, "Snapshots", shortenPath(cfg.BackupDir)))
	lines = append(lines, status(cfg.RetentionDays > 0, "Retention", fmt.Sprintf("%d days", cfg.RetentionDays)))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Config File", dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", dot, "Config File", dim.Render("default (no file)")))
	}
	lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Log File", dim.Render(shortenPath(cfg.LogFile))))

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Fprintln(w, strings.Join(lines, "\n"))
}
