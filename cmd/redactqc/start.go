package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/redactqc/redactqc/internal/batch"
	"github.com/redactqc/redactqc/internal/config"
	"github.com/redactqc/redactqc/internal/httpapi"
	"github.com/redactqc/redactqc/internal/query"
	"github.com/redactqc/redactqc/internal/reportjanitor"
	"github.com/redactqc/redactqc/internal/store"
	"github.com/redactqc/redactqc/internal/workerpool"
)

// reportsPurgeSchedule mirrors the teacher's daily auto-purge cron slot.
const reportsPurgeSchedule = "0 3 * * *"

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the redactqc API server",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	// ── Logging (initial — overridden below once config is loaded) ─────────
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// ── Config ───────────────────────────────────────────────────────────
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("redactqc starting",
		"version", version,
		"log_level", cfg.LogLevel,
		"http_addr", cfg.HTTPAddr,
		"data_dir", cfg.DataDir)

	if err := os.MkdirAll(cfg.ReportsDir(), 0o700); err != nil {
		slog.Error("create reports dir", "error", err)
		os.Exit(1)
	}

	// ── Database ─────────────────────────────────────────────────────────
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// ── Worker pool and batch manager ───────────────────────────────────
	execPath, err := os.Executable()
	if err != nil {
		slog.Error("resolve executable path", "error", err)
		os.Exit(1)
	}
	pool := workerpool.New(execPath).WithChunkSize(cfg.ChunkSize)
	mgr := batch.New(st, pool,
		batch.WithDefaultConfidenceThreshold(cfg.DefaultConfidenceThreshold),
		batch.WithDefaultWorkerCount(cfg.DefaultWorkerCount))

	q := query.New(st)

	// ── Report retention ─────────────────────────────────────────────────
	janitor := reportjanitor.New(st, cfg.ReportsRetentionDays)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := janitor.Start(ctx, reportsPurgeSchedule); err != nil {
		slog.Warn("failed to schedule report purge", "error", err)
	}
	defer janitor.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────
	srv := httpapi.New(cfg.HTTPAddr, st, q, mgr)
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	if err := mgr.Shutdown(context.Background()); err != nil {
		slog.Warn("batch manager shutdown", "error", err)
	}

	slog.Info("redactqc stopped")
	return nil
}

// parseLogLevel converts a config string ("debug", "info", "warn", "error")
// to its slog.Level equivalent. Unknown values default to Info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
