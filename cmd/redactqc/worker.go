package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/redactqc/redactqc/internal/config"
	"github.com/redactqc/redactqc/internal/detector"
	"github.com/redactqc/redactqc/internal/extractor"
	"github.com/redactqc/redactqc/internal/pipeline"
	"github.com/redactqc/redactqc/internal/workerpool"
)

// workerCmd is the body of a worker process: Pool.Submit re-invokes the
// redactqc binary with this subcommand, and WorkerLoop then speaks the
// line-delimited job/outcome protocol over stdin/stdout. It never opens the
// database directly; findings travel back to the parent process as
// Outcomes, which the batch Manager persists.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run a single detection worker (internal use, spawned by redactqc start)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		ex := extractor.New(
			extractor.WithNativeMin(cfg.NativeMinChars),
			extractor.WithOCRDPI(cfg.OCRDPI),
			extractor.WithTesseractCmd(cfg.TesseractCmd),
		)
		det := detector.New(detector.WithContextMax(cfg.ContextMaxBytes))
		p := pipeline.New(ex, det)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := workerpool.WorkerLoop(ctx, os.Stdin, os.Stdout, p); err != nil {
			slog.Error("worker loop exited", "error", err)
			return err
		}
		return nil
	},
}
