package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/supertypeai/sectors-corporate-actions/internal/logging"
	"github.com/supertypeai/sectors-corporate-actions/internal/metrics"
	"github.com/supertypeai/sectors-corporate-actions/internal/models"
	"github.com/supertypeai/sectors-corporate-actions/internal/pipeline"
)

const (
	exitFailed  = 1
	exitPartial = 2
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingestion pipeline once",
	Long: `Fetch, parse, normalize, reconcile and store corporate actions for the selected
types. Exit status is 0 when every type succeeded, 2 when at least one type was
partial or failed, and 1 when the run as a whole failed.`,
	Example: `  # Every action type
  corpaction run

  # Only dividends and buybacks, summary as JSON
  corpaction run --types dividend,buyback --output json

  # Scrape and reconcile without touching the database
  corpaction run --types rights_issue --dry-run

  # Backfill everything announced since the start of the year
  corpaction run --cutoff 2024-01-01`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSlice("types", nil, "action types to process (default: all)")
	runCmd.Flags().Bool("dry-run", false, "store into memory only; no database, dead-letter, search or notification writes")
	runCmd.Flags().StringP("output", "o", "table", "summary format: table, json, yaml")
	runCmd.Flags().String("cutoff", "", "oldest announcement date to ingest (YYYY-MM-DD), or none (default: pipeline.lookback)")
}

func runRun(cmd *cobra.Command, _ []string) error {
	names, _ := cmd.Flags().GetStringSlice("types")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	format, _ := cmd.Flags().GetString("output")
	cutoff, _ := cmd.Flags().GetString("cutoff")

	types, err := models.ParseActionTypes(names)
	if err != nil {
		return err
	}
	switch format {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger, runOptions{DryRun: dryRun, Cutoff: cutoff})
	if err != nil {
		return err
	}

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr != "" {
		metricsSrv = metrics.NewServer(cfg.Metrics.ListenAddr)
		errCh := metricsSrv.Start()
		go func() {
			if err, ok := <-errCh; ok && err != nil {
				logger.Error("Metrics server stopped", logging.Error(err))
			}
		}()
	}

	summary := a.orch.Run(ctx, types)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	a.Close(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if cfg.Metrics.Enabled {
		if err := metrics.Push(shutdownCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
			logger.Warn("Failed to push metrics", logging.Error(err))
		}
	}

	if err := renderSummary(cmd.OutOrStdout(), summary, format); err != nil {
		return err
	}
	return exitFor(summary)
}

func exitFor(summary *pipeline.RunSummary) error {
	switch summary.Status {
	case pipeline.StatusSuccess:
		return nil
	case pipeline.StatusPartial:
		return &ExitError{Code: exitPartial, Err: fmt.Errorf("run %s finished partial", summary.RunID), Silent: true}
	default:
		return &ExitError{Code: exitFailed, Err: fmt.Errorf("run %s failed: %s", summary.RunID, summary.Error), Silent: true}
	}
}
