// Package cli implements the corpaction command line.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/supertypeai/sectors-corporate-actions/internal/config"
	"github.com/supertypeai/sectors-corporate-actions/internal/logging"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

var (
	cfgFile   string
	logLevel  string
	logFormat string
	cfg       *config.Config
	logger    *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "corpaction",
	Short: "Corporate action ingestion pipeline",
	Long: `corpaction scrapes corporate action listings (dividends, splits, rights issues,
buybacks, bonus shares, warrants and shareholder meetings), normalizes them into
canonical records and upserts them into the corporate action store.

Rights issues, reverse stock splits and buybacks are reconciled against the
manually curated tables before they are stored; manual entries always win.`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

// ExitError carries a process exit code. Silent errors have already been reported.
type ExitError struct {
	Code   int
	Err    error
	Silent bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute runs the root command and reports any error on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err == nil {
		return nil
	}
	var exit *ExitError
	if !errors.As(err, &exit) || !exit.Silent {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, /etc/corpaction/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override logging.format (json, text)")
}

func initConfig(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	if logFormat != "" {
		loaded.Logging.Format = logFormat
	}
	cfg = loaded
	// stdout is reserved for command output.
	logger = logging.NewWithWriter(os.Stderr, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)
	return nil
}
