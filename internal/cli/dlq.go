package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/supertypeai/sectors-corporate-actions/internal/dlq"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the file dead-letter queue",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-letter entries, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		q, err := openFileQueue()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("output")

		entries, err := q.List(limit)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		switch format {
		case "json":
			return writeJSON(w, entries)
		case "yaml":
			return writeYAML(w, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(w, "No dead-letter entries")
			return nil
		}
		t := newTable("TIME", "RUN", "TYPE", "KIND", "PAGE", "ERROR")
		for _, e := range entries {
			page := "-"
			if e.Page > 0 {
				page = strconv.Itoa(e.Page)
			}
			t.addRow(nil, e.Timestamp.Format("2006-01-02T15:04:05Z"), e.RunID, string(e.ActionType), string(e.Kind), page, e.Error)
		}
		t.render(w)
		return nil
	},
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every dead-letter entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		q, err := openFileQueue()
		if err != nil {
			return err
		}
		if err := q.Purge(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", cfg.DLQ.BasePath)
		return nil
	},
}

func openFileQueue() (*dlq.FileQueue, error) {
	if cfg.DLQ.Backend != "file" && cfg.DLQ.Backend != "" {
		return nil, fmt.Errorf("dlq.backend is %q; only the file queue can be inspected here", cfg.DLQ.Backend)
	}
	return dlq.NewFileQueue(cfg.DLQ.BasePath, logger)
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqPurgeCmd)

	dlqListCmd.Flags().Int("limit", 50, "maximum entries to show (0 for all)")
	dlqListCmd.Flags().StringP("output", "o", "table", "output format: table, json, yaml")
}
