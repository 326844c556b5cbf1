package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

type typeInfo struct {
	ActionType   models.ActionType `json:"action_type"`
	View         string            `json:"view"`
	Table        string            `json:"table"`
	Reconciled   bool              `json:"reconciled"`
	LookbackDays int               `json:"lookback_days"`
}

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the supported action types and how they are sourced",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, _ := cmd.Flags().GetString("output")

		infos := make([]typeInfo, 0, len(models.AllActionTypes()))
		for _, at := range models.AllActionTypes() {
			view, _ := cfg.Source.View(string(at))
			infos = append(infos, typeInfo{
				ActionType:   at,
				View:         view,
				Table:        at.Table(),
				Reconciled:   at.IsException(),
				LookbackDays: cfg.Pipeline.LookbackFor(string(at)),
			})
		}

		w := cmd.OutOrStdout()
		switch format {
		case "json", "yaml":
			if format == "json" {
				return writeJSON(w, infos)
			}
			return writeYAML(w, infos)
		}
		t := newTable("TYPE", "VIEW", "TABLE", "MANUAL", "LOOKBACK")
		for _, info := range infos {
			manual := "-"
			if info.Reconciled {
				manual = "yes"
			}
			t.addRow(nil, string(info.ActionType), info.View, info.Table, manual, strconv.Itoa(info.LookbackDays))
		}
		t.render(w)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(typesCmd)
	typesCmd.Flags().StringP("output", "o", "table", "output format: table, json, yaml")
}
