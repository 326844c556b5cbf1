package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/supertypeai/sectors-corporate-actions/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down]",
	Short: "Apply or roll back the corporate action schema",
	Args:  cobra.ExactArgs(1),
	ValidArgs: []string{
		string(database.Up),
		string(database.Down),
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := database.Direction(args[0])
		if direction != database.Up && direction != database.Down {
			return fmt.Errorf("unknown migration direction %q (want up or down)", args[0])
		}
		path, _ := cmd.Flags().GetString("path")
		if path == "" {
			path = cfg.Database.MigrationsPath
		}

		version, changed, err := database.Migrate(cfg.Database.DSN, path, direction)
		if err != nil {
			return err
		}
		if !changed {
			fmt.Fprintf(cmd.OutOrStdout(), "Schema already %s (version %d)\n", direction, version)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s to version %d\n", direction, version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().String("path", "", "migrations directory (default: database.migrations_path)")
}
