package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scduck/scduck/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init <table>",
	Short: "Create a versioned table and its sync-metadata table if absent",
	Long: `init ensures <table> and its companion "<table>_sync_metadata" table
exist with the declared key and value columns. Running it again against
an already-initialized table with the same columns is a no-op; running
it with a different column set fails rather than silently altering the
existing table.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tableName := args[0]
		ctx := cmd.Context()

		tbl, closeDB, err := openTable(ctx, tableName, syncKeys, syncValues)
		if err != nil {
			return err
		}
		defer closeDB()

		fmt.Fprintln(cmd.OutOrStdout(), ui.Pass.Render(fmt.Sprintf("%s ready", tbl.Schema())))
		return nil
	},
}

func init() {
	initCmd.Flags().StringSliceVar(&syncKeys, "keys", nil, "comma-separated key column names (overrides config.yaml preset)")
	initCmd.Flags().StringSliceVar(&syncValues, "values", nil, "comma-separated value column names (overrides config.yaml preset)")
}
