package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scduck/scduck/internal/ui"
)

var datesCmd = &cobra.Command{
	Use:   "dates <table>",
	Short: "List every date a table has been synced for",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tableName := args[0]
		ctx := cmd.Context()

		tbl, closeDB, err := openTable(ctx, tableName, nil, nil)
		if err != nil {
			return err
		}
		defer closeDB()

		dates, err := tbl.SyncedDates(ctx)
		if err != nil {
			return err
		}

		if jsonOut {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(dates)
		}
		if len(dates) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), ui.Dim.Render("no syncs recorded"))
			return nil
		}
		for _, d := range dates {
			fmt.Fprintln(cmd.OutOrStdout(), d)
		}
		return nil
	},
}
