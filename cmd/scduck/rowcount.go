package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var rowcountCmd = &cobra.Command{
	Use:   "rowcount <table>",
	Short: "Print the total stored row count (every version of every key)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tableName := args[0]
		ctx := cmd.Context()

		tbl, closeDB, err := openTable(ctx, tableName, nil, nil)
		if err != nil {
			return err
		}
		defer closeDB()

		n, err := tbl.RecordCount(ctx)
		if err != nil {
			return err
		}

		if jsonOut {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]int{"row_count": n})
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}
