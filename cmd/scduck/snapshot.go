package main

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/scduck/scduck/internal/ui"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <table> <date>",
	Short: "Print every row valid as of a given date",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tableName, date := args[0], args[1]
		ctx := cmd.Context()

		tbl, closeDB, err := openTable(ctx, tableName, nil, nil)
		if err != nil {
			return err
		}
		defer closeDB()

		rows, err := tbl.Snapshot(ctx, date)
		if err != nil {
			return err
		}

		if jsonOut {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(rows)
		}

		cols := tbl.Schema().AllCols()
		header := make([]string, len(cols))
		copy(header, cols)

		var body [][]string
		for _, r := range rows {
			rendered := make([]string, len(cols))
			for i, c := range cols {
				if v := r[c]; v != nil {
					rendered[i] = *v
				} else {
					rendered[i] = "NULL"
				}
			}
			body = append(body, rendered)
		}

		t := table.New().Headers(header...).Rows(body...)
		if ui.IsTerminal() {
			t = t.Width(ui.GetWidth())
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	},
}
