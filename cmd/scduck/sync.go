package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scduck/scduck/internal/frame"
	"github.com/scduck/scduck/internal/ui"
)

var (
	syncKeys   []string
	syncValues []string
)

var syncCmd = &cobra.Command{
	Use:   "sync <table> <date> <file>",
	Short: "Apply one dated snapshot file to a versioned table",
	Long: `sync reads file (CSV or JSONL, detected from its extension) as the
state of <table> as of <date> (YYYY-MM-DD), classifies every key against
the table's existing history, and writes the resulting changes in a
single transaction.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		tableName, date, path := args[0], args[1], args[2]
		ctx := cmd.Context()

		tbl, closeDB, err := openTable(ctx, tableName, syncKeys, syncValues)
		if err != nil {
			return err
		}
		defer closeDB()

		kind, err := frame.DetectKind(path)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()

		fr, err := frame.Decode(kind, f)
		if err != nil {
			return err
		}

		stats, err := tbl.Sync(ctx, date, fr)
		if err != nil {
			return err
		}

		if jsonOut {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSyncReport(tableName, stats))
		return nil
	},
}

func init() {
	syncCmd.Flags().StringSliceVar(&syncKeys, "keys", nil, "comma-separated key column names (overrides config.yaml preset)")
	syncCmd.Flags().StringSliceVar(&syncValues, "values", nil, "comma-separated value column names (overrides config.yaml preset)")
}
