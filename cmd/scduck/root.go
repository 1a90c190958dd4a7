package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/scduck/scduck/internal/config"
	"github.com/scduck/scduck/internal/scdtable"
	"github.com/scduck/scduck/internal/types"
)

var (
	dbPath string
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "scduck",
	Short: "Sync dated snapshots into bitemporal SCD-Type-2 tables",
	Long: `scduck applies a sequence of dated tabular snapshots to a table and
derives, per key, which rows are unchanged, changed in place, extended
back, split before a later version, reappearing after a gap, brand new,
or deleted — without ever losing history already recorded for other
dates.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the SQLite database file (overrides db in config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "emit machine-readable JSON instead of a formatted report")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(datesCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(rowcountCmd)
}

// resolvedDBPath applies the --db flag over the config.yaml/env default.
func resolvedDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	if p := config.GetString("db"); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("no database path given: pass --db or set db in config.yaml")
}

// openTable resolves the named table's schema (from a config.yaml preset,
// or explicit key/value column flags) and opens it against the resolved
// database file.
func openTable(ctx context.Context, tableName string, explicitKeys, explicitValues []string) (*scdtable.Table, func() error, error) {
	path, err := resolvedDBPath()
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}

	schema, err := resolveSchema(tableName, explicitKeys, explicitValues)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	tbl, err := scdtable.Open(ctx, db, schema)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return tbl, db.Close, nil
}

func resolveSchema(tableName string, explicitKeys, explicitValues []string) (types.Schema, error) {
	if len(explicitKeys) > 0 {
		return types.Schema{TableName: tableName, KeyCols: explicitKeys, ValueCols: explicitValues}, nil
	}

	presets, err := config.TablePresets()
	if err != nil {
		return types.Schema{}, err
	}
	preset, ok := presets[tableName]
	if !ok {
		return types.Schema{}, fmt.Errorf("no --keys given and no tables.%s preset in config.yaml", tableName)
	}
	return types.Schema{TableName: tableName, KeyCols: preset.Keys, ValueCols: preset.Values}, nil
}
